// Package authority manages role-scoped signing credentials for ledger
// instructions. Key material never appears in logs; keys are referenced by
// fingerprint only.
package authority

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"game-token-engine/internal/ledger"
)

// Role scopes a credential to one class of instruction.
type Role string

const (
	// RoleMint signs mint transfers from the mint authority account.
	RoleMint Role = "mint"

	// RolePoolTransfer signs claim payouts from the reward pool.
	RolePoolTransfer Role = "poolTransfer"
)

// ErrAuthorityUnavailable means no usable credential exists for a role.
// Callers must fail the operation without retrying against other roles.
var ErrAuthorityUnavailable = errors.New("authority credentials unavailable")

type credential struct {
	priv   ed25519.PrivateKey
	pub    ed25519.PublicKey
	pubB58 string
}

// KeyStore holds one active credential per role and retains rotated-out
// public keys for signature verification.
type KeyStore struct {
	mu      sync.RWMutex
	backend SecretBackend
	active  map[Role]*credential
	retired map[string]ed25519.PublicKey // by base58 public key
	logger  *log.Logger
}

// NewKeyStore loads credentials for all given roles from the backend.
func NewKeyStore(backend SecretBackend, roles []Role, logger *log.Logger) (*KeyStore, error) {
	if logger == nil {
		logger = log.Default()
	}

	ks := &KeyStore{
		backend: backend,
		active:  make(map[Role]*credential),
		retired: make(map[string]ed25519.PublicKey),
		logger:  logger,
	}

	for _, role := range roles {
		cred, err := ks.load(role)
		if err != nil {
			return nil, fmt.Errorf("%w: role %s: %v", ErrAuthorityUnavailable, role, err)
		}
		ks.active[role] = cred
		logger.Printf("[AUTHORITY] Loaded credential for role %s (fingerprint %s)", role, fingerprint(cred.pub))
	}

	return ks, nil
}

func (ks *KeyStore) load(role Role) (*credential, error) {
	encoded, err := ks.backend.Load(role)
	if err != nil {
		return nil, err
	}
	return decodeCredential(encoded)
}

// Sign produces a signed instruction for the role. Returns
// ErrAuthorityUnavailable if the role has no active credential.
func (ks *KeyStore) Sign(role Role, instr ledger.TransferInstruction) (ledger.SignedInstruction, error) {
	ks.mu.RLock()
	cred, ok := ks.active[role]
	ks.mu.RUnlock()

	if !ok {
		return ledger.SignedInstruction{}, fmt.Errorf("%w: role %s", ErrAuthorityUnavailable, role)
	}

	sig := ed25519.Sign(cred.priv, SigningMessage(instr))
	return ledger.SignedInstruction{
		TransferInstruction: instr,
		SignerKey:           cred.pubB58,
		Signature:           base58.Encode(sig),
	}, nil
}

// PublicKey returns the base58 public key of the role's active credential.
func (ks *KeyStore) PublicKey(role Role) (string, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	cred, ok := ks.active[role]
	if !ok {
		return "", fmt.Errorf("%w: role %s", ErrAuthorityUnavailable, role)
	}
	return cred.pubB58, nil
}

// Rotate reloads the role's credential from the backend. The previous
// public key stays available for verification; new signatures use the new
// key immediately. In-flight Sign calls that already took the old
// credential complete with it.
func (ks *KeyStore) Rotate(role Role) error {
	fresh, err := ks.load(role)
	if err != nil {
		return fmt.Errorf("%w: rotate role %s: %v", ErrAuthorityUnavailable, role, err)
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	if old, ok := ks.active[role]; ok {
		ks.retired[old.pubB58] = old.pub
		ks.logger.Printf("[AUTHORITY] Rotated role %s: %s -> %s", role, fingerprint(old.pub), fingerprint(fresh.pub))
	} else {
		ks.logger.Printf("[AUTHORITY] Installed credential for role %s (fingerprint %s)", role, fingerprint(fresh.pub))
	}
	ks.active[role] = fresh
	return nil
}

// Revoke drops the role's active credential without replacement.
// Subsequent Sign calls fail with ErrAuthorityUnavailable.
func (ks *KeyStore) Revoke(role Role) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if old, ok := ks.active[role]; ok {
		ks.retired[old.pubB58] = old.pub
		delete(ks.active, role)
		ks.logger.Printf("[AUTHORITY] Revoked credential for role %s (fingerprint %s)", role, fingerprint(old.pub))
	}
}

// Verify checks a signature against the signer key, accepting both active
// and retired keys known to the store.
func (ks *KeyStore) Verify(instr ledger.SignedInstruction) bool {
	pub, err := decodePublicKey(instr.SignerKey)
	if err != nil {
		return false
	}

	ks.mu.RLock()
	known := false
	for _, cred := range ks.active {
		if cred.pubB58 == instr.SignerKey {
			known = true
			break
		}
	}
	if !known {
		_, known = ks.retired[instr.SignerKey]
	}
	ks.mu.RUnlock()

	if !known {
		return false
	}

	sig, err := base58.Decode(instr.Signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, SigningMessage(instr.TransferInstruction), sig)
}

// SigningMessage returns the canonical byte form of an instruction. The
// ledger service verifies signatures over the same encoding.
func SigningMessage(instr ledger.TransferInstruction) []byte {
	msg := instr.From + "|" + instr.To + "|" + strconv.FormatInt(instr.Amount, 10) + "|" + instr.Nonce
	return []byte(msg)
}

// GenerateKey creates a fresh credential, returning the base58 private key
// and its base58 public key. Used for -use-memory mode and tests.
func GenerateKey() (privB58, pubB58 string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", err
	}
	return base58.Encode(priv), base58.Encode(pub), nil
}

// ValidateAddress checks that an account address is a base58-encoded
// 32-byte point on the ed25519 curve.
func ValidateAddress(addr string) error {
	raw, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("decode address: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return fmt.Errorf("address is %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return fmt.Errorf("address is not on the ed25519 curve")
	}
	return nil
}

func decodeCredential(encoded string) (*credential, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	default:
		return nil, fmt.Errorf("private key is %d bytes, want %d or %d", len(raw), ed25519.PrivateKeySize, ed25519.SeedSize)
	}

	pub := priv.Public().(ed25519.PublicKey)
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return nil, fmt.Errorf("derived public key is not on the ed25519 curve")
	}

	return &credential{
		priv:   priv,
		pub:    pub,
		pubB58: base58.Encode(pub),
	}, nil
}

func decodePublicKey(encoded string) (ed25519.PublicKey, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key is %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// fingerprint is a short identifier safe to log.
func fingerprint(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:4])
}
