package authority

import (
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-token-engine/internal/ledger"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestBackend(t *testing.T, roles ...Role) *StaticBackend {
	t.Helper()
	keys := make(map[Role]string, len(roles))
	for _, role := range roles {
		priv, _, err := GenerateKey()
		require.NoError(t, err)
		keys[role] = priv
	}
	return NewStaticBackend(keys)
}

func TestKeyStore_SignAndVerify(t *testing.T) {
	backend := newTestBackend(t, RoleMint, RolePoolTransfer)
	ks, err := NewKeyStore(backend, []Role{RoleMint, RolePoolTransfer}, testLogger())
	require.NoError(t, err)

	instr := ledger.TransferInstruction{
		From:   "mint-authority",
		To:     "reward-pool",
		Amount: 800,
		Nonce:  "n1",
	}

	signed, err := ks.Sign(RoleMint, instr)
	require.NoError(t, err)

	assert.Equal(t, instr, signed.TransferInstruction)
	assert.NotEmpty(t, signed.SignerKey)
	assert.NotEmpty(t, signed.Signature)
	assert.True(t, ks.Verify(signed))

	// Tampering is detected.
	tampered := signed
	tampered.Amount = 9999
	assert.False(t, ks.Verify(tampered))
}

func TestKeyStore_RolesAreScoped(t *testing.T) {
	backend := newTestBackend(t, RoleMint, RolePoolTransfer)
	ks, err := NewKeyStore(backend, []Role{RoleMint, RolePoolTransfer}, testLogger())
	require.NoError(t, err)

	mintKey, err := ks.PublicKey(RoleMint)
	require.NoError(t, err)
	poolKey, err := ks.PublicKey(RolePoolTransfer)
	require.NoError(t, err)

	assert.NotEqual(t, mintKey, poolKey)
}

func TestKeyStore_MissingRole(t *testing.T) {
	backend := newTestBackend(t, RoleMint)
	ks, err := NewKeyStore(backend, []Role{RoleMint}, testLogger())
	require.NoError(t, err)

	_, err = ks.Sign(RolePoolTransfer, ledger.TransferInstruction{})
	assert.ErrorIs(t, err, ErrAuthorityUnavailable)
}

func TestKeyStore_LoadFailure(t *testing.T) {
	backend := NewStaticBackend(map[Role]string{})
	_, err := NewKeyStore(backend, []Role{RoleMint}, testLogger())
	assert.ErrorIs(t, err, ErrAuthorityUnavailable)
}

func TestKeyStore_Rotate(t *testing.T) {
	backend := newTestBackend(t, RoleMint)
	ks, err := NewKeyStore(backend, []Role{RoleMint}, testLogger())
	require.NoError(t, err)

	instr := ledger.TransferInstruction{From: "a", To: "b", Amount: 1, Nonce: "n1"}
	beforeRotation, err := ks.Sign(RoleMint, instr)
	require.NoError(t, err)

	oldKey, err := ks.PublicKey(RoleMint)
	require.NoError(t, err)

	priv, _, err := GenerateKey()
	require.NoError(t, err)
	backend.Set(RoleMint, priv)
	require.NoError(t, ks.Rotate(RoleMint))

	newKey, err := ks.PublicKey(RoleMint)
	require.NoError(t, err)
	assert.NotEqual(t, oldKey, newKey)

	// New signatures use the new key.
	afterRotation, err := ks.Sign(RoleMint, instr)
	require.NoError(t, err)
	assert.Equal(t, newKey, afterRotation.SignerKey)

	// Signatures made with the rotated-out key still verify.
	assert.True(t, ks.Verify(beforeRotation))
	assert.True(t, ks.Verify(afterRotation))
}

func TestKeyStore_RotateFailureKeepsActive(t *testing.T) {
	backend := newTestBackend(t, RoleMint)
	ks, err := NewKeyStore(backend, []Role{RoleMint}, testLogger())
	require.NoError(t, err)

	backend.Set(RoleMint, "")
	err = ks.Rotate(RoleMint)
	assert.ErrorIs(t, err, ErrAuthorityUnavailable)

	// The old credential keeps working.
	_, err = ks.Sign(RoleMint, ledger.TransferInstruction{From: "a", To: "b", Amount: 1, Nonce: "n"})
	assert.NoError(t, err)
}

func TestKeyStore_Revoke(t *testing.T) {
	backend := newTestBackend(t, RoleMint)
	ks, err := NewKeyStore(backend, []Role{RoleMint}, testLogger())
	require.NoError(t, err)

	signed, err := ks.Sign(RoleMint, ledger.TransferInstruction{From: "a", To: "b", Amount: 1, Nonce: "n"})
	require.NoError(t, err)

	ks.Revoke(RoleMint)

	_, err = ks.Sign(RoleMint, ledger.TransferInstruction{From: "a", To: "b", Amount: 1, Nonce: "n2"})
	assert.ErrorIs(t, err, ErrAuthorityUnavailable)

	// Existing signatures remain verifiable.
	assert.True(t, ks.Verify(signed))
}

func TestFileBackend(t *testing.T) {
	dir := t.TempDir()
	priv, _, err := GenerateKey()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mint.key"), []byte(priv+"\n"), 0o600))

	backend := NewFileBackend(dir)
	loaded, err := backend.Load(RoleMint)
	require.NoError(t, err)
	assert.Equal(t, priv, loaded)

	_, err = backend.Load(RolePoolTransfer)
	assert.Error(t, err)
}

func TestEnvBackend(t *testing.T) {
	priv, _, err := GenerateKey()
	require.NoError(t, err)
	t.Setenv("AUTHORITY_KEY_MINT", priv)

	backend := EnvBackend{}
	loaded, err := backend.Load(RoleMint)
	require.NoError(t, err)
	assert.Equal(t, priv, loaded)

	_, err = backend.Load(RolePoolTransfer)
	assert.Error(t, err)
}

func TestValidateAddress(t *testing.T) {
	_, pub, err := GenerateKey()
	require.NoError(t, err)

	assert.NoError(t, ValidateAddress(pub))
	assert.Error(t, ValidateAddress("not-base58-!!!"))
	assert.Error(t, ValidateAddress("abc"))
}

func TestDecodeCredential_SeedForm(t *testing.T) {
	priv, pub, err := GenerateKey()
	require.NoError(t, err)

	cred, err := decodeCredential(priv)
	require.NoError(t, err)
	assert.Equal(t, pub, cred.pubB58)

	_, err = decodeCredential("zzz")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrAuthorityUnavailable))
}
