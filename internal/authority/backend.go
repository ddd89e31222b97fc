package authority

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SecretBackend loads signing key material for a role. Implementations
// return the base58-encoded ed25519 private key (64 bytes decoded).
type SecretBackend interface {
	Load(role Role) (string, error)
}

// FileBackend reads keys from <dir>/<role>.key files.
type FileBackend struct {
	dir string
}

// NewFileBackend creates a backend rooted at dir.
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

func (b *FileBackend) Load(role Role) (string, error) {
	path := filepath.Join(b.dir, string(role)+".key")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read key file for role %s: %w", role, err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("key file for role %s is empty", role)
	}
	return key, nil
}

// EnvBackend reads keys from AUTHORITY_KEY_<ROLE> environment variables.
// The role name is upper-cased, e.g. AUTHORITY_KEY_MINT.
type EnvBackend struct{}

func (EnvBackend) Load(role Role) (string, error) {
	name := "AUTHORITY_KEY_" + strings.ToUpper(string(role))
	key := strings.TrimSpace(os.Getenv(name))
	if key == "" {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return key, nil
}

// StaticBackend serves keys from an in-memory map. Used by tests and
// -use-memory mode.
type StaticBackend struct {
	mu   sync.RWMutex
	keys map[Role]string
}

// NewStaticBackend creates a backend with the given role keys.
func NewStaticBackend(keys map[Role]string) *StaticBackend {
	copied := make(map[Role]string, len(keys))
	for role, key := range keys {
		copied[role] = key
	}
	return &StaticBackend{keys: copied}
}

// Set installs or replaces the key for a role.
func (b *StaticBackend) Set(role Role, key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys[role] = key
}

func (b *StaticBackend) Load(role Role) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	key, ok := b.keys[role]
	if !ok || key == "" {
		return "", fmt.Errorf("no key configured for role %s", role)
	}
	return key, nil
}
