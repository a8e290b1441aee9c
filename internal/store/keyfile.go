package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/authvault/internal/common"
	"github.com/dmitrijs2005/authvault/internal/cryptox"
	"github.com/dmitrijs2005/authvault/internal/filex"
)

const (
	keyFileName  = "data.key"
	saltFileName = "data.salt"
)

// LoadOrCreateKeyMaterial returns the installation key material, generating
// it on first run. The file lives outside the blob so the blob can never be
// decrypted from its own bytes alone.
func LoadOrCreateKeyMaterial(dataDir string) ([]byte, error) {
	return loadOrCreateRandomFile(filepath.Join(dataDir, keyFileName), cryptox.KeyLength)
}

// LoadOrCreateSalt returns the installation salt, generating it on first
// run. The salt is not secret and is immutable after creation.
func LoadOrCreateSalt(dataDir string) ([]byte, error) {
	return loadOrCreateRandomFile(filepath.Join(dataDir, saltFileName), cryptox.SaltLength)
}

func loadOrCreateRandomFile(path string, size int) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		if len(b) != size {
			return nil, fmt.Errorf("%s is corrupt: expected %d bytes, got %d", path, size, len(b))
		}
		return b, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}

	b = common.GenerateRandByteArray(size)
	if err := filex.AtomicWrite(path, b, 0o600); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	return b, nil
}
