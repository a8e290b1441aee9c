package admin

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

const credsFileName = "admin.key"

// Credentials holds the admin verifier material loaded from admin.key.
type Credentials struct {
	Salt       []byte
	Verifier   []byte
	Iterations int
}

// LoadOrCreateCredentials reads the admin credential file from dataDir,
// creating it from initialPassword on first run. The file holds a single
// hex(salt):hex(verifier):iterations line and is written with 0600 perms
// through the same atomic path as the store blob.
func LoadOrCreateCredentials(dataDir string, initialPassword []byte) (*Credentials, error) {
	path := filepath.Join(dataDir, credsFileName)

	data, err := os.ReadFile(path)
	if err == nil {
		return decodeCredentials(data)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read admin credentials: %w", err)
	}

	if len(initialPassword) == 0 {
		return nil, fmt.Errorf("%w: no admin credential file and no initial password", common.ErrInternal)
	}

	salt := common.GenerateRandByteArray(cryptox.SaltLength)
	creds := &Credentials{
		Salt:       salt,
		Verifier:   cryptox.DeriveVerifier(initialPassword, salt, cryptox.DefaultIterations),
		Iterations: cryptox.DefaultIterations,
	}

	if err := filex.AtomicWrite(path, encodeCredentials(creds), 0o600); err != nil {
		return nil, fmt.Errorf("write admin credentials: %w", err)
	}

	return creds, nil
}

// ChangePassword derives a fresh verifier from newPassword and rewrites
// the credential file.
func (c *Credentials) ChangePassword(dataDir string, newPassword []byte) error {
	salt := common.GenerateRandByteArray(cryptox.SaltLength)
	c.Salt = salt
	c.Verifier = cryptox.DeriveVerifier(newPassword, salt, cryptox.DefaultIterations)
	c.Iterations = cryptox.DefaultIterations

	path := filepath.Join(dataDir, credsFileName)
	if err := filex.AtomicWrite(path, encodeCredentials(c), 0o600); err != nil {
		return fmt.Errorf("write admin credentials: %w", err)
	}
	return nil
}
