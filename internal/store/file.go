package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/authvault/internal/common"
	"github.com/dmitrijs2005/authvault/internal/filex"
)

const blobFileName = "data.bin"

// FileBackend keeps the sealed blob in a single file under the data
// directory, replaced atomically on every commit.
type FileBackend struct {
	path string
}

func NewFileBackend(dataDir string) (*FileBackend, error) {
	if err := filex.EnsureDir(dataDir); err != nil {
		return nil, err
	}
	return &FileBackend{path: filepath.Join(dataDir, blobFileName)}, nil
}

func (b *FileBackend) Load(ctx context.Context) ([]byte, error) {
	blob, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", b.path, err)
	}
	return blob, nil
}

func (b *FileBackend) Store(ctx context.Context, blob []byte) error {
	return filex.AtomicWrite(b.path, blob, 0o600)
}
