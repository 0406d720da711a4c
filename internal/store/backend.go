package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/amirbrooks/quicktask/internal/fsutil"
)

// Backend is the local key-value storage the task collection is persisted to.
// Load returns ErrNotFound when the key has never been written.
type Backend interface {
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
	Close() error
}

// FileBackend stores each key as <Dir>/<key>.json.
type FileBackend struct {
	Dir string
}

func NewFileBackend(dir string) (*FileBackend, error) {
	dir = fsutil.ExpandHome(strings.TrimSpace(dir))
	if dir == "" {
		return nil, fmt.Errorf("%w: storage directory is required", ErrInvalid)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileBackend{Dir: dir}, nil
}

// Path returns the file a key is stored in.
func (b *FileBackend) Path(key string) string {
	return filepath.Join(b.Dir, key+".json")
}

func (b *FileBackend) Load(key string) ([]byte, error) {
	data, err := os.ReadFile(b.Path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (b *FileBackend) Save(key string, data []byte) error {
	return fsutil.AtomicWriteFile(b.Path(key), data, 0o644)
}

func (b *FileBackend) Close() error { return nil }

// MemoryBackend keeps values in memory. Useful for tests and dry runs.
type MemoryBackend struct {
	values map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: map[string][]byte{}}
}

func (b *MemoryBackend) Load(key string) ([]byte, error) {
	v, ok := b.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (b *MemoryBackend) Save(key string, data []byte) error {
	b.values[key] = append([]byte(nil), data...)
	return nil
}

func (b *MemoryBackend) Close() error { return nil }
