package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuemby/pcsd/pkg/log"
)

var (
	// ErrNotExist is returned by Load when the file has never been written
	ErrNotExist = errors.New("state file does not exist")

	// ErrCorrupt is returned by Load when the file is not valid JSON for T
	ErrCorrupt = errors.New("state file is corrupt")
)

// JSONFile is a flat file holding one JSON document of type T.
// The whole document is read and rewritten on every change. Writes are
// serialized per JSONFile and land atomically via rename, so readers never
// observe a partial document.
type JSONFile[T any] struct {
	path string
	perm os.FileMode
	mu   sync.Mutex
}

// NewJSONFile returns a JSONFile for path, written with mode 0600
func NewJSONFile[T any](path string) *JSONFile[T] {
	return &JSONFile[T]{path: path, perm: 0600}
}

// Path returns the file location
func (f *JSONFile[T]) Path() string {
	return f.path
}

// Load reads and decodes the file
func (f *JSONFile[T]) Load() (T, error) {
	var v T
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return v, ErrNotExist
		}
		return v, fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.path, err)
	}
	return v, nil
}

// LoadOrEmpty reads the file and falls back to the zero value of T when the
// file is missing, unreadable or corrupt. Failures other than a missing file
// are logged.
func (f *JSONFile[T]) LoadOrEmpty() T {
	v, err := f.Load()
	if err != nil {
		if !errors.Is(err, ErrNotExist) {
			logger := log.WithComponent("storage")
			logger.Warn().Err(err).Str("path", f.path).Msg("treating state file as empty")
		}
		var zero T
		return zero
	}
	return v
}

// Save atomically replaces the file contents with v
func (f *JSONFile[T]) Save(v T) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(v)
}

// Update runs a read-modify-write cycle under the writer lock. The current
// document is loaded with LoadOrEmpty semantics, passed to fn, and the value
// fn returns is written back. If fn returns an error nothing is written.
func (f *JSONFile[T]) Update(fn func(T) (T, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next, err := fn(f.LoadOrEmpty())
	if err != nil {
		return err
	}
	return f.write(next)
}

func (f *JSONFile[T]) write(v T) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", f.path, err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(f.perm); err != nil {
		cleanup()
		return fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", f.path, err)
	}
	return nil
}
