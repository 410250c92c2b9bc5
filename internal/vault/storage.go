package vault

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// tempFile is the subset of *os.File used while writing a vault.
type tempFile interface {
	io.Writer
	Name() string
	Chmod(mode os.FileMode) error
	Sync() error
	Close() error
}

// fileSystem is the storage seam for the vault file. osFS is the only
// production implementation; tests substitute failing ones.
type fileSystem interface {
	ReadFile(name string) ([]byte, error)
	Stat(name string) (os.FileInfo, error)
	CreateTemp(dir, pattern string) (tempFile, error)
	Rename(oldpath, newpath string) error
	Remove(name string) error
}

type osFS struct{}

func (osFS) ReadFile(name string) ([]byte, error)  { return os.ReadFile(name) }
func (osFS) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }
func (osFS) Rename(oldpath, newpath string) error  { return os.Rename(oldpath, newpath) }
func (osFS) Remove(name string) error              { return os.Remove(name) }
func (osFS) CreateTemp(dir, pattern string) (tempFile, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func readVaultFile(fs fileSystem, path string) ([]byte, error) {
	b, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrIOFailure, path, err)
	}
	return b, nil
}

func vaultExists(fs fileSystem, path string) (bool, error) {
	_, err := fs.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("%w: stat %s: %w", ErrIOFailure, path, err)
	}
}

// writeVaultFile replaces path atomically: the data goes to a temp file in
// the same directory, is synced, and then renamed over the old vault. On any
// failure the temp file is removed and the previous vault is untouched.
func writeVaultFile(fs fileSystem, path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := fs.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp vault: %w", ErrIOFailure, err)
	}
	tmpPath := tmp.Name()

	fail := func(step string, err error) error {
		tmp.Close()
		fs.Remove(tmpPath)
		return fmt.Errorf("%w: %s: %w", ErrIOFailure, step, err)
	}

	if err := tmp.Chmod(0o600); err != nil {
		return fail("chmod temp vault", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fail("write temp vault", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync temp vault", err)
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(tmpPath)
		return fmt.Errorf("%w: close temp vault: %w", ErrIOFailure, err)
	}
	if err := fs.Rename(tmpPath, path); err != nil {
		fs.Remove(tmpPath)
		return fmt.Errorf("%w: replace vault: %w", ErrIOFailure, err)
	}
	return nil
}
