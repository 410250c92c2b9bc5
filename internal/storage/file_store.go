package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DirProvider keeps the remote blob as a file in a directory, typically one
// that a file-sync tool replicates.
type DirProvider struct{ path string }

func NewDirProvider(dir, name string) (*DirProvider, error) {
	if dir == "" {
		return nil, errors.New("storage: dir is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	return &DirProvider{path: filepath.Join(dir, name)}, nil
}

func (d *DirProvider) Path() string { return d.path }

func (d *DirProvider) Fetch(_ context.Context) ([]byte, error) {
	b, err := os.ReadFile(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

// Upload writes through a temp file and rename so readers never see a
// partial blob.
func (d *DirProvider) Upload(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(d.path), "."+filepath.Base(d.path)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, d.path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

func (d *DirProvider) Close(context.Context) error { return nil }
