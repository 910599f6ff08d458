package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/accounts/internal/filex"
)

// LocalStorage keeps blobs under a public directory that the HTTP server
// exposes at publicURL.
type LocalStorage struct {
	dir       string
	publicURL string
}

func NewLocalStorage(dir, publicURL string) (*LocalStorage, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	return &LocalStorage{dir: abs, publicURL: publicURL}, nil
}

// Dir is the absolute root directory of the store.
func (s *LocalStorage) Dir() string {
	return s.dir
}

func (s *LocalStorage) path(ref string) (string, error) {
	if err := ValidRef(ref); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filepath.FromSlash(ref)), nil
}

func (s *LocalStorage) Store(ctx context.Context, data []byte, ext string) (string, error) {
	ref := NewRef(ext)
	p, err := s.path(ref)
	if err != nil {
		return "", err
	}
	if err := filex.WriteFileAtomic(p, data, 0o644); err != nil {
		return "", fmt.Errorf("store blob: %w", err)
	}
	return ref, nil
}

func (s *LocalStorage) Delete(ctx context.Context, ref string) error {
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

func (s *LocalStorage) Exists(ctx context.Context, ref string) (bool, error) {
	p, err := s.path(ref)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat blob: %w", err)
	}
}

func (s *LocalStorage) URL(ref string) string {
	return joinURL(s.publicURL, ref)
}
