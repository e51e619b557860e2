// Package storage persists pipeline output images as named artifacts and
// hands back resolvable locators.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPersist indicates an artifact write failed. The artifact is treated
// as not created; no locator referencing unwritten bytes is ever
// returned.
var ErrPersist = errors.New("artifact write failed")

// Store is the durable artifact collaborator: write bytes under a name,
// get back a locator that is immediately resolvable by readers. The store
// is append-only by unique name; the core never deletes or updates.
type Store interface {
	Write(name string, data []byte) (locator string, err error)
}

// Remover is implemented by stores that own their backing location and
// can retract an artifact. Used to roll back a partially written set when
// a multi-artifact save fails midway; readers of completed artifacts are
// never affected.
type Remover interface {
	Remove(name string) error
}

// LocalStore writes artifacts into a directory and returns locators under
// a base URL (or plain file paths when the base URL is empty).
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates the backing directory if needed.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("storage directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Dir returns the backing directory.
func (s *LocalStore) Dir() string { return s.dir }

// Write persists data under name all-or-nothing: bytes land in a temp
// file first and become visible only via rename, so readers never observe
// a partially written artifact.
func (s *LocalStore) Write(name string, data []byte) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("%w: invalid artifact name %q", ErrPersist, name)
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersist, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: %v", ErrPersist, err)
	}

	final := filepath.Join(s.dir, name)
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: %v", ErrPersist, err)
	}

	if s.baseURL == "" {
		return final, nil
	}
	return s.baseURL + "/" + name, nil
}

// Remove retracts a previously written artifact. A missing artifact is
// not an error.
func (s *LocalStore) Remove(name string) error {
	if name == "" || name != filepath.Base(name) {
		return fmt.Errorf("%w: invalid artifact name %q", ErrPersist, name)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}
