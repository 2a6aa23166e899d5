// Package storage resolves question image references against the
// directory the bank file lives in. Banks ship their media next to the
// .db file; nothing here ever writes.
package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrOutsideBase = errors.New("asset path escapes media root")

type MediaStore interface {
	Open(key string) (io.ReadCloser, error)
}

type FSStore struct{ base string }

func NewFSStore(base string) *FSStore {
	return &FSStore{base: filepath.Clean(base)}
}

// Open resolves a bank-relative image path. Paths that climb out of
// the bank directory are rejected.
func (s *FSStore) Open(key string) (io.ReadCloser, error) {
	if key == "" {
		return nil, os.ErrNotExist
	}
	full := filepath.Join(s.base, filepath.Clean("/"+key))
	if full != s.base && !strings.HasPrefix(full, s.base+string(filepath.Separator)) {
		return nil, ErrOutsideBase
	}
	return os.Open(full)
}
