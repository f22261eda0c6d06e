// Package file implements profile.Store on the local filesystem.
//
// The default profile name maps to the configured path itself
// (e.g. data/speaker_profile.pv); any other name is stored next to it as
// <name>.pv. Writes go through a temp file and rename so a crash never leaves
// a half-written profile behind.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrWong99/talkbuddy/pkg/profile"
)

var _ profile.Store = (*Store)(nil)

// Store is a filesystem-backed profile.Store.
type Store struct {
	path string
}

// New returns a Store whose default profile lives at path. The parent
// directory is created if needed.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("profile/file: path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("profile/file: create dir: %w", err)
	}
	return &Store{path: path}, nil
}

func (s *Store) pathFor(name string) (string, error) {
	if name == "" || name == profile.DefaultName {
		return s.path, nil
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("profile/file: invalid name %q", name)
	}
	return filepath.Join(filepath.Dir(s.path), name+".pv"), nil
}

// Load implements profile.Store.
func (s *Store) Load(_ context.Context, name string) ([]byte, error) {
	p, err := s.pathFor(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, profile.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profile/file: read: %w", err)
	}
	return data, nil
}

// Save implements profile.Store.
func (s *Store) Save(_ context.Context, name string, data []byte) error {
	p, err := s.pathFor(name)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".profile-*")
	if err != nil {
		return fmt.Errorf("profile/file: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("profile/file: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("profile/file: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("profile/file: rename: %w", err)
	}
	return nil
}

// Exists implements profile.Store.
func (s *Store) Exists(_ context.Context, name string) (bool, error) {
	p, err := s.pathFor(name)
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
		return false, fmt.Errorf("profile/file: stat: %w", err)
	}
}

// Delete implements profile.Store.
func (s *Store) Delete(_ context.Context, name string) error {
	p, err := s.pathFor(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("profile/file: remove: %w", err)
	}
	return nil
}

// Close implements profile.Store.
func (s *Store) Close() error { return nil }
