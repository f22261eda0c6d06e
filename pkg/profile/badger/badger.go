// Package badger implements profile.Store on BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/MrWong99/talkbuddy/pkg/profile"
)

const keyPrefix = "profile:"

var _ profile.Store = (*Store)(nil)

// Options configures the badger store.
type Options struct {
	// Dir is the directory for BadgerDB data files. Required unless
	// InMemory is set.
	Dir string

	// InMemory runs BadgerDB without disk persistence; used in tests.
	InMemory bool
}

// Store is a BadgerDB-backed profile.Store.
type Store struct {
	db *badgerdb.DB
}

// Open opens or creates the database.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("profile/badger: Dir is required for on-disk mode")
	}
	dbOpts := badgerdb.DefaultOptions(opts.Dir).WithLogger(slogLogger{})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badgerdb.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("profile/badger: open: %w", err)
	}
	return &Store{db: db}, nil
}

func key(name string) []byte {
	if name == "" {
		name = profile.DefaultName
	}
	return []byte(keyPrefix + name)
}

// Load implements profile.Store.
func (s *Store) Load(_ context.Context, name string) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key(name))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, profile.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profile/badger: load: %w", err)
	}
	return val, nil
}

// Save implements profile.Store.
func (s *Store) Save(_ context.Context, name string, data []byte) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key(name), data)
	})
	if err != nil {
		return fmt.Errorf("profile/badger: save: %w", err)
	}
	return nil
}

// Exists implements profile.Store.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.Load(ctx, name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, profile.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Delete implements profile.Store.
func (s *Store) Delete(_ context.Context, name string) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(key(name))
	})
	if err != nil && !errors.Is(err, badgerdb.ErrKeyNotFound) {
		return fmt.Errorf("profile/badger: delete: %w", err)
	}
	return nil
}

// Close implements profile.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// slogLogger routes badger warnings and errors to slog and drops the rest.
type slogLogger struct{}

func (slogLogger) Errorf(f string, v ...any)   { slog.Error(fmt.Sprintf("badger: "+f, v...)) }
func (slogLogger) Warningf(f string, v ...any) { slog.Warn(fmt.Sprintf("badger: "+f, v...)) }
func (slogLogger) Infof(string, ...any)        {}
func (slogLogger) Debugf(string, ...any)       {}
