// Package profiletest provides a conformance suite for profile.Store
// implementations.
package profiletest

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/talkbuddy/pkg/profile"
)

// Run exercises the Store contract against s. Backends call it from
// their own tests.
func Run(t *testing.T, s profile.Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Load(ctx, profile.DefaultName); !errors.Is(err, profile.ErrNotFound) {
		t.Fatalf("Load missing: err = %v, want %v", err, profile.ErrNotFound)
	}
	if ok, err := s.Exists(ctx, profile.DefaultName); err != nil || ok {
		t.Fatalf("Exists missing = %v, %v; want false, nil", ok, err)
	}

	if err := s.Save(ctx, profile.DefaultName, []byte("first")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, profile.DefaultName, []byte("second")); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}
	got, err := s.Load(ctx, profile.DefaultName)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("Load = %q, want %q", got, "second")
	}
	if ok, err := s.Exists(ctx, profile.DefaultName); err != nil || !ok {
		t.Errorf("Exists = %v, %v; want true, nil", ok, err)
	}

	if err := s.Save(ctx, "alice", []byte("a")); err != nil {
		t.Fatalf("Save alice: %v", err)
	}
	if got, _ := s.Load(ctx, "alice"); string(got) != "a" {
		t.Errorf("Load alice = %q, want %q", got, "a")
	}

	if err := s.Delete(ctx, profile.DefaultName); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, profile.DefaultName); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if _, err := s.Load(ctx, profile.DefaultName); !errors.Is(err, profile.ErrNotFound) {
		t.Errorf("Load after Delete: err = %v, want %v", err, profile.ErrNotFound)
	}
	if got, _ := s.Load(ctx, "alice"); string(got) != "a" {
		t.Errorf("Delete removed unrelated profile")
	}
}
