package badger

import (
	"context"
	"testing"

	"github.com/MrWong99/talkbuddy/pkg/profile"
	"github.com/MrWong99/talkbuddy/pkg/profile/profiletest"
)

func TestStoreContract(t *testing.T) {
	t.Parallel()

	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	profiletest.Run(t, s)
}

func TestPersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Save(context.Background(), profile.DefaultName, []byte("pv")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Load(context.Background(), profile.DefaultName)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != "pv" {
		t.Errorf("Load = %q, want %q", got, "pv")
	}
}

func TestOpen_RequiresDir(t *testing.T) {
	t.Parallel()

	if _, err := Open(Options{}); err == nil {
		t.Fatal("expected error without Dir")
	}
}
