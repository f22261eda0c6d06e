// Package profile persists the enrolled speaker profile.
//
// The pipeline treats the profile as opaque bytes produced by a
// verify.Profiler. A Store holds profiles by name; the server uses a single
// well-known name since the system serves one enrolled speaker.
package profile

import (
	"context"
	"errors"
)

// DefaultName is the key under which the active speaker profile is stored.
const DefaultName = "speaker"

// ErrNotFound is returned by Load when no profile is stored under the name.
var ErrNotFound = errors.New("profile: not found")

// Store is the persistence contract for speaker profiles.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the profile stored under name, or ErrNotFound.
	Load(ctx context.Context, name string) ([]byte, error)

	// Save stores data under name, replacing any previous profile atomically.
	Save(ctx context.Context, name string, data []byte) error

	// Exists reports whether a profile is stored under name.
	Exists(ctx context.Context, name string) (bool, error)

	// Delete removes the profile. Deleting a missing profile is not an error.
	Delete(ctx context.Context, name string) error

	// Close releases the store.
	Close() error
}
