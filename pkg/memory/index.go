// Package memory implements the long-term memory of facts about the enrolled
// user.
//
// The package is split into a retention policy and a storage contract:
//
//   - [Memory] validates, deduplicates, evicts and embeds items. It is the
//     only place that knows about the item cap or the eviction batch.
//   - [Index] is a dumb vector collection ordered by insertion. Backends
//     live in sub-packages (postgres with pgvector, sqlite, in-memory mock).
//
// [Guard] wraps any [LongTerm] so that storage outages degrade dialogue
// quality instead of failing it.
//
// Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"time"
)

// Item is one stored fact.
type Item struct {
	// ID is a random UUID.
	ID string

	// Text is the fact itself, at most MaxItemChars long.
	Text string

	// Embedding is the vector representation of Text.
	Embedding []float32

	// CreatedAt is the insertion time. Eviction order follows insertion
	// order, which backends track independently of this value.
	CreatedAt time.Time

	// Confidence is always 1 for facts stored by the dialogue coach.
	Confidence float64
}

// Match pairs an item with its cosine distance to a query. Lower is closer.
type Match struct {
	Item     Item
	Distance float64
}

// Index is the storage contract for memory items.
type Index interface {
	// Insert appends item.
	Insert(ctx context.Context, item Item) error

	// Count returns the number of stored items.
	Count(ctx context.Context) (int, error)

	// DeleteOldest removes up to n items in insertion order.
	DeleteOldest(ctx context.Context, n int) error

	// Nearest returns up to k items ordered by ascending cosine distance to
	// embedding.
	Nearest(ctx context.Context, embedding []float32, k int) ([]Match, error)

	// Clear removes every item.
	Clear(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// LongTerm is what the dialogue layer needs from memory.
type LongTerm interface {
	// Store saves text as a new fact. It reports whether the fact was
	// actually stored; invalid and duplicate texts are skipped without error.
	Store(ctx context.Context, text string) (bool, error)

	// Recall returns the texts of up to k facts nearest to query.
	Recall(ctx context.Context, query string, k int) ([]string, error)

	// Reset forgets everything.
	Reset(ctx context.Context) error
}
