// Package mock provides in-memory test doubles for the memory interfaces.
//
// Index is a working brute-force vector index, so policy tests can run against
// real insertion order and distances. LongTerm is a scripted double for
// consumers of memory. Both record every call and are safe for concurrent use.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/talkbuddy/pkg/memory"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

type recorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *recorder) record(method string, args ...any) {
	r.calls = append(r.calls, Call{Method: method, Args: args})
}

// Calls returns a copy of all recorded calls.
func (r *recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// CallCount returns how many times method was called.
func (r *recorder) CallCount(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Index is an in-memory memory.Index. Items are kept in insertion order.
type Index struct {
	recorder

	items []memory.Item

	InsertErr  error
	CountErr   error
	DeleteErr  error
	NearestErr error
	ClearErr   error
}

var _ memory.Index = (*Index)(nil)

// Insert implements memory.Index.
func (x *Index) Insert(_ context.Context, item memory.Item) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.record("Insert", item)
	if x.InsertErr != nil {
		return x.InsertErr
	}
	x.items = append(x.items, item)
	return nil
}

// Count implements memory.Index.
func (x *Index) Count(_ context.Context) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.record("Count")
	if x.CountErr != nil {
		return 0, x.CountErr
	}
	return len(x.items), nil
}

// DeleteOldest implements memory.Index.
func (x *Index) DeleteOldest(_ context.Context, n int) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.record("DeleteOldest", n)
	if x.DeleteErr != nil {
		return x.DeleteErr
	}
	n = min(max(n, 0), len(x.items))
	x.items = slices.Delete(x.items, 0, n)
	return nil
}

// Nearest implements memory.Index.
func (x *Index) Nearest(_ context.Context, embedding []float32, k int) ([]memory.Match, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.record("Nearest", k)
	if x.NearestErr != nil {
		return nil, x.NearestErr
	}
	matches := make([]memory.Match, 0, len(x.items))
	for _, it := range x.items {
		matches = append(matches, memory.Match{Item: it, Distance: memory.CosineDistance(embedding, it.Embedding)})
	}
	slices.SortStableFunc(matches, func(a, b memory.Match) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})
	if k < len(matches) {
		matches = matches[:max(k, 0)]
	}
	return matches, nil
}

// Clear implements memory.Index.
func (x *Index) Clear(_ context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.record("Clear")
	if x.ClearErr != nil {
		return x.ClearErr
	}
	x.items = nil
	return nil
}

// Close implements memory.Index.
func (x *Index) Close() error { return nil }

// Items returns a copy of the stored items in insertion order.
func (x *Index) Items() []memory.Item {
	x.mu.Lock()
	defer x.mu.Unlock()
	return slices.Clone(x.items)
}

// LongTerm is a scripted memory.LongTerm.
type LongTerm struct {
	recorder

	// Stored holds every text passed to Store that was accepted.
	Stored []string

	// RecallResult is returned by Recall.
	RecallResult []string

	StoreErr  error
	RecallErr error
	ResetErr  error
}

var _ memory.LongTerm = (*LongTerm)(nil)

// Store implements memory.LongTerm.
func (l *LongTerm) Store(_ context.Context, text string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record("Store", text)
	if l.StoreErr != nil {
		return false, l.StoreErr
	}
	l.Stored = append(l.Stored, text)
	return true, nil
}

// Recall implements memory.LongTerm.
func (l *LongTerm) Recall(_ context.Context, query string, k int) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record("Recall", query, k)
	if l.RecallErr != nil {
		return nil, l.RecallErr
	}
	return slices.Clone(l.RecallResult), nil
}

// Reset implements memory.LongTerm.
func (l *LongTerm) Reset(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record("Reset")
	if l.ResetErr != nil {
		return l.ResetErr
	}
	l.Stored = nil
	return nil
}

// StoredTexts returns a copy of the accepted texts.
func (l *LongTerm) StoredTexts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.Stored)
}
