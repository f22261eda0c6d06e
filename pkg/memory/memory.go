package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
	"github.com/google/uuid"

	"github.com/MrWong99/talkbuddy/pkg/provider/embeddings"
)

// Defaults for the retention policy.
const (
	DefaultMaxItems     = 200
	DefaultEvictBatch   = 10
	DefaultMaxItemChars = 500
)

var _ LongTerm = (*Memory)(nil)

// Option configures a Memory.
type Option func(*Memory)

// WithMaxItems sets the item cap that triggers eviction.
func WithMaxItems(n int) Option { return func(m *Memory) { m.maxItems = n } }

// WithEvictBatch sets how many of the oldest items are deleted when the cap
// is reached.
func WithEvictBatch(n int) Option { return func(m *Memory) { m.evictBatch = n } }

// WithMaxItemChars sets the maximum accepted text length in characters.
func WithMaxItemChars(n int) Option { return func(m *Memory) { m.maxItemChars = n } }

// WithDedupeSimilarity sets the Jaro-Winkler similarity at or above which a
// new text is considered a duplicate of its nearest stored item. Zero, the
// default, or values above 1 keep every fact.
func WithDedupeSimilarity(s float64) Option { return func(m *Memory) { m.dedupe = s } }

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option { return func(m *Memory) { m.now = now } }

// Memory applies the retention policy on top of an Index.
type Memory struct {
	idx Index
	emb embeddings.Provider

	maxItems     int
	evictBatch   int
	maxItemChars int
	dedupe       float64
	now          func() time.Time

	// mu serialises Store so that count, evict and insert act as one step.
	mu sync.Mutex
}

// New returns a Memory over idx, embedding texts with emb.
func New(idx Index, emb embeddings.Provider, opts ...Option) *Memory {
	m := &Memory{
		idx:          idx,
		emb:          emb,
		maxItems:     DefaultMaxItems,
		evictBatch:   DefaultEvictBatch,
		maxItemChars: DefaultMaxItemChars,
		now:          time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Store implements LongTerm. Empty text and text longer than the character
// limit are rejected. When the index already holds the maximum number of
// items, the oldest batch is deleted before the insert.
func (m *Memory) Store(ctx context.Context, text string) (bool, error) {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > m.maxItemChars {
		return false, nil
	}

	vec, err := m.emb.Embed(ctx, text)
	if err != nil {
		return false, fmt.Errorf("memory: embed: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dedupe > 0 && m.dedupe <= 1 {
		nearest, err := m.idx.Nearest(ctx, vec, 1)
		if err != nil {
			return false, fmt.Errorf("memory: dedupe lookup: %w", err)
		}
		if len(nearest) > 0 && isDuplicate(nearest[0].Item.Text, text, m.dedupe) {
			return false, nil
		}
	}

	n, err := m.idx.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("memory: count: %w", err)
	}
	if n >= m.maxItems {
		if err := m.idx.DeleteOldest(ctx, m.evictBatch); err != nil {
			return false, fmt.Errorf("memory: evict: %w", err)
		}
	}

	item := Item{
		ID:         uuid.NewString(),
		Text:       text,
		Embedding:  vec,
		CreatedAt:  m.now(),
		Confidence: 1,
	}
	if err := m.idx.Insert(ctx, item); err != nil {
		return false, fmt.Errorf("memory: insert: %w", err)
	}
	return true, nil
}

func isDuplicate(stored, text string, threshold float64) bool {
	return matchr.JaroWinkler(strings.ToLower(stored), strings.ToLower(text), false) >= threshold
}

// Recall implements LongTerm.
func (m *Memory) Recall(ctx context.Context, query string, k int) ([]string, error) {
	if strings.TrimSpace(query) == "" || k <= 0 {
		return nil, nil
	}
	vec, err := m.emb.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: embed: %w", err)
	}
	matches, err := m.idx.Nearest(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("memory: nearest: %w", err)
	}
	out := make([]string, 0, len(matches))
	for _, mt := range matches {
		out = append(out, mt.Item.Text)
	}
	return out, nil
}

// Reset implements LongTerm.
func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.idx.Clear(ctx); err != nil {
		return fmt.Errorf("memory: reset: %w", err)
	}
	return nil
}

// Close closes the underlying index.
func (m *Memory) Close() error {
	return m.idx.Close()
}
