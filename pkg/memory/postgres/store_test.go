package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/talkbuddy/pkg/memory"
	"github.com/MrWong99/talkbuddy/pkg/memory/postgres"
)

const testEmbeddingDim = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if TALKBUDDY_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TALKBUDDY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TALKBUDDY_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestIndex creates a fresh Index on a clean table.
func newTestIndex(t *testing.T) *postgres.Index {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS memory_items CASCADE"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	pool.Close()

	idx, err := postgres.NewIndex(ctx, dsn, testEmbeddingDim)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func item(id, text string, emb ...float32) memory.Item {
	return memory.Item{ID: id, Text: text, Embedding: emb, Confidence: 1, CreatedAt: time.Now().UTC()}
}

// The tests share one table, so they run sequentially.

func TestIndex_InsertCountNearest(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	for _, it := range []memory.Item{
		item("a", "likes coffee", 1, 0, 0, 0),
		item("b", "has a dog", 0, 1, 0, 0),
		item("c", "drinks espresso", 0.9, 0.1, 0, 0),
	} {
		if err := idx.Insert(ctx, it); err != nil {
			t.Fatalf("Insert %s: %v", it.ID, err)
		}
	}

	n, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}

	got, err := idx.Nearest(ctx, []float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(got) != 2 || got[0].Item.ID != "a" || got[1].Item.ID != "c" {
		t.Fatalf("Nearest = %+v, want [a c]", got)
	}
	if got[0].Distance > 1e-6 {
		t.Errorf("distance to identical vector = %v, want 0", got[0].Distance)
	}
}

func TestIndex_DeleteOldestAndClear(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	for i, id := range []string{"first", "second", "third"} {
		if err := idx.Insert(ctx, item(id, id, float32(i+1), 1, 0, 0)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := idx.DeleteOldest(ctx, 2); err != nil {
		t.Fatalf("DeleteOldest: %v", err)
	}
	got, _ := idx.Nearest(ctx, []float32{1, 1, 0, 0}, 10)
	if len(got) != 1 || got[0].Item.ID != "third" {
		t.Fatalf("remaining = %+v, want [third]", got)
	}

	if err := idx.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n, _ := idx.Count(ctx); n != 0 {
		t.Errorf("Count after Clear = %d, want 0", n)
	}
}
