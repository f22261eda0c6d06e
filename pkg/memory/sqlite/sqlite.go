// Package sqlite provides an embedded memory.Index on SQLite.
//
// Embeddings are stored as little-endian float32 BLOBs and similarity search
// is a full scan with cosine distance computed in Go. The memory cap keeps the
// table at a few hundred rows, so a scan is cheaper than maintaining an ANN
// structure.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/talkbuddy/pkg/memory"
)

const schema = `
CREATE TABLE IF NOT EXISTS memory_items (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    id          TEXT    NOT NULL UNIQUE,
    text        TEXT    NOT NULL,
    embedding   BLOB    NOT NULL,
    confidence  REAL    NOT NULL DEFAULT 1,
    created_at  INTEGER NOT NULL
);`

var _ memory.Index = (*Index)(nil)

// Index is a memory.Index backed by a SQLite database file.
type Index struct {
	db *sql.DB
}

// Open opens or creates the database at path with WAL journaling.
func Open(ctx context.Context, path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite index: create dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite index: open: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between concurrent sessions.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite index: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite index: migrate: %w", err)
	}
	return &Index{db: db}, nil
}

// Insert implements memory.Index.
func (x *Index) Insert(ctx context.Context, item memory.Item) error {
	_, err := x.db.ExecContext(ctx, `
		INSERT INTO memory_items (id, text, embedding, confidence, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		item.ID, item.Text, encodeVector(item.Embedding), item.Confidence, item.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite index: insert: %w", err)
	}
	return nil
}

// Count implements memory.Index.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, `SELECT count(*) FROM memory_items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite index: count: %w", err)
	}
	return n, nil
}

// DeleteOldest implements memory.Index.
func (x *Index) DeleteOldest(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := x.db.ExecContext(ctx, `
		DELETE FROM memory_items
		WHERE seq IN (SELECT seq FROM memory_items ORDER BY seq LIMIT ?)`, n)
	if err != nil {
		return fmt.Errorf("sqlite index: delete oldest: %w", err)
	}
	return nil
}

// Nearest implements memory.Index.
func (x *Index) Nearest(ctx context.Context, embedding []float32, k int) ([]memory.Match, error) {
	if k <= 0 {
		return []memory.Match{}, nil
	}
	rows, err := x.db.QueryContext(ctx, `
		SELECT id, text, embedding, confidence, created_at
		FROM memory_items
		ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("sqlite index: nearest: %w", err)
	}
	defer rows.Close()

	var matches []memory.Match
	for rows.Next() {
		var (
			m       memory.Match
			blob    []byte
			created int64
		)
		if err := rows.Scan(&m.Item.ID, &m.Item.Text, &blob, &m.Item.Confidence, &created); err != nil {
			return nil, fmt.Errorf("sqlite index: scan: %w", err)
		}
		m.Item.Embedding = decodeVector(blob)
		m.Item.CreatedAt = time.Unix(0, created)
		m.Distance = memory.CosineDistance(embedding, m.Item.Embedding)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite index: rows: %w", err)
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
	if len(matches) > k {
		matches = matches[:k]
	}
	if matches == nil {
		matches = []memory.Match{}
	}
	return matches, nil
}

// Clear implements memory.Index.
func (x *Index) Clear(ctx context.Context) error {
	if _, err := x.db.ExecContext(ctx, `DELETE FROM memory_items`); err != nil {
		return fmt.Errorf("sqlite index: clear: %w", err)
	}
	return nil
}

// Ping checks the database; used by the readiness probe.
func (x *Index) Ping(ctx context.Context) error {
	return x.db.PingContext(ctx)
}

// Close closes the database.
func (x *Index) Close() error {
	return x.db.Close()
}

func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
