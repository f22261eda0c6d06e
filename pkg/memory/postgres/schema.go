package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddl returns the schema with the embedding dimension substituted. The
// dimension is baked into the column type at creation time.
func ddl(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memory_items (
    seq         BIGSERIAL    PRIMARY KEY,
    id          TEXT         NOT NULL UNIQUE,
    text        TEXT         NOT NULL,
    embedding   vector(%d)   NOT NULL,
    confidence  DOUBLE PRECISION NOT NULL DEFAULT 1,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_memory_items_embedding
    ON memory_items USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates the memory table and pgvector extension if missing. It is
// idempotent and safe to call on every start.
//
// embeddingDimensions must match the embedding model (e.g. 384 for
// all-minilm, 1536 for text-embedding-3-small). Changing it after the first
// migration requires dropping the table.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if embeddingDimensions <= 0 {
		return fmt.Errorf("postgres migrate: embedding dimensions must be positive, got %d", embeddingDimensions)
	}
	if _, err := pool.Exec(ctx, ddl(embeddingDimensions)); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
