// Package embeddings defines the Provider interface for text embedding
// backends. Long-term memory uses it to place facts about the user and recall
// queries in the same vector space.
//
// Implementations must be safe for concurrent use.
package embeddings

import (
	"context"
	"errors"
)

// ErrEmptyText is returned by Embed for blank input. Backends disagree on
// whether an empty string is valid, so providers refuse it up front.
var ErrEmptyText = errors.New("embeddings: text is empty")

// Provider turns text into a dense vector.
type Provider interface {
	// Embed returns the embedding of text. The vector length equals
	// Dimensions() for every call.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions is the fixed vector length produced by the model. It may be
	// 0 when the provider cannot know it before the first call.
	Dimensions() int

	// ModelID names the embedding model, e.g. "all-minilm".
	ModelID() string
}
