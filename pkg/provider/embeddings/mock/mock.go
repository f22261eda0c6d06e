// Package mock provides a deterministic test double for embeddings.Provider.
//
// Unless EmbedFunc is set, text is embedded as a bag of hashed lower-case
// words, so texts that share words land close to each other in cosine space.
// That is enough for memory recall tests without a model.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/MrWong99/talkbuddy/pkg/provider/embeddings"
)

// DefaultDimensions is used when Dims is zero.
const DefaultDimensions = 64

var _ embeddings.Provider = (*Provider)(nil)

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// Dims is the vector length. Zero means DefaultDimensions.
	Dims int

	// EmbedFunc overrides the built-in hashing embedder.
	EmbedFunc func(text string) []float32

	// EmbedErr, if non-nil, is returned by Embed.
	EmbedErr error

	// Texts records every text passed to Embed in order.
	Texts []string
}

// Embed records the call and returns the embedding of text.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Texts = append(p.Texts, text)
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	if p.EmbedFunc != nil {
		return p.EmbedFunc(text), nil
	}
	return HashEmbed(text, p.dims()), nil
}

// Dimensions returns Dims or DefaultDimensions.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dims()
}

// ModelID returns "mock".
func (p *Provider) ModelID() string { return "mock" }

func (p *Provider) dims() int {
	if p.Dims > 0 {
		return p.Dims
	}
	return DefaultDimensions
}

// HashEmbed builds an L2-normalised bag-of-words vector of length dims.
func HashEmbed(text string, dims int) []float32 {
	vec := make([]float32, dims)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,!?;:")))
		vec[h.Sum32()%uint32(dims)]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
