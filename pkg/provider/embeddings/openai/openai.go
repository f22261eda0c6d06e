// Package openai embeds memory facts through the OpenAI embeddings API or a
// compatible server.
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/talkbuddy/pkg/provider/embeddings"
)

// DefaultModel is used when New receives an empty model name.
const DefaultModel = "text-embedding-3-small"

// Provider implements embeddings.Provider on the OpenAI API.
type Provider struct {
	client oai.Client
	model  string

	// dims, when set, asks the API to shorten vectors to this length so
	// they fit an existing pgvector column.
	dims int
}

var _ embeddings.Provider = (*Provider)(nil)

type settings struct {
	req  []option.RequestOption
	dims int
}

// Option configures a Provider.
type Option func(*settings)

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.req = append(s.req, option.WithBaseURL(url)) }
}

// WithTimeout bounds each request attempt.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.req = append(s.req, option.WithRequestTimeout(d)) }
}

// WithDimensions requests vectors of length n. Only the text-embedding-3
// family honours it.
func WithDimensions(n int) Option {
	return func(s *settings) { s.dims = n }
}

// New creates a Provider. An empty model selects [DefaultModel].
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai embeddings: api key must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	var s settings
	for _, o := range opts {
		o(&s)
	}
	if s.dims < 0 {
		return nil, fmt.Errorf("openai embeddings: negative dimensions %d", s.dims)
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, s.req...)
	return &Provider{client: oai.NewClient(reqOpts...), model: model, dims: s.dims}, nil
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, embeddings.ErrEmptyText
	}
	params := oai.EmbeddingNewParams{
		Model: p.model,
		Input: oai.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(text)},
	}
	if p.dims > 0 {
		params.Dimensions = param.NewOpt(int64(p.dims))
	}
	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: response has no vectors")
	}
	src := resp.Data[0].Embedding
	vec := make([]float32, len(src))
	for i, v := range src {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	if p.dims > 0 {
		return p.dims
	}
	return nativeDimensions(p.model)
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return p.model }

// nativeDimensions is the unshortened vector length of model. ada-002 and
// text-embedding-3-small both produce 1536.
func nativeDimensions(model string) int {
	if strings.HasSuffix(strings.ToLower(model), "-3-large") {
		return 3072
	}
	return 1536
}
