// Package ollama embeds memory facts with a local Ollama server through its
// /api/embed endpoint. The default model, all-minilm, yields 384-dimensional
// vectors and is small enough to stay loaded next to the chat model.
//
//	p, err := ollama.New("", "all-minilm") // http://localhost:11434
//	vec, err := p.Embed(ctx, "works night shifts as a nurse")
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrWong99/talkbuddy/pkg/provider/embeddings"
)

const (
	// DefaultBaseURL is where a local Ollama listens.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultModel is used when New receives an empty model name.
	DefaultModel = "all-minilm"
)

// Vector lengths of the embedding models Ollama ships.
var modelDimensions = map[string]int{
	"all-minilm":        384,
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"bge-m3":            1024,
}

// Provider implements embeddings.Provider on an Ollama server. Unknown
// models learn their dimension from the first vector they return.
type Provider struct {
	endpoint  string
	model     string
	keepAlive string
	client    *http.Client
	dims      atomic.Int64
}

var _ embeddings.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithTimeout bounds each request. The default is 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.client.Timeout = d }
}

// WithDimensions fixes the vector length and skips the lookup.
func WithDimensions(n int) Option {
	return func(p *Provider) { p.dims.Store(int64(n)) }
}

// WithKeepAlive tells Ollama how long to keep the model loaded after a
// request, e.g. "30m". Recall runs on every user turn, so a cold model
// would add its load time to the reply latency.
func WithKeepAlive(d string) Option {
	return func(p *Provider) { p.keepAlive = d }
}

// New creates a Provider. Empty arguments select [DefaultBaseURL] and
// [DefaultModel].
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	p := &Provider{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/embed",
		model:    model,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	p.dims.Store(int64(lookupDimensions(model)))
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, embeddings.ErrEmptyText
	}
	vecs, err := p.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	p.dims.CompareAndSwap(0, int64(len(vecs[0])))
	return vecs[0], nil
}

// Dimensions implements embeddings.Provider. For a model it does not know
// it embeds a short probe once; on failure it returns 0 and tries again on
// the next call.
func (p *Provider) Dimensions() int {
	if d := p.dims.Load(); d != 0 {
		return int(d)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	vec, err := p.Embed(ctx, "dimension probe")
	if err != nil {
		return 0
	}
	return len(vec)
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return p.model }

type embedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	Truncate  bool     `json:"truncate"`
	KeepAlive string   `json:"keep_alive,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *Provider) embed(ctx context.Context, input []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{
		Model:     p.model,
		Input:     input,
		Truncate:  true,
		KeepAlive: p.keepAlive,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama embeddings: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama embeddings: decode response: %w", err)
	}
	if len(out.Embeddings) != len(input) {
		return nil, fmt.Errorf("ollama embeddings: got %d vectors for %d inputs", len(out.Embeddings), len(input))
	}
	for i, v := range out.Embeddings {
		if len(v) == 0 {
			return nil, fmt.Errorf("ollama embeddings: vector %d is empty", i)
		}
	}
	return out.Embeddings, nil
}

// lookupDimensions matches model against the known table, ignoring case
// and any ":tag" suffix.
func lookupDimensions(model string) int {
	name, _, _ := strings.Cut(strings.ToLower(model), ":")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return modelDimensions[name]
}
