package voiceprint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrWong99/talkbuddy/pkg/audio"
)

// Model extracts speaker embedding vectors from 16 kHz mono PCM.
//
// Implementations must be safe for concurrent use.
type Model interface {
	// Extract computes an embedding for pcm.
	Extract(ctx context.Context, pcm []int16) ([]float32, error)

	// Dimension returns the embedding length, or 0 if not yet known.
	Dimension() int
}

// HTTPModel calls a speaker-embedding service. The service accepts a
// multipart upload with a "file" field containing a WAV and answers with
// {"embedding": [...]}.
type HTTPModel struct {
	endpoint string
	client   *http.Client
	dims     atomic.Int64
}

var _ Model = (*HTTPModel)(nil)

// HTTPOption configures an HTTPModel.
type HTTPOption func(*HTTPModel)

// WithHTTPTimeout sets the per-request timeout.
func WithHTTPTimeout(d time.Duration) HTTPOption {
	return func(m *HTTPModel) { m.client.Timeout = d }
}

// WithDimension declares the embedding length up front.
func WithDimension(n int) HTTPOption {
	return func(m *HTTPModel) { m.dims.Store(int64(n)) }
}

// NewHTTPModel returns a Model for the service at baseURL. Requests go to
// baseURL + "/embed".
func NewHTTPModel(baseURL string, opts ...HTTPOption) (*HTTPModel, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("voiceprint: base URL must not be empty")
	}
	m := &HTTPModel{
		endpoint: strings.TrimRight(baseURL, "/") + "/embed",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Dimension implements Model.
func (m *HTTPModel) Dimension() int { return int(m.dims.Load()) }

// Extract implements Model.
func (m *HTTPModel) Extract(ctx context.Context, pcm []int16) ([]float32, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("voiceprint: create form file: %w", err)
	}
	if _, err := fw.Write(audio.EncodeWAV(pcm, audio.SampleRate, 1)); err != nil {
		return nil, fmt.Errorf("voiceprint: write audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("voiceprint: close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("voiceprint: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voiceprint: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("voiceprint: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("voiceprint: decode response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("voiceprint: empty embedding")
	}
	m.dims.CompareAndSwap(0, int64(len(out.Embedding)))
	return out.Embedding, nil
}
