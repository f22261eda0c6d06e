package resilience

import (
	"context"

	"github.com/MrWong99/talkbuddy/pkg/provider/stt"
)

// STTFallback is an stt.Provider that fails over between backends. Every
// backend receives the same request and maps the options it supports.
type STTFallback struct {
	chain *Chain[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback starts a chain with primary. Kind defaults to "stt".
func NewSTTFallback(primary stt.Provider, name string, cfg FallbackConfig) *STTFallback {
	if cfg.Kind == "" {
		cfg.Kind = "stt"
	}
	return &STTFallback{chain: NewChain(primary, name, cfg)}
}

// AddFallback appends a backend.
func (f *STTFallback) AddFallback(name string, p stt.Provider) { f.chain.Add(name, p) }

// Transcribe implements stt.Provider.
func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	return Call(ctx, f.chain, func(ctx context.Context, p stt.Provider) (stt.Result, error) {
		return p.Transcribe(ctx, req)
	})
}

// Healthy reports whether any backend accepts calls.
func (f *STTFallback) Healthy() bool { return f.chain.Healthy() }
