package resilience

import (
	"context"

	"github.com/MrWong99/talkbuddy/pkg/provider/llm"
)

// LLMFallback is an llm.Provider that fails over between backends.
type LLMFallback struct {
	chain *Chain[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback starts a chain with primary. Kind defaults to "llm".
func NewLLMFallback(primary llm.Provider, name string, cfg FallbackConfig) *LLMFallback {
	if cfg.Kind == "" {
		cfg.Kind = "llm"
	}
	return &LLMFallback{chain: NewChain(primary, name, cfg)}
}

// AddFallback appends a backend.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) { f.chain.Add(name, p) }

// Complete implements llm.Provider.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Call(ctx, f.chain, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Model reports the primary's model.
func (f *LLMFallback) Model() string { return f.chain.Primary().Model() }

// Healthy reports whether any backend accepts calls.
func (f *LLMFallback) Healthy() bool { return f.chain.Healthy() }
