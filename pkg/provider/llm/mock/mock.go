// Package mock is a scripted llm.Provider for tests.
//
//	p := &mock.Provider{Responses: []string{"Great job!", "IGNORE"}}
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/talkbuddy/pkg/provider/llm"
)

// Call is one recorded Complete.
type Call struct {
	Req llm.CompletionRequest
}

// Provider answers from ReplyFunc when set, otherwise from Responses in
// order, repeating the last one. Err fails every call.
type Provider struct {
	Responses []string
	ReplyFunc func(req llm.CompletionRequest) (string, error)
	Err       error
	ModelName string

	mu    sync.Mutex
	calls []Call
}

var _ llm.Provider = (*Provider)(nil)

// Complete implements llm.Provider. It honours a cancelled ctx.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	n := len(p.calls)
	p.calls = append(p.calls, Call{Req: req})
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}
	var text string
	switch {
	case p.ReplyFunc != nil:
		var err error
		if text, err = p.ReplyFunc(req); err != nil {
			return nil, err
		}
	case len(p.Responses) > 0:
		text = p.Responses[min(n, len(p.Responses)-1)]
	}
	return &llm.CompletionResponse{Content: text, Usage: usage(req, text)}, nil
}

// usage counts words as tokens.
func usage(req llm.CompletionRequest, reply string) llm.Usage {
	prompt := len(strings.Fields(req.SystemPrompt))
	for _, m := range req.Messages {
		prompt += len(strings.Fields(m.Content))
	}
	out := len(strings.Fields(reply))
	return llm.Usage{PromptTokens: prompt, CompletionTokens: out, TotalTokens: prompt + out}
}

// Model implements llm.Provider.
func (p *Provider) Model() string { return p.ModelName }

// Calls returns the recorded calls.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}
