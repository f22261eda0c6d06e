// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (OpenAI, Anthropic, a local
// Ollama instance, ...) and exposes the single blocking completion call the
// coaching dialogue needs.
//
// Implementations must be safe for concurrent use.
package llm

import (
	"context"
	"errors"

	"github.com/MrWong99/talkbuddy/pkg/types"
)

// ErrNoReply is returned when the backend answers without a single choice.
var ErrNoReply = errors.New("llm: backend returned no reply")

// Usage holds token accounting returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce one reply.
// Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation; the last entry is usually the user
	// turn that drives the reply.
	Messages []types.Message

	// SystemPrompt is injected ahead of Messages. Providers without a dedicated
	// system field prepend it as a system-role message.
	SystemPrompt string

	// Temperature in [0.0, 2.0]. Zero leaves the provider default.
	Temperature float64

	// MaxTokens caps the reply length. Zero leaves the provider default.
	MaxTokens int
}

// Conversation returns Messages preceded by SystemPrompt as a system-role
// message. Providers without a dedicated system field send this.
func (r CompletionRequest) Conversation() []types.Message {
	if r.SystemPrompt == "" {
		return r.Messages
	}
	out := make([]types.Message, 0, len(r.Messages)+1)
	out = append(out, types.Message{Role: types.RoleSystem, Content: r.SystemPrompt})
	return append(out, r.Messages...)
}

// CompletionResponse is the full reply to a [CompletionRequest].
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req and waits for the whole reply. It returns promptly
	// with ctx.Err() when ctx is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Model returns the model identifier used for requests.
	Model() string
}
