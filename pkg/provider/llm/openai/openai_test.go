package openai

import (
	"testing"
	"time"

	"github.com/MrWong99/talkbuddy/pkg/provider/llm"
	"github.com/MrWong99/talkbuddy/pkg/types"
)

func TestParams(t *testing.T) {
	t.Parallel()

	p, err := New("sk-test", "gpt-4o-mini", WithTimeout(5*time.Second), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	params, err := p.params(llm.CompletionRequest{
		SystemPrompt: "Keep replies under two sentences.",
		Messages: []types.Message{
			types.UserMessage("Yesterday I have seen a movie."),
			types.AssistantMessage("Nice, you saw a movie! Which one?"),
			types.UserMessage("A comedy."),
		},
		MaxTokens: 64,
	})
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if got := len(params.Messages); got != 4 {
		t.Fatalf("len(Messages) = %d, want 4", got)
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("message 0 is not the system prompt")
	}
	if params.Messages[1].OfUser == nil || params.Messages[3].OfUser == nil {
		t.Error("user turns not mapped to user messages")
	}
	if params.Messages[2].OfAssistant == nil {
		t.Error("message 2 is not an assistant message")
	}
	if string(params.Model) != "gpt-4o-mini" {
		t.Errorf("Model = %q, want gpt-4o-mini", params.Model)
	}
	if got := params.MaxCompletionTokens.Value; got != 64 {
		t.Errorf("MaxCompletionTokens = %d, want 64", got)
	}
}

func TestParams_UnsupportedRole(t *testing.T) {
	t.Parallel()

	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.params(llm.CompletionRequest{Messages: []types.Message{{Role: "tool", Content: "{}"}}})
	if err == nil {
		t.Fatal("params with tool role = nil error, want error")
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, key, model string
	}{
		{"no key", "", "gpt-4o"},
		{"no model", "sk-test", ""},
	}
	for _, tt := range tests {
		if _, err := New(tt.key, tt.model); err == nil {
			t.Errorf("%s: New = nil error, want error", tt.name)
		}
	}
}
