package anyllm

import (
	"slices"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/talkbuddy/pkg/provider/llm"
	"github.com/MrWong99/talkbuddy/pkg/types"
)

func TestParams(t *testing.T) {
	t.Parallel()
	p := &Provider{name: "ollama", model: "llama3.2"}

	tests := []struct {
		name      string
		req       llm.CompletionRequest
		wantRoles []string
		wantTemp  bool
		wantMax   bool
	}{
		{
			name: "coach turn",
			req: llm.CompletionRequest{
				SystemPrompt: "You are a patient English coach.",
				Messages: []types.Message{
					types.UserMessage("I goed to the shop."),
					types.AssistantMessage("You went to the shop! What did you buy?"),
					types.UserMessage("Some breads."),
				},
				Temperature: 0.7,
				MaxTokens:   150,
			},
			wantRoles: []string{types.RoleSystem, types.RoleUser, types.RoleAssistant, types.RoleUser},
			wantTemp:  true,
			wantMax:   true,
		},
		{
			name:      "defaults left to backend",
			req:       llm.CompletionRequest{Messages: []types.Message{types.UserMessage("hello")}},
			wantRoles: []string{types.RoleUser},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			params := p.params(tt.req)
			if params.Model != "llama3.2" {
				t.Errorf("Model = %q, want llama3.2", params.Model)
			}
			var roles []string
			for _, m := range params.Messages {
				roles = append(roles, m.Role)
			}
			if !slices.Equal(roles, tt.wantRoles) {
				t.Errorf("roles = %v, want %v", roles, tt.wantRoles)
			}
			if got := params.Temperature != nil; got != tt.wantTemp {
				t.Errorf("Temperature set = %v, want %v", got, tt.wantTemp)
			}
			if got := params.MaxTokens != nil; got != tt.wantMax {
				t.Errorf("MaxTokens set = %v, want %v", got, tt.wantMax)
			}
			if tt.wantMax && *params.MaxTokens != tt.req.MaxTokens {
				t.Errorf("MaxTokens = %d, want %d", *params.MaxTokens, tt.req.MaxTokens)
			}
		})
	}
}

func TestParams_KeepsContent(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "m"}
	params := p.params(llm.CompletionRequest{
		SystemPrompt: "Correct gently.",
		Messages:     []types.Message{types.UserMessage("She don't like it.")},
	})
	if got := params.Messages[0].ContentString(); got != "Correct gently." {
		t.Errorf("system content = %q", got)
	}
	if got := params.Messages[1].ContentString(); got != "She don't like it." {
		t.Errorf("user content = %q", got)
	}
}

func TestBackends(t *testing.T) {
	t.Parallel()
	got := Backends()
	if !slices.IsSorted(got) {
		t.Errorf("Backends() = %v, want sorted", got)
	}
	for _, want := range []string{"ollama", "openai", "anthropic", "llamacpp"} {
		if !slices.Contains(got, want) {
			t.Errorf("Backends() missing %q", want)
		}
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	p, err := New("Ollama", "llama3.2")
	if err != nil {
		t.Fatalf("New(Ollama): %v", err)
	}
	if p.Model() != "llama3.2" || p.name != "ollama" {
		t.Errorf("model/name = %q/%q, want llama3.2/ollama", p.Model(), p.name)
	}

	if _, err := New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-test")); err != nil {
		t.Errorf("New(openai): %v", err)
	}
	if _, err := New("ollama", ""); err == nil {
		t.Error("New with empty model = nil error, want error")
	}
	if _, err := New("watson", "m"); err == nil {
		t.Error("New with unknown backend = nil error, want error")
	}
}
