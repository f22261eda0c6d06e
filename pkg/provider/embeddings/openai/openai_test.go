package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/talkbuddy/pkg/provider/embeddings"
)

func TestDimensions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		opts  []Option
		want  int
	}{
		{"", nil, 1536},
		{"text-embedding-3-large", nil, 3072},
		{"TEXT-EMBEDDING-3-LARGE", nil, 3072},
		{"text-embedding-ada-002", nil, 1536},
		{"text-embedding-3-large", []Option{WithDimensions(768)}, 768},
		{"text-embedding-3-small", []Option{WithDimensions(384)}, 384},
	}
	for _, tt := range tests {
		p, err := New("sk-test", tt.model, tt.opts...)
		if err != nil {
			t.Fatalf("New(%q): %v", tt.model, err)
		}
		if got := p.Dimensions(); got != tt.want {
			t.Errorf("Dimensions(%q) = %d, want %d", tt.model, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := New("", ""); err == nil {
		t.Error("New without api key = nil error, want error")
	}
	if _, err := New("sk-test", "", WithDimensions(-1)); err == nil {
		t.Error("New with negative dimensions = nil error, want error")
	}
	p, err := New("sk-test", "", WithBaseURL("http://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.ModelID() != DefaultModel {
		t.Errorf("ModelID() = %q, want %q", p.ModelID(), DefaultModel)
	}
}

func TestEmbed_RejectsBlankText(t *testing.T) {
	t.Parallel()

	p, err := New("sk-test", "", WithBaseURL("http://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, text := range []string{"", "  \n"} {
		if _, err := p.Embed(context.Background(), text); !errors.Is(err, embeddings.ErrEmptyText) {
			t.Errorf("Embed(%q) error = %v, want ErrEmptyText", text, err)
		}
	}
}
