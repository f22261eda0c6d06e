package main

import (
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/talkbuddy/internal/config"
	"github.com/MrWong99/talkbuddy/pkg/provider/llm"
	llmmock "github.com/MrWong99/talkbuddy/pkg/provider/llm/mock"
	"github.com/MrWong99/talkbuddy/pkg/provider/stt"
	sttmock "github.com/MrWong99/talkbuddy/pkg/provider/stt/mock"
	"github.com/MrWong99/talkbuddy/pkg/provider/verify"
	verifymock "github.com/MrWong99/talkbuddy/pkg/provider/verify/mock"
)

func TestOptHelpers(t *testing.T) {
	t.Parallel()
	opts := map[string]any{
		"language": "en",
		"dims":     384,
		"ratio":    2.0,
		"timeout":  "1500ms",
		"bad":      "soon",
	}

	if got := optString(opts, "language"); got != "en" {
		t.Errorf("optString(language) = %q, want %q", got, "en")
	}
	if got := optString(opts, "dims"); got != "" {
		t.Errorf("optString(dims) = %q, want empty", got)
	}
	if got := optString(nil, "language"); got != "" {
		t.Errorf("optString(nil) = %q, want empty", got)
	}
	if got := optInt(opts, "dims"); got != 384 {
		t.Errorf("optInt(dims) = %d, want 384", got)
	}
	if got := optInt(opts, "ratio"); got != 2 {
		t.Errorf("optInt(ratio) = %d, want 2", got)
	}
	if got := optDuration(opts, "timeout"); got != 1500*time.Millisecond {
		t.Errorf("optDuration(timeout) = %v, want 1.5s", got)
	}
	if got := optDuration(opts, "bad"); got != 0 {
		t.Errorf("optDuration(bad) = %v, want 0", got)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := slogLevel(tt.in); got != tt.want {
			t.Errorf("slogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	for kind, names := range config.ValidProviderNames {
		registered := reg.Names(kind)
		for _, name := range names {
			if !slices.Contains(registered, name) {
				t.Errorf("%s provider %q is not registered", kind, name)
			}
		}
	}
}

func mockRegistry() *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })
	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) { return &sttmock.Provider{}, nil })
	reg.RegisterVerifier("mock", func(config.ProviderEntry) (verify.Engine, error) { return &verifymock.Engine{}, nil })
	return reg
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Providers.LLM.Name = "mock"
	cfg.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "mock"}}
	cfg.Providers.STT.Name = "mock"
	cfg.Providers.Verifier.Name = "mock"

	ps, err := buildProviders(cfg, mockRegistry())
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	if ps.LLM == nil || ps.STT == nil || ps.Verifier == nil {
		t.Fatalf("buildProviders left a required slot empty: %+v", ps)
	}
	if len(ps.LLMFallbacks) != 1 || ps.LLMFallbacks[0].Name != "mock" {
		t.Errorf("LLMFallbacks = %+v, want one named mock", ps.LLMFallbacks)
	}
	if ps.Embeddings != nil {
		t.Errorf("Embeddings = %v, want nil", ps.Embeddings)
	}
}

func TestBuildProviders_Unknown(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Providers.LLM.Name = "mock"
	cfg.Providers.STT.Name = "nope"
	cfg.Providers.Verifier.Name = "mock"

	_, err := buildProviders(cfg, mockRegistry())
	if err == nil {
		t.Fatal("buildProviders: got nil error")
	}
	if errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("error should be reworded, got %v", err)
	}
	if !strings.Contains(err.Error(), `"nope"`) {
		t.Errorf("error = %v, want it to name the provider", err)
	}
}

func TestRenderSummary(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Providers.LLM = config.ProviderEntry{Name: "ollama", Model: "llama3.2"}
	cfg.Providers.Verifier.Name = "voiceprint"

	out := renderSummary(cfg)
	for _, want := range []string{"TalkBuddy", "ollama / llama3.2", "voiceprint", "(not configured)", ":8000"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
