package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/talkbuddy/internal/app"
	"github.com/MrWong99/talkbuddy/internal/config"
	"github.com/MrWong99/talkbuddy/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/talkbuddy/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/talkbuddy/pkg/provider/embeddings/openai"
	"github.com/MrWong99/talkbuddy/pkg/provider/llm"
	"github.com/MrWong99/talkbuddy/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/talkbuddy/pkg/provider/llm/openai"
	"github.com/MrWong99/talkbuddy/pkg/provider/stt"
	"github.com/MrWong99/talkbuddy/pkg/provider/stt/deepgram"
	"github.com/MrWong99/talkbuddy/pkg/provider/stt/whisper"
	"github.com/MrWong99/talkbuddy/pkg/provider/verify"
	"github.com/MrWong99/talkbuddy/pkg/provider/verify/voiceprint"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// Hosted any-llm backends take an optional APIKey and BaseURL.
	for _, backend := range anyllm.Backends() {
		if backend == "ollama" {
			continue
		}
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// openai-native talks to the OpenAI API through the official SDK.
	reg.RegisterLLM("openai-native", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oallm.WithTimeout(d))
		}
		if _, ok := entry.Options["max_retries"]; ok {
			opts = append(opts, oallm.WithMaxRetries(optInt(entry.Options, "max_retries")))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, deepgram.WithTimeout(d))
		}
		if terms := optList(entry.Options, "keyterms"); len(terms) > 0 {
			opts = append(opts, deepgram.WithKeyterms(terms...))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, whisper.WithTimeout(d))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		opts = append(opts,
			whisper.WithThreads(optInt(entry.Options, "threads")),
			whisper.WithMaxConcurrent(optInt(entry.Options, "max_concurrent")),
			whisper.WithInitialPrompt(optString(entry.Options, "initial_prompt")),
		)
		return whisper.NewNative(modelPath, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if dims := optInt(entry.Options, "dimensions"); dims > 0 {
			opts = append(opts, oaembed.WithDimensions(dims))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oaembed.WithTimeout(d))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if dims := optInt(entry.Options, "dimensions"); dims > 0 {
			opts = append(opts, ollamaembed.WithDimensions(dims))
		}
		if ka := optString(entry.Options, "keep_alive"); ka != "" {
			opts = append(opts, ollamaembed.WithKeepAlive(ka))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, ollamaembed.WithTimeout(d))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	// ── Speaker verification ─────────────────────────────────────────────────

	// voiceprint scores frames with embeddings from a speaker-embedding
	// service at BaseURL.
	reg.RegisterVerifier("voiceprint", func(entry config.ProviderEntry) (verify.Engine, error) {
		var modelOpts []voiceprint.HTTPOption
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			modelOpts = append(modelOpts, voiceprint.WithHTTPTimeout(d))
		}
		if dims := optInt(entry.Options, "dimension"); dims > 0 {
			modelOpts = append(modelOpts, voiceprint.WithDimension(dims))
		}
		model, err := voiceprint.NewHTTPModel(entry.BaseURL, modelOpts...)
		if err != nil {
			return nil, err
		}

		var opts []voiceprint.Option
		if n := optInt(entry.Options, "frame_length"); n > 0 {
			opts = append(opts, voiceprint.WithFrameLength(n))
		}
		if n := optInt(entry.Options, "hop_frames"); n > 0 {
			opts = append(opts, voiceprint.WithHop(n))
		}
		return voiceprint.New(model, opts...)
	})

	for _, kind := range []string{"llm", "stt", "embeddings", "verifier"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	pc := cfg.Providers

	var err error
	if ps.LLM, err = create("llm", pc.LLM, reg.CreateLLM); err != nil {
		return nil, err
	}
	for _, entry := range pc.LLMFallbacks {
		p, err := create("llm", entry, reg.CreateLLM)
		if err != nil {
			return nil, err
		}
		ps.LLMFallbacks = append(ps.LLMFallbacks, app.NamedLLM{Name: entry.Name, Provider: p})
	}

	if ps.STT, err = create("stt", pc.STT, reg.CreateSTT); err != nil {
		return nil, err
	}
	for _, entry := range pc.STTFallbacks {
		p, err := create("stt", entry, reg.CreateSTT)
		if err != nil {
			return nil, err
		}
		ps.STTFallbacks = append(ps.STTFallbacks, app.NamedSTT{Name: entry.Name, Provider: p})
	}

	if pc.Embeddings.Name != "" {
		if ps.Embeddings, err = create("embeddings", pc.Embeddings, reg.CreateEmbeddings); err != nil {
			return nil, err
		}
	}

	if ps.Verifier, err = create("verifier", pc.Verifier, reg.CreateVerifier); err != nil {
		return nil, err
	}
	return ps, nil
}

func create[T any](kind string, entry config.ProviderEntry, fn func(config.ProviderEntry) (T, error)) (T, error) {
	p, err := fn(entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		return p, fmt.Errorf("%s provider %q is not built in; known: %v", kind, entry.Name, config.ValidProviderNames[kind])
	}
	if err != nil {
		return p, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name)
	return p, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optList reads a comma-separated string option.
func optList(opts map[string]any, key string) []string {
	var out []string
	for _, v := range strings.Split(optString(opts, key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// optInt extracts an integer option. YAML decodes whole numbers as int.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// optDuration parses a duration option such as "30s".
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}
