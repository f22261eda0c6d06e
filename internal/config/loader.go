package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "openai-native", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"deepgram", "whisper", "whisper-native"},
	"embeddings": {"openai", "ollama"},
	"verifier":   {"voiceprint"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader expands ${VAR} references, decodes a YAML config from r,
// applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(ExpandEnv(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces ${VAR} with the value of the environment variable VAR.
// Unset variables expand to the empty string. Bare $VAR is left alone so
// prompts may contain dollar signs.
func ExpandEnv(raw []byte) []byte {
	return envRef.ReplaceAllFunc(raw, func(m []byte) []byte {
		return []byte(os.Getenv(string(m[2 : len(m)-1])))
	})
}

// Validate checks that cfg contains a coherent set of values. Call it after
// [Config.ApplyDefaults]. It returns a joined error listing all failures.
func Validate(cfg *Config) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		fail("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}
	if cfg.Server.ReadLimitBytes < 0 {
		fail("server.read_limit_bytes must not be negative")
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		fail("server.tls requires both cert_file and key_file")
	}

	// Providers
	p := cfg.Providers
	if p.LLM.Name == "" {
		fail("providers.llm.name is required")
	}
	if p.STT.Name == "" {
		fail("providers.stt.name is required")
	}
	if p.Verifier.Name == "" {
		fail("providers.verifier.name is required")
	}
	validateProviderName("llm", p.LLM.Name)
	validateProviderName("stt", p.STT.Name)
	validateProviderName("embeddings", p.Embeddings.Name)
	validateProviderName("verifier", p.Verifier.Name)
	for i, fb := range p.LLMFallbacks {
		if fb.Name == "" {
			fail("providers.llm_fallbacks[%d].name is required", i)
		}
		validateProviderName("llm", fb.Name)
	}
	for i, fb := range p.STTFallbacks {
		if fb.Name == "" {
			fail("providers.stt_fallbacks[%d].name is required", i)
		}
		validateProviderName("stt", fb.Name)
	}
	if f := p.Failover; f.AttemptTimeout < 0 || f.Cooldown < 0 || f.FailureThreshold < 0 || f.Probes < 0 {
		fail("providers.failover values must not be negative")
	}

	// Pipeline tunables
	if cfg.Audio.SampleRate <= 0 {
		fail("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate)
	}
	if t := cfg.Verification.Threshold; t <= 0 || t > 1 {
		fail("verification.threshold %.3f is out of range (0, 1]", t)
	}
	if cfg.Transcription.LowEnergyPadFrames < 0 {
		fail("transcription.low_energy_pad_frames must not be negative")
	}
	if cfg.Talk.GracePeriodFrames < 0 {
		fail("talk.grace_period_frames must not be negative")
	}
	if cfg.Talk.MinUtteranceSec < 0 {
		fail("talk.min_utterance_sec must not be negative")
	}
	cv := cfg.Conversation
	if cv.SpeechRMSThreshold <= 0 || cv.SpeechRMSThreshold >= 1 {
		fail("conversation.speech_rms_threshold %.4f is out of range (0, 1)", cv.SpeechRMSThreshold)
	}
	if cv.MaxSilenceFrames <= 0 {
		fail("conversation.max_silence_frames must be positive")
	}
	if cv.MinRegisteredSec < 0 || cv.MinGuestSec < 0 {
		fail("conversation minimum durations must not be negative")
	}
	if cv.GuestRMSFloor < 0 {
		fail("conversation.guest_rms_floor must not be negative")
	}

	// Coach
	if cfg.Coach.StruggleThreshold < 1 {
		fail("coach.struggle_threshold must be at least 1")
	}
	if cfg.Coach.Cooldown < 0 {
		fail("coach.cooldown must not be negative")
	}
	if tpl := cfg.Coach.PromptTemplate; tpl != "" && strings.Count(tpl, "%s") != 1 {
		fail("coach.prompt_template must contain exactly one %%s")
	}
	for i, m := range cfg.Coach.Markers {
		if strings.TrimSpace(m) == "" {
			fail("coach.markers[%d] is empty", i)
		}
	}

	// Dialogue
	if cfg.Dialogue.HistoryMessages < 0 {
		fail("dialogue.history_messages must not be negative")
	}

	// Memory
	m := cfg.Memory
	switch {
	case !m.Backend.IsValid():
		fail("memory.backend %q is invalid; valid values: postgres, sqlite, none", m.Backend)
	case m.Backend == MemoryPostgres && m.DSN == "":
		fail("memory.dsn is required for the postgres backend")
	case m.Backend == MemorySQLite && m.Path == "":
		fail("memory.path is required for the sqlite backend")
	}
	if m.Backend != MemoryNone && p.Embeddings.Name == "" {
		fail("memory.backend %q requires providers.embeddings", m.Backend)
	}
	if m.DedupeSimilarity < 0 || m.DedupeSimilarity > 1 {
		fail("memory.dedupe_similarity %.3f is out of range [0, 1]", m.DedupeSimilarity)
	}
	if m.MaxItems <= 0 || m.EvictBatch <= 0 || m.RetrieveK <= 0 {
		fail("memory.max_items, memory.evict_batch and memory.retrieve_k must be positive")
	}

	// Profile
	if !cfg.Profile.Backend.IsValid() {
		fail("profile.backend %q is invalid; valid values: file, badger", cfg.Profile.Backend)
	}

	if cfg.Workers.Concurrency <= 0 {
		fail("workers.concurrency must be positive, got %d", cfg.Workers.Concurrency)
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
