package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be applied without a restart are tracked; new
// sessions pick them up, running sessions keep the values they started with.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// Sections lists the changed pipeline sections by YAML key, in schema
	// order: verification, transcription, talk, conversation, coach, dialogue.
	Sections []string

	// RestartRequired lists changed sections that only take effect after a
	// restart (providers, memory, profile, workers, server address).
	RestartRequired []string
}

// PipelineChanged reports whether any hot-reloadable pipeline section changed.
func (d ConfigDiff) PipelineChanged() bool { return len(d.Sections) > 0 }

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && len(d.Sections) == 0 && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Verification != new.Verification {
		d.Sections = append(d.Sections, "verification")
	}
	if old.Transcription != new.Transcription {
		d.Sections = append(d.Sections, "transcription")
	}
	if old.Talk != new.Talk {
		d.Sections = append(d.Sections, "talk")
	}
	if old.Conversation != new.Conversation {
		d.Sections = append(d.Sections, "conversation")
	}
	if !coachEqual(old.Coach, new.Coach) {
		d.Sections = append(d.Sections, "coach")
	}
	if !dialogueEqual(old.Dialogue, new.Dialogue) {
		d.Sections = append(d.Sections, "dialogue")
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Memory != new.Memory {
		d.RestartRequired = append(d.RestartRequired, "memory")
	}
	if old.Profile != new.Profile {
		d.RestartRequired = append(d.RestartRequired, "profile")
	}
	if old.Workers != new.Workers {
		d.RestartRequired = append(d.RestartRequired, "workers")
	}
	return d
}

func coachEqual(a, b CoachConfig) bool {
	return slices.Equal(a.Markers, b.Markers) &&
		a.StruggleThreshold == b.StruggleThreshold &&
		a.Cooldown == b.Cooldown &&
		a.PromptTemplate == b.PromptTemplate
}

func dialogueEqual(a, b DialogueConfig) bool {
	return a.SystemPrompt == b.SystemPrompt &&
		a.ExtractionPrompt == b.ExtractionPrompt &&
		a.HistoryMessages == b.HistoryMessages &&
		a.ExtractionEnabled() == b.ExtractionEnabled()
}

func providersEqual(a, b ProvidersConfig) bool {
	return a.Failover == b.Failover &&
		entryEqual(a.LLM, b.LLM) &&
		entryEqual(a.STT, b.STT) &&
		entryEqual(a.Embeddings, b.Embeddings) &&
		entryEqual(a.Verifier, b.Verifier) &&
		slices.EqualFunc(a.LLMFallbacks, b.LLMFallbacks, entryEqual) &&
		slices.EqualFunc(a.STTFallbacks, b.STTFallbacks, entryEqual)
}

func entryEqual(a, b ProviderEntry) bool { return reflect.DeepEqual(a, b) }
