package config_test

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/talkbuddy/internal/config"
)

func loadMinimal(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(loadMinimal(t), loadMinimal(t))
	if !d.Empty() {
		t.Errorf("Diff = %+v, want empty", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old, cur := loadMinimal(t), loadMinimal(t)
	cur.Server.LogLevel = config.LogDebug
	d := config.Diff(old, cur)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("Diff = %+v, want log level change to debug", d)
	}
	if d.PipelineChanged() {
		t.Error("log level change reported as pipeline change")
	}
}

func TestDiff_PipelineSections(t *testing.T) {
	t.Parallel()
	old, cur := loadMinimal(t), loadMinimal(t)
	cur.Verification.Threshold = 0.8
	cur.Conversation.MaxSilenceFrames = 10
	cur.Coach.Markers = []string{"erm"}
	cur.Coach.Cooldown = time.Second
	off := false
	cur.Dialogue.ExtractMemories = &off

	d := config.Diff(old, cur)
	want := []string{"verification", "conversation", "coach", "dialogue"}
	if !slices.Equal(d.Sections, want) {
		t.Errorf("Sections = %v, want %v", d.Sections, want)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old, cur := loadMinimal(t), loadMinimal(t)
	cur.Providers.LLM.Model = "llama3.3"
	cur.Providers.STTFallbacks = []config.ProviderEntry{{Name: "deepgram"}}
	cur.Workers.Concurrency = 16
	cur.Server.ListenAddr = ":9999"

	d := config.Diff(old, cur)
	want := []string{"server.listen_addr", "providers", "workers"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.PipelineChanged() {
		t.Errorf("Sections = %v, want none", d.Sections)
	}
}

func TestDiff_ExtractionDefaultEqualsExplicitTrue(t *testing.T) {
	t.Parallel()
	old, cur := loadMinimal(t), loadMinimal(t)
	on := true
	cur.Dialogue.ExtractMemories = &on
	if d := config.Diff(old, cur); !d.Empty() {
		t.Errorf("Diff = %+v, want empty", d)
	}
}
