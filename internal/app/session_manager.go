package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/talkbuddy/internal/coach"
	"github.com/MrWong99/talkbuddy/internal/config"
	"github.com/MrWong99/talkbuddy/internal/dialogue"
	"github.com/MrWong99/talkbuddy/internal/observe"
	"github.com/MrWong99/talkbuddy/internal/pipeline"
	"github.com/MrWong99/talkbuddy/internal/server"
	"github.com/MrWong99/talkbuddy/internal/transcribe"
	"github.com/MrWong99/talkbuddy/internal/workpool"
	"github.com/MrWong99/talkbuddy/pkg/memory"
	"github.com/MrWong99/talkbuddy/pkg/profile"
	"github.com/MrWong99/talkbuddy/pkg/provider/llm"
	"github.com/MrWong99/talkbuddy/pkg/provider/stt"
	"github.com/MrWong99/talkbuddy/pkg/provider/verify"
)

// SessionInfo holds metadata about a live socket session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// Variant is "talk" or "conversation".
	Variant string

	// StartedAt is when the session was opened.
	StartedAt time.Time
}

// SessionManager opens pipeline sessions for the socket endpoints. Every
// session takes a snapshot of the configuration current at open time, so a
// hot reload only affects sessions opened afterwards.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	cfg      atomic.Pointer[config.Config]
	engine   verify.Engine
	profiles profile.Store
	stt      stt.Provider
	llm      llm.Provider
	memory   memory.LongTerm
	pool     *workpool.Pool
	metrics  *observe.Metrics

	mu     sync.Mutex
	active map[string]SessionInfo
}

var _ server.Sessions = (*SessionManager)(nil)

// SessionManagerConfig holds the collaborators of a [SessionManager].
type SessionManagerConfig struct {
	Config   *config.Config
	Engine   verify.Engine
	Profiles profile.Store
	STT      stt.Provider
	LLM      llm.Provider

	// Memory is optional; nil disables fact recall and extraction.
	Memory memory.LongTerm

	Pool    *workpool.Pool
	Metrics *observe.Metrics
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	m := &SessionManager{
		engine:   cfg.Engine,
		profiles: cfg.Profiles,
		stt:      cfg.STT,
		llm:      cfg.LLM,
		memory:   cfg.Memory,
		pool:     cfg.Pool,
		metrics:  cfg.Metrics,
		active:   make(map[string]SessionInfo),
	}
	m.cfg.Store(cfg.Config)
	return m
}

// UpdateConfig swaps the configuration used for new sessions.
func (m *SessionManager) UpdateConfig(cfg *config.Config) {
	m.cfg.Store(cfg)
}

// Config returns the configuration used for new sessions.
func (m *SessionManager) Config() *config.Config {
	return m.cfg.Load()
}

// Open implements server.Sessions. It fails with an error wrapping
// [profile.ErrNotFound] when no speaker is enrolled yet.
func (m *SessionManager) Open(ctx context.Context, v pipeline.Variant) (*pipeline.Session, error) {
	cfg := m.cfg.Load()

	data, err := m.profiles.Load(ctx, profile.DefaultName)
	if err != nil {
		return nil, fmt.Errorf("app: load speaker profile: %w", err)
	}

	handle, err := m.engine.NewSession(data)
	if err != nil {
		return nil, fmt.Errorf("app: open verifier: %w", err)
	}

	dlg, err := dialogue.New(m.llm, dialogueOptions(cfg, m.memory, m.metrics)...)
	if err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("app: create dialogue: %w", err)
	}

	id := uuid.NewString()
	sess, err := pipeline.NewSession(id, v, PipelineConfig(cfg), pipeline.Deps{
		Verifier:    handle,
		FrameLength: m.engine.FrameLength(),
		Transcriber: transcribe.New(m.stt,
			transcribe.WithLanguage(cfg.Transcription.Language),
			transcribe.WithSampleRate(cfg.Audio.SampleRate),
			transcribe.WithPadFrames(cfg.Transcription.LowEnergyPadFrames),
		),
		Dialogue: dlg,
		Coach:    coach.NewTrigger(CoachConfig(cfg)),
		Pool:     m.pool,
		Metrics:  m.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("app: create session: %w", err)
	}

	m.mu.Lock()
	m.active[id] = SessionInfo{SessionID: id, Variant: v.String(), StartedAt: time.Now()}
	m.mu.Unlock()

	slog.Info("session opened", "session_id", id, "variant", v.String())
	return sess, nil
}

// Done forgets the session with the given ID. The socket handler calls it
// once Run has returned.
func (m *SessionManager) Done(id string) {
	m.mu.Lock()
	info, ok := m.active[id]
	delete(m.active, id)
	m.mu.Unlock()
	if ok {
		slog.Info("session closed", "session_id", id, "variant", info.Variant,
			"duration", time.Since(info.StartedAt).Round(time.Millisecond))
	}
}

// Active returns the live sessions.
func (m *SessionManager) Active() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionInfo, 0, len(m.active))
	for _, info := range m.active {
		out = append(out, info)
	}
	return out
}

// PipelineConfig maps the configuration onto session tunables.
func PipelineConfig(cfg *config.Config) pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.SampleRate = cfg.Audio.SampleRate
	pc.VerifyThreshold = cfg.Verification.Threshold
	pc.GraceFrames = cfg.Talk.GracePeriodFrames
	pc.MinUtteranceSec = cfg.Talk.MinUtteranceSec
	pc.SpeechRMSThreshold = cfg.Conversation.SpeechRMSThreshold
	pc.MaxSilenceFrames = cfg.Conversation.MaxSilenceFrames
	pc.MinRegisteredSec = cfg.Conversation.MinRegisteredSec
	pc.MinGuestSec = cfg.Conversation.MinGuestSec
	pc.GuestRMSFloor = cfg.Conversation.GuestRMSFloor
	return pc
}

// CoachConfig maps the configuration onto the coaching trigger.
func CoachConfig(cfg *config.Config) coach.Config {
	return coach.Config{
		Markers:        cfg.Coach.Markers,
		Threshold:      cfg.Coach.StruggleThreshold,
		Cooldown:       cfg.Coach.Cooldown,
		PromptTemplate: cfg.Coach.PromptTemplate,
	}
}

func dialogueOptions(cfg *config.Config, mem memory.LongTerm, met *observe.Metrics) []dialogue.Option {
	opts := []dialogue.Option{
		dialogue.WithHistoryMessages(cfg.Dialogue.HistoryMessages),
		dialogue.WithRetrieveK(cfg.Memory.RetrieveK),
		dialogue.WithMaxInjectionChars(cfg.Memory.MaxInjectionChars),
		dialogue.WithMemoryExtraction(cfg.Dialogue.ExtractionEnabled()),
	}
	if cfg.Dialogue.SystemPrompt != "" {
		opts = append(opts, dialogue.WithSystemPrompt(cfg.Dialogue.SystemPrompt))
	}
	if cfg.Dialogue.ExtractionPrompt != "" {
		opts = append(opts, dialogue.WithExtractionPrompt(cfg.Dialogue.ExtractionPrompt))
	}
	if mem != nil {
		opts = append(opts, dialogue.WithMemory(mem))
	}
	if met != nil {
		opts = append(opts, dialogue.WithMetrics(met))
	}
	return opts
}
