// Package app wires all TalkBuddy subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP and WebSocket traffic, and Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithProfileStore, WithMemoryIndex, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/talkbuddy/internal/config"
	"github.com/MrWong99/talkbuddy/internal/enroll"
	"github.com/MrWong99/talkbuddy/internal/health"
	"github.com/MrWong99/talkbuddy/internal/observe"
	"github.com/MrWong99/talkbuddy/internal/resilience"
	"github.com/MrWong99/talkbuddy/internal/server"
	"github.com/MrWong99/talkbuddy/internal/workpool"
	"github.com/MrWong99/talkbuddy/pkg/memory"
	"github.com/MrWong99/talkbuddy/pkg/memory/postgres"
	"github.com/MrWong99/talkbuddy/pkg/memory/sqlite"
	"github.com/MrWong99/talkbuddy/pkg/profile"
	"github.com/MrWong99/talkbuddy/pkg/profile/badger"
	"github.com/MrWong99/talkbuddy/pkg/profile/file"
	"github.com/MrWong99/talkbuddy/pkg/provider/embeddings"
	"github.com/MrWong99/talkbuddy/pkg/provider/llm"
	"github.com/MrWong99/talkbuddy/pkg/provider/stt"
	"github.com/MrWong99/talkbuddy/pkg/provider/verify"
)

// NamedLLM pairs a fallback LLM with its config name.
type NamedLLM struct {
	Name     string
	Provider llm.Provider
}

// NamedSTT pairs a fallback STT provider with its config name.
type NamedSTT struct {
	Name     string
	Provider stt.Provider
}

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM          llm.Provider
	LLMFallbacks []NamedLLM
	STT          stt.Provider
	STTFallbacks []NamedSTT
	Embeddings   embeddings.Provider
	Verifier     verify.Engine
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	metrics  *observe.Metrics
	pool     *workpool.Pool
	index    memory.Index
	memory   *memory.Memory
	profiles profile.Store
	llm      llm.Provider
	stt      stt.Provider
	checks   []health.Probe
	enroller *enroll.Enroller
	sessions *SessionManager
	server   *server.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithProfileStore injects a profile store instead of opening one from config.
func WithProfileStore(s profile.Store) Option {
	return func(a *App) { a.profiles = s }
}

// WithMemoryIndex injects a memory index instead of opening one from config.
// It takes effect even when memory.backend is "none".
func WithMemoryIndex(idx memory.Index) Option {
	return func(a *App) { a.index = idx }
}

// WithMetrics injects the metrics instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithPool injects the worker pool.
func WithPool(p *workpool.Pool) Option {
	return func(a *App) { a.pool = p }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if providers == nil || providers.LLM == nil || providers.STT == nil || providers.Verifier == nil {
		return nil, errors.New("app: llm, stt and verifier providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Metrics + worker pool ─────────────────────────────────────────
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.pool == nil {
		a.pool = workpool.New(cfg.Workers.Concurrency, workpool.WithMetrics(a.metrics))
		a.closers = append(a.closers, func() error {
			a.pool.Close()
			return nil
		})
	}

	// ── 2. Memory ────────────────────────────────────────────────────────
	if err := a.initMemory(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init memory: %w", err)
	}

	// ── 3. Profile store ─────────────────────────────────────────────────
	if err := a.initProfiles(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init profile store: %w", err)
	}

	// ── 4. Provider fallbacks ────────────────────────────────────────────
	a.initFallbacks()

	// ── 5. Enrollment + sessions ─────────────────────────────────────────
	var longTerm memory.LongTerm
	enrollOpts := []enroll.Option{enroll.WithPool(a.pool)}
	if a.memory != nil {
		longTerm = a.memory
		enrollOpts = append(enrollOpts, enroll.WithMemory(a.memory))
	}
	a.enroller = enroll.New(providers.Verifier, a.profiles, enrollOpts...)
	a.sessions = NewSessionManager(SessionManagerConfig{
		Config:   cfg,
		Engine:   providers.Verifier,
		Profiles: a.profiles,
		STT:      a.stt,
		LLM:      a.llm,
		Memory:   longTerm,
		Pool:     a.pool,
		Metrics:  a.metrics,
	})

	// ── 6. HTTP server ───────────────────────────────────────────────────
	srvCfg := server.Config{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ReadLimitBytes:  cfg.Server.ReadLimitBytes,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	if cfg.Server.TLS != nil {
		srvCfg.CertFile = cfg.Server.TLS.CertFile
		srvCfg.KeyFile = cfg.Server.TLS.KeyFile
	}
	a.server = server.New(srvCfg, a.sessions, a.enroller,
		server.WithHealth(health.New(0, a.checks...)),
		server.WithMetrics(a.metrics),
		server.WithMetricsHandler(promhttp.Handler()),
	)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initMemory opens the configured memory index or uses the injected one.
func (a *App) initMemory(ctx context.Context) error {
	mc := a.cfg.Memory
	if a.index == nil {
		switch mc.Backend {
		case config.MemoryPostgres:
			idx, err := postgres.NewIndex(ctx, mc.DSN, mc.EmbeddingDimensions)
			if err != nil {
				return err
			}
			a.index = idx
		case config.MemorySQLite:
			idx, err := sqlite.Open(ctx, mc.Path)
			if err != nil {
				return err
			}
			a.index = idx
		default:
			slog.Info("long-term memory disabled")
			return nil
		}
		a.closers = append(a.closers, a.index.Close)
	}

	if a.providers.Embeddings == nil {
		return errors.New("memory requires an embeddings provider")
	}
	if p, ok := a.index.(health.Pinger); ok {
		probe := health.Ping("memory", p)
		probe.Optional = true
		a.checks = append(a.checks, probe)
	}
	a.memory = memory.New(a.index, a.providers.Embeddings,
		memory.WithMaxItems(mc.MaxItems),
		memory.WithEvictBatch(mc.EvictBatch),
		memory.WithMaxItemChars(mc.MaxItemChars),
		memory.WithDedupeSimilarity(mc.DedupeSimilarity),
	)
	slog.Info("long-term memory enabled", "backend", string(mc.Backend))
	return nil
}

// initProfiles opens the configured profile store unless one was injected.
func (a *App) initProfiles() error {
	if a.profiles != nil {
		return nil
	}
	pc := a.cfg.Profile
	switch pc.Backend {
	case config.ProfileBadger:
		s, err := badger.Open(badger.Options{Dir: pc.Path})
		if err != nil {
			return err
		}
		a.profiles = s
	default:
		s, err := file.New(pc.Path)
		if err != nil {
			return err
		}
		a.profiles = s
	}
	a.closers = append(a.closers, a.profiles.Close)
	return nil
}

// initFallbacks wraps the primary LLM and STT providers in fallback groups
// when fallbacks are configured.
func (a *App) initFallbacks() {
	p := a.providers
	a.llm, a.stt = p.LLM, p.STT

	fo := a.cfg.Providers.Failover
	chainCfg := func(kind string) resilience.FallbackConfig {
		return resilience.FallbackConfig{
			Kind: kind,
			Breaker: resilience.BreakerConfig{
				Threshold: fo.FailureThreshold,
				Cooldown:  fo.Cooldown,
				Probes:    fo.Probes,
			},
			AttemptTimeout: fo.AttemptTimeout,
			Metrics:        a.metrics,
		}
	}

	if len(p.LLMFallbacks) > 0 {
		fb := resilience.NewLLMFallback(p.LLM, a.cfg.Providers.LLM.Name, chainCfg("llm"))
		for _, f := range p.LLMFallbacks {
			fb.AddFallback(f.Name, f.Provider)
		}
		a.llm = fb
		a.checks = append(a.checks, health.Available("llm", fb.Healthy))
	}
	if len(p.STTFallbacks) > 0 {
		fb := resilience.NewSTTFallback(p.STT, a.cfg.Providers.STT.Name, chainCfg("stt"))
		for _, f := range p.STTFallbacks {
			fb.AddFallback(f.Name, f.Provider)
		}
		a.stt = fb
		a.checks = append(a.checks, health.Available("stt", fb.Healthy))
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP handler serving all routes.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Enroller returns the enrollment service.
func (a *App) Enroller() *enroll.Enroller { return a.enroller }

// UpdateConfig applies a hot-reloaded configuration to sessions opened from
// now on. Settings that need a restart are ignored.
func (a *App) UpdateConfig(cfg *config.Config) {
	a.sessions.UpdateConfig(cfg)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and WebSocket traffic and blocks until ctx is cancelled.
// It returns nil after a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	slog.Info("app running", "addr", a.cfg.Server.ListenAddr)
	if err := a.server.Serve(ctx, a.cfg.Server.ListenAddr); err != nil {
		return fmt.Errorf("app: serve: %w", err)
	}
	return nil
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: closers that have not run when ctx is done are skipped.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases whatever New opened before it failed.
func (a *App) closeAll() {
	for _, closer := range a.closers {
		_ = closer()
	}
}
