// Package server exposes talkbuddy over HTTP.
//
// Routes:
//
//	GET  /                   service banner
//	POST /api/enroll-voice   speaker enrollment (multipart: name, audio)
//	GET  /ws/talk            verification-gated coaching socket
//	GET  /ws/conversation    energy-gated conversation socket
//	GET  /healthz, /readyz   probes
//	GET  /metrics            Prometheus scrape endpoint
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/talkbuddy/internal/enroll"
	"github.com/MrWong99/talkbuddy/internal/health"
	"github.com/MrWong99/talkbuddy/internal/observe"
	"github.com/MrWong99/talkbuddy/internal/pipeline"
	"github.com/MrWong99/talkbuddy/pkg/profile"
	"github.com/MrWong99/talkbuddy/pkg/provider/verify"
)

// Banner is the status returned by GET /.
const Banner = "TalkBuddy Backend Running"

// Sessions opens pipeline sessions for accepted sockets. Open returns an
// error wrapping profile.ErrNotFound when no speaker is enrolled. Done is
// called with the session ID once the session has ended.
type Sessions interface {
	Open(ctx context.Context, v pipeline.Variant) (*pipeline.Session, error)
	Done(id string)
}

// Enroller builds and stores a speaker profile from an uploaded recording.
type Enroller interface {
	Enroll(ctx context.Context, name, filename string, r io.Reader) (enroll.Result, error)
}

// Config holds the server's HTTP settings.
type Config struct {
	// AllowedOrigins lists browser origins allowed by CORS and the
	// websocket origin check. "*" allows all.
	AllowedOrigins []string

	// ReadLimitBytes caps a single inbound websocket message.
	ReadLimitBytes int64

	// MaxUploadBytes caps the enrollment request body.
	MaxUploadBytes int64

	// ShutdownTimeout bounds graceful shutdown in [Server.Serve].
	ShutdownTimeout time.Duration

	// CertFile and KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string
}

// Option configures a [Server].
type Option func(*Server)

// WithHealth mounts h on /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics records HTTP request metrics to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// Server routes HTTP and websocket traffic to the pipeline.
type Server struct {
	cfg            Config
	origins        originPolicy
	sessions       Sessions
	enroller       Enroller
	health         *health.Handler
	metrics        *observe.Metrics
	metricsHandler http.Handler
	handler        http.Handler
}

// New builds a Server.
func New(cfg Config, sessions Sessions, enroller Enroller, opts ...Option) *Server {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		cfg:      cfg,
		origins:  newOriginPolicy(cfg.AllowedOrigins),
		sessions: sessions,
		enroller: enroller,
	}
	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /api/enroll-voice", s.handleEnroll)
	mux.HandleFunc("GET /ws/talk", s.handleSocket(pipeline.VariantTalk))
	mux.HandleFunc("GET /ws/conversation", s.handleSocket(pipeline.VariantConversation))
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}

	var h http.Handler = mux
	if s.metrics != nil {
		h = observe.Middleware(s.metrics,
			observe.WithRoutes("/", "/api/enroll-voice", "/ws/talk", "/ws/conversation",
				"/healthz", "/readyz", "/metrics"),
			observe.WithQuietPaths("/healthz", "/readyz", "/metrics"),
		)(h)
	}
	s.handler = cors(s.origins, h)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
// Open sockets see their request context cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", addr, "tls", s.cfg.CertFile != "")
		var err error
		if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
			err = srv.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		if s.health != nil {
			s.health.Drain()
		}
		// Hijacked websocket connections are not tracked by Shutdown.
		cancelBase()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": Banner})
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())
	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}

	name := r.FormValue("name")
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file required")
		return
	}
	defer file.Close()

	res, err := s.enroller.Enroll(r.Context(), name, header.Filename, file)
	if err != nil {
		if enroll.IsClientError(err) {
			log.Info("enrollment rejected", "name", name, "err", err)
			writeError(w, http.StatusBadRequest, enrollMessage(err))
			return
		}
		log.Error("enrollment failed", "name", name, "err", err)
		writeError(w, http.StatusInternalServerError, "enrollment failed")
		return
	}
	log.Info("enrollment complete", "name", res.Name, "chunks", res.Chunks)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func enrollMessage(err error) string {
	switch {
	case errors.Is(err, enroll.ErrNotWAV):
		return "WAV required"
	case errors.Is(err, enroll.ErrSampleRate):
		return "16kHz audio required"
	case errors.Is(err, verify.ErrNotEnoughSpeech):
		return "not enough clean speech, please record a longer sample"
	default:
		return "invalid WAV file"
	}
}

func (s *Server) handleSocket(v pipeline.Variant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := observe.Logger(r.Context()).With("variant", v.String())

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: s.origins.patterns(),
		})
		if err != nil {
			log.Warn("websocket accept failed", "err", err)
			return
		}
		if s.cfg.ReadLimitBytes > 0 {
			conn.SetReadLimit(s.cfg.ReadLimitBytes)
		}

		ctx := r.Context()
		sess, err := s.sessions.Open(ctx, v)
		switch {
		case errors.Is(err, profile.ErrNotFound) && v == pipeline.VariantTalk:
			log.Info("no speaker profile, dropping connection")
			_ = conn.CloseNow()
			return
		case errors.Is(err, profile.ErrNotFound):
			log.Info("no speaker profile, refusing session")
			_ = conn.Close(websocket.StatusPolicyViolation, "speaker profile missing")
			return
		case err != nil:
			log.Error("open session", "err", err)
			_ = conn.Close(websocket.StatusInternalError, "session unavailable")
			return
		}

		defer s.sessions.Done(sess.ID())

		ctx, span := observe.StartSessionSpan(ctx, sess.ID(), v.String())
		ws := wsConn{conn: conn}
		err = sess.Run(ctx, ws, ws)
		observe.EndSpan(span, err)
		switch {
		case err == nil:
			_ = conn.Close(websocket.StatusNormalClosure, "")
		case ctx.Err() != nil:
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		default:
			_ = conn.Close(websocket.StatusInternalError, closeReason(err))
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
