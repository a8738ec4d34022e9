// Package app wires the speakcheck subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Practice runs one read-aloud attempt, Run serves the metrics
// and health listener alongside the caller's loop, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithReportStore,
// WithPhrases, etc.). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/speakcheck/internal/capture"
	"github.com/MrWong99/speakcheck/internal/config"
	"github.com/MrWong99/speakcheck/internal/health"
	"github.com/MrWong99/speakcheck/internal/observe"
	"github.com/MrWong99/speakcheck/internal/phrase"
	"github.com/MrWong99/speakcheck/internal/report"
	"github.com/MrWong99/speakcheck/internal/resilience"
	"github.com/MrWong99/speakcheck/internal/transcribe"
	"github.com/MrWong99/speakcheck/pkg/provider/stt"
	"github.com/MrWong99/speakcheck/pkg/provider/vad"
	"github.com/MrWong99/speakcheck/pkg/provider/vad/energy"
)

// Providers holds the engine and audio source built by main.go via the
// config registry.
type Providers struct {
	Engine stt.Engine
	Open   capture.Opener
}

// ReportStore persists attempts. *report.Store implements it.
type ReportStore interface {
	Save(ctx context.Context, a report.Attempt) (report.Attempt, error)
	Recent(ctx context.Context, limit int) ([]report.Attempt, error)
	Ping(ctx context.Context) error
	Close() error
}

var _ ReportStore = (*report.Store)(nil)

// shutdownTimeout bounds the HTTP server drain and the worker pool release.
const shutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	providers Providers
	metrics   *observe.Metrics
	clock     capture.Clock
	logLevel  *slog.LevelVar

	recorder *capture.Recorder
	chunked  *transcribe.Chunked
	pool     *transcribe.Pool
	reports  ReportStore

	mu      sync.RWMutex
	cfg     *config.Config
	phrases phrase.Selector

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithReportStore injects a report store instead of opening one from config.
func WithReportStore(s ReportStore) Option {
	return func(a *App) { a.reports = s }
}

// WithPhrases injects a phrase selector instead of building one from
// config.Phrases.
func WithPhrases(s phrase.Selector) Option {
	return func(a *App) { a.phrases = s }
}

// WithMetrics sets the metric instruments. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithClock sets the capture clock. Defaults to the wall clock.
func WithClock(c capture.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithLogLevel lets config reloads adjust the given level.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// New creates an App by wiring all subsystems together. The engine is owned
// by the App from here on and closed by Shutdown.
func New(ctx context.Context, cfg *config.Config, providers Providers, opts ...Option) (*App, error) {
	if providers.Engine == nil {
		return nil, errors.New("app: recognition engine is required")
	}
	if providers.Open == nil {
		return nil, errors.New("app: audio source is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		clock:     capture.WallClock{},
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.closers = append(a.closers, providers.Engine.Close)

	// ── 1. Capture ───────────────────────────────────────────────────────
	det, err := newDetector(cfg.VAD)
	if err != nil {
		return nil, fmt.Errorf("app: init vad: %w", err)
	}
	a.recorder = capture.New(providers.Open,
		capture.WithDetector(det),
		capture.WithBlockSize(cfg.Audio.BlockSize()),
		capture.WithClock(a.clock),
		capture.WithMetrics(a.metrics),
	)

	// ── 2. Transcription ─────────────────────────────────────────────────
	a.chunked, err = transcribe.NewChunked(providers.Engine,
		transcribe.WithConfig(cfg.Transcription.Chunking()),
		transcribe.WithEngineName(cfg.Engine.Name),
		transcribe.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init transcriber: %w", err)
	}
	workers := cfg.Transcription.Workers
	if workers == 0 {
		workers = transcribe.DefaultPoolSize()
	}
	a.pool, err = transcribe.NewPool(a.chunked, workers)
	if err != nil {
		return nil, fmt.Errorf("app: init worker pool: %w", err)
	}
	// The pool drains before the engine closes.
	a.closers = append([]func() error{func() error { return a.pool.Close(shutdownTimeout) }}, a.closers...)

	// ── 3. Reports ───────────────────────────────────────────────────────
	if a.reports == nil {
		store, err := report.Open(ctx, cfg.Reports.Path)
		if err != nil {
			return nil, fmt.Errorf("app: init reports: %w", err)
		}
		a.reports = store
	}
	a.closers = append(a.closers, a.reports.Close)

	// ── 4. Phrases ───────────────────────────────────────────────────────
	if a.phrases == nil && len(cfg.Phrases.List) > 0 {
		a.phrases, err = phrase.NewList(cfg.Phrases.List, phrase.WithCooldown(cfg.Phrases.Cooldown))
		if err != nil {
			return nil, fmt.Errorf("app: init phrases: %w", err)
		}
	}

	slog.Info("app initialised",
		"engine", cfg.Engine.Name,
		"source", cfg.Audio.Source.Name,
		"block_size", cfg.Audio.BlockSize(),
		"workers", a.pool.Cap(),
		"reports", cfg.Reports.Path,
	)
	return a, nil
}

func newDetector(c config.VADConfig) (vad.Detector, error) {
	return energy.New(c.Detector())
}

// Config returns the active configuration.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Recent returns the most recent stored attempts, newest first.
func (a *App) Recent(ctx context.Context, limit int) ([]report.Attempt, error) {
	return a.reports.Recent(ctx, limit)
}

// ApplyConfig switches to cfg for everything that can change without a
// restart: log level, voice activity thresholds, chunking and phrases. The
// in-flight recording keeps its detector; the next one uses the new values.
// The CLI calls it from the [config.Watcher] reload hook.
func (a *App) ApplyConfig(old, cfg *config.Config) {
	d := config.Diff(old, cfg)
	if d.Empty() {
		return
	}

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VADChanged {
		det, err := newDetector(cfg.VAD)
		if err != nil {
			slog.Warn("config reload: keeping previous vad thresholds", "err", err)
		} else {
			a.recorder.SetDetector(det)
			slog.Info("config reload: vad thresholds updated", "threshold", cfg.VAD.SilenceThreshold)
		}
	}
	if d.TranscriptionChanged {
		if err := a.chunked.Reconfigure(cfg.Transcription.Chunking()); err != nil {
			slog.Warn("config reload: keeping previous transcription settings", "err", err)
		}
		if cfg.Transcription.Workers != old.Transcription.Workers {
			slog.Warn("config reload: transcription.workers takes effect after a restart")
		}
	}

	a.mu.Lock()
	if d.PhrasesChanged && len(cfg.Phrases.List) > 0 {
		if l, err := phrase.NewList(cfg.Phrases.List, phrase.WithCooldown(cfg.Phrases.Cooldown)); err == nil {
			a.phrases = l
		}
	}
	a.cfg = cfg
	a.mu.Unlock()

	if sections := d.RestartRequired(); len(sections) > 0 {
		slog.Warn("config reload: some changes need a restart", "sections", sections)
	}
}

// Handler returns the HTTP handler serving /metrics, /healthz and /readyz.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(a.healthChecks()...).Register(mux)
	return observe.Middleware(a.metrics)(mux)
}

func (a *App) healthChecks() []health.Check {
	checks := []health.Check{
		{Name: "engine", Probe: a.checkEngine},
		{Name: "reports", Probe: a.reports.Ping},
	}
	chain, ok := a.providers.Engine.(*resilience.Engine)
	if !ok {
		return checks
	}
	// With failover the pipeline works while any engine's breaker admits
	// calls; each engine is reported on its own.
	for _, name := range chain.Names() {
		checks = append(checks, health.Check{
			Name:     "engine:" + name,
			Optional: true,
			Probe: func(context.Context) error {
				if st := chain.States()[name]; st == resilience.StateOpen {
					return fmt.Errorf("circuit %s", st)
				}
				return nil
			},
		})
	}
	return checks
}

func (a *App) checkEngine(context.Context) error {
	if a.pool.Closed() {
		return stt.ErrClosed
	}
	return nil
}

// Run runs fn and, when server.metrics_addr is set, serves [App.Handler]
// until fn returns or ctx is cancelled. It returns fn's error, or the
// listener's if that fails first.
func (a *App) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if addr := a.Config().Server.MetricsAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("metrics listener started", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: metrics listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	g.Go(func() error {
		defer cancel()
		return fn(gctx)
	})

	return g.Wait()
}

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
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
