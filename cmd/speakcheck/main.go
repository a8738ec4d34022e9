// Command speakcheck is a read-aloud practice tool: it shows a phrase,
// records the user reading it, transcribes the recording and reports words
// per minute and word error rate.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/MrWong99/speakcheck/internal/app"
	"github.com/MrWong99/speakcheck/internal/capture"
	"github.com/MrWong99/speakcheck/internal/config"
	"github.com/MrWong99/speakcheck/internal/observe"
	"github.com/MrWong99/speakcheck/internal/report"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const defaultConfigPath = "speakcheck.yaml"

type flags struct {
	config  string
	phrase  string
	input   string
	out     string
	model   string
	manual  bool
	count   int
	history int
}

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	var f flags
	flag.StringVar(&f.config, "config", defaultConfigPath, "path to the YAML configuration file")
	flag.StringVar(&f.phrase, "phrase", "", "phrase to read (default: next phrase from the config)")
	flag.StringVar(&f.input, "input", "", `read audio from a WAV file instead of the configured source ("-" for raw PCM on stdin)`)
	flag.StringVar(&f.out, "out", "", "write the recording to this WAV file")
	flag.StringVar(&f.model, "model", "", "override engine.model")
	flag.BoolVar(&f.manual, "manual", false, "disable auto-stop; press Ctrl+C to end the recording")
	flag.IntVar(&f.count, "count", 1, "number of attempts to run (0 runs until interrupted)")
	flag.IntVar(&f.history, "history", 0, "print the N most recent attempts and exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, loaded, err := loadConfig(f.config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "speakcheck: %v\n", err)
		return 1
	}
	f.apply(cfg)
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "speakcheck: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(level))

	slog.Info("speakcheck starting",
		"version", version,
		"config", f.config,
		"config_loaded", loaded,
		"log_level", cfg.Server.LogLevel,
	)

	if f.history > 0 {
		if err := showHistory(cfg.Reports.Path, f.history); err != nil {
			slog.Error("failed to read history", "err", err)
			return 1
		}
		return 0
	}

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg, providers, app.WithLogLevel(level))
	if err != nil {
		_ = providers.Engine.Close()
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, scancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer scancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	// ── Config reload ─────────────────────────────────────────────────────────
	if loaded {
		w, err := config.NewWatcher(f.config, func(ev config.Reload) {
			if ev.Diff.Empty() {
				return
			}
			f.apply(ev.New)
			application.ApplyConfig(application.Config(), ev.New)
		}, config.WithRejectHandler(func(err error) {
			fmt.Fprintf(os.Stderr, "config not reloaded: %v\n", err)
		}))
		if err != nil {
			slog.Warn("config reload disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	// ── Signals ───────────────────────────────────────────────────────────────
	// The first interrupt ends the recording in progress; an interrupt with
	// nothing recording, or SIGTERM, stops the program.
	var sessions sessionSlot
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		for sig := range sigs {
			if sig == syscall.SIGINT && sessions.stop() {
				continue
			}
			slog.Info("shutdown signal received, stopping…", "signal", sig)
			cancel()
		}
	}()

	printStartupSummary(os.Stdout, cfg)

	err = application.Run(ctx, func(ctx context.Context) error {
		return practiceLoop(ctx, os.Stdout, application, f, &sessions)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func showHistory(path string, n int) error {
	ctx := context.Background()
	store, err := report.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()
	attempts, err := store.Recent(ctx, n)
	if err != nil {
		return err
	}
	printHistory(os.Stdout, attempts)
	return nil
}

// loadConfig reads path. A missing file is only an error when -config was
// given explicitly; otherwise the defaults are used.
func loadConfig(path string) (*config.Config, bool, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if errors.Is(err, os.ErrNotExist) && !flagSet("config") {
		return config.Default(), false, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("config file %q not found", path)
	}
	return nil, false, err
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// apply layers the command-line overrides onto cfg.
func (f flags) apply(cfg *config.Config) {
	if f.model != "" {
		cfg.Engine.Model = f.model
	}
	switch f.input {
	case "":
	case "-":
		cfg.Audio.Source = config.ProviderEntry{Name: "stdin"}
	default:
		cfg.Audio.Source = config.ProviderEntry{
			Name:    "wav",
			Options: map[string]any{"path": f.input, "pad_silence": true},
		}
	}
}

// practiceLoop runs f.count attempts, or until ctx is cancelled when count
// is zero.
func practiceLoop(ctx context.Context, out io.Writer, a *app.App, f flags, sessions *sessionSlot) error {
	for i := 0; f.count <= 0 || i < f.count; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		outPath := f.out
		if outPath != "" && f.count != 1 {
			outPath = numbered(outPath, i+1)
		}
		att, err := a.Practice(ctx, app.PracticeOptions{
			Phrase:     f.phrase,
			Manual:     f.manual,
			OutputPath: outPath,
			OnStart: func(phrase string, s *capture.Session) {
				sessions.set(s)
				printPrompt(out, phrase, f.manual)
			},
		})
		sessions.set(nil)
		if err != nil {
			return err
		}
		printAttempt(out, att)
	}
	return nil
}

// sessionSlot holds the recording in progress so the signal handler can
// stop it.
type sessionSlot struct {
	mu sync.Mutex
	s  *capture.Session
}

func (sl *sessionSlot) set(s *capture.Session) {
	sl.mu.Lock()
	sl.s = s
	sl.mu.Unlock()
}

// stop ends the current recording. It reports false when none is running.
func (sl *sessionSlot) stop() bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.s == nil {
		return false
	}
	select {
	case <-sl.s.Done():
		return false
	default:
	}
	sl.s.Stop()
	sl.s = nil
	return true
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
