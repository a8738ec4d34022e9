package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/MrWong99/speakcheck/internal/app"
	"github.com/MrWong99/speakcheck/internal/config"
	"github.com/MrWong99/speakcheck/internal/resilience"
	"github.com/MrWong99/speakcheck/pkg/audio"
	"github.com/MrWong99/speakcheck/pkg/audio/source"
	"github.com/MrWong99/speakcheck/pkg/provider/stt"
	execstt "github.com/MrWong99/speakcheck/pkg/provider/stt/exec"
	"github.com/MrWong99/speakcheck/pkg/provider/stt/whisper"
)

// registerBuiltinProviders wires the built-in engine and audio source
// factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Engines ───────────────────────────────────────────────────────────────

	reg.RegisterEngine("whisper-native", func(entry config.ProviderEntry) (stt.Engine, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = config.OptString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if entry.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(entry.Language))
		}
		if n := config.OptInt(entry.Options, "threads", 0); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterEngine("whisper-server", func(entry config.ProviderEntry) (stt.Engine, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, whisper.WithLanguage(entry.Language))
		}
		if secs := config.OptInt(entry.Options, "timeout_seconds", 0); secs > 0 {
			opts = append(opts, whisper.WithTimeout(time.Duration(secs)*time.Second))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterEngine("exec", func(entry config.ProviderEntry) (stt.Engine, error) {
		var opts []execstt.Option
		if entry.Model != "" {
			opts = append(opts, execstt.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, execstt.WithLanguage(entry.Language))
		}
		if dir := config.OptString(entry.Options, "temp_dir"); dir != "" {
			opts = append(opts, execstt.WithTempDir(dir))
		}
		return execstt.New(entry.Command, opts...)
	})

	// ── Audio sources ─────────────────────────────────────────────────────────

	reg.RegisterSource("arecord", func(entry config.ProviderEntry) (config.SourceOpener, error) {
		argv := append([]string(nil), source.RecordCommand...)
		if dev := config.OptString(entry.Options, "device"); dev != "" {
			argv = append(argv, "-D", dev)
		}
		return commandOpener(argv), nil
	})

	reg.RegisterSource("command", func(entry config.ProviderEntry) (config.SourceOpener, error) {
		argv, err := source.ParseCommand(entry.Command)
		if err != nil {
			return nil, err
		}
		return commandOpener(argv), nil
	})

	reg.RegisterSource("stdin", func(config.ProviderEntry) (config.SourceOpener, error) {
		return func(context.Context) (audio.Source, error) {
			// Stdin outlives a single recording.
			return source.NewStream(io.NopCloser(os.Stdin)), nil
		}, nil
	})

	reg.RegisterSource("wav", func(entry config.ProviderEntry) (config.SourceOpener, error) {
		path := config.OptString(entry.Options, "path")
		var opts []source.WAVOption
		if config.OptBool(entry.Options, "pad_silence", true) {
			opts = append(opts, source.WithPadSilence())
		}
		if config.OptBool(entry.Options, "realtime", false) {
			opts = append(opts, source.WithRealtime())
		}
		if secs := config.OptInt(entry.Options, "max_padding_seconds", 0); secs > 0 {
			opts = append(opts, source.WithMaxPadding(time.Duration(secs)*time.Second))
		}
		return func(context.Context) (audio.Source, error) {
			return source.NewWAVFile(path, opts...)
		}, nil
	})

	for _, kind := range []string{"engine", "source"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

func commandOpener(argv []string) config.SourceOpener {
	return func(context.Context) (audio.Source, error) {
		return source.StartCommand(argv)
	}
}

// buildProviders instantiates the engine and audio source named in cfg.
func buildProviders(cfg *config.Config, reg *config.Registry) (app.Providers, error) {
	open, err := reg.CreateSource(cfg.Audio.Source)
	if err != nil {
		return app.Providers{}, fmt.Errorf("create audio source %q: %w", cfg.Audio.Source.Name, err)
	}
	slog.Info("provider created", "kind", "source", "name", cfg.Audio.Source.Name)

	engine, err := reg.CreateEngine(cfg.Engine)
	if err != nil {
		return app.Providers{}, fmt.Errorf("create engine %q: %w", cfg.Engine.Name, err)
	}
	slog.Info("provider created", "kind", "engine", "name", cfg.Engine.Name, "model", cfg.Engine.Model)
	if len(cfg.Fallbacks) == 0 {
		return app.Providers{Engine: engine, Open: open}, nil
	}

	chain := resilience.NewEngine(engine, cfg.Engine.Name, cfg.Failover.Breaker())
	for i, entry := range cfg.Fallbacks {
		fb, err := reg.CreateEngine(entry)
		if err != nil {
			_ = chain.Close()
			return app.Providers{}, fmt.Errorf("create fallback engine %q: %w", entry.Name, err)
		}
		chain.AddFallback(fmt.Sprintf("%s#%d", entry.Name, i+1), fb)
	}
	slog.Info("engine failover enabled", "order", chain.Names())
	return app.Providers{Engine: chain, Open: open}, nil
}
