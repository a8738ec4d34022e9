package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"engine": {"whisper-native", "whisper-server", "exec"},
	"source": {"arecord", "stdin", "wav", "command"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
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

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
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

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("engine", cfg.Engine.Name)
	validateProviderName("source", cfg.Audio.Source.Name)

	if cfg.Audio.MinBufferSamples < 0 {
		errs = append(errs, fmt.Errorf("audio.min_buffer_samples %d must not be negative", cfg.Audio.MinBufferSamples))
	}

	if t := cfg.VAD.SilenceThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("vad.silence_threshold %.3f is out of range [0, 1]", t))
	}
	if cfg.VAD.SilenceDurationMS < 0 {
		errs = append(errs, fmt.Errorf("vad.silence_duration_ms %d must not be negative", cfg.VAD.SilenceDurationMS))
	}
	if cfg.VAD.MinRecordingDurationMS < 0 {
		errs = append(errs, fmt.Errorf("vad.min_recording_duration_ms %d must not be negative", cfg.VAD.MinRecordingDurationMS))
	}

	if cfg.Transcription.Workers < 0 {
		errs = append(errs, fmt.Errorf("transcription.workers %d must not be negative", cfg.Transcription.Workers))
	}
	if err := cfg.Transcription.Chunking().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("transcription: %w", err))
	}

	errs = append(errs, validateEngine("engine", cfg.Engine)...)
	for i, fb := range cfg.Fallbacks {
		field := fmt.Sprintf("fallback_engines[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", field))
			continue
		}
		validateProviderName("engine", fb.Name)
		errs = append(errs, validateEngine(field, fb)...)
	}
	if cfg.Failover.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("failover.max_failures %d must not be negative", cfg.Failover.MaxFailures))
	}
	if cfg.Failover.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("failover.reset_timeout %s must not be negative", cfg.Failover.ResetTimeout))
	}

	switch cfg.Audio.Source.Name {
	case "wav":
		if cfg.Audio.Source.Options["path"] == nil {
			errs = append(errs, errors.New("audio.source.options.path is required for the wav source"))
		}
	case "command":
		if cfg.Audio.Source.Command == "" {
			errs = append(errs, errors.New("audio.source.command is required for the command source"))
		}
	}

	if cfg.Phrases.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("phrases.cooldown %d must not be negative", cfg.Phrases.Cooldown))
	}
	if cfg.Phrases.Cooldown >= len(cfg.Phrases.List) && len(cfg.Phrases.List) > 1 {
		slog.Warn("phrases.cooldown is not smaller than the phrase list; it will be capped",
			"cooldown", cfg.Phrases.Cooldown,
			"phrases", len(cfg.Phrases.List),
		)
	}

	return errors.Join(errs...)
}

// validateEngine checks the fields the built-in engine named by e requires.
func validateEngine(field string, e ProviderEntry) []error {
	var errs []error
	switch e.Name {
	case "whisper-native":
		if e.Model == "" && OptString(e.Options, "model_path") == "" {
			errs = append(errs, fmt.Errorf("%s.model (model file path) is required for whisper-native", field))
		}
	case "whisper-server":
		if e.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.base_url is required for whisper-server", field))
		}
	case "exec":
		if e.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required for exec", field))
		}
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a custom registration",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// OptString returns opts[key] when it is a string, or "".
func OptString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// OptBool returns opts[key] when it is a bool, or def.
func OptBool(opts map[string]any, key string, def bool) bool {
	if b, ok := opts[key].(bool); ok {
		return b
	}
	return def
}

// OptInt returns opts[key] when it is an integer, or def.
func OptInt(opts map[string]any, key string, def int) int {
	if n, ok := opts[key].(int); ok {
		return n
	}
	return def
}
