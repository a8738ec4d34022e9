// Package config provides the configuration schema, loader, provider registry
// and file watcher for speakcheck.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/speakcheck/internal/resilience"
	"github.com/MrWong99/speakcheck/internal/transcribe"
	"github.com/MrWong99/speakcheck/pkg/audio"
	"github.com/MrWong99/speakcheck/pkg/provider/vad"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level returns the slog level for l. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Audio         AudioConfig         `yaml:"audio"`
	VAD           VADConfig           `yaml:"vad"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Engine        ProviderEntry       `yaml:"engine"`
	Reports       ReportsConfig       `yaml:"reports"`
	Phrases       PhrasesConfig       `yaml:"phrases"`

	// Fallbacks are tried in order when Engine fails or its circuit
	// breaker is open.
	Fallbacks []ProviderEntry `yaml:"fallback_engines"`
	Failover  FailoverConfig  `yaml:"failover"`
}

// ServerConfig holds logging and the optional metrics/health listener.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address serving /metrics, /healthz and /readyz
	// (e.g., ":9090"). Empty disables the listener.
	MetricsAddr string `yaml:"metrics_addr"`
}

// AudioConfig selects the microphone source and its block size.
type AudioConfig struct {
	// Source selects the registered audio source (e.g., "arecord", "stdin", "wav").
	Source ProviderEntry `yaml:"source"`

	// MinBufferSamples is the device's minimum buffer size in samples. The
	// capture block is four times this value.
	MinBufferSamples int `yaml:"min_buffer_samples"`
}

// BlockSize returns the capture block size in samples.
func (a AudioConfig) BlockSize() int {
	return audio.BlockSize(a.MinBufferSamples)
}

// VADConfig holds the voice activity thresholds.
type VADConfig struct {
	// SilenceThreshold is the RMS level, on a 0–1 scale, below which a block
	// counts as silence.
	SilenceThreshold float64 `yaml:"silence_threshold"`

	// SilenceDurationMS is how long silence must last after speech before the
	// recording stops.
	SilenceDurationMS int `yaml:"silence_duration_ms"`

	// MinRecordingDurationMS is the earliest point at which a silence-only
	// recording may stop.
	MinRecordingDurationMS int `yaml:"min_recording_duration_ms"`
}

// Detector returns the thresholds in the form the detector consumes.
func (v VADConfig) Detector() vad.Config {
	return vad.Config{
		SilenceThreshold:     v.SilenceThreshold,
		SilenceDuration:      time.Duration(v.SilenceDurationMS) * time.Millisecond,
		MinRecordingDuration: time.Duration(v.MinRecordingDurationMS) * time.Millisecond,
	}
}

// TranscriptionConfig controls chunking and the worker pool.
type TranscriptionConfig struct {
	// SingleCallThreshold is the largest recording, in samples, sent to the
	// engine in one call.
	SingleCallThreshold int `yaml:"single_call_threshold"`

	// ChunkSize and ChunkOverlap are in samples. Zero selects the default.
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`

	// Workers bounds concurrent transcriptions. 0 means max(4, NumCPU).
	Workers int `yaml:"workers"`

	// BoostPriority raises the calling thread's scheduling priority for the
	// duration of each engine call. Defaults to true.
	BoostPriority *bool `yaml:"boost_priority"`

	// Nice is the nice value used while boosted, in [-20, 0]. Defaults to -10.
	Nice *int `yaml:"nice"`
}

// Chunking returns the settings in the form the transcriber consumes.
func (t TranscriptionConfig) Chunking() transcribe.Config {
	cfg := transcribe.Config{
		SingleCallThreshold: t.SingleCallThreshold,
		ChunkSize:           t.ChunkSize,
		Overlap:             t.ChunkOverlap,
		BoostPriority:       true,
		Nice:                transcribe.DefaultConfig().Nice,
	}
	if t.BoostPriority != nil {
		cfg.BoostPriority = *t.BoostPriority
	}
	if t.Nice != nil {
		cfg.Nice = *t.Nice
	}
	return cfg
}

// ProviderEntry is the common configuration block shared by engines and
// audio sources. The Name field is used to look up the constructor in the
// [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "whisper-native", "exec").
	Name string `yaml:"name"`

	// BaseURL is the server address for network engines.
	BaseURL string `yaml:"base_url"`

	// Model is a model name or a model file path, depending on the provider.
	Model string `yaml:"model"`

	// Language is the spoken language code (e.g., "pt", "en").
	Language string `yaml:"language"`

	// Command is the command line for process-backed providers.
	Command string `yaml:"command"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// FailoverConfig tunes the per-engine circuit breakers used when
// fallback engines are configured.
type FailoverConfig struct {
	// MaxFailures is the number of consecutive failures that takes an
	// engine out of rotation. Zero selects the default.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long an engine stays out of rotation before it is
	// probed again (e.g., "30s"). Zero selects the default.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// Breaker returns the circuit breaker template for each engine.
func (f FailoverConfig) Breaker() resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		MaxFailures:  f.MaxFailures,
		ResetTimeout: f.ResetTimeout,
	}
}

// ReportsConfig controls where attempts and recordings are kept.
type ReportsConfig struct {
	// Path is the SQLite database file. Empty keeps no history.
	Path string `yaml:"path"`

	// RecordingsDir receives one WAV per attempt. Empty records in memory only.
	RecordingsDir string `yaml:"recordings_dir"`
}

// PhrasesConfig lists the practice phrases.
type PhrasesConfig struct {
	List []string `yaml:"list"`

	// Cooldown is how many recent phrases are not repeated.
	Cooldown int `yaml:"cooldown"`
}

// Defaults.
const (
	DefaultLogLevel          = LogInfo
	DefaultSource            = "arecord"
	DefaultSilenceThreshold  = vad.DefaultSilenceThreshold
	DefaultSilenceDurationMS = 2000
	DefaultMinRecordingMS    = 800
	DefaultEngine            = "whisper-native"
	DefaultPhraseCooldown    = 3
	DefaultLanguage          = "en"
)

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = DefaultLogLevel
	}
	if c.Audio.Source.Name == "" {
		c.Audio.Source.Name = DefaultSource
	}
	if c.Audio.MinBufferSamples == 0 {
		c.Audio.MinBufferSamples = audio.DefaultMinBufferSamples
	}
	if c.VAD.SilenceThreshold == 0 {
		c.VAD.SilenceThreshold = DefaultSilenceThreshold
	}
	if c.VAD.SilenceDurationMS == 0 {
		c.VAD.SilenceDurationMS = DefaultSilenceDurationMS
	}
	if c.VAD.MinRecordingDurationMS == 0 {
		c.VAD.MinRecordingDurationMS = DefaultMinRecordingMS
	}

	def := transcribe.DefaultConfig()
	if c.Transcription.SingleCallThreshold == 0 {
		c.Transcription.SingleCallThreshold = def.SingleCallThreshold
	}
	if c.Transcription.ChunkSize == 0 {
		c.Transcription.ChunkSize = def.ChunkSize
	}
	if c.Transcription.ChunkOverlap == 0 {
		c.Transcription.ChunkOverlap = def.Overlap
	}
	if c.Transcription.BoostPriority == nil {
		b := def.BoostPriority
		c.Transcription.BoostPriority = &b
	}
	if c.Transcription.Nice == nil {
		n := def.Nice
		c.Transcription.Nice = &n
	}

	if c.Engine.Name == "" {
		c.Engine.Name = DefaultEngine
	}
	if c.Engine.Language == "" {
		c.Engine.Language = DefaultLanguage
	}
	for i := range c.Fallbacks {
		if c.Fallbacks[i].Language == "" {
			c.Fallbacks[i].Language = c.Engine.Language
		}
	}
	if c.Phrases.Cooldown == 0 {
		c.Phrases.Cooldown = DefaultPhraseCooldown
	}
}
