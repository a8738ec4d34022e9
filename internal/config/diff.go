package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// Applied to the next recording.
	VADChanged           bool
	TranscriptionChanged bool
	PhrasesChanged       bool

	// Require a restart.
	EngineChanged  bool
	AudioChanged   bool
	ReportsChanged bool
	ServerChanged  bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.ServerChanged = old.Server.MetricsAddr != new.Server.MetricsAddr

	d.VADChanged = old.VAD != new.VAD
	d.TranscriptionChanged = old.Transcription.Chunking() != new.Transcription.Chunking() ||
		old.Transcription.Workers != new.Transcription.Workers
	d.PhrasesChanged = old.Phrases.Cooldown != new.Phrases.Cooldown ||
		!slices.Equal(old.Phrases.List, new.Phrases.List)

	d.EngineChanged = !reflect.DeepEqual(old.Engine, new.Engine) ||
		!reflect.DeepEqual(old.Fallbacks, new.Fallbacks) ||
		old.Failover != new.Failover
	d.AudioChanged = !reflect.DeepEqual(old.Audio, new.Audio)
	d.ReportsChanged = old.Reports != new.Reports

	return d
}

// RestartRequired lists the changed sections that only take effect after a
// restart.
func (d ConfigDiff) RestartRequired() []string {
	var out []string
	if d.EngineChanged {
		out = append(out, "engine")
	}
	if d.AudioChanged {
		out = append(out, "audio")
	}
	if d.ReportsChanged {
		out = append(out, "reports")
	}
	if d.ServerChanged {
		out = append(out, "server.metrics_addr")
	}
	return out
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return d == ConfigDiff{}
}
