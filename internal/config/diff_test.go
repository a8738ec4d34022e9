package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/speakcheck/internal/config"
)

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	return mustLoad(t, sampleYAML)
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(t), baseConfig(t))
	if !d.Empty() {
		t.Errorf("Diff of identical configs = %+v, want empty", d)
	}
	if got := d.RestartRequired(); got != nil {
		t.Errorf("RestartRequired() = %v, want nil", got)
	}
}

func TestDiff_Sections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(c *config.Config)
		check       func(d config.ConfigDiff) bool
		wantRestart []string
	}{
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogWarn },
			check:  func(d config.ConfigDiff) bool { return d.LogLevelChanged && d.NewLogLevel == config.LogWarn },
		},
		{
			name:   "vad threshold",
			mutate: func(c *config.Config) { c.VAD.SilenceThreshold = 0.1 },
			check:  func(d config.ConfigDiff) bool { return d.VADChanged },
		},
		{
			name: "boost toggled",
			mutate: func(c *config.Config) {
				b := true
				c.Transcription.BoostPriority = &b
			},
			check: func(d config.ConfigDiff) bool { return d.TranscriptionChanged },
		},
		{
			name:   "workers",
			mutate: func(c *config.Config) { c.Transcription.Workers = 8 },
			check:  func(d config.ConfigDiff) bool { return d.TranscriptionChanged },
		},
		{
			name:   "phrase added",
			mutate: func(c *config.Config) { c.Phrases.List = append(c.Phrases.List, "nova frase") },
			check:  func(d config.ConfigDiff) bool { return d.PhrasesChanged },
		},
		{
			name:        "engine model",
			mutate:      func(c *config.Config) { c.Engine.Model = "large-v3" },
			check:       func(d config.ConfigDiff) bool { return d.EngineChanged },
			wantRestart: []string{"engine"},
		},
		{
			name:        "engine option",
			mutate:      func(c *config.Config) { c.Engine.Options = map[string]any{"threads": 8} },
			check:       func(d config.ConfigDiff) bool { return d.EngineChanged },
			wantRestart: []string{"engine"},
		},
		{
			name:        "fallback added",
			mutate:      func(c *config.Config) { c.Fallbacks = []config.ProviderEntry{{Name: "exec", Command: "x"}} },
			check:       func(d config.ConfigDiff) bool { return d.EngineChanged },
			wantRestart: []string{"engine"},
		},
		{
			name:        "failover timeout",
			mutate:      func(c *config.Config) { c.Failover.ResetTimeout = time.Minute },
			check:       func(d config.ConfigDiff) bool { return d.EngineChanged },
			wantRestart: []string{"engine"},
		},
		{
			name:        "audio source",
			mutate:      func(c *config.Config) { c.Audio.Source.Name = "stdin" },
			check:       func(d config.ConfigDiff) bool { return d.AudioChanged },
			wantRestart: []string{"audio"},
		},
		{
			name: "reports and metrics",
			mutate: func(c *config.Config) {
				c.Reports.Path = "other.db"
				c.Server.MetricsAddr = ":9191"
			},
			check:       func(d config.ConfigDiff) bool { return d.ReportsChanged && d.ServerChanged },
			wantRestart: []string{"reports", "server.metrics_addr"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, cur := baseConfig(t), baseConfig(t)
			tt.mutate(cur)
			d := config.Diff(old, cur)
			if !tt.check(d) {
				t.Errorf("Diff = %+v, expected change not reported", d)
			}
			if got := d.RestartRequired(); !slices.Equal(got, tt.wantRestart) {
				t.Errorf("RestartRequired() = %v, want %v", got, tt.wantRestart)
			}
		})
	}
}
