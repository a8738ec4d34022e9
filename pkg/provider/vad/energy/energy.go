// Package energy implements [vad.Detector] with an RMS energy threshold.
//
// A block is silent when its RMS energy, with samples normalised to [-1, 1],
// is below the configured threshold. The recording stops once silence has
// been sustained for the silence duration and the recording is at least the
// minimum duration long.
package energy

import (
	"math"
	"time"

	"github.com/MrWong99/speakcheck/pkg/provider/vad"
)

// Compile-time interface assertion.
var _ vad.Detector = (*Detector)(nil)

// Detector is an RMS energy detector. It holds only configuration and is safe
// for concurrent use.
type Detector struct {
	cfg vad.Config
}

// New returns a detector with the given thresholds. Zero fields take their
// defaults.
func New(cfg vad.Config) (*Detector, error) {
	if cfg.SilenceThreshold == 0 {
		cfg.SilenceThreshold = vad.DefaultSilenceThreshold
	}
	if cfg.SilenceDuration == 0 {
		cfg.SilenceDuration = vad.DefaultSilenceDuration
	}
	if cfg.MinRecordingDuration == 0 {
		cfg.MinRecordingDuration = vad.DefaultMinRecordingDuration
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg}, nil
}

// Config returns the effective thresholds.
func (d *Detector) Config() vad.Config { return d.cfg }

// Start implements [vad.Detector].
func (d *Detector) Start(now time.Time) vad.State {
	return vad.State{RecordingStart: now}
}

// Process implements [vad.Detector].
func (d *Detector) Process(st vad.State, block []int16, now time.Time) (vad.State, vad.Decision) {
	silent := RMS(block) < d.cfg.SilenceThreshold
	if !silent {
		st.HasDetectedSound = true
	}

	switch {
	case silent && !st.InSilence:
		st.InSilence = true
		st.SilenceStart = now
	case !silent && st.InSilence:
		st.InSilence = false
		st.SilenceStart = time.Time{}
	case silent && st.InSilence:
		if now.Sub(st.SilenceStart) >= d.cfg.SilenceDuration &&
			now.Sub(st.RecordingStart) >= d.cfg.MinRecordingDuration {
			if st.HasDetectedSound {
				return st, vad.StopAndProcess
			}
			return st, vad.StopNoAudio
		}
	}
	return st, vad.Continue
}

// fullScale is the magnitude of the most negative int16 sample.
const fullScale = 32768.0

// RMS returns the root-mean-square energy of block with every sample
// normalised to [-1, 1] by the int16 full-scale magnitude. An empty block has
// zero energy.
func RMS(block []int16) float64 {
	if len(block) == 0 {
		return 0
	}
	var sum float64
	for _, s := range block {
		v := float64(s) / fullScale
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(block)))
}
