// Package vad defines the Detector interface for end-of-utterance detection.
//
// A detector consumes successive PCM blocks from a single recording and
// classifies each one: keep recording, stop because the speaker finished, or
// stop because nothing was ever said. Detection is pure: all per-recording
// state lives in an explicit [State] value that the caller threads through
// [Detector.Process], so a detector value can be shared between recordings
// and tested without hidden mutation.
//
// Implementations:
//   - vad/energy: RMS energy threshold with sustained-silence hysteresis.
//   - vad/mock:   scripted decisions for tests.
package vad

import (
	"errors"
	"fmt"
	"time"
)

// Decision is the classification returned for one block.
type Decision int

const (
	// Continue means the recording should keep going.
	Continue Decision = iota

	// StopAndProcess means speech was heard and the speaker has since been
	// silent long enough; the recording should end and be transcribed.
	StopAndProcess

	// StopNoAudio means the recording should end but no block ever crossed
	// the speech threshold, so there is nothing to transcribe.
	StopNoAudio
)

// String returns a human-readable representation of the decision.
func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case StopAndProcess:
		return "stop_and_process"
	case StopNoAudio:
		return "stop_no_audio"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Terminal reports whether d ends the recording.
func (d Decision) Terminal() bool {
	return d == StopAndProcess || d == StopNoAudio
}

// Defaults for [Config].
const (
	DefaultSilenceThreshold     = 0.02
	DefaultSilenceDuration      = 2000 * time.Millisecond
	DefaultMinRecordingDuration = 800 * time.Millisecond
)

// Config holds the detector thresholds.
type Config struct {
	// SilenceThreshold is the RMS energy (on a 0–1 scale) below which a block
	// counts as silent.
	SilenceThreshold float64

	// SilenceDuration is how long silence must be sustained before the
	// recording is stopped.
	SilenceDuration time.Duration

	// MinRecordingDuration is the minimum time since the start of the
	// recording before silence is allowed to stop it.
	MinRecordingDuration time.Duration
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		SilenceThreshold:     DefaultSilenceThreshold,
		SilenceDuration:      DefaultSilenceDuration,
		MinRecordingDuration: DefaultMinRecordingDuration,
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.SilenceThreshold <= 0 || c.SilenceThreshold >= 1 {
		errs = append(errs, fmt.Errorf("vad: silence threshold %v must be in (0, 1)", c.SilenceThreshold))
	}
	if c.SilenceDuration <= 0 {
		errs = append(errs, fmt.Errorf("vad: silence duration %v must be positive", c.SilenceDuration))
	}
	if c.MinRecordingDuration < 0 {
		errs = append(errs, fmt.Errorf("vad: min recording duration %v must not be negative", c.MinRecordingDuration))
	}
	return errors.Join(errs...)
}

// State is the per-recording detector state. The zero value is not a valid
// starting state; obtain one from [Detector.Start].
type State struct {
	// InSilence is true while the most recent blocks have been silent.
	InSilence bool

	// SilenceStart is when the current run of silence began. Meaningful only
	// while InSilence is true.
	SilenceStart time.Time

	// RecordingStart is when the recording began.
	RecordingStart time.Time

	// HasDetectedSound is true once any block has crossed the threshold.
	HasDetectedSound bool
}

// Detector classifies PCM blocks.
//
// Implementations must be safe for concurrent use; independent recordings
// each hold their own State.
type Detector interface {
	// Start returns the initial state for a recording that begins at now.
	Start(now time.Time) State

	// Process classifies block, observed at now, and returns the updated
	// state. Once a terminal decision has been returned the caller must not
	// call Process again with that state.
	Process(st State, block []int16, now time.Time) (State, Decision)
}
