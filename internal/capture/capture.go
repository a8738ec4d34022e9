// Package capture runs the live recording loop: it reads PCM blocks from an
// [audio.Source] on a dedicated OS thread, accumulates them, optionally
// consults a [vad.Detector] to end the recording automatically, and encodes
// the result to a WAV file.
//
// A [Recorder] runs at most one [Session] at a time. Stopping is cooperative:
// [Session.Stop] posts to a one-slot mailbox that the loop checks before each
// read, so a stop takes effect within one block duration. Failures inside the
// loop never escape as panics or returns to the caller; they are delivered
// through [Handlers.OnError] and [Session.Result].
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/speakcheck/pkg/audio"
)

var (
	// ErrDeviceRead is reported when the source returns a non-positive
	// sample count. It is fatal to the session and never retried.
	ErrDeviceRead = errors.New("capture: device read failed")

	// ErrBusy is returned by [Recorder.Start] while another session is in
	// flight.
	ErrBusy = errors.New("capture: a recording is already in progress")

	// ErrPanic wraps a panic raised by the source, the detector or the WAV
	// encoder. The session ends with [ReasonError].
	ErrPanic = errors.New("capture: panic in recording loop")
)

// Reason records why a session ended.
type Reason int

const (
	// ReasonManualStop means Stop was called or the context was cancelled.
	ReasonManualStop Reason = iota

	// ReasonAutoStopSpeech means the detector heard speech followed by
	// sustained silence.
	ReasonAutoStopSpeech

	// ReasonAutoStopSilence means the detector ended a recording in which no
	// speech was ever heard.
	ReasonAutoStopSilence

	// ReasonError means the session failed; see Result.Err.
	ReasonError
)

// String returns the metric and log label for r.
func (r Reason) String() string {
	switch r {
	case ReasonManualStop:
		return "manual_stop"
	case ReasonAutoStopSpeech:
		return "auto_stop_speech"
	case ReasonAutoStopSilence:
		return "auto_stop_silence"
	case ReasonError:
		return "error"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Handlers are the callbacks a session delivers from its worker goroutine.
// Both are optional. They run after the loop has stopped and the WAV file
// (if any) has been written, and before [Session.Done] is closed, so they
// must not wait on Done.
type Handlers struct {
	// OnError receives the failure of a session that ended with
	// ReasonError, or a WAV encoding failure.
	OnError func(err error)

	// OnAutoStop enables voice-activity detection. It is called exactly once
	// when the detector ends the session: shouldProcess is true when speech
	// was heard. It is not called for manual stops or errors.
	OnAutoStop func(shouldProcess bool)
}

// Result is the finalised recording. It is never mutated after the session
// is done.
type Result struct {
	// Samples is the full recording, 16 kHz mono, in read order.
	Samples []int16

	// Start is when the session began.
	Start time.Time

	// Elapsed is the recording length as measured by the session clock.
	Elapsed time.Duration

	// Reason is why the session ended.
	Reason Reason

	// Err is set when Reason is ReasonError, or when the WAV file could not
	// be written.
	Err error

	// Path is the WAV file written, or "" if none was.
	Path string
}

// Clock reports the time at which the block bringing a session's total to
// samples was observed. start is the wall-clock time the session began.
type Clock interface {
	Now(start time.Time, samples int) time.Time
}

// WallClock reads the system clock. It is the default for live devices.
type WallClock struct{}

// Now implements [Clock].
func (WallClock) Now(time.Time, int) time.Time { return time.Now() }

// SampleClock derives time from the number of samples read at 16 kHz. It
// keeps detection deterministic for files, pipes, and tests that deliver
// audio faster than real time.
type SampleClock struct{}

// Now implements [Clock].
func (SampleClock) Now(start time.Time, samples int) time.Time {
	return start.Add(audio.SamplesDuration(samples, audio.SampleRate))
}

// Opener opens the audio source for a new session. The session closes it.
type Opener func(ctx context.Context) (audio.Source, error)
