// Package stt defines the Engine interface for speech recognition backends.
//
// An Engine is an opaque, batch recognition capability: given a complete mono
// float32 PCM buffer at 16 kHz with samples in [-1, 1], it returns the
// recognised text. Model loading happens in each implementation's constructor
// and release happens in Close; once Close has returned, Transcribe must fail
// with [ErrClosed] and never touch the released model.
//
// Implementations:
//   - stt/whisper: whisper.cpp via CGO bindings, and a whisper.cpp server over HTTP.
//   - stt/exec:    an external command that reads a WAV file and prints JSON.
//   - stt/mock:    scripted results for tests.
package stt

import (
	"context"
	"errors"
)

// ErrClosed is returned by Transcribe after Close.
var ErrClosed = errors.New("stt: engine closed")

// Engine is the abstraction over any speech recognition backend.
//
// Implementations must be safe for concurrent use; engines that wrap a
// single model context serialise calls internally.
type Engine interface {
	// Transcribe recognises speech in samples (16 kHz mono, [-1, 1]) and
	// returns the raw text. The text may carry leading or trailing
	// whitespace; callers trim it.
	//
	// Returns ErrClosed after Close, or a wrapped backend error on failure.
	// Engines do not retry.
	Transcribe(ctx context.Context, samples []float32) (string, error)

	// Close releases the model and any associated resources. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Transcript is the text recognised for one recording together with the
// number of 16 kHz samples it came from.
type Transcript struct {
	// Text is the trimmed, stitched transcript.
	Text string

	// SampleCount is the length of the source buffer.
	SampleCount int

	// Chunks is how many engine calls produced Text.
	Chunks int
}

// Empty reports whether nothing was recognised.
func (t Transcript) Empty() bool { return t.Text == "" }
