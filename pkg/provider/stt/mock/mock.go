// Package mock provides a test double for the [stt.Engine] interface.
//
// Engine returns scripted texts in order and records every call, including
// the length of the buffer it was given, so chunking tests can assert on the
// exact slices the engine saw.
//
// Example:
//
//	eng := &mock.Engine{Texts: []string{" first ", "", "second"}}
//	text, _ := eng.Transcribe(ctx, samples)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/speakcheck/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Engine.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context

	// Len is the number of samples passed to Transcribe.
	Len int

	// First is the first sample, or 0 for an empty buffer. Tests encode a
	// chunk's offset in it to identify which slice the engine received.
	First float32
}

// Engine is a mock implementation of [stt.Engine].
type Engine struct {
	mu sync.Mutex

	// Texts is returned by successive Transcribe calls. Once exhausted,
	// DefaultText is returned.
	Texts []string

	// DefaultText is returned after Texts runs out.
	DefaultText string

	// TextFunc, if set, overrides Texts and DefaultText.
	TextFunc func(samples []float32) string

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// ErrAt, when positive, makes only the ErrAt-th call (1-based) fail
	// with Err.
	ErrAt int

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// Block, if non-nil, is waited on inside Transcribe so tests can hold a
	// call in flight.
	Block <-chan struct{}

	// TranscribeCalls records every Transcribe call in order.
	TranscribeCalls []TranscribeCall

	// CloseCount records how many times Close was called.
	CloseCount int

	closed bool
}

// Transcribe records the call and returns the next scripted text.
func (e *Engine) Transcribe(ctx context.Context, samples []float32) (string, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", stt.ErrClosed
	}
	call := TranscribeCall{Ctx: ctx, Len: len(samples)}
	if len(samples) > 0 {
		call.First = samples[0]
	}
	i := len(e.TranscribeCalls)
	e.TranscribeCalls = append(e.TranscribeCalls, call)
	block := e.Block
	e.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil && (e.ErrAt <= 0 || e.ErrAt == i+1) {
		return "", e.Err
	}
	if e.TextFunc != nil {
		return e.TextFunc(samples), nil
	}
	if i < len(e.Texts) {
		return e.Texts[i], nil
	}
	return e.DefaultText, nil
}

// Close records the call and returns CloseErr.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CloseCount++
	e.closed = true
	return e.CloseErr
}

// Calls returns a copy of the recorded Transcribe calls. Thread-safe.
func (e *Engine) Calls() []TranscribeCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]TranscribeCall(nil), e.TranscribeCalls...)
}

// Reset clears all recorded calls and reopens the engine. Thread-safe.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.TranscribeCalls = nil
	e.CloseCount = 0
	e.closed = false
}

// Ensure Engine implements stt.Engine at compile time.
var _ stt.Engine = (*Engine)(nil)
