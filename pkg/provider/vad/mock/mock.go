// Package mock provides a test double for the [vad.Detector] interface.
//
// Detector returns scripted decisions in order and records every block it
// was given, so capture tests can end a recording at an exact block without
// synthesising audio that crosses a threshold.
//
// Example:
//
//	det := &mock.Detector{
//	    Decisions: []vad.Decision{vad.Continue, vad.Continue, vad.StopAndProcess},
//	}
package mock

import (
	"sync"
	"time"

	"github.com/MrWong99/speakcheck/pkg/provider/vad"
)

// Compile-time interface assertion.
var _ vad.Detector = (*Detector)(nil)

// ProcessCall records a single invocation of Detector.Process.
type ProcessCall struct {
	// State is the state passed in.
	State vad.State

	// BlockLen is the length of the block passed in.
	BlockLen int

	// Now is the observation time passed in.
	Now time.Time
}

// Detector is a mock implementation of [vad.Detector].
type Detector struct {
	mu sync.Mutex

	// Decisions is returned by successive Process calls. Once exhausted,
	// Default is returned.
	Decisions []vad.Decision

	// Default is returned after Decisions runs out. Zero is vad.Continue.
	Default vad.Decision

	// StartCalls records the time passed to every Start call.
	StartCalls []time.Time

	// ProcessCalls records every Process call in order.
	ProcessCalls []ProcessCall
}

// Start records the call and returns a fresh state starting at now.
func (d *Detector) Start(now time.Time) vad.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.StartCalls = append(d.StartCalls, now)
	return vad.State{RecordingStart: now}
}

// Process records the call and returns the next scripted decision. The state
// is returned unchanged.
func (d *Detector) Process(st vad.State, block []int16, now time.Time) (vad.State, vad.Decision) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := len(d.ProcessCalls)
	d.ProcessCalls = append(d.ProcessCalls, ProcessCall{State: st, BlockLen: len(block), Now: now})
	if i < len(d.Decisions) {
		return st, d.Decisions[i]
	}
	return st, d.Default
}

// ProcessCount returns the number of Process calls. Thread-safe.
func (d *Detector) ProcessCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ProcessCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.StartCalls = nil
	d.ProcessCalls = nil
}
