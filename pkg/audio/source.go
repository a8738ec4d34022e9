// Package audio defines the capture-side audio abstractions for speakcheck
// and the PCM helpers shared by sources, the capture loop, and the
// recognition engines.
//
// The central abstraction is [Source]: a capture device (or anything that
// behaves like one) that fills fixed-size blocks of signed 16-bit mono PCM.
// Implementations live in sibling packages (audio/source) and in test doubles
// (audio/mock). The interface is intentionally narrow so the capture loop
// stays decoupled from the OS audio stack.
//
// This package lives under pkg/ because host applications are expected to
// implement [Source] for their own microphone APIs.
package audio

import "time"

const (
	// SampleRate is the only sample rate the capture pipeline works with.
	SampleRate = 16000

	// Channels is fixed at mono.
	Channels = 1

	// BitsPerSample is fixed at 16 (signed, little-endian on the wire).
	BitsPerSample = 16

	// BlockMultiplier is the factor applied to a device's minimum buffer size
	// to obtain the read block size.
	BlockMultiplier = 4

	// DefaultMinBufferSamples is used when the device cannot report its
	// minimum buffer size.
	DefaultMinBufferSamples = 1024
)

// Source yields blocks of 16 kHz mono signed 16-bit PCM samples.
//
// Read fills block and returns the number of samples written. A return of
// n <= 0 (with or without an error) is a device failure; callers treat it as
// fatal and do not retry. Read blocks for roughly one block duration on a
// live device.
//
// Close releases the device. It is safe to call more than once.
//
// A Source is owned by a single capture loop and need not be safe for
// concurrent use.
type Source interface {
	Read(block []int16) (int, error)
	Close() error
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// BlockSize returns the read block size for a device whose minimum buffer is
// minBuffer samples. Non-positive values fall back to
// [DefaultMinBufferSamples].
func BlockSize(minBuffer int) int {
	if minBuffer <= 0 {
		minBuffer = DefaultMinBufferSamples
	}
	return minBuffer * BlockMultiplier
}

// SamplesDuration returns the playback duration of n samples at rate Hz.
func SamplesDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}
