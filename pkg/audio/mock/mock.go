// Package mock provides an in-memory mock implementation of the
// [audio.Source] interface for use in unit tests.
//
// The mock is safe for concurrent use. It records every method call so that
// tests can assert on call counts, and it exposes exported fields that the
// test can set to control return values.
//
// Typical usage:
//
//	src := &mock.Source{
//	    Blocks: [][]int16{loud, quiet, quiet},
//	    Tail:   quiet, // repeated once Blocks is exhausted
//	}
//	n, err := src.Read(buf)
package mock

import (
	"sync"

	"github.com/MrWong99/speakcheck/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Source = (*Source)(nil)

// Source is a mock implementation of [audio.Source]. Reads are served from
// Blocks in order; once exhausted, Tail is repeated if non-nil, otherwise
// ReadErr (or a zero-length read when ReadErr is nil) is returned.
type Source struct {
	mu sync.Mutex

	// Blocks is the scripted sequence of blocks returned by [Source.Read].
	// Each block is copied into the caller's buffer, truncated to its length.
	Blocks [][]int16

	// Tail is returned repeatedly after Blocks is exhausted. Leave nil to end
	// the stream instead.
	Tail []int16

	// ReadErr is returned once the script (and Tail) is exhausted.
	ReadErr error

	// FailAt, when positive, makes the FailAt-th call to Read (1-based)
	// return ReadErr regardless of the script.
	FailAt int

	// CloseErr is returned by [Source.Close].
	CloseErr error

	// OnRead, if set, is called with the 1-based read index before each read
	// is served. Tests use it to trigger a stop at a precise block.
	OnRead func(call int)

	// CallCountRead records how many times Read was called.
	CallCountRead int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	next int
}

// Read implements [audio.Source].
func (s *Source) Read(block []int16) (int, error) {
	s.mu.Lock()
	s.CallCountRead++
	call := s.CallCountRead
	hook := s.OnRead
	s.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAt > 0 && call == s.FailAt {
		return 0, s.ReadErr
	}
	if s.next < len(s.Blocks) {
		b := s.Blocks[s.next]
		s.next++
		return copy(block, b), nil
	}
	if s.Tail != nil {
		return copy(block, s.Tail), nil
	}
	return 0, s.ReadErr
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return s.CloseErr
}

// Reads returns the number of Read calls made so far.
func (s *Source) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountRead
}

// Closes returns the number of Close calls made so far.
func (s *Source) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountClose
}

// Constant returns a block of n samples all equal to v.
func Constant(n int, v int16) []int16 {
	b := make([]int16, n)
	for i := range b {
		b[i] = v
	}
	return b
}

// Repeat returns count copies of block.
func Repeat(block []int16, count int) [][]int16 {
	out := make([][]int16, count)
	for i := range out {
		out[i] = block
	}
	return out
}
