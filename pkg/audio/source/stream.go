// Package source provides [audio.Source] implementations that do not depend
// on an OS audio stack: a raw PCM stream (stdin, a socket), the stdout of a
// recorder process such as arecord, and a decoded WAV file.
package source

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/MrWong99/speakcheck/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Source = (*Stream)(nil)
	_ audio.Source = (*WAVFile)(nil)
)

// Stream reads raw signed 16-bit little-endian mono PCM at 16 kHz from an
// [io.Reader].
//
// A short read is returned as-is. End of stream is reported as a zero-length
// read with [io.EOF], which the capture loop treats as fatal. If the reader
// also implements [io.Closer], Close closes it.
type Stream struct {
	r   io.Reader
	buf []byte

	// odd holds the first byte of a sample split across two reads.
	odd    byte
	hasOdd bool

	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps r as a PCM stream source.
func NewStream(r io.Reader) *Stream {
	return &Stream{r: r}
}

// Read implements [audio.Source]. A sample split across two reads of the
// underlying reader is reassembled, so alignment never drifts.
func (s *Stream) Read(block []int16) (int, error) {
	need := len(block) * 2
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]

	off := 0
	if s.hasOdd {
		buf[0] = s.odd
		s.hasOdd = false
		off = 1
	}
	n, err := io.ReadAtLeast(s.r, buf[off:], 2-off)
	n += off
	if n < 2 {
		if err == nil || errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return 0, fmt.Errorf("source: stream read: %w", err)
	}
	if n%2 == 1 {
		n--
		s.odd, s.hasOdd = buf[n], true
	}
	return copy(block, audio.DecodePCM16(buf[:n])), nil
}

// Close implements [audio.Source].
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		if c, ok := s.r.(io.Closer); ok {
			s.closeErr = c.Close()
		}
	})
	return s.closeErr
}
