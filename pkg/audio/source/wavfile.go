package source

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/MrWong99/speakcheck/pkg/audio"
	"github.com/MrWong99/speakcheck/pkg/audio/wavfile"
)

// WAVOption is a functional option for [NewWAVFile].
type WAVOption func(*WAVFile)

// WithPadSilence makes the source keep yielding silent blocks after the file
// ends, so voice-activity detection can close the session the way it would
// in a quiet room. Without it the end of file is a fatal read.
func WithPadSilence() WAVOption {
	return func(w *WAVFile) { w.pad = true }
}

// WithRealtime paces reads so each block takes its playback duration, like a
// live device.
func WithRealtime() WAVOption {
	return func(w *WAVFile) { w.realtime = true }
}

// WithMaxPadding caps how much silence is appended when padding is enabled.
// Zero means unlimited.
func WithMaxPadding(d time.Duration) WAVOption {
	return func(w *WAVFile) { w.maxPad = int(int64(d) * audio.SampleRate / int64(time.Second)) }
}

// WAVFile is an [audio.Source] that replays a WAV file, converted to 16 kHz
// mono 16-bit PCM.
type WAVFile struct {
	samples  []int16
	pos      int
	padded   int
	pad      bool
	maxPad   int
	realtime bool
	last     time.Time

	sleep func(time.Duration)
	now   func() time.Time

	closeOnce sync.Once
}

// NewWAVFile decodes the WAV file at path.
func NewWAVFile(path string, opts ...WAVOption) (*WAVFile, error) {
	clip, err := wavfile.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	return newWAVFile(clip.Mono16k(), opts...), nil
}

// NewWAVReader decodes a WAV stream from r.
func NewWAVReader(r io.ReadSeeker, opts ...WAVOption) (*WAVFile, error) {
	clip, err := wavfile.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	return newWAVFile(clip.Mono16k(), opts...), nil
}

// NewSamples replays already-converted 16 kHz mono samples.
func NewSamples(samples []int16, opts ...WAVOption) *WAVFile {
	return newWAVFile(samples, opts...)
}

func newWAVFile(samples []int16, opts ...WAVOption) *WAVFile {
	w := &WAVFile{
		samples: samples,
		sleep:   time.Sleep,
		now:     time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Len returns the number of decoded samples.
func (w *WAVFile) Len() int { return len(w.samples) }

// Read implements [audio.Source].
func (w *WAVFile) Read(block []int16) (int, error) {
	if len(block) == 0 {
		return 0, fmt.Errorf("source: wav read: empty block")
	}
	w.pace(len(block))

	if w.pos < len(w.samples) {
		n := copy(block, w.samples[w.pos:])
		w.pos += n
		return n, nil
	}
	if !w.pad || (w.maxPad > 0 && w.padded >= w.maxPad) {
		return 0, fmt.Errorf("source: wav read: %w", io.EOF)
	}
	n := len(block)
	if w.maxPad > 0 && w.maxPad-w.padded < n {
		n = w.maxPad - w.padded
	}
	clear(block[:n])
	w.padded += n
	return n, nil
}

func (w *WAVFile) pace(n int) {
	if !w.realtime {
		return
	}
	now := w.now()
	if !w.last.IsZero() {
		due := w.last.Add(audio.SamplesDuration(n, audio.SampleRate))
		if wait := due.Sub(now); wait > 0 {
			w.sleep(wait)
			now = due
		}
	}
	w.last = now
}

// Close implements [audio.Source]. It releases the decoded samples.
func (w *WAVFile) Close() error {
	w.closeOnce.Do(func() { w.samples = nil })
	return nil
}
