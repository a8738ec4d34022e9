package transcribe

import (
	"errors"
	"fmt"

	"github.com/MrWong99/speakcheck/internal/priority"
	"github.com/MrWong99/speakcheck/pkg/audio"
)

// Defaults for [Config], in 16 kHz samples.
const (
	// DefaultSingleCallThreshold is 15 s: anything up to this length goes to
	// the engine in one call.
	DefaultSingleCallThreshold = 15 * audio.SampleRate

	// DefaultChunkSize is 10 s.
	DefaultChunkSize = 10 * audio.SampleRate

	// DefaultOverlap is 1 s, so a word spoken on a boundary is whole in at
	// least one chunk.
	DefaultOverlap = 1 * audio.SampleRate
)

// Config bounds the cost of a single engine call.
type Config struct {
	// SingleCallThreshold is the largest buffer transcribed in one call.
	SingleCallThreshold int

	// ChunkSize is the length of each chunk of a longer buffer.
	ChunkSize int

	// Overlap is how many samples consecutive chunks share.
	Overlap int

	// BoostPriority raises the engine goroutine's thread priority for the
	// duration of each call.
	BoostPriority bool

	// Nice is the nice value used when BoostPriority is set, in [-20, 0].
	Nice int
}

// DefaultConfig returns the default chunking with priority boosting on.
func DefaultConfig() Config {
	return Config{
		SingleCallThreshold: DefaultSingleCallThreshold,
		ChunkSize:           DefaultChunkSize,
		Overlap:             DefaultOverlap,
		BoostPriority:       true,
		Nice:                priority.DefaultNice,
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("transcribe: chunk size %d must be positive", c.ChunkSize))
	}
	if c.Overlap < 0 || c.Overlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("transcribe: overlap %d must be in [0, chunk size %d)", c.Overlap, c.ChunkSize))
	}
	if c.SingleCallThreshold < c.ChunkSize {
		errs = append(errs, fmt.Errorf("transcribe: single call threshold %d must be at least chunk size %d", c.SingleCallThreshold, c.ChunkSize))
	}
	// A boost may only raise priority: an unprivileged thread can lower its
	// priority but never take it back.
	if c.Nice < -20 || c.Nice > 0 {
		errs = append(errs, fmt.Errorf("transcribe: nice %d must be in [-20, 0]", c.Nice))
	}
	return errors.Join(errs...)
}

// Chunk is a contiguous slice [Start, End) of a recording.
type Chunk struct {
	Index int
	Start int
	End   int
}

// Len returns the number of samples in the chunk.
func (c Chunk) Len() int { return c.End - c.Start }

// Plan splits a buffer of total samples into chunks. A buffer no longer than
// the threshold is a single chunk. Otherwise chunk starts advance by
// ChunkSize-Overlap until they reach total; the last chunk may be shorter.
// An empty buffer has no chunks.
func (c Config) Plan(total int) []Chunk {
	if total <= 0 {
		return nil
	}
	if total <= c.SingleCallThreshold {
		return []Chunk{{Index: 0, Start: 0, End: total}}
	}
	step := c.ChunkSize - c.Overlap
	chunks := make([]Chunk, 0, total/step+1)
	for off := 0; off < total; off += step {
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Start: off,
			End:   min(off+c.ChunkSize, total),
		})
	}
	return chunks
}
