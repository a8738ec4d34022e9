// Package wavfile reads and writes PCM WAV containers for the capture
// pipeline. Encoding is fixed at 16-bit signed PCM; decoding accepts any
// integer PCM WAV that go-audio understands and reports its native format so
// callers can convert it.
package wavfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/speakcheck/pkg/audio"
)

// formatPCM is the WAVE_FORMAT_PCM tag.
const formatPCM = 1

// ErrInvalidFile is returned by [Decode] when the input is not a PCM WAV file.
var ErrInvalidFile = errors.New("wavfile: not a valid PCM wav file")

// Encode writes samples as a 16-bit mono PCM WAV to w at sampleRate Hz.
func Encode(w io.WriteSeeker, samples []int16, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("wavfile: invalid sample rate %d", sampleRate)
	}
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: audio.Channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: audio.BitsPerSample,
	}

	enc := wav.NewEncoder(w, sampleRate, audio.BitsPerSample, audio.Channels, formatPCM)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wavfile: write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wavfile: close encoder: %w", err)
	}
	return nil
}

// WriteFile encodes samples to a new WAV file at path, creating parent
// directories as needed. An existing file is truncated.
func WriteFile(path string, samples []int16, sampleRate int) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("wavfile: create dir %q: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wavfile: create %q: %w", path, err)
	}
	if err := Encode(f, samples, sampleRate); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("wavfile: close %q: %w", path, err)
	}
	return nil
}

// WriteTemp encodes samples into a new temporary WAV file in dir (the OS
// default when empty) and returns its path. The caller removes the file.
func WriteTemp(dir string, samples []int16, sampleRate int) (string, error) {
	f, err := os.CreateTemp(dir, "speakcheck_*.wav")
	if err != nil {
		return "", fmt.Errorf("wavfile: temp file: %w", err)
	}
	if err := Encode(f, samples, sampleRate); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("wavfile: close temp file: %w", err)
	}
	return f.Name(), nil
}

// Clip is the fully decoded content of a WAV file in its native format.
type Clip struct {
	// Data holds interleaved integer samples at the file's bit depth.
	Data []int

	// Format is the file's sample rate and channel count.
	Format audio.Format

	// BitDepth is the file's bits per sample.
	BitDepth int
}

// Decode reads a complete PCM WAV from r.
func Decode(r io.ReadSeeker) (*Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrInvalidFile
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wavfile: decode: %w", err)
	}
	if dec.WavAudioFormat != formatPCM {
		return nil, fmt.Errorf("%w: audio format %d", ErrInvalidFile, dec.WavAudioFormat)
	}
	return &Clip{
		Data:     buf.Data,
		Format:   audio.Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)},
		BitDepth: int(dec.BitDepth),
	}, nil
}

// ReadFile decodes the WAV file at path.
func ReadFile(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wavfile: open %q: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Mono16k converts the clip to 16 kHz mono int16 samples.
func (c *Clip) Mono16k() []int16 {
	conv := audio.FormatConverter{Source: c.Format}
	return conv.Convert(c.Data, c.BitDepth)
}
