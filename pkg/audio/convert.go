package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// int16Scale is the divisor used to normalise signed 16-bit PCM to [-1, 1].
const int16Scale = 32768.0

// ToFloat32 converts signed 16-bit PCM samples to float32 samples normalised
// to [-1.0, 1.0) by dividing by 32768.
func ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / int16Scale
	}
	return out
}

// FromFloat32 converts normalised float32 samples back to int16, the inverse
// of [ToFloat32]. Values outside [-1, 1] are clamped.
func FromFloat32(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * int16Scale)
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}

// DecodePCM16 converts little-endian signed 16-bit PCM bytes to samples. Any
// trailing odd byte is ignored.
func DecodePCM16(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// EncodePCM16 converts samples to little-endian signed 16-bit PCM bytes.
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Downmix averages interleaved frames of the given channel count into mono.
// The sum is taken in int64 so any channel count fits. If channels is 1 or
// less the input is returned unchanged.
func Downmix(interleaved []int16, channels int) []int16 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]int16, frames)
	for i := range frames {
		var sum int64
		for _, v := range interleaved[i*channels : (i+1)*channels] {
			sum += int64(v)
		}
		out[i] = int16(sum / int64(channels))
	}
	return out
}

// Resample resamples mono samples from srcRate to dstRate using linear
// interpolation. If the rates match (or either is invalid) the input is
// returned unchanged.
func Resample(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]int16, dstLen)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstLen {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// ToInt16 narrows decoder output to int16, clamping out-of-range values.
// bitDepth is the source bit depth; 8-bit unsigned, 24-bit and 32-bit
// integer samples are rescaled to 16 bits.
func ToInt16(samples []int, bitDepth int) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		switch bitDepth {
		case 8:
			s = (s - 128) << 8
		case 24:
			s >>= 8
		case 32:
			s >>= 16
		}
		out[i] = clamp16(int32(s))
	}
	return out
}

// FormatConverter converts decoded frames of an arbitrary format to the
// capture format ([SampleRate] mono). It logs a warning on the first format
// mismatch. Create one per stream; not designed for shared use across
// goroutines.
type FormatConverter struct {
	Source         Format
	warnedMismatch sync.Once
}

// Convert turns interleaved integer samples of the converter's Source format
// into 16 kHz mono int16. Each sample is rescaled to 16 bits before the
// channels are averaged, then the mono signal is resampled.
func (c *FormatConverter) Convert(interleaved []int, bitDepth int) []int16 {
	if c.Source.SampleRate != SampleRate || c.Source.Channels != Channels {
		c.warnedMismatch.Do(func() {
			slog.Warn("audio format mismatch: converting",
				"from", formatString(c.Source.SampleRate, c.Source.Channels),
				"to", formatString(SampleRate, Channels),
			)
		})
	}
	mono := Downmix(ToInt16(interleaved, bitDepth), c.Source.Channels)
	return Resample(mono, c.Source.SampleRate, SampleRate)
}

func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
