package audio_test

import (
	"testing"
	"time"

	"github.com/MrWong99/speakcheck/pkg/audio"
)

func TestToFloat32(t *testing.T) {
	t.Parallel()
	got := audio.ToFloat32([]int16{0, 16384, -32768, 32767})
	want := []float32{0, 0.5, -1, 32767.0 / 32768.0}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFromFloat32(t *testing.T) {
	t.Parallel()
	got := audio.FromFloat32([]float32{0, 0.5, -1, 1, 2, -3})
	want := []int16{0, 16384, -32768, 32767, 32767, -32768}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPCM16_RoundTrip(t *testing.T) {
	t.Parallel()
	in := []int16{100, -200, 32767, -32768}
	got := audio.DecodePCM16(audio.EncodePCM16(in))
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], in[i])
		}
	}
}

func TestDecodePCM16_OddTrailingByte(t *testing.T) {
	t.Parallel()
	got := audio.DecodePCM16([]byte{0x01, 0x00, 0xff})
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("got %v, want [1]", got)
	}
}

func TestDownmix(t *testing.T) {
	t.Parallel()
	// Two stereo frames: L=100,R=200 and L=-100,R=-200
	got := audio.Downmix([]int16{100, 200, -100, -200}, 2)
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDownmix_MonoPassthrough(t *testing.T) {
	t.Parallel()
	in := []int16{1, 2, 3}
	got := audio.Downmix(in, 1)
	if len(got) != 3 || &got[0] != &in[0] {
		t.Error("mono input should be returned unchanged")
	}
}

func TestDownmix_FullScaleChannelsDoNotOverflow(t *testing.T) {
	t.Parallel()
	in := make([]int16, 8)
	for i := range in {
		in[i] = -32768
	}
	got := audio.Downmix(in, 8)
	if len(got) != 1 || got[0] != -32768 {
		t.Errorf("got %v, want [-32768]", got)
	}
}

func TestFormatConverter_KeepsLevelAcrossDepthsAndChannels(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		channels int
		bitDepth int
		in       []int
	}{
		{"24-bit mono", 1, 24, []int{4194304, -4194304}},
		{"24-bit stereo", 2, 24, []int{4194304, 4194304, -4194304, -4194304}},
		{"32-bit stereo", 2, 32, []int{1 << 30, 1 << 30, -(1 << 30), -(1 << 30)}},
		{"32-bit quad", 4, 32, []int{1 << 30, 1 << 30, 1 << 30, 1 << 30, -(1 << 30), -(1 << 30), -(1 << 30), -(1 << 30)}},
		{"16-bit stereo", 2, 16, []int{16384, 16384, -16384, -16384}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			conv := audio.FormatConverter{Source: audio.Format{SampleRate: audio.SampleRate, Channels: tc.channels}}
			got := conv.Convert(tc.in, tc.bitDepth)
			want := []int16{16384, -16384}
			if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
				t.Errorf("got %v, want %v", got, want)
			}
		})
	}
}

func TestResample_SameRate(t *testing.T) {
	t.Parallel()
	in := []int16{100, 200, 300}
	out := audio.Resample(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(in))
	}
}

func TestResample_Downsample(t *testing.T) {
	t.Parallel()
	in := make([]int16, 48000)
	for i := range in {
		in[i] = 1000
	}
	out := audio.Resample(in, 48000, 16000)
	if len(out) != 16000 {
		t.Fatalf("length = %d, want 16000", len(out))
	}
	for i, s := range out {
		if s != 1000 {
			t.Fatalf("sample %d = %d, want 1000 for constant input", i, s)
		}
	}
}

func TestResample_Upsample_Interpolates(t *testing.T) {
	t.Parallel()
	out := audio.Resample([]int16{0, 100}, 8000, 16000)
	want := []int16{0, 50, 100, 100}
	if len(out) != len(want) {
		t.Fatalf("length = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, out[i], want[i])
		}
	}
}

func TestToInt16_BitDepths(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		in       int
		bitDepth int
		want     int16
	}{
		{"16-bit passthrough", -1234, 16, -1234},
		{"8-bit midpoint", 128, 8, 0},
		{"8-bit max", 255, 8, 127 << 8},
		{"24-bit", 0x7fffff, 24, 32767},
		{"32-bit", -1 << 31, 32, -32768},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := audio.ToInt16([]int{tc.in}, tc.bitDepth)
			if got[0] != tc.want {
				t.Errorf("got %d, want %d", got[0], tc.want)
			}
		})
	}
}

func TestFormatConverter_StereoAt32k(t *testing.T) {
	t.Parallel()
	conv := audio.FormatConverter{Source: audio.Format{SampleRate: 32000, Channels: 2}}
	in := make([]int, 3200*2) // 100 ms of stereo
	for i := range in {
		in[i] = 500
	}
	got := conv.Convert(in, 16)
	if len(got) != 1600 {
		t.Fatalf("length = %d, want 1600", len(got))
	}
	if got[0] != 500 {
		t.Errorf("sample = %d, want 500", got[0])
	}
}

func TestBlockSize(t *testing.T) {
	t.Parallel()
	if got := audio.BlockSize(256); got != 1024 {
		t.Errorf("BlockSize(256) = %d, want 1024", got)
	}
	if got := audio.BlockSize(0); got != audio.DefaultMinBufferSamples*4 {
		t.Errorf("BlockSize(0) = %d, want %d", got, audio.DefaultMinBufferSamples*4)
	}
}

func TestSamplesDuration(t *testing.T) {
	t.Parallel()
	if got := audio.SamplesDuration(16000, 16000); got != time.Second {
		t.Errorf("got %v, want 1s", got)
	}
	if got := audio.SamplesDuration(800, 16000); got != 50*time.Millisecond {
		t.Errorf("got %v, want 50ms", got)
	}
	if got := audio.SamplesDuration(10, 0); got != 0 {
		t.Errorf("got %v, want 0 for invalid rate", got)
	}
}
