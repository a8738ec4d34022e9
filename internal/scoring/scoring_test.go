package scoring

import (
	"math"
	"slices"
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"whitespace only", "  \t\n ", nil},
		{"case and punctuation", `Olá, Mundo! "Tudo" (bem)?`, []string{"olá", "mundo", "tudo", "bem"}},
		{"brackets and quotes", `[a] {b} 'c'; d: e.`, []string{"a", "b", "c", "d", "e"}},
		{"collapses runs", "o   rato\t\troeu", []string{"o", "rato", "roeu"}},
		{"punctuation token dropped", "a , b", []string{"a", "b"}},
		{"hyphen kept", "guarda-chuva", []string{"guarda-chuva"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Normalize(tt.in)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWER(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		expected []string
		got      []string
		want     float64
	}{
		{"identical", []string{"a", "b", "c"}, []string{"a", "b", "c"}, 0},
		{"nothing said", []string{"a", "b"}, nil, 100},
		{"one substitution", []string{"casa", "azul"}, []string{"casa", "verde"}, 50},
		{"empty expected", nil, []string{"x"}, 0},
		{"both empty", nil, nil, 0},
		{"case-insensitive", []string{"Casa"}, []string{"casa"}, 0},
		{"insertions exceed 100", []string{"a"}, []string{"x", "y", "z"}, 300},
		{"one deletion of four", []string{"a", "b", "c", "d"}, []string{"a", "c", "d"}, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := WER(tt.expected, tt.got); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("WER = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEditDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b []string
		want int
	}{
		{nil, nil, 0},
		{[]string{"a"}, nil, 1},
		{nil, []string{"a", "b"}, 2},
		{[]string{"a", "b", "c"}, []string{"a", "x", "c"}, 1},
		{[]string{"a", "b", "c"}, []string{"c", "b", "a"}, 2},
		{[]string{"kitten", "sat"}, []string{"sitting", "sat", "down"}, 2},
	}
	for _, tt := range tests {
		if got := EditDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("EditDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestWPM(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		count   int
		elapsed time.Duration
		want    int
	}{
		{"zero duration", 9, 0, 0},
		{"negative duration", 9, -time.Second, 0},
		{"sub-millisecond", 9, 500 * time.Microsecond, 0},
		{"ninety", 9, 6 * time.Second, 90},
		{"floored", 10, 7 * time.Second, 85},
		{"no words", 0, 5 * time.Second, 0},
		{"one minute", 120, time.Minute, 120},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := WPM(tt.count, tt.elapsed); got != tt.want {
				t.Errorf("WPM(%d, %v) = %d, want %d", tt.count, tt.elapsed, got, tt.want)
			}
		})
	}
}

func TestAnalyze_PerfectReading(t *testing.T) {
	t.Parallel()

	const phrase = "o rato roeu a roupa do rei de roma"
	got := Analyze(phrase, phrase, 6000*time.Millisecond)

	if got.ExpectedWords != 9 {
		t.Errorf("ExpectedWords = %d, want 9", got.ExpectedWords)
	}
	if got.WPM != 90 {
		t.Errorf("WPM = %d, want 90", got.WPM)
	}
	if got.WER != 0 {
		t.Errorf("WER = %v, want 0", got.WER)
	}
	if got.Edits != 0 {
		t.Errorf("Edits = %d, want 0", got.Edits)
	}
}

func TestAnalyze_ZeroElapsed(t *testing.T) {
	t.Parallel()

	got := Analyze("uma frase", "uma frase", 0)
	if got.WPM != 0 {
		t.Errorf("WPM = %d, want 0", got.WPM)
	}
	if got.WER != 0 {
		t.Errorf("WER = %v, want 0", got.WER)
	}
}

func TestAnalyze_PunctuationIgnored(t *testing.T) {
	t.Parallel()

	got := Analyze("Três pratos de trigo, para três tigres tristes.", "três pratos de trigo para três tigres tristes", 4*time.Second)
	if got.WER != 0 {
		t.Errorf("WER = %v, want 0", got.WER)
	}
	if got.WPM != 120 {
		t.Errorf("WPM = %d, want 120", got.WPM)
	}
}

func TestAnalyze_EmptyExpected(t *testing.T) {
	t.Parallel()

	got := Analyze("  !? ", "something was said", 3*time.Second)
	if got.WER != 0 {
		t.Errorf("WER = %v, want 0", got.WER)
	}
	if got.TranscribedWords != 3 {
		t.Errorf("TranscribedWords = %d, want 3", got.TranscribedWords)
	}
	if got.WPM != 60 {
		t.Errorf("WPM = %d, want 60", got.WPM)
	}
}
