// Package scoring grades a practice attempt: speaking speed in words per
// minute and accuracy as word error rate against the expected phrase.
//
// Both texts go through [Normalize] first, so punctuation and case never
// count as errors. WER is the word-level Levenshtein distance divided by the
// number of expected words, on a 0–100 scale.
package scoring

import (
	"strings"
	"time"
)

// stripped is removed from both texts before comparison.
const stripped = `.,!?;:"'()[]{}`

var stripper = func() *strings.Replacer {
	pairs := make([]string, 0, 2*len(stripped))
	for _, r := range stripped {
		pairs = append(pairs, string(r), "")
	}
	return strings.NewReplacer(pairs...)
}()

// Normalize lowercases s, removes punctuation and splits it into words.
func Normalize(s string) []string {
	return strings.Fields(stripper.Replace(strings.ToLower(s)))
}

// Result is the score of one attempt.
type Result struct {
	// WPM is transcribed words per minute, floored.
	WPM int

	// WER is the word error rate on a 0–100 scale. It is 0 when there are no
	// expected words.
	WER float64

	// Edits is the word-level edit distance.
	Edits int

	// ExpectedWords and TranscribedWords are the normalised word counts.
	ExpectedWords    int
	TranscribedWords int
}

// Analyze scores transcribed against expected for a recording of the given
// length.
func Analyze(expected, transcribed string, elapsed time.Duration) Result {
	exp := Normalize(expected)
	got := Normalize(transcribed)
	dist := EditDistance(exp, got)
	return Result{
		WPM:              WPM(len(got), elapsed),
		WER:              werFromDistance(dist, len(exp)),
		Edits:            dist,
		ExpectedWords:    len(exp),
		TranscribedWords: len(got),
	}
}

// WPM returns words per minute for count words spoken over elapsed, floored.
// It is 0 when elapsed is not positive.
func WPM(count int, elapsed time.Duration) int {
	ms := elapsed.Milliseconds()
	if ms <= 0 {
		return 0
	}
	return int(int64(count) * 60_000 / ms)
}

// WER returns the word error rate of transcribed against expected, on a
// 0–100 scale. An empty expected list scores 0.
func WER(expected, transcribed []string) float64 {
	return werFromDistance(EditDistance(expected, transcribed), len(expected))
}

func werFromDistance(dist, expected int) float64 {
	if expected == 0 {
		return 0
	}
	return float64(dist) / float64(expected) * 100
}

// EditDistance is the Levenshtein distance between two word sequences with
// unit cost for substitution, insertion and deletion. Words compare
// case-insensitively.
func EditDistance(a, b []string) int {
	return editTable(a, b)[len(a)][len(b)]
}

// editTable builds the (len(a)+1) x (len(b)+1) distance table.
func editTable(a, b []string) [][]int {
	dp := make([][]int, len(a)+1)
	for i := range dp {
		dp[i] = make([]int, len(b)+1)
		dp[i][0] = i
	}
	for j := range dp[0] {
		dp[0][j] = j
	}
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if strings.EqualFold(a[i-1], b[j-1]) {
				dp[i][j] = dp[i-1][j-1]
				continue
			}
			dp[i][j] = 1 + min(dp[i-1][j], dp[i][j-1], dp[i-1][j-1])
		}
	}
	return dp
}
