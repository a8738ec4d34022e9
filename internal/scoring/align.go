package scoring

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// OpKind is one step of a word alignment.
type OpKind int

const (
	// Match means the words are equal.
	Match OpKind = iota
	// Substitute means a different word was said in place of the expected one.
	Substitute
	// Delete means an expected word was not said.
	Delete
	// Insert means an extra word was said.
	Insert
)

// String returns a short label for the op.
func (k OpKind) String() string {
	switch k {
	case Match:
		return "match"
	case Substitute:
		return "substitute"
	case Delete:
		return "delete"
	case Insert:
		return "insert"
	default:
		return "unknown"
	}
}

// Op is one aligned position.
type Op struct {
	Kind OpKind

	// Expected is the expected word; empty for Insert.
	Expected string

	// Got is the transcribed word; empty for Delete.
	Got string

	// Similarity is the Jaro-Winkler similarity of a substitution (0–1).
	// It is 1 for matches and 0 for insertions and deletions.
	Similarity float64

	// SoundsAlike is set on a substitution whose words share a Double
	// Metaphone key, i.e. a near miss rather than a wrong word.
	SoundsAlike bool
}

// Align returns a minimum-cost alignment of the normalised words of
// transcribed against expected. The number of non-Match ops equals the edit
// distance used for WER.
func Align(expected, transcribed string) []Op {
	a := Normalize(expected)
	b := Normalize(transcribed)
	dp := editTable(a, b)

	ops := make([]Op, 0, max(len(a), len(b)))
	i, j := len(a), len(b)
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && strings.EqualFold(a[i-1], b[j-1]) && dp[i][j] == dp[i-1][j-1]:
			ops = append(ops, Op{Kind: Match, Expected: a[i-1], Got: b[j-1], Similarity: 1})
			i, j = i-1, j-1
		case i > 0 && j > 0 && dp[i][j] == dp[i-1][j-1]+1:
			ops = append(ops, substitution(a[i-1], b[j-1]))
			i, j = i-1, j-1
		case i > 0 && dp[i][j] == dp[i-1][j]+1:
			ops = append(ops, Op{Kind: Delete, Expected: a[i-1]})
			i--
		default:
			ops = append(ops, Op{Kind: Insert, Got: b[j-1]})
			j--
		}
	}

	for l, r := 0, len(ops)-1; l < r; l, r = l+1, r-1 {
		ops[l], ops[r] = ops[r], ops[l]
	}
	return ops
}

func substitution(expected, got string) Op {
	return Op{
		Kind:        Substitute,
		Expected:    expected,
		Got:         got,
		Similarity:  matchr.JaroWinkler(expected, got, false),
		SoundsAlike: soundsAlike(expected, got),
	}
}

// soundsAlike reports whether any Double Metaphone keys of a and b agree.
func soundsAlike(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}

// Summary counts the ops of an alignment by kind.
type Summary struct {
	Matches, Substitutions, Deletions, Insertions, NearMisses int
}

// Summarize counts ops by kind.
func Summarize(ops []Op) Summary {
	var s Summary
	for _, op := range ops {
		switch op.Kind {
		case Match:
			s.Matches++
		case Substitute:
			s.Substitutions++
			if op.SoundsAlike {
				s.NearMisses++
			}
		case Delete:
			s.Deletions++
		case Insert:
			s.Insertions++
		}
	}
	return s
}

// Errors returns the number of non-matching ops.
func (s Summary) Errors() int {
	return s.Substitutions + s.Deletions + s.Insertions
}
