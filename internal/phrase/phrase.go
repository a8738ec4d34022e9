// Package phrase picks the sentence the user is asked to read aloud.
package phrase

import (
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
)

// ErrEmpty is returned when there is nothing to choose from.
var ErrEmpty = errors.New("phrase: no phrases configured")

// Selector yields practice phrases.
type Selector interface {
	Next() (string, error)
}

// Fixed always returns the same phrase.
type Fixed string

var _ Selector = Fixed("")

// Next returns the phrase, or ErrEmpty if it is blank.
func (f Fixed) Next() (string, error) {
	if strings.TrimSpace(string(f)) == "" {
		return "", ErrEmpty
	}
	return string(f), nil
}

// List picks uniformly at random from a fixed set of phrases while never
// repeating any of the last cooldown picks. Cooldown is capped at len-1 so a
// pick is always possible.
type List struct {
	mu       sync.Mutex
	phrases  []string
	cooldown int
	recent   []int
	rnd      *rand.Rand
}

var _ Selector = (*List)(nil)

// Option configures a [List].
type Option func(*List)

// WithCooldown sets how many of the most recent phrases are excluded.
func WithCooldown(n int) Option {
	return func(l *List) { l.cooldown = n }
}

// WithRand sets the random source.
func WithRand(r *rand.Rand) Option {
	return func(l *List) { l.rnd = r }
}

// NewList returns a List over the non-blank entries of phrases.
func NewList(phrases []string, opts ...Option) (*List, error) {
	l := &List{}
	for _, p := range phrases {
		if p = strings.TrimSpace(p); p != "" {
			l.phrases = append(l.phrases, p)
		}
	}
	if len(l.phrases) == 0 {
		return nil, ErrEmpty
	}
	for _, o := range opts {
		o(l)
	}
	if l.rnd == nil {
		l.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	l.cooldown = max(0, min(l.cooldown, len(l.phrases)-1))
	return l, nil
}

// Len returns the number of phrases.
func (l *List) Len() int { return len(l.phrases) }

// Next returns a phrase that is not among the last cooldown picks.
func (l *List) Next() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	candidates := make([]int, 0, len(l.phrases))
	for i := range l.phrases {
		if !l.isRecent(i) {
			candidates = append(candidates, i)
		}
	}
	pick := candidates[l.rnd.IntN(len(candidates))]

	if l.cooldown > 0 {
		l.recent = append(l.recent, pick)
		if len(l.recent) > l.cooldown {
			l.recent = l.recent[len(l.recent)-l.cooldown:]
		}
	}
	return l.phrases[pick], nil
}

func (l *List) isRecent(i int) bool {
	for _, r := range l.recent {
		if r == i {
			return true
		}
	}
	return false
}
