// Package priority raises the scheduling priority of the calling goroutine's
// OS thread for the duration of a CPU-heavy call.
//
// Boosting is best effort. Platforms without per-thread priorities return
// [ErrNotSupported], and unprivileged processes usually cannot lower their
// nice value; callers log and carry on without the boost.
package priority

import "errors"

// DefaultNice is the nice value applied by [Boost] callers that have no
// configured value. Lower is more favourable; -20 is the floor.
const DefaultNice = -10

// ErrNotSupported is returned by [Boost] on platforms without a per-thread
// priority control.
var ErrNotSupported = errors.New("priority: not supported on this platform")

// Do runs fn with the calling thread boosted to nice and restores the
// previous priority afterwards, whether or not fn fails. A failure to boost
// or to restore is passed to onErr (if non-nil); fn runs either way.
func Do(nice int, onErr func(error), fn func() error) error {
	report := func(err error) {
		if err != nil && onErr != nil {
			onErr(err)
		}
	}
	restore, err := Boost(nice)
	if err != nil {
		report(err)
		return fn()
	}
	defer func() { report(restore()) }()
	return fn()
}
