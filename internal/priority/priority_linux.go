//go:build linux

package priority

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Boost locks the calling goroutine to its OS thread and sets that thread's
// nice value. The returned restore function puts the previous nice value back
// and unlocks the thread; it must be called from the same goroutine.
//
// If restoring fails the thread stays locked to the goroutine, so the
// changed priority never leaks to other goroutines; the runtime discards the
// thread when the goroutine exits. On error from Boost itself the thread is
// left unlocked and unchanged.
func Boost(nice int) (restore func() error, err error) {
	runtime.LockOSThread()
	tid := unix.Gettid()

	// The raw getpriority syscall reports 20 - nice.
	raw, err := unix.Getpriority(unix.PRIO_PROCESS, tid)
	if err != nil {
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("priority: get: %w", err)
	}
	prev := 20 - raw

	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, nice); err != nil {
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("priority: set nice %d: %w", nice, err)
	}

	return func() error {
		if err := unix.Setpriority(unix.PRIO_PROCESS, tid, prev); err != nil {
			return fmt.Errorf("priority: restore nice %d: %w", prev, err)
		}
		runtime.UnlockOSThread()
		return nil
	}, nil
}

// Current returns the nice value of the calling thread.
func Current() (int, error) {
	raw, err := unix.Getpriority(unix.PRIO_PROCESS, unix.Gettid())
	if err != nil {
		return 0, fmt.Errorf("priority: get: %w", err)
	}
	return 20 - raw, nil
}
