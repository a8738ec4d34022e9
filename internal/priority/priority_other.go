//go:build !linux

package priority

// Boost returns ErrNotSupported.
func Boost(nice int) (restore func() error, err error) {
	return nil, ErrNotSupported
}

// Current returns ErrNotSupported.
func Current() (int, error) {
	return 0, ErrNotSupported
}
