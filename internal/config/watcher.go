package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reload describes one accepted change to the watched file.
type Reload struct {
	Old  *Config
	New  *Config
	Diff ConfigDiff
}

// Watcher reloads a config file when it changes on disk. It watches the
// parent directory so saves that rename a temp file over the original are
// seen too. Rejected files leave the previous config in place.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload func(Reload)
	onReject func(error)
	log      *slog.Logger
	fsw      *fsnotify.Watcher

	mu      sync.Mutex
	current *Config
	sum     [sha256.Size]byte

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period after the last write before the file
// is re-read. Defaults to 100ms.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithRejectHandler is called with the load or validation error whenever a
// changed file is rejected.
func WithRejectHandler(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onReject = fn }
}

// WithWatchLogger sets the logger. Defaults to slog.Default().
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWatcher loads path and starts watching it. onReload runs on the
// watcher goroutine for every change that parses, validates and differs in
// content from the last accepted version.
func NewWatcher(path string, onReload func(Reload), opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w := &Watcher{
		path:     abs,
		debounce: 100 * time.Millisecond,
		onReload: onReload,
		log:      slog.Default(),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With("path", abs)

	if w.current, w.sum, err = w.read(); err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}

	if w.fsw, err = fsnotify.NewWatcher(); err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	if err := w.fsw.Add(filepath.Dir(abs)); err != nil {
		_ = w.fsw.Close()
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}

	go w.loop()
	return w, nil
}

// Current returns the last accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends watching and waits for the watcher goroutine. Idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.stopped
}

// touches reports whether ev may have changed the watched file's content.
func (w *Watcher) touches(ev fsnotify.Event) bool {
	return filepath.Clean(ev.Name) == w.path &&
		(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create))
}

func (w *Watcher) loop() {
	defer close(w.stopped)
	defer w.fsw.Close()

	// Stopped until the first relevant event arms it.
	settle := time.NewTimer(time.Hour)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.touches(ev) {
				settle.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", "err", err)
		case <-settle.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, sum, err := w.read()
	if err != nil {
		w.log.Warn("config change rejected, keeping previous", "err", err)
		if w.onReject != nil {
			w.onReject(err)
		}
		return
	}

	w.mu.Lock()
	if sum == w.sum {
		w.mu.Unlock()
		return
	}
	ev := Reload{Old: w.current, New: cfg, Diff: Diff(w.current, cfg)}
	w.current, w.sum = cfg, sum
	w.mu.Unlock()

	w.log.Info("config reloaded")
	if w.onReload != nil {
		w.onReload(ev)
	}
}

// read loads and validates the file and returns its content hash.
func (w *Watcher) read() (*Config, [sha256.Size]byte, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	return cfg, sha256.Sum256(data), nil
}
