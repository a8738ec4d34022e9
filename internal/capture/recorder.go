package capture

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/speakcheck/internal/observe"
	"github.com/MrWong99/speakcheck/pkg/audio"
	"github.com/MrWong99/speakcheck/pkg/audio/wavfile"
	"github.com/MrWong99/speakcheck/pkg/provider/vad"
)

// Option is a functional option for [New].
type Option func(*Recorder)

// WithDetector sets the detector used when a session has an OnAutoStop
// handler. Without one, auto-stop sessions are rejected by Start.
func WithDetector(d vad.Detector) Option {
	return func(r *Recorder) { r.detector = d }
}

// WithBlockSize sets the number of samples read per iteration. Defaults to
// [audio.BlockSize] of the default minimum buffer.
func WithBlockSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.blockSize = n
		}
	}
}

// WithClock sets the session clock. Defaults to [WallClock].
func WithClock(c Clock) Option {
	return func(r *Recorder) { r.clock = c }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// Recorder starts capture sessions against an audio source. It is safe for
// concurrent use but runs one session at a time.
type Recorder struct {
	open      Opener
	blockSize int
	clock     Clock
	metrics   *observe.Metrics

	mu       sync.Mutex
	detector vad.Detector

	busy atomic.Bool
}

// New returns a Recorder that opens its source with open for each session.
func New(open Opener, opts ...Option) *Recorder {
	r := &Recorder{
		open:      open,
		blockSize: audio.BlockSize(0),
		clock:     WallClock{},
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// SetDetector replaces the detector used by sessions started afterwards.
func (r *Recorder) SetDetector(d vad.Detector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detector = d
}

// Busy reports whether a session is in flight.
func (r *Recorder) Busy() bool { return r.busy.Load() }

// Start opens the source and begins recording to outputPath on a dedicated
// worker. An empty outputPath keeps the recording in memory only.
//
// Cancelling ctx stops the session like [Session.Stop]. Errors opening the
// source are returned directly; everything after that is reported through h
// and the session's Result.
func (r *Recorder) Start(ctx context.Context, outputPath string, h Handlers) (*Session, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	r.mu.Lock()
	detector := r.detector
	r.mu.Unlock()
	if h.OnAutoStop != nil && detector == nil {
		r.busy.Store(false)
		return nil, fmt.Errorf("capture: auto-stop requested but no detector configured")
	}

	src, err := r.open(ctx)
	if err != nil {
		r.busy.Store(false)
		return nil, fmt.Errorf("capture: open source: %w", err)
	}

	s := &Session{
		stop: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	w := &worker{
		rec:      r,
		session:  s,
		source:   src,
		detector: detector,
		handlers: h,
		path:     outputPath,
	}
	if h.OnAutoStop == nil {
		w.detector = nil
	}

	r.metrics.ActiveCaptures.Add(ctx, 1)
	go w.run(ctx)
	return s, nil
}

// Session is one in-flight or finished recording.
type Session struct {
	stop chan struct{}
	done chan struct{}

	mu     sync.Mutex
	result Result
}

// Stop asks the loop to end after the current read. It is idempotent and
// never blocks. A stopped session reports ReasonManualStop and does not call
// OnAutoStop.
func (s *Session) Stop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}

// Done is closed once the loop has stopped, the source is closed, the WAV
// file is written and the handlers have returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result blocks until the session is done and returns the recording.
func (s *Session) Result() Result {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Wait is like Result but gives up when ctx is done.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		return s.Result(), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// worker owns a session's buffer and detector state until it finalises the
// session. Nothing else reads them while the loop runs.
type worker struct {
	rec      *Recorder
	session  *Session
	source   audio.Source
	detector vad.Detector
	handlers Handlers
	path     string

	samples []int16
	start   time.Time
	now     time.Time
}

func (w *worker) run(ctx context.Context) {
	// The loop is a real-time consumer; keep it on one OS thread so the
	// blocking device read never migrates between threads mid-session.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ctx, span := observe.StartSpan(ctx, "capture.session")
	defer span.End()
	log := observe.Logger(ctx)

	res := Result{}
	reason, shouldProcess, err := w.loop(ctx)
	res.Samples = w.samples
	res.Start = w.start
	res.Elapsed = w.now.Sub(w.start)
	res.Reason = reason

	if err != nil {
		res.Err = err
	} else if w.path != "" {
		werr := recovered(func() error {
			return wavfile.WriteFile(w.path, w.samples, audio.SampleRate)
		})
		if werr != nil {
			res.Err = fmt.Errorf("capture: write wav: %w", werr)
		} else {
			res.Path = w.path
		}
	}

	span.SetAttributes(
		attribute.String("capture.reason", reason.String()),
		attribute.Int("capture.samples", len(w.samples)),
	)
	log.Info("capture finished",
		"reason", reason.String(),
		"samples", len(w.samples),
		"elapsed", res.Elapsed,
		"path", res.Path,
	)
	w.rec.metrics.ActiveCaptures.Add(ctx, -1)
	w.rec.metrics.RecordCapture(ctx, reason.String(), res.Elapsed)

	w.session.mu.Lock()
	w.session.result = res
	w.session.mu.Unlock()
	w.rec.busy.Store(false)

	switch {
	case res.Err != nil:
		span.RecordError(res.Err)
		log.Error("capture failed", "err", res.Err)
		if w.handlers.OnError != nil {
			w.handlers.OnError(res.Err)
		}
	case reason == ReasonAutoStopSpeech || reason == ReasonAutoStopSilence:
		w.handlers.OnAutoStop(shouldProcess)
	}
	close(w.session.done)
}

// loop reads blocks until a stop request, a terminal detector decision, or a
// read failure. The source is closed on every path before it returns.
func (w *worker) loop(ctx context.Context) (reason Reason, shouldProcess bool, err error) {
	// Registered first so it also covers a panicking Close.
	defer func() {
		if v := recover(); v != nil {
			reason, shouldProcess, err = ReasonError, false, fmt.Errorf("%w: %v", ErrPanic, v)
		}
	}()
	var closeOnce sync.Once
	closeSource := func() {
		closeOnce.Do(func() {
			if cerr := w.source.Close(); cerr != nil {
				observe.Logger(ctx).Warn("capture: close source", "err", cerr)
			}
		})
	}
	defer closeSource()
	// A read blocked on a silent pipe only returns once its source is closed.
	defer context.AfterFunc(ctx, closeSource)()

	w.start = time.Now()
	w.now = w.start
	var st vad.State
	if w.detector != nil {
		st = w.detector.Start(w.start)
	}

	block := make([]int16, w.rec.blockSize)
	for {
		select {
		case <-w.session.stop:
			return ReasonManualStop, false, nil
		case <-ctx.Done():
			return ReasonManualStop, false, nil
		default:
		}

		n, rerr := w.source.Read(block)
		if n <= 0 {
			if ctx.Err() != nil {
				return ReasonManualStop, false, nil
			}
			if rerr != nil {
				return ReasonError, false, fmt.Errorf("%w: %w", ErrDeviceRead, rerr)
			}
			return ReasonError, false, fmt.Errorf("%w: read returned %d samples", ErrDeviceRead, n)
		}
		n = min(n, len(block))
		w.samples = append(w.samples, block[:n]...)
		w.now = w.rec.clock.Now(w.start, len(w.samples))

		if w.detector == nil {
			continue
		}
		var dec vad.Decision
		st, dec = w.detector.Process(st, block[:n], w.now)
		switch dec {
		case vad.StopAndProcess:
			return ReasonAutoStopSpeech, true, nil
		case vad.StopNoAudio:
			return ReasonAutoStopSilence, false, nil
		}
	}
}

// recovered runs fn and turns a panic into an [ErrPanic] error.
func recovered(fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, v)
		}
	}()
	return fn()
}
