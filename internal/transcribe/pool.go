package transcribe

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/MrWong99/speakcheck/internal/observe"
	"github.com/MrWong99/speakcheck/pkg/provider/stt"
)

// Transcriber is implemented by [Chunked].
type Transcriber interface {
	Transcribe(ctx context.Context, samples []int16) (stt.Transcript, error)
}

// DefaultPoolSize returns max(4, runtime.NumCPU()).
func DefaultPoolSize() int {
	return max(4, runtime.NumCPU())
}

// ErrWorkerPanic is the outcome of a transcription that panicked. The panic
// itself is logged by the pool.
var ErrWorkerPanic = errors.New("transcribe: worker panicked")

// Outcome is the result of an asynchronous transcription.
type Outcome struct {
	Transcript stt.Transcript
	Err        error
}

// Pool runs transcriptions on a bounded set of goroutines, off the caller's
// goroutine. Engines that serialise internally still process one recording
// at a time; the pool only keeps callers from blocking on each other.
type Pool struct {
	t    Transcriber
	pool *ants.Pool
}

// NewPool creates a pool of size workers (DefaultPoolSize when size <= 0).
func NewPool(t Transcriber, size int) (*Pool, error) {
	if size <= 0 {
		size = DefaultPoolSize()
	}
	p, err := ants.NewPool(size, ants.WithPanicHandler(func(v any) {
		observe.Logger(context.Background()).Error("transcribe: worker panic", "panic", v)
	}))
	if err != nil {
		return nil, fmt.Errorf("transcribe: create pool: %w", err)
	}
	return &Pool{t: t, pool: p}, nil
}

// Go submits a transcription and returns a channel that receives exactly one
// Outcome. Submission blocks while all workers are busy.
func (p *Pool) Go(ctx context.Context, samples []int16) <-chan Outcome {
	out := make(chan Outcome, 1)
	err := p.pool.Submit(func() {
		o := Outcome{Err: ErrWorkerPanic}
		defer func() { out <- o }()
		tr, err := p.t.Transcribe(ctx, samples)
		o = Outcome{Transcript: tr, Err: err}
	})
	if err != nil {
		out <- Outcome{Err: fmt.Errorf("transcribe: submit: %w", err)}
	}
	return out
}

// Transcribe runs a transcription on the pool and waits for it. If ctx is
// cancelled first, Transcribe returns immediately; the worker finishes the
// chunk in flight and discards the rest.
func (p *Pool) Transcribe(ctx context.Context, samples []int16) (stt.Transcript, error) {
	select {
	case o := <-p.Go(ctx, samples):
		return o.Transcript, o.Err
	case <-ctx.Done():
		return stt.Transcript{}, fmt.Errorf("transcribe: %w", ctx.Err())
	}
}

// Running returns the number of busy workers.
func (p *Pool) Running() int { return p.pool.Running() }

// Cap returns the pool size.
func (p *Pool) Cap() int { return p.pool.Cap() }

// Closed reports whether Close has been called.
func (p *Pool) Closed() bool { return p.pool.IsClosed() }

// Close waits up to timeout for running transcriptions and releases the
// workers. Go and Transcribe fail after Close.
func (p *Pool) Close(timeout time.Duration) error {
	if err := p.pool.ReleaseTimeout(timeout); err != nil {
		return fmt.Errorf("transcribe: release pool: %w", err)
	}
	return nil
}
