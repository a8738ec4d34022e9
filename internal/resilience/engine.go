package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/MrWong99/speakcheck/pkg/provider/stt"
)

// ErrAllFailed is returned by [Engine.Transcribe] when every engine failed or
// had an open circuit breaker.
var ErrAllFailed = errors.New("resilience: all engines failed")

var _ stt.Engine = (*Engine)(nil)

type entry struct {
	name    string
	engine  stt.Engine
	breaker *CircuitBreaker
}

// Engine is an [stt.Engine] that sends each buffer to the primary engine and,
// when it fails or its breaker is open, to each fallback in the order they
// were added.
//
// Cancellation is not a failure: a context error from any engine is returned
// immediately without trying the next one.
type Engine struct {
	cfg     CircuitBreakerConfig
	entries []entry
	closed  atomic.Bool
}

// NewEngine wraps primary. cfg is the template for every engine's breaker;
// its Name is replaced by the engine name.
func NewEngine(primary stt.Engine, name string, cfg CircuitBreakerConfig) *Engine {
	e := &Engine{cfg: cfg}
	e.AddFallback(name, primary)
	return e
}

// AddFallback appends an engine tried after those already added. It must be
// called before the Engine is shared.
func (e *Engine) AddFallback(name string, engine stt.Engine) {
	cfg := e.cfg
	cfg.Name = name
	e.entries = append(e.entries, entry{
		name:    name,
		engine:  engine,
		breaker: NewCircuitBreaker(cfg),
	})
}

// Names returns the engine names in the order they are tried.
func (e *Engine) Names() []string {
	names := make([]string, len(e.entries))
	for i, en := range e.entries {
		names[i] = en.name
	}
	return names
}

// States returns each engine's breaker state keyed by engine name.
func (e *Engine) States() map[string]State {
	out := make(map[string]State, len(e.entries))
	for _, en := range e.entries {
		out[en.name] = en.breaker.State()
	}
	return out
}

// Transcribe implements [stt.Engine].
func (e *Engine) Transcribe(ctx context.Context, samples []float32) (string, error) {
	if e.closed.Load() {
		return "", stt.ErrClosed
	}
	var errs []error
	for i := range e.entries {
		en := &e.entries[i]
		if err := ctx.Err(); err != nil {
			return "", err
		}
		var text string
		err := en.breaker.Execute(func() error {
			var terr error
			text, terr = en.engine.Transcribe(ctx, samples)
			return terr
		})
		if err == nil {
			if i > 0 {
				slog.Info("transcribed with fallback engine", "engine", en.name)
			}
			return text, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping engine, circuit open", "engine", en.name)
		} else {
			slog.Warn("engine failed, trying next", "engine", en.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", en.name, err))
	}
	return "", fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}

// Close closes every engine and joins their errors. Closing twice is safe.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	for _, en := range e.entries {
		if err := en.engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("resilience: close %s: %w", en.name, err))
		}
	}
	return errors.Join(errs...)
}
