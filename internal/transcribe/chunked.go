// Package transcribe turns recorded PCM into text through an [stt.Engine].
//
// [Chunked] bounds the memory and latency of each engine call. Recordings up
// to a threshold go to the engine whole; longer ones are split into
// overlapping fixed-size chunks that are transcribed one after another and
// joined in order. The overlap keeps boundary words intact in at least one
// chunk; words near a boundary may appear twice in the result.
//
// [Pool] runs Chunked transcriptions on a bounded worker pool so a long
// transcription does not hold up the next recording.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/speakcheck/internal/observe"
	"github.com/MrWong99/speakcheck/internal/priority"
	"github.com/MrWong99/speakcheck/pkg/audio"
	"github.com/MrWong99/speakcheck/pkg/provider/stt"
)

// Option is a functional option for [NewChunked].
type Option func(*Chunked)

// WithConfig replaces the default chunking configuration.
func WithConfig(cfg Config) Option {
	return func(c *Chunked) { c.cfg = cfg }
}

// WithEngineName sets the engine label used in metrics and spans.
func WithEngineName(name string) Option {
	return func(c *Chunked) { c.name = name }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Chunked) { c.metrics = m }
}

// withBoost replaces the priority helper; tests use it to observe boosting.
func withBoost(fn func(nice int, onErr func(error), call func() error) error) Option {
	return func(c *Chunked) { c.boost = fn }
}

// Chunked wraps an engine with the chunking strategy. Chunks of one
// recording are transcribed sequentially and stitched in index order.
type Chunked struct {
	engine  stt.Engine
	name    string
	metrics *observe.Metrics
	boost   func(nice int, onErr func(error), call func() error) error

	mu  sync.RWMutex
	cfg Config
}

// NewChunked wraps engine. The engine stays owned by the caller.
func NewChunked(engine stt.Engine, opts ...Option) (*Chunked, error) {
	if engine == nil {
		return nil, errors.New("transcribe: engine must not be nil")
	}
	c := &Chunked{
		engine: engine,
		name:   "engine",
		cfg:    DefaultConfig(),
		boost:  priority.Do,
	}
	for _, o := range opts {
		o(c)
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// Config returns the active configuration.
func (c *Chunked) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Reconfigure swaps the configuration for subsequent transcriptions.
func (c *Chunked) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	return nil
}

// Transcribe returns the text for samples (16 kHz mono). Engine failures are
// returned wrapped and never retried. Cancelling ctx abandons the remaining
// chunks; a chunk already in the engine runs to completion.
func (c *Chunked) Transcribe(ctx context.Context, samples []int16) (stt.Transcript, error) {
	cfg := c.Config()
	chunks := cfg.Plan(len(samples))

	ctx, span := observe.StartSpan(ctx, "transcribe")
	defer span.End()
	span.SetAttributes(
		attribute.String("engine", c.name),
		attribute.Int("transcribe.samples", len(samples)),
		attribute.Int("transcribe.chunks", len(chunks)),
	)
	start := time.Now()

	parts := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			return stt.Transcript{}, fmt.Errorf("transcribe: %w", err)
		}
		text, err := c.call(ctx, cfg, samples[ch.Start:ch.End])
		if err != nil {
			span.RecordError(err)
			if len(chunks) == 1 {
				return stt.Transcript{}, fmt.Errorf("transcribe: %w", err)
			}
			return stt.Transcript{}, fmt.Errorf("transcribe: chunk %d of %d: %w", ch.Index+1, len(chunks), err)
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}

	c.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())
	c.metrics.TranscriptionChunks.Record(ctx, int64(len(chunks)))
	observe.Logger(ctx).Debug("transcription done",
		"engine", c.name,
		"samples", len(samples),
		"chunks", len(chunks),
		"duration", time.Since(start),
	)
	return stt.Transcript{
		Text:        strings.Join(parts, " "),
		SampleCount: len(samples),
		Chunks:      len(chunks),
	}, nil
}

// call runs one engine call, boosted when configured.
func (c *Chunked) call(ctx context.Context, cfg Config, pcm []int16) (string, error) {
	floats := audio.ToFloat32(pcm)
	var text string
	run := func() error {
		start := time.Now()
		var err error
		text, err = c.engine.Transcribe(ctx, floats)
		c.metrics.RecordEngineCall(ctx, c.name, time.Since(start), err)
		return err
	}
	if !cfg.BoostPriority {
		return text, run()
	}

	boosted := true
	err := c.boost(cfg.Nice, func(berr error) {
		boosted = false
		status := "error"
		if errors.Is(berr, priority.ErrNotSupported) {
			status = "unsupported"
		}
		c.metrics.RecordPriorityBoost(ctx, status)
		observe.Logger(ctx).Debug("transcribe: priority boost failed", "err", berr)
	}, run)
	if boosted {
		c.metrics.RecordPriorityBoost(ctx, "ok")
	}
	return text, err
}
