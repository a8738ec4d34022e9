// Package observe wires speakcheck into OpenTelemetry.
//
// Components record through a [Metrics] value: injected in tests (see
// [NewMetrics] with a ManualReader), or [DefaultMetrics] otherwise. The
// global providers installed by [InitProvider] feed a Prometheus collector
// for /metrics. [Logger] ties slog output to the active practice attempt and
// span, and [Middleware] instruments the metrics listener.
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = tracerName

// Metrics holds the speakcheck instruments. Safe for concurrent use.
type Metrics struct {
	// --- Capture ---

	// CaptureDuration tracks the audio length of finished recordings.
	CaptureDuration metric.Float64Histogram

	// CaptureOutcomes counts finished recordings. Use with attribute:
	//   attribute.String("reason", ...)
	CaptureOutcomes metric.Int64Counter

	// ActiveCaptures tracks recordings currently in flight.
	ActiveCaptures metric.Int64UpDownCounter

	// --- Transcription ---

	// EngineDuration tracks the latency of a single recognition engine call.
	// Use with attribute:
	//   attribute.String("engine", ...)
	EngineDuration metric.Float64Histogram

	// TranscriptionDuration tracks end-to-end transcription latency,
	// including all chunks.
	TranscriptionDuration metric.Float64Histogram

	// TranscriptionChunks records how many engine calls each transcription
	// needed.
	TranscriptionChunks metric.Int64Histogram

	// EngineErrors counts failed engine calls. Use with attribute:
	//   attribute.String("engine", ...)
	EngineErrors metric.Int64Counter

	// PriorityBoosts counts scheduling-priority adjustments. Use with attribute:
	//   attribute.String("status", ...) // "ok", "unsupported", "error"
	PriorityBoosts metric.Int64Counter

	// --- Scoring ---

	// WordErrorRate records WER on a 0–100 scale.
	WordErrorRate metric.Float64Histogram

	// WordsPerMinute records speaking speed.
	WordsPerMinute metric.Int64Histogram

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks metrics listener latency. Use with attributes:
	//   attribute.String("route", ...) // the ServeMux pattern, e.g. "GET /readyz"
	//   attribute.String("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// Bucket boundaries. Engine calls range from sub-second server round trips
// to long CPU inference; recordings from a single word to a paragraph.
var (
	latencyBuckets   = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	recordingBuckets = []float64{1, 2, 3, 5, 8, 10, 15, 20, 30, 60}
	chunkBuckets     = []float64{1, 2, 3, 4, 6, 8, 12}
	werBuckets       = []float64{0, 5, 10, 20, 30, 50, 75, 100}
	wpmBuckets       = []float64{30, 60, 90, 120, 150, 180, 240}
)

// instruments creates instruments on one meter and collects creation errors
// so NewMetrics can check them once.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (in *instruments) seconds(name, desc string, buckets []float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := in.meter.Float64Histogram(name, opts...)
	in.errs = append(in.errs, err)
	return h
}

func (in *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc))
	in.errs = append(in.errs, err)
	return c
}

func (in *instruments) distribution(name, desc, unit string, buckets []float64) metric.Int64Histogram {
	opts := []metric.Int64HistogramOption{metric.WithDescription(desc), metric.WithExplicitBucketBoundaries(buckets...)}
	if unit != "" {
		opts = append(opts, metric.WithUnit(unit))
	}
	h, err := in.meter.Int64Histogram(name, opts...)
	in.errs = append(in.errs, err)
	return h
}

// NewMetrics creates every speakcheck instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	in := &instruments{meter: mp.Meter(meterName)}

	active, err := in.meter.Int64UpDownCounter("speakcheck.active_captures",
		metric.WithDescription("Number of recordings in flight."))
	in.errs = append(in.errs, err)
	wer, err := in.meter.Float64Histogram("speakcheck.score.wer",
		metric.WithDescription("Word error rate of scored attempts (0-100)."),
		metric.WithUnit("%"),
		metric.WithExplicitBucketBoundaries(werBuckets...))
	in.errs = append(in.errs, err)

	met := &Metrics{
		CaptureDuration: in.seconds("speakcheck.capture.duration",
			"Audio length of finished recordings.", recordingBuckets),
		CaptureOutcomes: in.counter("speakcheck.capture.outcomes",
			"Finished recordings by termination reason."),
		ActiveCaptures: active,

		EngineDuration: in.seconds("speakcheck.engine.duration",
			"Latency of a single recognition engine call.", latencyBuckets),
		TranscriptionDuration: in.seconds("speakcheck.transcription.duration",
			"End-to-end transcription latency across all chunks.", latencyBuckets),
		TranscriptionChunks: in.distribution("speakcheck.transcription.chunks",
			"Engine calls needed per transcription.", "", chunkBuckets),
		EngineErrors: in.counter("speakcheck.engine.errors",
			"Failed recognition engine calls by engine."),
		PriorityBoosts: in.counter("speakcheck.priority.boosts",
			"Scheduling priority adjustments around engine calls by status."),

		WordErrorRate: wer,
		WordsPerMinute: in.distribution("speakcheck.score.wpm",
			"Words per minute of scored attempts.", "{word}/min", wpmBuckets),

		HTTPRequestDuration: in.seconds("speakcheck.http.request.duration",
			"Metrics listener request latency by route and status.", nil),
	}
	if err := errors.Join(in.errs...); err != nil {
		return nil, fmt.Errorf("observe: create instruments: %w", err)
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide [Metrics] built on the global meter
// provider the first time it is called. Components fall back to it when no
// instance is injected.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		if defaultMetrics, err = NewMetrics(otel.GetMeterProvider()); err != nil {
			panic(err)
		}
	})
	return defaultMetrics
}

// RecordCapture records a finished recording's length and termination reason.
func (m *Metrics) RecordCapture(ctx context.Context, reason string, length time.Duration) {
	m.CaptureOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	m.CaptureDuration.Record(ctx, length.Seconds())
}

// RecordEngineCall records one recognition engine call. A non-nil err also
// increments EngineErrors.
func (m *Metrics) RecordEngineCall(ctx context.Context, engine string, d time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("engine", engine))
	m.EngineDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		m.EngineErrors.Add(ctx, 1, attrs)
	}
}

// RecordPriorityBoost records the outcome of a priority adjustment.
func (m *Metrics) RecordPriorityBoost(ctx context.Context, status string) {
	m.PriorityBoosts.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordScore records a scored attempt.
func (m *Metrics) RecordScore(ctx context.Context, wpm int, wer float64) {
	m.WordsPerMinute.Record(ctx, int64(wpm))
	m.WordErrorRate.Record(ctx, wer)
}
