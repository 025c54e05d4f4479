// Package observe provides application-wide observability primitives for
// VAICCS: OpenTelemetry metrics and HTTP middleware that records them.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all VAICCS metrics.
const meterName = "github.com/dominicskywalkr/VAICCS-sub000"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use, the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// RecognizeDuration tracks the latency of a single recognition pass over
	// the utterance buffer. Use with attribute:
	//   attribute.String("engine", ...)
	RecognizeDuration metric.Float64Histogram

	// MatchDuration tracks speaker identification latency against the stored
	// voice profiles.
	MatchDuration metric.Float64Histogram

	// PostprocessDuration tracks the latency of the transcript
	// post-processing chain (redaction, correction, punctuation).
	PostprocessDuration metric.Float64Histogram

	// --- Counters ---

	// ChunksIngested counts audio chunks accepted into the ingest queue.
	ChunksIngested metric.Int64Counter

	// ChunksDropped counts audio chunks discarded because the ingest queue
	// was full.
	ChunksDropped metric.Int64Counter

	// Utterances counts finalized utterances. Use with attribute:
	//   attribute.String("speaker", ...)
	Utterances metric.Int64Counter

	// Captions counts emitted caption events. Use with attribute:
	//   attribute.String("kind", ...) ("utterance", "heartbeat", "fatal")
	Captions metric.Int64Counter

	// --- Error counters ---

	// EngineErrors counts recognition engine failures. Use with attribute:
	//   attribute.String("engine", ...)
	EngineErrors metric.Int64Counter

	// SinkErrors counts caption delivery failures. Use with attribute:
	//   attribute.String("sink", ...)
	SinkErrors metric.Int64Counter

	// JournalErrors counts caption journal write failures.
	JournalErrors metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks the number of audio chunks waiting in the ingest
	// queue.
	QueueDepth metric.Int64Gauge

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for caption-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RecognizeDuration, err = m.Float64Histogram("vaiccs.recognize.duration",
		metric.WithDescription("Latency of one recognition pass over the utterance buffer."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MatchDuration, err = m.Float64Histogram("vaiccs.match.duration",
		metric.WithDescription("Latency of speaker identification against stored profiles."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PostprocessDuration, err = m.Float64Histogram("vaiccs.postprocess.duration",
		metric.WithDescription("Latency of the transcript post-processing chain."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ChunksIngested, err = m.Int64Counter("vaiccs.audio.ingested",
		metric.WithDescription("Total audio chunks accepted into the ingest queue."),
	); err != nil {
		return nil, err
	}
	if met.ChunksDropped, err = m.Int64Counter("vaiccs.audio.dropped",
		metric.WithDescription("Total audio chunks discarded because the ingest queue was full."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("vaiccs.utterances",
		metric.WithDescription("Total finalized utterances by speaker."),
	); err != nil {
		return nil, err
	}
	if met.Captions, err = m.Int64Counter("vaiccs.captions",
		metric.WithDescription("Total emitted caption events by kind."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.EngineErrors, err = m.Int64Counter("vaiccs.engine.errors",
		metric.WithDescription("Total recognition engine failures by engine."),
	); err != nil {
		return nil, err
	}
	if met.SinkErrors, err = m.Int64Counter("vaiccs.sink.errors",
		metric.WithDescription("Total caption delivery failures by sink."),
	); err != nil {
		return nil, err
	}
	if met.JournalErrors, err = m.Int64Counter("vaiccs.journal.errors",
		metric.WithDescription("Total caption journal write failures."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.QueueDepth, err = m.Int64Gauge("vaiccs.queue.depth",
		metric.WithDescription("Number of audio chunks waiting in the ingest queue."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("vaiccs.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordUtterance is a convenience method that records one finalized
// utterance attributed to the given speaker label.
func (m *Metrics) RecordUtterance(ctx context.Context, speaker string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("speaker", speaker)),
	)
}

// RecordCaption is a convenience method that records one emitted caption
// event of the given kind ("utterance", "heartbeat", "fatal").
func (m *Metrics) RecordCaption(ctx context.Context, kind string) {
	m.Captions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordEngineError is a convenience method that records a recognition
// engine failure.
func (m *Metrics) RecordEngineError(ctx context.Context, engine string) {
	m.EngineErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("engine", engine)),
	)
}

// RecordSinkError is a convenience method that records a caption delivery
// failure for the named sink.
func (m *Metrics) RecordSinkError(ctx context.Context, sink string) {
	m.SinkErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("sink", sink)),
	)
}

// RecordQueueDepth records the current ingest queue depth.
func (m *Metrics) RecordQueueDepth(ctx context.Context, depth int) {
	m.QueueDepth.Record(ctx, int64(depth))
}
