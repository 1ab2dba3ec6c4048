// Package observe provides application-wide observability primitives for
// Voxcord: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Voxcord metrics.
const meterName = "github.com/voxcord/voxcord"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ConnectDuration tracks how long the full session bring-up takes:
	// voice channel join plus backend handshake. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	ConnectDuration metric.Float64Histogram

	// CapturedAudioBytes counts PCM bytes batched from the voice channel and
	// forwarded to the backend, by guild.
	CapturedAudioBytes metric.Int64Counter

	// PlaybackAudioBytes counts PCM bytes enqueued for channel playback, by
	// guild.
	PlaybackAudioBytes metric.Int64Counter

	// ResponseChunks counts fixed-size reply audio chunks received from the
	// backend, by guild.
	ResponseChunks metric.Int64Counter

	// DecodeErrors counts inbound voice packets that failed to decode.
	DecodeErrors metric.Int64Counter

	// DroppedBatches counts capture batches discarded because the hand-off
	// queue to the backend sender was full.
	DroppedBatches metric.Int64Counter

	// ActiveSessions tracks the number of live voice bridge sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks ops endpoint request processing time. Use
	// with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// connection bring-up and HTTP handling latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ConnectDuration, err = m.Float64Histogram("voxcord.session.connect.duration",
		metric.WithDescription("Latency of voice channel join plus backend handshake."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.CapturedAudioBytes, err = m.Int64Counter("voxcord.audio.captured.bytes",
		metric.WithDescription("PCM bytes captured from the voice channel and sent to the backend."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.PlaybackAudioBytes, err = m.Int64Counter("voxcord.audio.playback.bytes",
		metric.WithDescription("PCM bytes enqueued for voice channel playback."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.ResponseChunks, err = m.Int64Counter("voxcord.backend.response.chunks",
		metric.WithDescription("Fixed-size reply audio chunks received from the backend."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("voxcord.audio.decode.errors",
		metric.WithDescription("Inbound voice packets that failed to decode."),
	); err != nil {
		return nil, err
	}
	if met.DroppedBatches, err = m.Int64Counter("voxcord.audio.dropped.batches",
		metric.WithDescription("Capture batches discarded because the backend hand-off queue was full."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("voxcord.active_sessions",
		metric.WithDescription("Number of live voice bridge sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voxcord.http.request.duration",
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

// RecordConnect records one session bring-up attempt.
func (m *Metrics) RecordConnect(ctx context.Context, seconds float64, status string) {
	m.ConnectDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordCapturedAudio records PCM bytes forwarded to the backend.
func (m *Metrics) RecordCapturedAudio(ctx context.Context, guildID string, bytes int) {
	m.CapturedAudioBytes.Add(ctx, int64(bytes),
		metric.WithAttributes(attribute.String("guild_id", guildID)),
	)
}

// RecordPlaybackAudio records PCM bytes enqueued for playback, and the
// response chunk that carried them.
func (m *Metrics) RecordPlaybackAudio(ctx context.Context, guildID string, bytes int) {
	attrs := metric.WithAttributes(attribute.String("guild_id", guildID))
	m.PlaybackAudioBytes.Add(ctx, int64(bytes), attrs)
	m.ResponseChunks.Add(ctx, 1, attrs)
}

// RecordDecodeError records one undecodable inbound voice packet.
func (m *Metrics) RecordDecodeError(ctx context.Context, guildID string) {
	m.DecodeErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("guild_id", guildID)),
	)
}

// RecordDroppedBatch records one capture batch lost to backpressure.
func (m *Metrics) RecordDroppedBatch(ctx context.Context, guildID string) {
	m.DroppedBatches.Add(ctx, 1,
		metric.WithAttributes(attribute.String("guild_id", guildID)),
	)
}
