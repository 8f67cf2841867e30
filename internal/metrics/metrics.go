package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reasons a chunk never reaches the streaming service.
const (
	DropNoConsumer = "no_consumer"
	DropInactive   = "inactive"
)

// Metrics contains all Prometheus metrics for the transcription relay
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	ActiveSessions     prometheus.Gauge
	SessionsStarted    prometheus.Counter
	StreamStartFailure prometheus.Counter
	StreamErrors       prometheus.Counter

	// Audio metrics
	ChunksReceived     prometheus.Counter
	ChunksDelivered    prometheus.Counter
	ChunksDropped      *prometheus.CounterVec
	Float32Conversions prometheus.Counter
	ChunkBytes         prometheus.Histogram

	// Transcript metrics
	Transcripts         *prometheus.CounterVec
	PersistenceFailures prometheus.Counter
}

// NewMetrics creates all metrics on a private registry, so several instances
// can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_sessions",
			Help: "Current number of connected transcription sockets",
		}),
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_streams_started_total",
			Help: "Total number of streaming transcriptions started",
		}),
		StreamStartFailure: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_stream_start_failures_total",
			Help: "Total number of failed streaming transcription starts",
		}),
		StreamErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_stream_errors_total",
			Help: "Total number of result streams that ended with an error",
		}),

		ChunksReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_chunks_received_total",
			Help: "Total number of binary audio frames received from clients",
		}),
		ChunksDelivered: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_chunks_delivered_total",
			Help: "Total number of audio chunks handed to a waiting consumer",
		}),
		ChunksDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_chunks_dropped_total",
			Help: "Total number of audio chunks dropped before the streaming service",
		}, []string{"reason"}),
		Float32Conversions: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_float32_conversions_total",
			Help: "Total number of chunks converted from float32 to int16 PCM",
		}),
		ChunkBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_chunk_bytes",
			Help:    "Size of received audio frames in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 2, 9),
		}),

		Transcripts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_transcripts_total",
			Help: "Total number of transcript results forwarded to clients",
		}, []string{"kind"}),
		PersistenceFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_persistence_failures_total",
			Help: "Total number of failed transcript file writes",
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTranscript counts one forwarded transcript result.
func (m *Metrics) ObserveTranscript(partial bool) {
	kind := "final"
	if partial {
		kind = "partial"
	}
	m.Transcripts.WithLabelValues(kind).Inc()
}
