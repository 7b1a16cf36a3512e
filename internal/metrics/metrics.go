// Package metrics exposes Prometheus instrumentation for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counters and gauges. Registered once on the default registry
// at package init; all pipeline instances share them.
var (
	// Audio path
	FramesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rt_audio_frames_captured_total",
		Help: "Total audio frames received from the capture backend",
	})
	FramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rt_audio_frames_sent_total",
		Help: "Total encoded audio frames transmitted to the recognition socket",
	})
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rt_audio_frames_dropped_total",
		Help: "Total audio frames dropped while the socket was not open",
	})
	BytesEncoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rt_audio_bytes_encoded_total",
		Help: "Total PCM16 bytes produced by the encoder",
	})

	// Recognition session
	SessionConnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rt_session_connects_total",
		Help: "Total successful recognition socket opens",
	})
	SessionReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rt_session_reconnects_total",
		Help: "Total reconnect attempts after abnormal close",
	})
	Transcripts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rt_transcripts_total",
		Help: "Total transcript events by kind",
	}, []string{"kind"})

	// Translation queue
	BatchesDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rt_translation_batches_total",
		Help: "Total translation batches dispatched",
	})
	BatchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rt_translation_batch_retries_total",
		Help: "Total translation batches requeued after a retryable failure",
	})
	RequestsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rt_translation_requests_pending",
		Help: "Translation requests currently waiting in the queue",
	})
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rt_translation_cache_hits_total",
		Help: "Translation requests answered from the local cache",
	})
)
