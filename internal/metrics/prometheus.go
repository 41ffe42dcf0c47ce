package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors for the transcription service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Recognition metrics
	ChunksProcessed     prometheus.Counter
	RecognitionMisses   prometheus.Counter
	RecognitionFailures prometheus.Counter
	RecognitionDuration prometheus.Histogram
	ChunkDuration       prometheus.Histogram

	// Translation metrics
	Translations        *prometheus.CounterVec
	TranslationDuration prometheus.Histogram

	// Job metrics
	JobsFinished *prometheus.CounterVec
	DecodeErrors prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChunksProcessed: f.NewCounter(prometheus.CounterOpts{
			Name: "scribe_chunks_processed_total",
			Help: "Total number of audio chunks sent to the recognizer",
		}),
		RecognitionMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "scribe_recognition_misses_total",
			Help: "Chunks where no speech was recognized",
		}),
		RecognitionFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "scribe_recognition_failures_total",
			Help: "Recognition requests that failed and aborted a transcription",
		}),
		RecognitionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_recognition_duration_seconds",
			Help:    "Latency of a single recognition request",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		}),
		ChunkDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_chunk_audio_seconds",
			Help:    "Audio duration of processed chunks",
			Buckets: []float64{1, 5, 10, 20, 30, 60},
		}),
		Translations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_translations_total",
			Help: "Translation requests by engine and outcome",
		}, []string{"engine", "outcome"}),
		TranslationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_translation_duration_seconds",
			Help:    "Latency of translation requests",
			Buckets: prometheus.DefBuckets,
		}),
		JobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_jobs_finished_total",
			Help: "Jobs by final status",
		}, []string{"status"}),
		DecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "scribe_decode_errors_total",
			Help: "Uploads that could not be decoded",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scribe_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RecordChunk records one recognized chunk and whether it was a miss.
func (m *Metrics) RecordChunk(audioSeconds, requestSeconds float64, miss bool) {
	if m == nil {
		return
	}
	m.ChunksProcessed.Inc()
	m.ChunkDuration.Observe(audioSeconds)
	m.RecognitionDuration.Observe(requestSeconds)
	if miss {
		m.RecognitionMisses.Inc()
	}
}

// RecordRecognitionFailure records a fatal recognition error
func (m *Metrics) RecordRecognitionFailure(requestSeconds float64) {
	if m == nil {
		return
	}
	m.RecognitionFailures.Inc()
	m.RecognitionDuration.Observe(requestSeconds)
}

// RecordTranslation records a translation outcome ("ok" or "error")
func (m *Metrics) RecordTranslation(engine, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Translations.WithLabelValues(engine, outcome).Inc()
	m.TranslationDuration.Observe(seconds)
}

// RecordJobFinished increments the per-status job counter
func (m *Metrics) RecordJobFinished(status string) {
	if m == nil {
		return
	}
	m.JobsFinished.WithLabelValues(status).Inc()
}

// RecordDecodeError increments the decode error counter
func (m *Metrics) RecordDecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, route, statusCode string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}
