// Package metrics exposes Prometheus instrumentation for the gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "xtts"

// Metrics holds every collector of the process on its own registry, so
// several instances can coexist in one test binary.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	syntheses     *prometheus.CounterVec
	synthDuration prometheus.Histogram
	audioSeconds  prometheus.Histogram
	queueWait     prometheus.Histogram
	workerJobs    *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route, method and status code.",
			},
			[]string{"route", "method", "code"},
		),

		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		syntheses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "syntheses_total",
				Help:      "Synthesis requests by outcome (ok, invalid_input, internal).",
			},
			[]string{"outcome"},
		),

		synthDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "synthesis_duration_seconds",
				Help:      "Wall time of a synthesis request, queueing included.",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
			},
		),

		audioSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generated_audio_seconds",
				Help:      "Length of generated waveforms.",
				Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
			},
		),

		queueWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "engine_queue_wait_seconds",
				Help:      "Time spent waiting for the engine to become free.",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
		),

		workerJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_jobs_total",
				Help:      "NATS synthesis jobs by outcome.",
			},
			[]string{"outcome"},
		),
	}

	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.syntheses,
		m.synthDuration,
		m.audioSeconds,
		m.queueWait,
		m.workerJobs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(route, method string, code int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveSynthesis records the outcome of one gateway synthesis.
func (m *Metrics) ObserveSynthesis(outcome string, elapsed time.Duration, audioLength time.Duration) {
	m.syntheses.WithLabelValues(outcome).Inc()
	m.synthDuration.Observe(elapsed.Seconds())

	if audioLength > 0 {
		m.audioSeconds.Observe(audioLength.Seconds())
	}
}

// ObserveQueueWait records how long a call waited for the engine.
func (m *Metrics) ObserveQueueWait(wait time.Duration) {
	m.queueWait.Observe(wait.Seconds())
}

// ObserveWorkerJob records the outcome of one NATS job.
func (m *Metrics) ObserveWorkerJob(outcome string) {
	m.workerJobs.WithLabelValues(outcome).Inc()
}
