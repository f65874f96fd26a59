package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the processing service. All metrics share
// the shorts_creator_ prefix.
var (
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shorts_creator_jobs_total",
		Help: "Total processing jobs by terminal outcome.",
	}, []string{"outcome"})

	JobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shorts_creator_jobs_in_flight",
		Help: "Number of jobs currently being processed (0 or 1).",
	})

	SegmentsExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shorts_creator_segments_extracted_total",
		Help: "Total video segments successfully extracted.",
	})

	JobDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shorts_creator_job_duration_seconds",
		Help:    "Wall-clock duration of completed jobs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	HardwareEncoderAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shorts_creator_hardware_encoder_available",
		Help: "Whether the NVENC hardware encoder was detected (1 or 0).",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shorts_creator_http_requests_total",
		Help: "HTTP requests served, by method, route pattern, and status.",
	}, []string{"method", "path", "status"})
)
