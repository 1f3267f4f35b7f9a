package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DetectionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qdetect_detection_duration_seconds",
			Help:    "Detection latency in seconds by path taken",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
		[]string{"path"},
	)

	DetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdetect_detections_total",
			Help: "Detections by outcome",
		},
		[]string{"outcome"},
	)

	QuestionTypes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdetect_question_types_total",
			Help: "Accepted questions by type",
		},
		[]string{"question_type"},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qdetect_confidence_score",
			Help:    "Confidence of accepted questions",
			Buckets: []float64{0.5, 0.6, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1.0},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdetect_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdetect_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	CacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdetect_cache_evictions_total",
			Help: "Entries evicted to make room",
		},
		[]string{"cache_type"},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qdetect_scheduler_queue_depth",
			Help: "Operations waiting for a concurrency slot",
		},
	)

	ActiveOperations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qdetect_scheduler_active_operations",
			Help: "Operations currently running",
		},
	)

	AdaptiveAdjustments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdetect_adaptive_adjustments_total",
			Help: "Threshold adjustments by direction",
		},
		[]string{"direction"},
	)

	Thresholds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qdetect_threshold",
			Help: "Current adaptive thresholds",
		},
		[]string{"threshold"},
	)

	AnalysisErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qdetect_analysis_errors_total",
			Help: "Analyses that failed and were reported as no question",
		},
	)

	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdetect_events_dropped_total",
			Help: "Events a subscriber was too slow to receive",
		},
		[]string{"kind"},
	)

	SinkFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdetect_sink_failures_total",
			Help: "Event deliveries that failed after retries",
		},
		[]string{"sink"},
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			DetectionDuration,
			DetectionsTotal,
			QuestionTypes,
			ConfidenceScore,
			CacheHits,
			CacheMisses,
			CacheEvictions,
			QueueDepth,
			ActiveOperations,
			AdaptiveAdjustments,
			Thresholds,
			AnalysisErrors,
			EventsDropped,
			SinkFailures,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
