package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sizefit_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sizefit_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Resize metrics
	ResizesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sizefit_resizes_total",
			Help: "Total number of resize operations by outcome",
		},
		[]string{"format", "outcome"}, // within_tolerance, under_target, floor, error
	)

	ResizeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sizefit_resize_duration_seconds",
			Help:    "Resize duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"strategy"}, // scale, quality_scale, fixed
	)

	ResizeBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sizefit_resize_bytes",
			Help:    "Resize input/output bytes",
			Buckets: []float64{1024, 10240, 102400, 512000, 1048576, 5242880, 10485760},
		},
		[]string{"direction"}, // input, output
	)

	SearchProbes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sizefit_search_probes",
			Help:    "Encode calls made by one size search",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"strategy"},
	)

	// Queue/Pool metrics
	WorkerPoolQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sizefit_worker_pool_queue_size",
			Help: "Current number of jobs in worker pool queue",
		},
	)

	WorkerPoolActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sizefit_worker_pool_active_jobs",
			Help: "Current number of resize jobs being processed",
		},
	)

	// Rate limiting metrics
	RateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sizefit_rate_limit_exceeded_total",
			Help: "Total number of requests rejected due to rate limiting",
		},
		[]string{"ip_prefix"}, // First octet for privacy
	)

	// Concurrency metrics
	ConcurrentRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sizefit_concurrent_requests",
			Help: "Current number of concurrent requests being processed",
		},
	)

	ConcurrencyLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sizefit_concurrency_limit_exceeded_total",
			Help: "Total number of requests rejected due to concurrency limit",
		},
	)

	// Memory metrics
	BufferPoolHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sizefit_buffer_pool_hits_total",
			Help: "Total number of encode buffer pool hits",
		},
		[]string{"size"}, // small, medium, large
	)

	BufferPoolMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sizefit_buffer_pool_misses_total",
			Help: "Total number of encode buffer pool misses",
		},
		[]string{"size"},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, duration float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordResize records a finished resize
func RecordResize(format, outcome, strategy string, duration float64, inputBytes, outputBytes, probes int) {
	ResizesTotal.WithLabelValues(format, outcome).Inc()
	ResizeDuration.WithLabelValues(strategy).Observe(duration)
	ResizeBytes.WithLabelValues("input").Observe(float64(inputBytes))
	ResizeBytes.WithLabelValues("output").Observe(float64(outputBytes))
	SearchProbes.WithLabelValues(strategy).Observe(float64(probes))
}

// RecordResizeError records a resize that returned an error
func RecordResizeError(format string) {
	ResizesTotal.WithLabelValues(format, "error").Inc()
}

// UpdateWorkerPoolMetrics updates worker pool metrics
func UpdateWorkerPoolMetrics(queueSize, activeJobs int) {
	WorkerPoolQueueSize.Set(float64(queueSize))
	WorkerPoolActiveJobs.Set(float64(activeJobs))
}

// RecordRateLimitExceeded records a rate limit rejection
func RecordRateLimitExceeded(ipPrefix string) {
	RateLimitExceeded.WithLabelValues(ipPrefix).Inc()
}

// UpdateConcurrency updates concurrent request gauge
func UpdateConcurrency(count int) {
	ConcurrentRequests.Set(float64(count))
}

// RecordConcurrencyLimitExceeded records a concurrency limit rejection
func RecordConcurrencyLimitExceeded() {
	ConcurrencyLimitExceeded.Inc()
}

// RecordPoolHit records a buffer pool hit
func RecordPoolHit(size string) {
	BufferPoolHits.WithLabelValues(size).Inc()
}

// RecordPoolMiss records a buffer pool miss
func RecordPoolMiss(size string) {
	BufferPoolMisses.WithLabelValues(size).Inc()
}
