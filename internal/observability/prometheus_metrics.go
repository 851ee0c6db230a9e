package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts HTTP requests by route, method, and status label.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration records request durations by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// JobsEnqueuedTotal counts jobs enqueued by pipeline name.
	JobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowerpower_jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"pipeline", "queue"},
	)
	// JobsProcessing is a gauge of the number of currently processing jobs by pipeline.
	JobsProcessing = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flowerpower_jobs_processing",
			Help: "Number of jobs currently processing",
		},
		[]string{"pipeline"},
	)
	// JobsCompletedTotal counts jobs completed by pipeline name.
	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowerpower_jobs_completed_total",
			Help: "Total number of jobs completed",
		},
		[]string{"pipeline"},
	)
	// JobsFailedTotal counts jobs failed by pipeline name.
	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowerpower_jobs_failed_total",
			Help: "Total number of jobs failed",
		},
		[]string{"pipeline"},
	)
	// JobRetriesTotal counts retry attempts by pipeline name.
	JobRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowerpower_job_retries_total",
			Help: "Total number of job retry attempts",
		},
		[]string{"pipeline"},
	)
	// QueueDepth is a gauge of pending jobs per queue.
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flowerpower_queue_depth",
			Help: "Number of pending jobs per queue",
		},
		[]string{"queue"},
	)
	// PipelineRunDuration records pipeline execution durations by name and outcome.
	PipelineRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowerpower_pipeline_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"pipeline", "outcome"},
	)
	// ScheduleFiresTotal counts schedule trigger events by pipeline name.
	ScheduleFiresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowerpower_schedule_fires_total",
			Help: "Total number of schedule fire events",
		},
		[]string{"pipeline"},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(JobsEnqueuedTotal)
	prometheus.MustRegister(JobsProcessing)
	prometheus.MustRegister(JobsCompletedTotal)
	prometheus.MustRegister(JobsFailedTotal)
	prometheus.MustRegister(JobRetriesTotal)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(PipelineRunDuration)
	prometheus.MustRegister(ScheduleFiresTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// EnqueueJob increments the enqueued jobs counter for pipeline on queue.
func EnqueueJob(pipeline, queue string) {
	JobsEnqueuedTotal.WithLabelValues(pipeline, queue).Inc()
}

// StartProcessingJob increments the processing gauge for pipeline.
func StartProcessingJob(pipeline string) {
	JobsProcessing.WithLabelValues(pipeline).Inc()
}

// CompleteJob marks a job complete: decrements processing gauge, increments
// completed counter, and records its run duration.
func CompleteJob(pipeline string, dur time.Duration) {
	JobsProcessing.WithLabelValues(pipeline).Dec()
	JobsCompletedTotal.WithLabelValues(pipeline).Inc()
	PipelineRunDuration.WithLabelValues(pipeline, "success").Observe(dur.Seconds())
}

// FailJob marks a job failed: decrements processing gauge, increments failed
// counter, and records its run duration.
func FailJob(pipeline string, dur time.Duration) {
	JobsProcessing.WithLabelValues(pipeline).Dec()
	JobsFailedTotal.WithLabelValues(pipeline).Inc()
	PipelineRunDuration.WithLabelValues(pipeline, "failure").Observe(dur.Seconds())
}

// RecordRetry increments the retry counter for pipeline.
func RecordRetry(pipeline string) {
	JobRetriesTotal.WithLabelValues(pipeline).Inc()
}

// RecordQueueDepth sets the current pending-job count for queue.
func RecordQueueDepth(queue string, depth int) {
	QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordScheduleFire increments the schedule-fire counter for pipeline.
func RecordScheduleFire(pipeline string) {
	ScheduleFiresTotal.WithLabelValues(pipeline).Inc()
}
