package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	TasksEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_enqueued_total",
			Help: "Total number of pipeline tasks enqueued",
		},
		[]string{"type"},
	)
	TasksCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_completed_total",
			Help: "Total number of pipeline tasks completed",
		},
		[]string{"type"},
	)
	TasksFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_failed_total",
			Help: "Total number of pipeline tasks failed terminally",
		},
		[]string{"type", "error_code"},
	)

	AdapterCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adapter_calls_total",
			Help: "Total number of video model adapter calls",
		},
		[]string{"model", "operation"},
	)
	AdapterCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adapter_call_duration_seconds",
			Help:    "Video model adapter call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 180},
		},
		[]string{"model", "operation"},
	)

	// Render outcome distribution: how many segments each render regenerated.
	RenderRegenerationSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "render_regeneration_set_size",
			Help:    "Distribution of regeneration-set sizes per render job",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(TasksEnqueuedTotal)
	prometheus.MustRegister(TasksCompletedTotal)
	prometheus.MustRegister(TasksFailedTotal)
	prometheus.MustRegister(AdapterCallsTotal)
	prometheus.MustRegister(AdapterCallDuration)
	prometheus.MustRegister(RenderRegenerationSize)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
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

func EnqueueTask(taskType string) {
	TasksEnqueuedTotal.WithLabelValues(taskType).Inc()
}

func TaskCompleted(taskType string) {
	TasksCompletedTotal.WithLabelValues(taskType).Inc()
}

func TaskFailed(taskType, errorCode string) {
	TasksFailedTotal.WithLabelValues(taskType, errorCode).Inc()
}

// ObserveAdapterCall records one adapter round-trip.
func ObserveAdapterCall(model, operation string, elapsed time.Duration) {
	AdapterCallsTotal.WithLabelValues(model, operation).Inc()
	AdapterCallDuration.WithLabelValues(model, operation).Observe(elapsed.Seconds())
}

// ObserveRegenerationSize records how much of the timeline a render rebuilt.
func ObserveRegenerationSize(n int) {
	RenderRegenerationSize.Observe(float64(n))
}
