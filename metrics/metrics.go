package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oee_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oee_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	dashboardLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oee_dashboard_compute_seconds",
			Help:    "Dashboard aggregation latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	dashboardRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oee_dashboard_requests_total",
			Help: "Asynchronous dashboard requests by outcome.",
		},
		[]string{"outcome"},
	)
	storeMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oee_store_mutations_total",
			Help: "Record store mutations by entity.",
		},
		[]string{"entity"},
	)
	storeRevision = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oee_store_revision",
			Help: "Current record store revision.",
		},
	)
	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oee_scheduled_job_runs_total",
			Help: "Ingest, mart and cleanup runs by job and status.",
		},
		[]string{"job", "status"},
	)

	registerOnce sync.Once
)

// Register adds the collectors to the default registry; later calls are no-ops
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpLatency, dashboardLatency, dashboardRequests,
			storeMutations, storeRevision, jobRuns)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records request count and latency labelled by the matched route template
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)

		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		status := strconv.Itoa(lrw.statusCode)
		httpRequests.WithLabelValues(r.Method, route, status).Inc()
		httpLatency.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

func ObserveDashboard(status string, d time.Duration) {
	dashboardLatency.WithLabelValues(status).Observe(d.Seconds())
}

func IncDashboardRequest(outcome string) {
	dashboardRequests.WithLabelValues(outcome).Inc()
}

func IncStoreMutation(entity string, revision uint64) {
	storeMutations.WithLabelValues(entity).Inc()
	storeRevision.Set(float64(revision))
}

func IncJobRun(job, status string) {
	jobRuns.WithLabelValues(job, status).Inc()
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Flush keeps streaming handlers working behind the middleware
func (w *statusResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
