package api

import (
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"oee-dashboard/metrics"
)

// SetupRouter creates and configures the HTTP router
func SetupRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(metrics.Instrument)

	// Health check
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/api/health", h.HealthCheck).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	// Data management endpoints
	r.HandleFunc("/api/ingest", h.IngestData).Methods("POST")
	r.HandleFunc("/api/mart/refresh", h.RefreshMart).Methods("POST")
	r.HandleFunc("/api/mart/stats", h.GetMartStats).Methods("GET")
	r.HandleFunc("/api/mart/daily-line", h.GetMartDailyLine).Methods("GET")
	r.HandleFunc("/api/cleanup", h.CleanupData).Methods("POST")

	// Config Management
	r.HandleFunc("/api/config", h.GetConfig).Methods("GET")
	r.HandleFunc("/api/config", h.UpdateConfig).Methods("PUT")
	r.HandleFunc("/api/areas", h.GetAreas).Methods("GET")
	r.HandleFunc("/api/areas", h.UpdateAreas).Methods("PUT")

	// Dashboard endpoints
	dash := r.PathPrefix("/api/dashboard").Subrouter()
	dash.HandleFunc("", h.GetDashboard).Methods("GET")
	dash.HandleFunc("/stream", h.DashboardStream).Methods("POST")
	dash.HandleFunc("/queries", h.GetQueryLogs).Methods("GET")
	dash.HandleFunc("/requests", h.RequestDashboard).Methods("POST")
	dash.HandleFunc("/requests/{jobId}", h.GetDashboardJob).Methods("GET")
	dash.HandleFunc("/sessions/{sessionId}/latest", h.GetLatestDashboard).Methods("GET")

	// Charts
	r.HandleFunc("/api/charts/trend.png", h.TrendChart).Methods("GET")
	r.HandleFunc("/api/charts/pareto/{kind}.png", h.ParetoChart).Methods("GET")
	r.HandleFunc("/api/charts/heatmap.svg", h.HeatmapChart).Methods("GET")
	r.HandleFunc("/api/charts/export.zip", h.ExportCharts).Methods("GET")

	// Production corrections
	r.HandleFunc("/api/production/{id}/defect-corrections", h.RecordDefectCorrection).Methods("POST")
	r.HandleFunc("/api/production/{id}/defect-corrections", h.GetDefectCorrections).Methods("GET")

	// Defects
	r.HandleFunc("/api/defects", h.ListDefects).Methods("GET")
	r.HandleFunc("/api/defects", h.CreateDefect).Methods("POST")
	r.HandleFunc("/api/defects/{id}", h.UpdateDefect).Methods("PATCH")

	// Machines
	r.HandleFunc("/api/machines", h.ListMachines).Methods("GET")
	r.HandleFunc("/api/machines", h.CreateMachine).Methods("POST")
	r.HandleFunc("/api/machines/{id}", h.UpdateMachine).Methods("PATCH")
	r.HandleFunc("/api/machines/{id}/toggle", h.ToggleMachine).Methods("POST")

	// Maintenance
	r.HandleFunc("/api/maintenance-orders", h.ListMaintenanceOrders).Methods("GET")
	r.HandleFunc("/api/maintenance-orders", h.CreateMaintenanceOrder).Methods("POST")
	r.HandleFunc("/api/maintenance-orders/{id}", h.UpdateMaintenanceOrder).Methods("PATCH")
	r.HandleFunc("/api/spare-parts", h.ListSpareParts).Methods("GET")
	r.HandleFunc("/api/spare-parts", h.CreateSparePart).Methods("POST")
	r.HandleFunc("/api/spare-parts/{id}", h.UpdateSparePart).Methods("PATCH")

	return r
}

// CORSMiddleware adds CORS headers
func CORSMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return handlers.CORS(
			handlers.AllowedOrigins([]string{"*"}),
			handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		)(next)
	}
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("uri", r.RequestURI),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
