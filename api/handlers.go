package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"oee-dashboard/analysis"
	"oee-dashboard/config"
	"oee-dashboard/database"
	"oee-dashboard/etl"
	"oee-dashboard/mart"
)

// Handler holds dependencies for HTTP handlers.
// db, repo, martBuilder and ingestor may be nil; their endpoints then answer 503.
type Handler struct {
	db          *database.DB
	repo        *database.Repository
	cfg         *config.Config
	store       *database.Store
	martBuilder *mart.MartBuilder
	analyzer    *analysis.Analyzer
	ingestor    *etl.DataIngestor
	logger      *zap.Logger
}

// NewHandler creates a new handler instance
func NewHandler(db *database.DB, repo *database.Repository, cfg *config.Config, martBuilder *mart.MartBuilder, analyzer *analysis.Analyzer, ingestor *etl.DataIngestor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		db:          db,
		repo:        repo,
		cfg:         cfg,
		store:       analyzer.Store(),
		martBuilder: martBuilder,
		analyzer:    analyzer,
		ingestor:    ingestor,
		logger:      logger.Named("api"),
	}
}

// HealthCheck returns API health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			respondError(w, http.StatusServiceUnavailable, "app database health check failed")
			return
		}
	}

	snap := h.store.Snapshot()
	workers, queued := h.analyzer.PoolStatus()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"revision": snap.Revision,
		"workers":  map[string]int{"size": workers, "queued": queued},
		"stats": map[string]int{
			"production":         len(snap.Production),
			"downtime":           len(snap.Downtime),
			"defects":            len(snap.Defects),
			"machines":           len(snap.Machines),
			"maintenance_orders": len(snap.MaintenanceOrders),
			"spare_parts":        len(snap.SpareParts),
		},
	})
}

// IngestData handles data ingestion requests
func (h *Handler) IngestData(w http.ResponseWriter, r *http.Request) {
	if h.ingestor == nil {
		respondError(w, http.StatusServiceUnavailable, "ingestion is not configured")
		return
	}

	var req struct {
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	startTime, err := parseTime(req.StartTime)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid start_time format")
		return
	}
	endTime, err := parseTime(req.EndTime)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid end_time format")
		return
	}

	counts, err := h.ingestor.IngestData(r.Context(), startTime, endTime)
	if err != nil {
		if errors.Is(err, database.ErrInvalidRange) || errors.Is(err, database.ErrInvalidRecord) {
			respondStoreError(w, err)
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("ingestion failed: %v", err))
		return
	}
	h.recordMutation("ingest")

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "success",
		"records_inserted": counts,
	})
}

// RefreshMart handles production_oee mart refresh requests
func (h *Handler) RefreshMart(w http.ResponseWriter, r *http.Request) {
	if h.martBuilder == nil {
		respondError(w, http.StatusServiceUnavailable, "mart is not configured")
		return
	}

	stats, err := h.martBuilder.Refresh(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("mart refresh failed: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "success",
		"duration_ms": stats.DurationMs,
		"stats":       stats,
	})
}

// GetMartStats returns statistics of the last mart refresh
func (h *Handler) GetMartStats(w http.ResponseWriter, r *http.Request) {
	if h.martBuilder == nil {
		respondError(w, http.StatusServiceUnavailable, "mart is not configured")
		return
	}
	stats, err := h.martBuilder.GetMartStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read mart stats: %v", err))
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// GetMartDailyLine returns the daily per-line rollup from the mart
func (h *Handler) GetMartDailyLine(w http.ResponseWriter, r *http.Request) {
	if h.martBuilder == nil {
		respondError(w, http.StatusServiceUnavailable, "mart is not configured")
		return
	}
	rows, err := h.martBuilder.DailyLine(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":  rows,
		"count": len(rows),
	})
}

// CleanupData removes expired cache entries and old jobs and query logs
func (h *Handler) CleanupData(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		respondError(w, http.StatusServiceUnavailable, "app database is not configured")
		return
	}
	deleted, err := h.repo.CleanupOldData(h.cfg.DataRetentionDays)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("cleanup failed: %v", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"deleted": deleted,
	})
}

// GetQueryLogs returns the most recent dashboard computations
func (h *Handler) GetQueryLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	logs, err := h.analyzer.RecentQueries(limit)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":  logs,
		"count": len(logs),
	})
}

// ConfigUpdateRequest represents the body for config updates
type ConfigUpdateRequest struct {
	Analysis struct {
		TopNLimit int `json:"top_n_limit"`
		TrendDays int `json:"trend_days"`
	} `json:"analysis"`
}

// GetConfig returns the editable configuration
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"analysis":  h.cfg.AnalysisSettings(),
		"scheduler": h.cfg.Scheduler,
		"areas":     h.areaTable(),
	})
}

// UpdateConfig updates analysis settings
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.cfg.UpdateAnalysisSettings(req.Analysis.TopNLimit, req.Analysis.TrendDays); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to update analysis settings: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "success",
		"analysis": h.cfg.AnalysisSettings(),
	})
}

func (h *Handler) areaTable() map[string][]string {
	if h.cfg.AreaManager == nil {
		return h.cfg.Areas
	}
	return h.cfg.AreaManager.GetAll()
}

// GetAreas returns the area -> lines table
func (h *Handler) GetAreas(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.areaTable())
}

// UpdateAreas replaces the area -> lines table
func (h *Handler) UpdateAreas(w http.ResponseWriter, r *http.Request) {
	if h.cfg.AreaManager == nil {
		respondError(w, http.StatusServiceUnavailable, "area config is not configured")
		return
	}
	var areas map[string][]string
	if err := json.NewDecoder(r.Body).Decode(&areas); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.cfg.AreaManager.Save(areas); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.cfg.AreaManager.GetAll())
}

// parseTime accepts RFC3339 timestamps or plain YYYY-MM-DD dates
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// respondJSON sends a JSON response. The body is encoded before the status is
// written so an unencodable value turns into a 500 instead of an empty 200.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		body, _ = json.Marshal(errorBody{Error: fmt.Sprintf("failed to encode response: %v", err), Code: "Internal"})
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

// errorBody is the JSON error envelope
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorBody{Error: message, Code: httpCode(status)})
}

func httpCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BadRequest"
	case http.StatusNotFound:
		return "NotFound"
	case http.StatusConflict:
		return "Conflict"
	case http.StatusServiceUnavailable:
		return "Unavailable"
	}
	return "Internal"
}

// classifyError maps the error taxonomy onto an HTTP status and code
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, database.ErrInvalidRecord):
		return http.StatusBadRequest, "InvalidRecord"
	case errors.Is(err, database.ErrInvalidRange):
		return http.StatusBadRequest, "InvalidRange"
	case errors.Is(err, database.ErrInvalidFilter):
		return http.StatusBadRequest, "InvalidFilter"
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound, "NotFound"
	case errors.Is(err, database.ErrInconsistentScope):
		return http.StatusUnprocessableEntity, "InconsistentScope"
	case errors.Is(err, analysis.ErrAsyncUnavailable):
		return http.StatusServiceUnavailable, "Unavailable"
	}
	return http.StatusInternalServerError, "Internal"
}

func respondStoreError(w http.ResponseWriter, err error) {
	status, code := classifyError(err)
	respondJSON(w, status, errorBody{Error: err.Error(), Code: code})
}
