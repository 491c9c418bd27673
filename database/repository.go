package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Dashboard job states
const (
	JobPending    = "pending"
	JobRunning    = "running"
	JobCompleted  = "completed"
	JobFailed     = "failed"
	JobSuperseded = "superseded"
)

// JobStatus tracks one asynchronous dashboard request
type JobStatus struct {
	JobID        string    `json:"jobId"`
	SessionID    string    `json:"sessionId"`
	Generation   uint64    `json:"generation"`
	Status       string    `json:"status"`
	CacheKey     string    `json:"cacheKey,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// QueryLog is one dashboard computation entry
type QueryLog struct {
	ID            int64     `json:"id"`
	RequestTime   time.Time `json:"requestTime"`
	Filter        string    `json:"filter"`
	StoreRevision uint64    `json:"storeRevision"`
	RecordCount   int       `json:"recordCount"`
	DurationMs    int64     `json:"durationMs"`
	Status        string    `json:"status"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
}

// Repository reads and writes the app database
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// CreateJob inserts a new job row
func (r *Repository) CreateJob(job JobStatus) error {
	now := time.Now().UTC()
	_, err := r.db.App.Exec(
		"INSERT INTO dashboard_jobs (job_id, session_id, generation, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		job.JobID, job.SessionID, int64(job.Generation), job.Status, now, now)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.JobID, err)
	}
	return nil
}

// UpdateJob moves a job to a new state
func (r *Repository) UpdateJob(jobID, status, cacheKey, errorMsg string) error {
	_, err := r.db.App.Exec(
		"UPDATE dashboard_jobs SET status = ?, cache_key = ?, error_message = ?, updated_at = ? WHERE job_id = ?",
		status, cacheKey, errorMsg, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}
	return nil
}

// GetJob returns a job row, or ErrNotFound
func (r *Repository) GetJob(jobID string) (*JobStatus, error) {
	var job JobStatus
	var generation int64
	var cacheKey, errorMsg sql.NullString
	err := r.db.App.QueryRow(
		"SELECT job_id, session_id, generation, status, cache_key, error_message, created_at, updated_at FROM dashboard_jobs WHERE job_id = ?",
		jobID).Scan(&job.JobID, &job.SessionID, &generation, &job.Status, &cacheKey, &errorMsg, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	job.Generation = uint64(generation)
	job.CacheKey = cacheKey.String
	job.ErrorMessage = errorMsg.String
	return &job, nil
}

// SaveCache stores a serialized dashboard result under key until ttl elapses
func (r *Repository) SaveCache(key string, requestParams interface{}, result []byte, ttl time.Duration) error {
	paramsJSON, err := json.Marshal(requestParams)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	now := time.Now().UTC()
	_, err = r.db.App.Exec(
		"INSERT OR REPLACE INTO dashboard_cache (cache_key, request_params, result, created_at, expires_at) VALUES (?, ?, ?, ?, ?)",
		key, string(paramsJSON), string(result), now, now.Add(ttl))
	if err != nil {
		return fmt.Errorf("failed to save cache %s: %w", key, err)
	}
	return nil
}

// GetCache returns an unexpired cached result; ok is false on a miss
func (r *Repository) GetCache(key string) (result []byte, ok bool, err error) {
	var raw string
	err = r.db.App.QueryRow(
		"SELECT result FROM dashboard_cache WHERE cache_key = ? AND expires_at > ?",
		key, time.Now().UTC()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache %s: %w", key, err)
	}
	return []byte(raw), true, nil
}

// LogQuery appends one dashboard computation to the query log
func (r *Repository) LogQuery(entry QueryLog) error {
	if entry.RequestTime.IsZero() {
		entry.RequestTime = time.Now().UTC()
	}
	_, err := r.db.App.Exec(
		"INSERT INTO query_logs (request_time, filter, store_revision, record_count, duration_ms, status, error_message) VALUES (?, ?, ?, ?, ?, ?, ?)",
		entry.RequestTime.UTC(), entry.Filter, int64(entry.StoreRevision), entry.RecordCount, entry.DurationMs, entry.Status, entry.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to log query: %w", err)
	}
	return nil
}

// RecentQueryLogs returns the newest log entries first
func (r *Repository) RecentQueryLogs(limit int) ([]QueryLog, error) {
	rows, err := r.db.App.Query(
		"SELECT id, request_time, filter, store_revision, record_count, duration_ms, status, error_message FROM query_logs ORDER BY id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	logs := []QueryLog{}
	for rows.Next() {
		var l QueryLog
		var revision int64
		var errorMsg sql.NullString
		if err := rows.Scan(&l.ID, &l.RequestTime, &l.Filter, &revision, &l.RecordCount, &l.DurationMs, &l.Status, &errorMsg); err != nil {
			return nil, err
		}
		l.StoreRevision = uint64(revision)
		l.ErrorMessage = errorMsg.String
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// CleanupOldData drops expired cache rows and jobs/logs older than retentionDays
func (r *Repository) CleanupOldData(retentionDays int) (map[string]int64, error) {
	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, -retentionDays)
	deleted := make(map[string]int64)

	steps := []struct {
		table string
		query string
		arg   time.Time
	}{
		{"dashboard_cache", "DELETE FROM dashboard_cache WHERE expires_at < ?", now},
		{"dashboard_jobs", "DELETE FROM dashboard_jobs WHERE created_at < ?", cutoff},
		{"query_logs", "DELETE FROM query_logs WHERE request_time < ?", cutoff},
	}
	for _, step := range steps {
		res, err := r.db.App.Exec(step.query, step.arg)
		if err != nil {
			return deleted, fmt.Errorf("failed to clean %s: %w", step.table, err)
		}
		n, _ := res.RowsAffected()
		deleted[step.table] = n
	}
	return deleted, nil
}
