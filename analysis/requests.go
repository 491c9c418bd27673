package analysis

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"oee-dashboard/database"
	"oee-dashboard/jobs"
	"oee-dashboard/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrAsyncUnavailable is returned when the analyzer has no worker pool or app DB
var ErrAsyncUnavailable = errors.New("asynchronous dashboards are not configured")

// RequestTracker hands out a monotonically increasing token per session. Only
// the holder of the newest token may apply a result; starting a new request
// cancels the context of the one it supersedes.
type RequestTracker struct {
	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	generation uint64
	cancel     context.CancelFunc

	applied    *DashboardResult
	appliedGen uint64
	appliedJob string
}

func NewRequestTracker() *RequestTracker {
	return &RequestTracker{sessions: make(map[string]*session)}
}

// Begin supersedes any in-flight request of the session and returns the new
// token with a context that is cancelled when a later Begin supersedes it.
func (t *RequestTracker) Begin(parent context.Context, sessionID string) (context.Context, uint64) {
	ctx, generation, _ := t.BeginWith(parent, sessionID, nil)
	return ctx, generation
}

// BeginWith is Begin with a register hook that sees the new token before the
// previous request is cancelled. If register fails the session is left as it
// was: the in-flight request keeps running and no token is issued.
func (t *RequestTracker) BeginWith(parent context.Context, sessionID string, register func(generation uint64) error) (context.Context, uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[sessionID]
	next := uint64(1)
	if ok {
		next = s.generation + 1
	}
	if register != nil {
		if err := register(next); err != nil {
			return nil, 0, err
		}
	}

	if !ok {
		s = &session{}
		t.sessions[sessionID] = s
	}
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	s.generation = next
	s.cancel = cancel
	return ctx, next, nil
}

// Current reports whether generation is still the newest token of the session
func (t *RequestTracker) Current(sessionID string, generation uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	return ok && s.generation == generation
}

// Apply stores result as the session's displayed state if generation is still
// current. A stale result is discarded and Apply returns false.
func (t *RequestTracker) Apply(sessionID string, generation uint64, jobID string, result *DashboardResult) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[sessionID]
	if !ok || s.generation != generation {
		return false
	}
	s.applied = result
	s.appliedGen = generation
	s.appliedJob = jobID
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return true
}

// AppliedResult is the state a session currently displays
type AppliedResult struct {
	SessionID  string           `json:"sessionId"`
	Generation uint64           `json:"generation"`
	JobID      string           `json:"jobId"`
	Result     *DashboardResult `json:"result"`
}

// Latest returns the last applied result of a session
func (t *RequestTracker) Latest(sessionID string) (*AppliedResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[sessionID]
	if !ok || s.applied == nil {
		return nil, false
	}
	return &AppliedResult{SessionID: sessionID, Generation: s.appliedGen, JobID: s.appliedJob, Result: s.applied}, true
}

// RequestTicket identifies an asynchronous dashboard request
type RequestTicket struct {
	JobID      string `json:"jobId"`
	SessionID  string `json:"sessionId"`
	Generation uint64 `json:"generation"`
	Status     string `json:"status"`
}

// RequestDashboard starts an asynchronous dashboard computation for a session,
// superseding the session's previous request. A cached result for the same
// filter and store revision completes immediately.
func (a *Analyzer) RequestDashboard(sessionID string, filter FilterSpec) (*RequestTicket, error) {
	if a.repo == nil || a.workerPool == nil {
		return nil, ErrAsyncUnavailable
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", database.ErrInvalidFilter)
	}
	normalized, err := filter.Normalize()
	if err != nil {
		return nil, err
	}

	jobID := uuid.New().String()
	ctx, generation, err := a.tracker.BeginWith(context.Background(), sessionID, func(generation uint64) error {
		return a.repo.CreateJob(database.JobStatus{
			JobID: jobID, SessionID: sessionID, Generation: generation, Status: database.JobPending,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	ticket := &RequestTicket{JobID: jobID, SessionID: sessionID, Generation: generation, Status: database.JobPending}

	cacheKey := generateCacheKey(normalized, a.store.Revision())
	if cached, ok := a.loadCached(cacheKey); ok {
		if a.tracker.Apply(sessionID, generation, jobID, cached) {
			a.finishJob(jobID, database.JobCompleted, cacheKey, "")
			metrics.IncDashboardRequest("cached")
			ticket.Status = database.JobCompleted
			return ticket, nil
		}
	}

	err = a.workerPool.Submit(jobs.Job{
		ID: jobID,
		Execute: func(poolCtx context.Context) error {
			stop := context.AfterFunc(poolCtx, func() { a.tracker.cancelIfCurrent(sessionID, generation) })
			defer stop()
			return a.executeDashboard(ctx, jobID, sessionID, generation, normalized)
		},
	})
	if err != nil {
		a.finishJob(jobID, database.JobFailed, "", err.Error())
		return nil, fmt.Errorf("failed to submit dashboard job: %w", err)
	}
	return ticket, nil
}

func (t *RequestTracker) cancelIfCurrent(sessionID string, generation uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[sessionID]; ok && s.generation == generation && s.cancel != nil {
		s.cancel()
	}
}

// executeDashboard runs one request (called by worker)
func (a *Analyzer) executeDashboard(ctx context.Context, jobID, sessionID string, generation uint64, filter FilterSpec) error {
	if !a.tracker.Current(sessionID, generation) {
		a.supersede(jobID)
		return nil
	}
	a.finishJob(jobID, database.JobRunning, "", "")

	res, err := a.GetDashboardData(ctx, filter)
	if err != nil {
		if !a.tracker.Current(sessionID, generation) {
			a.supersede(jobID)
			return nil
		}
		a.finishJob(jobID, database.JobFailed, "", err.Error())
		metrics.IncDashboardRequest("failed")
		return err
	}

	if !a.tracker.Apply(sessionID, generation, jobID, res) {
		a.supersede(jobID)
		return nil
	}

	cacheKey := generateCacheKey(filter, res.StoreRevision)
	if payload, err := json.Marshal(res); err == nil {
		if err := a.repo.SaveCache(cacheKey, filter, payload, a.cacheTTL()); err != nil {
			a.logger.Warn("failed to cache dashboard", zap.String("job_id", jobID), zap.Error(err))
		}
	}
	a.finishJob(jobID, database.JobCompleted, cacheKey, "")
	metrics.IncDashboardRequest("completed")
	return nil
}

func (a *Analyzer) supersede(jobID string) {
	a.finishJob(jobID, database.JobSuperseded, "", "")
	metrics.IncDashboardRequest("superseded")
	a.logger.Debug("dashboard request superseded", zap.String("job_id", jobID))
}

func (a *Analyzer) finishJob(jobID, status, cacheKey, errMsg string) {
	if err := a.repo.UpdateJob(jobID, status, cacheKey, errMsg); err != nil {
		a.logger.Warn("failed to update job", zap.String("job_id", jobID), zap.String("status", status), zap.Error(err))
	}
}

func (a *Analyzer) loadCached(cacheKey string) (*DashboardResult, bool) {
	raw, ok, err := a.repo.GetCache(cacheKey)
	if err != nil {
		a.logger.Warn("cache lookup failed", zap.String("cache_key", cacheKey), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var res DashboardResult
	if err := json.Unmarshal(raw, &res); err != nil {
		a.logger.Warn("discarding unreadable cache entry", zap.String("cache_key", cacheKey), zap.Error(err))
		return nil, false
	}
	return &res, true
}

func (a *Analyzer) cacheTTL() time.Duration {
	if a.cfg == nil || a.cfg.CacheTTLMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(a.cfg.CacheTTLMinutes) * time.Minute
}

// GetJobStatus returns the tracked state of a dashboard job
func (a *Analyzer) GetJobStatus(jobID string) (*database.JobStatus, error) {
	if a.repo == nil {
		return nil, ErrAsyncUnavailable
	}
	return a.repo.GetJob(jobID)
}

// Latest returns the result currently applied to a session
func (a *Analyzer) Latest(sessionID string) (*AppliedResult, error) {
	applied, ok := a.tracker.Latest(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: no applied dashboard for session %s", database.ErrNotFound, sessionID)
	}
	return applied, nil
}

// generateCacheKey keys a result by its filter and the store revision it was computed at
func generateCacheKey(filter FilterSpec, revision uint64) string {
	data, _ := json.Marshal(filter)
	return fmt.Sprintf("%x", md5.Sum([]byte(fmt.Sprintf("%s|%d", data, revision))))
}
