package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"oee-dashboard/config"
	"oee-dashboard/database"
	"oee-dashboard/jobs"
	"oee-dashboard/metrics"

	"go.uber.org/zap"
)

// Options parameterise the rankings and the trend window
type Options struct {
	TopN      int
	TrendDays int
}

// BuildDashboard composes scope resolution, metric annotation and every
// aggregation over one snapshot. It is pure: the same snapshot, filter and
// options always produce the same result.
func BuildDashboard(ctx context.Context, snap *database.Snapshot, filter FilterSpec, areas map[string][]string, opts Options) (*DashboardResult, error) {
	scope, err := ResolveScope(filter, snap, areas)
	if err != nil {
		return nil, err
	}
	normalized, _ := filter.Normalize()

	history, err := scope.ProductionHistory(snap)
	if err != nil {
		return nil, err
	}
	annotated, err := Annotate(history)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inWindow := scope.FilterWindow(annotated)
	downtime := scope.SelectDowntime(snap)
	defects := scope.SelectDefects(snap)
	machines := scope.machines

	res := &DashboardResult{
		Filter:        normalized,
		StoreRevision: snap.Revision,
		Scope:         scope,
		Summary:       Summarize(inWindow),
	}

	res.Performance = PerformanceSection{
		ProductionByLine: ProductionByLine(inWindow, scope.Lines),
		OEEByLine:        OEEByLine(inWindow, scope.Lines),
		Boxplot:          BoxplotByLine(inWindow, scope.Lines),
		Heatmap:          Heatmap(inWindow, scope.Lines, scope.Shifts()),
		Trend:            Trend(annotated, scope.DateTo, opts.TrendDays),
	}
	if res.Performance.TopMachines, err = TopMachinesByOEE(inWindow, machines, opts.TopN); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Quality = QualitySection{
		DefectPareto:   DefectPareto(defects),
		CausePareto:    CausePareto(defects),
		TopDefectTypes: TopDefectTypes(defects, opts.TopN),
		Breakdown:      BreakdownQuality(defects),
	}

	res.Downtime = DowntimeSection{
		Episodes:    len(downtime),
		Pareto:      DowntimePareto(downtime),
		Reliability: Reliability(inWindow, downtime, &scope),
	}
	for _, d := range downtime {
		res.Downtime.TotalMinutes += d.DurationMinutes
	}
	if res.Downtime.ByLineReason, err = DowntimeByLineReason(downtime, machines, scope.Lines); err != nil {
		return nil, err
	}
	if res.Downtime.TopMachines, err = TopMachinesByDowntime(downtime, machines, opts.TopN); err != nil {
		return nil, err
	}

	res.Maintenance = SummarizeMaintenance(scope.SelectOrders(snap), snap.SpareParts, scope.DateTo)
	return res, nil
}

// Analyzer is the dashboard entry point over a record store
type Analyzer struct {
	store      *database.Store
	repo       *database.Repository
	cfg        *config.Config
	workerPool *jobs.WorkerPool
	tracker    *RequestTracker
	logger     *zap.Logger
}

// NewAnalyzer wires the analyzer. repo and workerPool may be nil, in which case
// only synchronous dashboards are available and nothing is logged to the app DB.
func NewAnalyzer(store *database.Store, repo *database.Repository, cfg *config.Config, workerPool *jobs.WorkerPool, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		store:      store,
		repo:       repo,
		cfg:        cfg,
		workerPool: workerPool,
		tracker:    NewRequestTracker(),
		logger:     logger.Named("analysis"),
	}
}

// Store returns the record store the analyzer reads
func (a *Analyzer) Store() *database.Store {
	return a.store
}

// PoolStatus reports the async worker pool size and its queued jobs
func (a *Analyzer) PoolStatus() (workers, queued int) {
	if a.workerPool == nil {
		return 0, 0
	}
	return a.workerPool.Workers(), a.workerPool.QueueSize()
}

func (a *Analyzer) options() Options {
	opts := Options{TopN: config.DefaultTopN, TrendDays: config.DefaultTrendDays}
	if a.cfg != nil {
		s := a.cfg.AnalysisSettings()
		if s.TopNLimit > 0 {
			opts.TopN = s.TopNLimit
		}
		if s.TrendDays > 0 {
			opts.TrendDays = s.TrendDays
		}
	}
	return opts
}

func (a *Analyzer) areas() map[string][]string {
	if a.cfg == nil || a.cfg.AreaManager == nil {
		return nil
	}
	return a.cfg.AreaManager.GetAll()
}

// GetDashboardData computes the dashboard for filter over a fresh store snapshot.
// Errors from scope resolution and aggregation are returned unchanged.
func (a *Analyzer) GetDashboardData(ctx context.Context, filter FilterSpec) (*DashboardResult, error) {
	start := time.Now()
	snap := a.store.Snapshot()

	res, err := BuildDashboard(ctx, snap, filter, a.areas(), a.options())

	status := "completed"
	recordCount := 0
	if err != nil {
		status = "failed"
	} else {
		recordCount = res.Summary.RecordCount
	}
	elapsed := time.Since(start)
	metrics.ObserveDashboard(status, elapsed)
	a.logQuery(filter, snap.Revision, recordCount, elapsed, status, err)

	if err != nil {
		a.logger.Debug("dashboard failed", zap.Error(err))
		return nil, err
	}
	a.logger.Debug("dashboard computed",
		zap.Uint64("revision", snap.Revision),
		zap.Int("records", recordCount),
		zap.Duration("elapsed", elapsed))
	return res, nil
}

func (a *Analyzer) logQuery(filter FilterSpec, revision uint64, records int, elapsed time.Duration, status string, err error) {
	if a.repo == nil {
		return
	}
	filterJSON, _ := json.Marshal(filter)
	entry := database.QueryLog{
		Filter:        string(filterJSON),
		StoreRevision: revision,
		RecordCount:   records,
		DurationMs:    elapsed.Milliseconds(),
		Status:        status,
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	if logErr := a.repo.LogQuery(entry); logErr != nil {
		a.logger.Warn("failed to write query log", zap.Error(logErr))
	}
}

// RecentQueries returns the newest query log entries
func (a *Analyzer) RecentQueries(limit int) ([]database.QueryLog, error) {
	if a.repo == nil {
		return nil, fmt.Errorf("query log is not configured")
	}
	return a.repo.RecentQueryLogs(limit)
}
