package etl

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"oee-dashboard/config"
	"oee-dashboard/database"
	"oee-dashboard/mart"
	"oee-dashboard/metrics"
)

const cleanupSpec = "@daily"

// Scheduler runs periodic ingest, mart refresh and retention cleanup
type Scheduler struct {
	cfg         *config.Config
	ingestor    *DataIngestor
	martBuilder *mart.MartBuilder
	repo        *database.Repository
	logger      *zap.Logger
	cron        *cron.Cron

	mu      sync.Mutex
	lastRun time.Time
	now     func() time.Time
}

// NewScheduler creates a new scheduler; martBuilder and repo are optional
func NewScheduler(cfg *config.Config, ingestor *DataIngestor, martBuilder *mart.MartBuilder, repo *database.Repository, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:         cfg,
		ingestor:    ingestor,
		martBuilder: martBuilder,
		repo:        repo,
		logger:      logger.Named("scheduler"),
		now:         time.Now,
	}
}

// Start registers the cron entries and starts the cron runner
func (s *Scheduler) Start() error {
	if !s.cfg.Scheduler.Enabled {
		s.logger.Info("scheduler is disabled by config")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.cfg.Scheduler.Cron, s.RunJob); err != nil {
		return err
	}
	if s.repo != nil {
		if _, err := c.AddFunc(cleanupSpec, s.RunCleanup); err != nil {
			return err
		}
	}
	s.cron = c
	c.Start()

	s.logger.Info("scheduler started",
		zap.String("cron", s.cfg.Scheduler.Cron),
		zap.Int("retention_days", s.cfg.DataRetentionDays))
	return nil
}

// Stop stops the cron runner and waits for running jobs
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// RunJob ingests everything since the previous run, then refreshes the mart
func (s *Scheduler) RunJob() {
	ctx := context.Background()
	now := s.now()

	s.mu.Lock()
	from := s.lastRun
	if from.IsZero() {
		from = now.AddDate(0, 0, -1)
	}
	s.mu.Unlock()

	counts, err := s.ingestor.IngestData(ctx, from, now)
	if err != nil {
		s.logger.Error("scheduled ingest failed", zap.Error(err))
		metrics.IncJobRun("ingest", "failure")
	} else {
		s.logger.Info("scheduled ingest complete", zap.Any("counts", counts))
		metrics.IncJobRun("ingest", "success")
		s.mu.Lock()
		s.lastRun = now
		s.mu.Unlock()
	}

	if s.martBuilder == nil {
		return
	}
	if _, err := s.martBuilder.Refresh(ctx); err != nil {
		s.logger.Error("mart refresh failed", zap.Error(err))
		metrics.IncJobRun("mart_refresh", "failure")
		return
	}
	metrics.IncJobRun("mart_refresh", "success")
}

// RunCleanup drops expired cache rows and old jobs/query logs
func (s *Scheduler) RunCleanup() {
	if s.repo == nil {
		return
	}
	deleted, err := s.repo.CleanupOldData(s.cfg.DataRetentionDays)
	if err != nil {
		s.logger.Error("data cleanup failed", zap.Error(err))
		metrics.IncJobRun("cleanup", "failure")
		return
	}
	s.logger.Info("cleanup completed", zap.Any("deleted", deleted))
	metrics.IncJobRun("cleanup", "success")
}

// LastRun returns the end of the last successful ingest window
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}
