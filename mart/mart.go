package mart

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"oee-dashboard/analysis"
	"oee-dashboard/database"
)

// Open opens the DuckDB analytics mart; an empty path opens an in-memory database
func Open(path string) (*sql.DB, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mart db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping mart db: %w", err)
	}
	return conn, nil
}

// MartBuilder exports annotated store contents into DuckDB tables for ad-hoc analysis
type MartBuilder struct {
	conn   *sql.DB
	store  *database.Store
	logger *zap.Logger
}

// MartStats holds statistics about the refreshed mart
type MartStats struct {
	Revision        uint64  `json:"revision"`
	TotalRows       int64   `json:"totalRows"`
	MinDate         string  `json:"minDate"`
	MaxDate         string  `json:"maxDate"`
	AvgOEE          float64 `json:"avgOEE"`
	TotalProduction int64   `json:"totalProduction"`
	UniqueMachines  int64   `json:"uniqueMachines"`
	DowntimeEvents  int64   `json:"downtimeEvents"`
	DurationMs      int64   `json:"durationMs"`
}

// DailyLineOEE is one row of the daily_line_oee rollup
type DailyLineOEE struct {
	WorkDate   string  `json:"workDate"`
	LineID     string  `json:"lineId"`
	AvgOEE     float64 `json:"avgOEE"`
	Production int64   `json:"production"`
	Defects    int64   `json:"defects"`
}

// NewMartBuilder creates a new mart builder
func NewMartBuilder(conn *sql.DB, store *database.Store, logger *zap.Logger) *MartBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MartBuilder{conn: conn, store: store, logger: logger.Named("mart")}
}

const (
	createProduction = `
		CREATE OR REPLACE TABLE production_oee (
			id               VARCHAR,
			work_date        VARCHAR,
			line_id          VARCHAR,
			machine_id       VARCHAR,
			item_code        VARCHAR,
			shift            VARCHAR,
			actual_quantity  INTEGER,
			defect_quantity  INTEGER,
			run_minutes      DOUBLE,
			downtime_minutes DOUBLE,
			availability     DOUBLE,
			performance      DOUBLE,
			quality          DOUBLE,
			oee              DOUBLE
		)`
	createDowntime = `
		CREATE OR REPLACE TABLE downtime_events (
			id               VARCHAR,
			work_date        VARCHAR,
			machine_id       VARCHAR,
			reason_code      VARCHAR,
			duration_minutes DOUBLE
		)`
	createDailyLine = `
		CREATE OR REPLACE TABLE daily_line_oee AS
		SELECT
			work_date,
			line_id,
			AVG(oee) AS avg_oee,
			CAST(SUM(actual_quantity) AS BIGINT) AS production,
			CAST(SUM(defect_quantity) AS BIGINT) AS defects
		FROM production_oee
		GROUP BY work_date, line_id`
)

// Refresh rebuilds the mart tables from a store snapshot
func (m *MartBuilder) Refresh(ctx context.Context) (stats MartStats, err error) {
	start := time.Now()
	snap := m.store.Snapshot()

	annotated, err := analysis.Annotate(snap.Production)
	if err != nil {
		return MartStats{}, fmt.Errorf("failed to annotate production: %w", err)
	}

	tx, err := m.conn.BeginTx(ctx, nil)
	if err != nil {
		return MartStats{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, ddl := range []string{createProduction, createDowntime} {
		if _, err = tx.ExecContext(ctx, ddl); err != nil {
			return MartStats{}, fmt.Errorf("failed to create mart table: %w", err)
		}
	}

	prodStmt, err := tx.PrepareContext(ctx, `INSERT INTO production_oee VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return MartStats{}, fmt.Errorf("failed to prepare production insert: %w", err)
	}
	defer prodStmt.Close()
	for _, r := range annotated {
		_, err = prodStmt.ExecContext(ctx,
			r.ID, r.Date.Format("2006-01-02"), r.LineID, r.MachineID, r.ItemCode, r.Shift,
			r.ActualQuantity, r.DefectQuantity, r.RunTimeMinutes, r.DowntimeMinutes,
			r.Metrics.Availability, r.Metrics.Performance, r.Metrics.Quality, r.Metrics.OEE)
		if err != nil {
			return MartStats{}, fmt.Errorf("failed to insert production %s: %w", r.ID, err)
		}
	}

	downStmt, err := tx.PrepareContext(ctx, `INSERT INTO downtime_events VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return MartStats{}, fmt.Errorf("failed to prepare downtime insert: %w", err)
	}
	defer downStmt.Close()
	for _, d := range snap.Downtime {
		_, err = downStmt.ExecContext(ctx, d.ID, d.Date.Format("2006-01-02"), d.MachineID, d.ReasonCode, d.DurationMinutes)
		if err != nil {
			return MartStats{}, fmt.Errorf("failed to insert downtime %s: %w", d.ID, err)
		}
	}

	if _, err = tx.ExecContext(ctx, createDailyLine); err != nil {
		return MartStats{}, fmt.Errorf("failed to build daily_line_oee: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return MartStats{}, fmt.Errorf("failed to commit mart refresh: %w", err)
	}

	stats, err = m.GetMartStats(ctx)
	if err != nil {
		return MartStats{}, err
	}
	stats.Revision = snap.Revision
	stats.DurationMs = time.Since(start).Milliseconds()

	m.logger.Info("mart refresh completed",
		zap.Int64("rows", stats.TotalRows),
		zap.Uint64("revision", snap.Revision),
		zap.Duration("elapsed", time.Since(start)))
	return stats, nil
}

// GetMartStats returns statistics about the production_oee mart
func (m *MartBuilder) GetMartStats(ctx context.Context) (MartStats, error) {
	var stats MartStats
	var minDate, maxDate sql.NullString
	var avgOEE sql.NullFloat64

	err := m.conn.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			MIN(work_date),
			MAX(work_date),
			AVG(oee),
			CAST(COALESCE(SUM(actual_quantity), 0) AS BIGINT),
			COUNT(DISTINCT machine_id)
		FROM production_oee`).Scan(&stats.TotalRows, &minDate, &maxDate, &avgOEE, &stats.TotalProduction, &stats.UniqueMachines)
	if err != nil {
		return MartStats{}, fmt.Errorf("failed to read mart stats: %w", err)
	}
	stats.MinDate = minDate.String
	stats.MaxDate = maxDate.String
	stats.AvgOEE = avgOEE.Float64

	if err := m.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM downtime_events`).Scan(&stats.DowntimeEvents); err != nil {
		m.logger.Warn("failed to count downtime events", zap.Error(err))
	}
	return stats, nil
}

// DailyLine returns the daily_line_oee rollup ordered by date and line
func (m *MartBuilder) DailyLine(ctx context.Context) ([]DailyLineOEE, error) {
	rows, err := m.conn.QueryContext(ctx, `
		SELECT work_date, line_id, avg_oee, production, defects
		FROM daily_line_oee
		ORDER BY work_date, line_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily_line_oee: %w", err)
	}
	defer rows.Close()

	out := []DailyLineOEE{}
	for rows.Next() {
		var d DailyLineOEE
		if err := rows.Scan(&d.WorkDate, &d.LineID, &d.AvgOEE, &d.Production, &d.Defects); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
