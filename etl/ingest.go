package etl

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"text/template"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"oee-dashboard/config"
	"oee-dashboard/database"
)

// Source kinds accepted by scheduler.source
const (
	SourcePostgres = "postgres"
	SourceMock     = "mock"
)

// DataIngestor pulls plant records from the source system into the store
type DataIngestor struct {
	config *config.Config
	store  *database.Store
	source *sql.DB
	logger *zap.Logger
}

// NewDataIngestor creates a new data ingestor; source may be nil when only mock data is used
func NewDataIngestor(cfg *config.Config, store *database.Store, source *sql.DB, logger *zap.Logger) *DataIngestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DataIngestor{
		config: cfg,
		store:  store,
		source: source,
		logger: logger.Named("ingest"),
	}
}

// OpenSource connects to the Postgres source database
func OpenSource(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.SourceDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open source db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func (d *DataIngestor) useMock() bool {
	return d.config.MockData.Enabled || d.config.Scheduler.Source == SourceMock
}

// IngestData ingests records for [startTime, endTime] and returns per-entity counts
func (d *DataIngestor) IngestData(ctx context.Context, startTime, endTime time.Time) (map[string]int, error) {
	if endTime.Before(startTime) {
		return nil, fmt.Errorf("%w: ingest window ends before it starts", database.ErrInvalidRange)
	}

	if d.useMock() {
		counts, err := d.ingestMockData(startTime, endTime)
		if err == nil {
			d.logger.Info("mock ingest complete", zap.Any("counts", counts))
		}
		return counts, err
	}
	if d.source == nil {
		return nil, fmt.Errorf("no source database configured and mock data disabled")
	}

	params := map[string]interface{}{
		"StartTime": startTime.UTC().Format("2006-01-02 15:04:05"),
		"EndTime":   endTime.UTC().Format("2006-01-02 15:04:05"),
	}
	counts := make(map[string]int)

	if q := d.config.Queries.Machines; q != "" {
		machines, err := d.fetchMachines(ctx, q, params)
		if err != nil {
			return counts, err
		}
		for _, m := range machines {
			if _, err := d.store.PutMachine(m); err != nil {
				return counts, fmt.Errorf("failed to store machine %s: %w", m.MachineID, err)
			}
		}
		counts["machines"] = len(machines)
	}

	production, err := d.fetchProduction(ctx, d.config.Queries.Production, params)
	if err != nil {
		return counts, err
	}
	production = NewProduction(d.store, DeduplicateProduction(production))
	if _, err := d.store.AppendProduction(production...); err != nil {
		return counts, fmt.Errorf("failed to store production: %w", err)
	}
	counts["production"] = len(production)

	if q := d.config.Queries.Downtime; q != "" {
		downtime, err := d.fetchDowntime(ctx, q, params)
		if err != nil {
			return counts, err
		}
		downtime = NewDowntime(d.store, downtime)
		if _, err := d.store.AppendDowntime(downtime...); err != nil {
			return counts, fmt.Errorf("failed to store downtime: %w", err)
		}
		counts["downtime"] = len(downtime)
	}

	d.logger.Info("source ingest complete",
		zap.Time("from", startTime), zap.Time("to", endTime), zap.Any("counts", counts))
	return counts, nil
}

// ingestMockData generates the window's records and appends the ones not yet stored
func (d *DataIngestor) ingestMockData(startTime, endTime time.Time) (map[string]int, error) {
	mockCfg := d.config.MockData
	days := int(database.Day(endTime).Sub(database.Day(startTime)).Hours()/24) + 1
	mockCfg.TimeRangeDays = days

	areas := d.config.Areas
	if d.config.AreaManager != nil {
		areas = d.config.AreaManager.GetAll()
	}
	generator := NewMockDataGenerator(&mockCfg, areas)
	return LoadDataset(d.store, generator.Generate(endTime))
}

func (d *DataIngestor) query(ctx context.Context, name, queryTemplate string, params map[string]interface{}) (*sql.Rows, error) {
	if queryTemplate == "" {
		return nil, fmt.Errorf("queries.%s is not configured", name)
	}
	q, err := executeTemplateQuery(queryTemplate, params)
	if err != nil {
		return nil, err
	}
	rows, err := d.source.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", name, err)
	}
	return rows, nil
}

// fetchProduction expects columns: id, work_date, line_id, machine_id, item_code,
// actual_quantity, defect_quantity, run_minutes, downtime_minutes, ideal_cycle_time, shift
func (d *DataIngestor) fetchProduction(ctx context.Context, queryTemplate string, params map[string]interface{}) ([]database.ProductionRecord, error) {
	rows, err := d.query(ctx, "production", queryTemplate, params)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []database.ProductionRecord
	for rows.Next() {
		var r database.ProductionRecord
		if err := rows.Scan(&r.ID, &r.Date, &r.LineID, &r.MachineID, &r.ItemCode,
			&r.ActualQuantity, &r.DefectQuantity, &r.RunTimeMinutes, &r.DowntimeMinutes,
			&r.IdealCycleTime, &r.Shift); err != nil {
			return nil, fmt.Errorf("failed to scan production row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// fetchDowntime expects columns: id, work_date, machine_id, reason_code, duration_minutes, start_time, end_time
func (d *DataIngestor) fetchDowntime(ctx context.Context, queryTemplate string, params map[string]interface{}) ([]database.DowntimeRecord, error) {
	rows, err := d.query(ctx, "downtime", queryTemplate, params)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []database.DowntimeRecord
	for rows.Next() {
		var r database.DowntimeRecord
		var start, end sql.NullTime
		if err := rows.Scan(&r.ID, &r.Date, &r.MachineID, &r.ReasonCode, &r.DurationMinutes, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan downtime row: %w", err)
		}
		r.StartTime, r.EndTime = start.Time, end.Time
		out = append(out, r)
	}
	return out, rows.Err()
}

// fetchMachines expects columns: machine_id, name, line_id, ideal_cycle_time, design_speed, status
func (d *DataIngestor) fetchMachines(ctx context.Context, queryTemplate string, params map[string]interface{}) ([]database.MachineInfo, error) {
	rows, err := d.query(ctx, "machines", queryTemplate, params)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []database.MachineInfo
	for rows.Next() {
		var m database.MachineInfo
		if err := rows.Scan(&m.MachineID, &m.Name, &m.LineID, &m.IdealCycleTime, &m.DesignSpeed, &m.Status); err != nil {
			return nil, fmt.Errorf("failed to scan machine row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeduplicateProduction keeps the last occurrence of each record id, preserving first-seen order
func DeduplicateProduction(records []database.ProductionRecord) []database.ProductionRecord {
	pos := make(map[string]int, len(records))
	out := make([]database.ProductionRecord, 0, len(records))
	for _, r := range records {
		if i, ok := pos[r.ID]; ok && r.ID != "" {
			out[i] = r
			continue
		}
		pos[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

// executeTemplateQuery executes a query template with parameters
func executeTemplateQuery(queryTemplate string, params map[string]interface{}) (string, error) {
	tmpl, err := template.New("query").Option("missingkey=error").Parse(queryTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse query template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("failed to execute query template: %w", err)
	}

	return buf.String(), nil
}
