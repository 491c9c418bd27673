package analysis

import (
	"fmt"
	"sort"
	"time"

	"oee-dashboard/database"
)

// Filter tokens
const (
	AllToken = "all"

	StatusActive   = database.MachineActive
	StatusInactive = database.MachineInactive
)

// FilterSpec is the dashboard filter
type FilterSpec struct {
	DateFrom      time.Time `json:"dateFrom"`
	DateTo        time.Time `json:"dateTo"`
	Area          string    `json:"area"`
	Shift         string    `json:"shift"`
	MachineStatus string    `json:"machineStatus"`
	MachineIDs    []string  `json:"machineIds,omitempty"`
}

// Normalize fills empty tokens with "all", truncates dates to calendar days and
// rejects unknown tokens and inverted ranges.
func (f FilterSpec) Normalize() (FilterSpec, error) {
	if f.DateFrom.IsZero() || f.DateTo.IsZero() {
		return f, fmt.Errorf("%w: dateFrom and dateTo are required", database.ErrInvalidRange)
	}
	f.DateFrom = database.Day(f.DateFrom)
	f.DateTo = database.Day(f.DateTo)
	if f.DateFrom.After(f.DateTo) {
		return f, fmt.Errorf("%w: dateFrom %s is after dateTo %s", database.ErrInvalidRange,
			f.DateFrom.Format("2006-01-02"), f.DateTo.Format("2006-01-02"))
	}

	if f.Area == "" {
		f.Area = AllToken
	}
	if f.Shift == "" {
		f.Shift = AllToken
	}
	if f.MachineStatus == "" {
		f.MachineStatus = AllToken
	}

	switch f.Shift {
	case AllToken, database.ShiftA, database.ShiftB, database.ShiftC:
	default:
		return f, fmt.Errorf("%w: unknown shift %q", database.ErrInvalidFilter, f.Shift)
	}
	switch f.MachineStatus {
	case AllToken, StatusActive, StatusInactive:
	default:
		return f, fmt.Errorf("%w: unknown machine status %q", database.ErrInvalidFilter, f.MachineStatus)
	}

	if len(f.MachineIDs) > 0 {
		ids := append([]string(nil), f.MachineIDs...)
		sort.Strings(ids)
		f.MachineIDs = ids
	}
	return f, nil
}

// RecordMetrics holds the derived ratios of one production record
type RecordMetrics struct {
	Availability float64 `json:"availability"`
	Performance  float64 `json:"performance"`
	Quality      float64 `json:"quality"`
	OEE          float64 `json:"oee"`
}

// AnnotatedRecord is a production record with its derived metrics
type AnnotatedRecord struct {
	database.ProductionRecord
	Metrics RecordMetrics `json:"metrics"`
}

// Summary holds the headline KPIs of a filtered record set
type Summary struct {
	RecordCount          int     `json:"recordCount"`
	TotalProduction      int     `json:"totalProduction"`
	TotalDefects         int     `json:"totalDefects"`
	TotalDowntimeMinutes float64 `json:"totalDowntimeMinutes"`
	MachineUtilization   float64 `json:"machineUtilization"`
	AvgOEE               float64 `json:"avgOEE"`
	AvgAvailability      float64 `json:"avgAvailability"`
	AvgPerformance       float64 `json:"avgPerformance"`
	AvgQuality           float64 `json:"avgQuality"`
	DefectRate           float64 `json:"defectRate"`
}

// LineProduction is the output volume of one line
type LineProduction struct {
	Line           string `json:"line"`
	ActualQuantity int    `json:"actualQuantity"`
	DefectQuantity int    `json:"defectQuantity"`
}

// LineOEE holds the mean metrics of one line
type LineOEE struct {
	Line         string  `json:"line"`
	OEE          float64 `json:"oee"`
	Availability float64 `json:"availability"`
	Performance  float64 `json:"performance"`
	Quality      float64 `json:"quality"`
	Records      int     `json:"records"`
}

// ParetoEntry is one ranked category with its running share of the total
type ParetoEntry struct {
	Name              string  `json:"name"`
	Value             float64 `json:"value"`
	CumulativePercent float64 `json:"cumulativePercent"`
}

// BoxplotStats are the five-number summary of one line's series
type BoxplotStats struct {
	Line   string  `json:"line"`
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
}

// HeatmapCell is the mean OEE of one line and shift
type HeatmapCell struct {
	Line  string  `json:"line"`
	Shift string  `json:"shift"`
	Value float64 `json:"value"`
	Count int     `json:"count"`
}

// TrendPoint holds one day of the trailing trend
type TrendPoint struct {
	Date         time.Time `json:"date"`
	OEE          float64   `json:"oee"`
	Availability float64   `json:"availability"`
	Performance  float64   `json:"performance"`
	Quality      float64   `json:"quality"`
	Production   int       `json:"production"`
	Defects      int       `json:"defects"`
}

// TopNEntry is one ranked entity
type TopNEntry struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// StackedRow is one line of a stacked breakdown. Values is keyed by the
// breakdown keys, so a key can never collide with the line label.
type StackedRow struct {
	Line   string             `json:"line"`
	Values map[string]float64 `json:"values"`
}

// StackedBreakdown is a per-line breakdown with a uniform key set
type StackedBreakdown struct {
	Keys []string     `json:"keys"`
	Rows []StackedRow `json:"rows"`
}

// MachineReliability holds MTBF/MTTR of one machine
type MachineReliability struct {
	MachineID       string  `json:"machineId"`
	Name            string  `json:"name"`
	LineID          string  `json:"lineId"`
	RunMinutes      float64 `json:"runMinutes"`
	DowntimeMinutes float64 `json:"downtimeMinutes"`
	Failures        int     `json:"failures"`
	MTBF            float64 `json:"mtbf"`
	MTTR            float64 `json:"mttr"`
}

// QualityBreakdown counts defect observations by severity and status
type QualityBreakdown struct {
	Records       int            `json:"records"`
	TotalQuantity int            `json:"totalQuantity"`
	BySeverity    map[string]int `json:"bySeverity"`
	ByStatus      map[string]int `json:"byStatus"`
	Abnormal      int            `json:"abnormal"`
	Open          int            `json:"open"`
}

// MaintenanceSummary counts maintenance orders in scope
type MaintenanceSummary struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"byStatus"`
	ByType        map[string]int `json:"byType"`
	Overdue       int            `json:"overdue"`
	LowStockParts int            `json:"lowStockParts"`
}

// PerformanceSection groups the OEE views
type PerformanceSection struct {
	ProductionByLine []LineProduction `json:"productionByLine"`
	OEEByLine        []LineOEE        `json:"oeeByLine"`
	Boxplot          []BoxplotStats   `json:"boxplot"`
	Heatmap          []HeatmapCell    `json:"heatmap"`
	Trend            []TrendPoint     `json:"trend"`
	TopMachines      []TopNEntry      `json:"topMachines"`
}

// QualitySection groups the defect views
type QualitySection struct {
	DefectPareto   []ParetoEntry    `json:"defectPareto"`
	CausePareto    []ParetoEntry    `json:"causePareto"`
	TopDefectTypes []TopNEntry      `json:"topDefectTypes"`
	Breakdown      QualityBreakdown `json:"breakdown"`
}

// DowntimeSection groups the downtime views
type DowntimeSection struct {
	TotalMinutes float64              `json:"totalMinutes"`
	Episodes     int                  `json:"episodes"`
	Pareto       []ParetoEntry        `json:"pareto"`
	ByLineReason StackedBreakdown     `json:"byLineReason"`
	TopMachines  []TopNEntry          `json:"topMachines"`
	Reliability  []MachineReliability `json:"reliability"`
}

// DashboardResult is the full aggregation bundle for one filter
type DashboardResult struct {
	Filter        FilterSpec         `json:"filter"`
	StoreRevision uint64             `json:"storeRevision"`
	Scope         Scope              `json:"scope"`
	Summary       Summary            `json:"summary"`
	Performance   PerformanceSection `json:"performance"`
	Quality       QualitySection     `json:"quality"`
	Downtime      DowntimeSection    `json:"downtime"`
	Maintenance   MaintenanceSummary `json:"maintenance"`
}
