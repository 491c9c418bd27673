package analysis

import (
	"fmt"

	"oee-dashboard/database"
)

// ComputeMetrics derives availability, performance, quality and OEE of one record.
// Zero denominators yield 0. Performance is not clamped.
func ComputeMetrics(r database.ProductionRecord) (RecordMetrics, error) {
	switch {
	case !database.Finite(r.RunTimeMinutes, r.DowntimeMinutes, r.IdealCycleTime):
		return RecordMetrics{}, fmt.Errorf("%w: non-finite time on record %s", database.ErrInvalidRecord, r.ID)
	case r.RunTimeMinutes < 0 || r.DowntimeMinutes < 0:
		return RecordMetrics{}, fmt.Errorf("%w: negative time on record %s", database.ErrInvalidRecord, r.ID)
	case r.ActualQuantity < 0 || r.DefectQuantity < 0:
		return RecordMetrics{}, fmt.Errorf("%w: negative quantity on record %s", database.ErrInvalidRecord, r.ID)
	case !(r.IdealCycleTime > 0):
		return RecordMetrics{}, fmt.Errorf("%w: idealCycleTime must be > 0 on record %s", database.ErrInvalidRecord, r.ID)
	}

	var m RecordMetrics
	scheduled := r.RunTimeMinutes + r.DowntimeMinutes
	if scheduled > 0 {
		m.Availability = r.RunTimeMinutes / scheduled
	}

	pieces := r.ActualQuantity + r.DefectQuantity
	if r.RunTimeMinutes > 0 {
		m.Performance = float64(pieces) * r.IdealCycleTime / r.RunTimeMinutes
	}
	if pieces > 0 {
		m.Quality = float64(r.ActualQuantity) / float64(pieces)
	}

	m.OEE = m.Availability * m.Performance * m.Quality
	return m, nil
}

// Annotate computes metrics for every record; the first invalid record aborts
func Annotate(records []database.ProductionRecord) ([]AnnotatedRecord, error) {
	out := make([]AnnotatedRecord, 0, len(records))
	for _, r := range records {
		m, err := ComputeMetrics(r)
		if err != nil {
			return nil, err
		}
		out = append(out, AnnotatedRecord{ProductionRecord: r, Metrics: m})
	}
	return out, nil
}
