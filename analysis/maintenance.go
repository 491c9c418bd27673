package analysis

import (
	"time"

	"oee-dashboard/database"
)

// Reliability computes MTBF and MTTR per machine in scope.
// MTBF is run minutes per downtime episode, MTTR is downtime minutes per episode.
func Reliability(records []AnnotatedRecord, downtime []database.DowntimeRecord, scope *Scope) []MachineReliability {
	run := make(map[string]float64)
	for _, r := range records {
		run[r.MachineID] += r.RunTimeMinutes
	}
	down := make(map[string]float64)
	episodes := make(map[string]int)
	for _, d := range downtime {
		down[d.MachineID] += d.DurationMinutes
		episodes[d.MachineID]++
	}

	out := make([]MachineReliability, 0, len(scope.MachineIDs))
	for _, id := range scope.MachineIDs {
		m, _ := scope.Machine(id)
		mr := MachineReliability{
			MachineID:       id,
			Name:            m.Name,
			LineID:          m.LineID,
			RunMinutes:      run[id],
			DowntimeMinutes: down[id],
			Failures:        episodes[id],
		}
		if mr.Failures > 0 {
			mr.MTBF = mr.RunMinutes / float64(mr.Failures)
			mr.MTTR = mr.DowntimeMinutes / float64(mr.Failures)
		}
		out = append(out, mr)
	}
	return out
}

// BreakdownQuality counts defect observations by severity and status
func BreakdownQuality(defects []database.DefectRecord) QualityBreakdown {
	qb := QualityBreakdown{
		BySeverity: map[string]int{
			string(database.SeverityLow):    0,
			string(database.SeverityMedium): 0,
			string(database.SeverityHigh):   0,
		},
		ByStatus: map[string]int{
			string(database.DefectOpen):       0,
			string(database.DefectInProgress): 0,
			string(database.DefectClosed):     0,
		},
	}
	for _, d := range defects {
		qb.Records++
		qb.TotalQuantity += d.Quantity
		qb.BySeverity[string(d.Severity)]++
		qb.ByStatus[string(d.Status)]++
		if d.IsAbnormal {
			qb.Abnormal++
		}
		if d.Status == database.DefectOpen {
			qb.Open++
		}
	}
	return qb
}

// SummarizeMaintenance counts orders by status and type. An order not completed
// and scheduled before asOf is overdue.
func SummarizeMaintenance(orders []database.MaintenanceOrder, parts []database.SparePart, asOf time.Time) MaintenanceSummary {
	ms := MaintenanceSummary{
		ByStatus: map[string]int{
			database.OrderPending:    0,
			database.OrderInProgress: 0,
			database.OrderCompleted:  0,
		},
		ByType: map[string]int{
			database.OrderPreventive: 0,
			database.OrderCorrective: 0,
		},
	}
	asOf = database.Day(asOf)
	for _, o := range orders {
		ms.Total++
		ms.ByStatus[o.Status]++
		ms.ByType[o.Type]++
		if o.Status != database.OrderCompleted && o.ScheduledDate.Before(asOf) {
			ms.Overdue++
		}
	}
	for _, p := range parts {
		if p.LowStock() {
			ms.LowStockParts++
		}
	}
	return ms
}
