package analysis

import (
	"fmt"
	"sort"
	"time"

	"oee-dashboard/database"
)

// Summarize folds annotated records into the headline KPIs.
// Ratio averages are plain means of per-record values, not volume weighted.
func Summarize(records []AnnotatedRecord) Summary {
	var s Summary
	var run, scheduled float64
	for _, r := range records {
		s.TotalProduction += r.ActualQuantity
		s.TotalDefects += r.DefectQuantity
		s.TotalDowntimeMinutes += r.DowntimeMinutes
		run += r.RunTimeMinutes
		scheduled += r.RunTimeMinutes + r.DowntimeMinutes

		s.AvgOEE += r.Metrics.OEE
		s.AvgAvailability += r.Metrics.Availability
		s.AvgPerformance += r.Metrics.Performance
		s.AvgQuality += r.Metrics.Quality
	}

	s.RecordCount = len(records)
	if s.RecordCount == 0 {
		return s
	}
	n := float64(s.RecordCount)
	s.AvgOEE /= n
	s.AvgAvailability /= n
	s.AvgPerformance /= n
	s.AvgQuality /= n

	if scheduled > 0 {
		s.MachineUtilization = run / scheduled
	}
	if pieces := s.TotalProduction + s.TotalDefects; pieces > 0 {
		s.DefectRate = float64(s.TotalDefects) / float64(pieces)
	}
	return s
}

// groupLines buckets records by line. Only the scope lines are reported.
func groupLines(records []AnnotatedRecord, lines []string) ([]string, map[string][]AnnotatedRecord) {
	byLine := make(map[string][]AnnotatedRecord, len(lines))
	for _, r := range records {
		byLine[r.LineID] = append(byLine[r.LineID], r)
	}
	return lines, byLine
}

// ProductionByLine sums output per line; lines without records report zeros
func ProductionByLine(records []AnnotatedRecord, lines []string) []LineProduction {
	order, byLine := groupLines(records, lines)
	out := make([]LineProduction, 0, len(order))
	for _, l := range order {
		lp := LineProduction{Line: l}
		for _, r := range byLine[l] {
			lp.ActualQuantity += r.ActualQuantity
			lp.DefectQuantity += r.DefectQuantity
		}
		out = append(out, lp)
	}
	return out
}

// OEEByLine averages metrics per line
func OEEByLine(records []AnnotatedRecord, lines []string) []LineOEE {
	order, byLine := groupLines(records, lines)
	out := make([]LineOEE, 0, len(order))
	for _, l := range order {
		s := Summarize(byLine[l])
		out = append(out, LineOEE{
			Line:         l,
			OEE:          s.AvgOEE,
			Availability: s.AvgAvailability,
			Performance:  s.AvgPerformance,
			Quality:      s.AvgQuality,
			Records:      s.RecordCount,
		})
	}
	return out
}

// Heatmap emits one cell per (line, shift) pair holding the mean OEE, or 0
func Heatmap(records []AnnotatedRecord, lines, shifts []string) []HeatmapCell {
	type key struct{ line, shift string }
	sums := make(map[key]float64)
	counts := make(map[key]int)
	for _, r := range records {
		k := key{r.LineID, r.Shift}
		sums[k] += r.Metrics.OEE
		counts[k]++
	}

	cells := make([]HeatmapCell, 0, len(lines)*len(shifts))
	for _, l := range lines {
		for _, sh := range shifts {
			k := key{l, sh}
			cell := HeatmapCell{Line: l, Shift: sh, Count: counts[k]}
			if cell.Count > 0 {
				cell.Value = sums[k] / float64(cell.Count)
			}
			cells = append(cells, cell)
		}
	}
	return cells
}

// Trend computes daily mean metrics for the days trailing days ending at end,
// oldest first. history must not be date filtered; empty days report zeros.
func Trend(history []AnnotatedRecord, end time.Time, days int) []TrendPoint {
	if days <= 0 {
		return []TrendPoint{}
	}
	end = database.Day(end)
	start := end.AddDate(0, 0, -(days - 1))

	byDay := make(map[time.Time][]AnnotatedRecord)
	for _, r := range history {
		d := database.Day(r.Date)
		if d.Before(start) || d.After(end) {
			continue
		}
		byDay[d] = append(byDay[d], r)
	}

	points := make([]TrendPoint, 0, days)
	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i)
		s := Summarize(byDay[d])
		points = append(points, TrendPoint{
			Date:         d,
			OEE:          s.AvgOEE,
			Availability: s.AvgAvailability,
			Performance:  s.AvgPerformance,
			Quality:      s.AvgQuality,
			Production:   s.TotalProduction,
			Defects:      s.TotalDefects,
		})
	}
	return points
}

// TopN sorts entries by value descending (ties keep input order) and keeps the first n
func TopN(entries []TopNEntry, n int) []TopNEntry {
	sorted := append([]TopNEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Value > sorted[j].Value })
	if n < 0 {
		n = 0
	}
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

func machineName(machines map[string]database.MachineInfo, id string) (string, error) {
	m, ok := machines[id]
	if !ok {
		return "", fmt.Errorf("%w: machine %s is not in master data", database.ErrInconsistentScope, id)
	}
	if m.Name == "" {
		return id, nil
	}
	return m.Name, nil
}

// TopMachinesByOEE ranks machines by mean OEE over their records
func TopMachinesByOEE(records []AnnotatedRecord, machines map[string]database.MachineInfo, n int) ([]TopNEntry, error) {
	g := newGroupSum()
	for _, r := range records {
		g.add(r.MachineID, r.Metrics.OEE)
	}
	entries := make([]TopNEntry, 0, len(g.order))
	for _, id := range g.order {
		name, err := machineName(machines, id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, TopNEntry{ID: id, Name: name, Value: g.mean(id)})
	}
	return TopN(entries, n), nil
}

// TopMachinesByDowntime ranks machines by total downtime minutes
func TopMachinesByDowntime(downtime []database.DowntimeRecord, machines map[string]database.MachineInfo, n int) ([]TopNEntry, error) {
	g := newGroupSum()
	for _, d := range downtime {
		g.add(d.MachineID, d.DurationMinutes)
	}
	entries := make([]TopNEntry, 0, len(g.order))
	for _, id := range g.order {
		name, err := machineName(machines, id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, TopNEntry{ID: id, Name: name, Value: g.sums[id]})
	}
	return TopN(entries, n), nil
}

// TopDefectTypes ranks defect types by quantity
func TopDefectTypes(defects []database.DefectRecord, n int) []TopNEntry {
	g := newGroupSum()
	for _, d := range defects {
		g.add(d.DefectTypeID, float64(d.Quantity))
	}
	entries := make([]TopNEntry, 0, len(g.order))
	for _, id := range g.order {
		entries = append(entries, TopNEntry{ID: id, Name: id, Value: g.sums[id]})
	}
	return TopN(entries, n)
}

// DowntimeByLineReason breaks downtime minutes down per line and reason. Every
// row carries every reason seen in scope so stacked legends stay uniform.
func DowntimeByLineReason(downtime []database.DowntimeRecord, machines map[string]database.MachineInfo, lines []string) (StackedBreakdown, error) {
	keySet := make(map[string]bool)
	perLine := make(map[string]map[string]float64, len(lines))
	for _, d := range downtime {
		m, ok := machines[d.MachineID]
		if !ok {
			return StackedBreakdown{}, fmt.Errorf("%w: downtime %s references unknown machine %s",
				database.ErrInconsistentScope, d.ID, d.MachineID)
		}
		keySet[d.ReasonCode] = true
		if perLine[m.LineID] == nil {
			perLine[m.LineID] = make(map[string]float64)
		}
		perLine[m.LineID][d.ReasonCode] += d.DurationMinutes
	}

	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]StackedRow, 0, len(lines))
	for _, l := range lines {
		row := StackedRow{Line: l, Values: make(map[string]float64, len(keys))}
		for _, k := range keys {
			row.Values[k] = perLine[l][k]
		}
		rows = append(rows, row)
	}
	return StackedBreakdown{Keys: keys, Rows: rows}, nil
}
