package analysis

import (
	"sort"

	"oee-dashboard/database"
)

// CategoryValue is one raw observation fed into a Pareto table
type CategoryValue struct {
	Name  string
	Value float64
}

// groupSum sums values per key, remembering first-encountered key order
type groupSum struct {
	order  []string
	sums   map[string]float64
	counts map[string]int
}

func newGroupSum() *groupSum {
	return &groupSum{sums: make(map[string]float64), counts: make(map[string]int)}
}

func (g *groupSum) add(key string, v float64) {
	if _, seen := g.sums[key]; !seen {
		g.order = append(g.order, key)
	}
	g.sums[key] += v
	g.counts[key]++
}

func (g *groupSum) mean(key string) float64 {
	if g.counts[key] == 0 {
		return 0
	}
	return g.sums[key] / float64(g.counts[key])
}

// BuildPareto groups items by name, ranks the sums descending (ties keep first
// appearance) and attaches the running cumulative percentage.
func BuildPareto(items []CategoryValue) []ParetoEntry {
	g := newGroupSum()
	for _, it := range items {
		g.add(it.Name, it.Value)
	}

	entries := make([]ParetoEntry, 0, len(g.order))
	total := 0.0
	for _, name := range g.order {
		entries = append(entries, ParetoEntry{Name: name, Value: g.sums[name]})
		total += g.sums[name]
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Value > entries[j].Value })

	if total <= 0 {
		return entries
	}
	running := 0.0
	for i := range entries {
		running += entries[i].Value
		entries[i].CumulativePercent = running / total * 100
	}
	// float drift on the running sum must not leave the last entry short of 100
	entries[len(entries)-1].CumulativePercent = 100
	return entries
}

// DefectPareto ranks defect types by defect quantity
func DefectPareto(defects []database.DefectRecord) []ParetoEntry {
	items := make([]CategoryValue, 0, len(defects))
	for _, d := range defects {
		items = append(items, CategoryValue{Name: d.DefectTypeID, Value: float64(d.Quantity)})
	}
	return BuildPareto(items)
}

// CausePareto ranks defect cause categories by defect quantity
func CausePareto(defects []database.DefectRecord) []ParetoEntry {
	items := make([]CategoryValue, 0, len(defects))
	for _, d := range defects {
		cause := d.CauseCategory
		if cause == "" {
			cause = "Unspecified"
		}
		items = append(items, CategoryValue{Name: cause, Value: float64(d.Quantity)})
	}
	return BuildPareto(items)
}

// DowntimePareto ranks downtime reasons by minutes lost
func DowntimePareto(downtime []database.DowntimeRecord) []ParetoEntry {
	items := make([]CategoryValue, 0, len(downtime))
	for _, d := range downtime {
		items = append(items, CategoryValue{Name: d.ReasonCode, Value: d.DurationMinutes})
	}
	return BuildPareto(items)
}
