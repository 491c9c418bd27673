package analysis

import (
	"math"
	"sort"
)

// Percentile returns the p-quantile (0..1) of an ascending series using linear
// interpolation between closest ranks (R-7, the spreadsheet method).
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// Boxplot computes the five-number summary of values; empty input yields zeros
func Boxplot(line string, values []float64) BoxplotStats {
	stats := BoxplotStats{Line: line}
	if len(values) == 0 {
		return stats
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	stats.Min = sorted[0]
	stats.Q1 = Percentile(sorted, 0.25)
	stats.Median = Percentile(sorted, 0.5)
	stats.Q3 = Percentile(sorted, 0.75)
	stats.Max = sorted[len(sorted)-1]
	return stats
}

// BoxplotByLine summarises actual quantity per line, one entry per line in order
func BoxplotByLine(records []AnnotatedRecord, lines []string) []BoxplotStats {
	series := make(map[string][]float64, len(lines))
	for _, r := range records {
		series[r.LineID] = append(series[r.LineID], float64(r.ActualQuantity))
	}

	out := make([]BoxplotStats, 0, len(lines))
	for _, l := range lines {
		out = append(out, Boxplot(l, series[l]))
	}
	return out
}
