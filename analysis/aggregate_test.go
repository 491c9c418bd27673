package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"reflect"
	"testing"

	"oee-dashboard/database"
)

func annotate(t *testing.T, recs ...database.ProductionRecord) []AnnotatedRecord {
	t.Helper()
	out, err := Annotate(recs)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestSummarizeUsesPlainMeans(t *testing.T) {
	recs := annotate(t,
		prod("P1", "L1", "M1", "A", jan10, 9500, 50, 450, 30),
		prod("P2", "L1", "M2", "B", jan10, 10, 10, 10, 10),
	)
	s := Summarize(recs)

	if s.RecordCount != 2 || s.TotalProduction != 9510 || s.TotalDefects != 60 || s.TotalDowntimeMinutes != 40 {
		t.Errorf("unexpected sums %+v", s)
	}
	wantOEE := (recs[0].Metrics.OEE + recs[1].Metrics.OEE) / 2
	if math.Abs(s.AvgOEE-wantOEE) > eps {
		t.Errorf("avgOEE = %v, want unweighted mean %v", s.AvgOEE, wantOEE)
	}
	if math.Abs(s.MachineUtilization-460.0/500.0) > eps {
		t.Errorf("utilization = %v", s.MachineUtilization)
	}
	if math.Abs(s.DefectRate-60.0/9570.0) > eps {
		t.Errorf("defect rate = %v", s.DefectRate)
	}

	if empty := Summarize(nil); empty != (Summary{}) {
		t.Errorf("empty summary should be zero, got %+v", empty)
	}
}

func TestLineBreakdownsReportZeroLines(t *testing.T) {
	recs := annotate(t, prod("P1", "L1", "M1", "A", jan10, 100, 5, 60, 0))
	byLine := ProductionByLine(recs, []string{"L1", "L2"})
	want := []LineProduction{{Line: "L1", ActualQuantity: 100, DefectQuantity: 5}, {Line: "L2"}}
	if !reflect.DeepEqual(byLine, want) {
		t.Errorf("got %+v, want %+v", byLine, want)
	}

	oee := OEEByLine(recs, []string{"L1", "L2"})
	if oee[1] != (LineOEE{Line: "L2"}) || oee[0].Records != 1 {
		t.Errorf("unexpected oee by line %+v", oee)
	}
}

func TestHeatmapCompletenessProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for trial := 0; trial < 100; trial++ {
		nLines := 1 + rng.Intn(6)
		lines := make([]string, nLines)
		for i := range lines {
			lines[i] = fmt.Sprintf("L%d", i)
		}
		shifts := database.ShiftCodes[:1+rng.Intn(3)]

		recs := []database.ProductionRecord{}
		for i := rng.Intn(10); i > 0; i-- {
			recs = append(recs, prod("P", lines[rng.Intn(nLines)], "M", database.ShiftCodes[rng.Intn(3)], jan10,
				rng.Intn(1000), rng.Intn(50), float64(rng.Intn(400)), float64(rng.Intn(60))))
		}

		cells := Heatmap(annotate(t, recs...), lines, shifts)
		if len(cells) != nLines*len(shifts) {
			t.Fatalf("trial %d: %d cells for %dx%d", trial, len(cells), nLines, len(shifts))
		}
		for _, c := range cells {
			if c.Count == 0 && c.Value != 0 {
				t.Fatalf("trial %d: empty cell carries value %+v", trial, c)
			}
		}
	}
}

func TestTrendLengthAndOrder(t *testing.T) {
	recs := annotate(t,
		prod("P1", "L1", "M1", "A", jan10, 9500, 50, 450, 30),
		prod("P2", "L1", "M1", "A", jan12, 100, 0, 10, 0),
		prod("P3", "L1", "M1", "A", jan12.AddDate(0, 0, 1), 100, 0, 10, 0),
	)

	for _, days := range []int{1, 3, 7, 30} {
		points := Trend(recs, jan12, days)
		if len(points) != days {
			t.Fatalf("days=%d: got %d points", days, len(points))
		}
		if !points[len(points)-1].Date.Equal(jan12) {
			t.Errorf("days=%d: last point %v, want %v", days, points[len(points)-1].Date, jan12)
		}
		for i := 1; i < len(points); i++ {
			if !points[i].Date.After(points[i-1].Date) {
				t.Fatalf("days=%d: points not oldest-first", days)
			}
		}
	}

	points := Trend(recs, jan12, 3)
	if points[1].OEE != 0 || points[1].Production != 0 {
		t.Errorf("empty day should report zeros, got %+v", points[1])
	}
	if points[0].Production != 9500 || points[2].Production != 100 {
		t.Errorf("unexpected production %d / %d", points[0].Production, points[2].Production)
	}
	if got := Trend(recs, jan12, 0); len(got) != 0 {
		t.Errorf("expected no points for 0 days")
	}
}

func TestTopNStableTies(t *testing.T) {
	entries := []TopNEntry{
		{ID: "a", Value: 1}, {ID: "b", Value: 5}, {ID: "c", Value: 3}, {ID: "d", Value: 3}, {ID: "e", Value: 3},
	}
	got := TopN(entries, 3)
	ids := ""
	for _, e := range got {
		ids += e.ID
	}
	if ids != "bcd" {
		t.Errorf("expected bcd, got %s", ids)
	}
	if len(TopN(entries, 10)) != 5 {
		t.Error("n beyond length should return everything")
	}
	if entries[0].ID != "a" {
		t.Error("TopN must not reorder its input")
	}
}

func TestDowntimeByLineReasonUniformKeys(t *testing.T) {
	snap := newFixtureStore(t).Snapshot()
	scope, err := ResolveScope(fullFilter(), snap, testAreas)
	if err != nil {
		t.Fatal(err)
	}

	stacked, err := DowntimeByLineReason(scope.SelectDowntime(snap), scope.machines, scope.Lines)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(stacked.Keys, []string{"Jam", "Setup"}) {
		t.Errorf("keys = %v", stacked.Keys)
	}
	for _, row := range stacked.Rows {
		if len(row.Values) != len(stacked.Keys) {
			t.Errorf("row %s has keys %v", row.Line, row.Values)
		}
	}
	if stacked.Rows[0].Values["Setup"] != 80 || stacked.Rows[1].Values["Setup"] != 0 || stacked.Rows[2].Values["Jam"] != 0 {
		t.Errorf("unexpected rows %+v", stacked.Rows)
	}
}

func TestStackedRowKeepsReasonNamedLine(t *testing.T) {
	machines := map[string]database.MachineInfo{"M1": {MachineID: "M1", LineID: "L1"}}
	downtime := []database.DowntimeRecord{{ID: "D1", MachineID: "M1", ReasonCode: "line", DurationMinutes: 5}}

	stacked, err := DowntimeByLineReason(downtime, machines, []string{"L1"})
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(stacked)
	if err != nil {
		t.Fatal(err)
	}

	var decoded StackedBreakdown
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded.Rows) != 1 || decoded.Rows[0].Line != "L1" || decoded.Rows[0].Values["line"] != 5 {
		t.Errorf("reason named line lost its minutes: %s", data)
	}
	for _, k := range decoded.Keys {
		if _, ok := decoded.Rows[0].Values[k]; !ok {
			t.Errorf("row is missing key %q: %s", k, data)
		}
	}
}

func TestMovedMachineReportsUnderCurrentLine(t *testing.T) {
	s := newFixtureStore(t)
	l2 := "L2"
	if _, err := s.UpdateMachine("M2", database.MachinePatch{LineID: &l2}); err != nil {
		t.Fatal(err)
	}

	f := fullFilter()
	f.Area = "paint"
	res, err := BuildDashboard(t.Context(), s.Snapshot(), f, testAreas, Options{TopN: 5, TrendDays: 3})
	if err != nil {
		t.Fatal(err)
	}

	// P2 (M2, 8000) now counts under L2 next to P3 (M3, 7000)
	if res.Summary.RecordCount != 2 || res.Summary.TotalProduction != 15000 {
		t.Fatalf("unexpected summary %+v", res.Summary)
	}

	want := []LineProduction{{Line: "L2", ActualQuantity: 15000, DefectQuantity: 300}, {Line: "L3"}}
	if !reflect.DeepEqual(res.Performance.ProductionByLine, want) {
		t.Errorf("productionByLine = %+v, want %+v", res.Performance.ProductionByLine, want)
	}

	lineTotal := 0
	for _, l := range res.Performance.OEEByLine {
		lineTotal += l.Records
	}
	heatTotal := 0
	for _, c := range res.Performance.Heatmap {
		heatTotal += c.Count
	}
	if lineTotal != res.Summary.RecordCount || heatTotal != res.Summary.RecordCount {
		t.Errorf("views disagree: summary %d, oeeByLine %d, heatmap %d", res.Summary.RecordCount, lineTotal, heatTotal)
	}

	if bp := res.Performance.Boxplot[0]; bp.Line != "L2" || bp.Min != 7000 || bp.Max != 8000 {
		t.Errorf("unexpected L2 boxplot %+v", bp)
	}
}

func TestSelectDowntimeDerivesShiftFromStartTime(t *testing.T) {
	snap := newFixtureStore(t).Snapshot()
	f := fullFilter()
	f.Shift = database.ShiftB
	scope, err := ResolveScope(f, snap, testAreas)
	if err != nil {
		t.Fatal(err)
	}

	got := scope.SelectDowntime(snap)
	if len(got) != 1 || got[0].ID != "D2" {
		t.Errorf("expected only the swing-shift episode, got %+v", got)
	}
}

func TestRecordOnUnknownMachineIsInconsistent(t *testing.T) {
	s := newFixtureStore(t)
	if _, err := s.AppendProduction(prod("P9", "L1", "M9", "A", jan10, 1, 0, 1, 0)); err != nil {
		t.Fatal(err)
	}

	_, err := BuildDashboard(t.Context(), s.Snapshot(), fullFilter(), testAreas, Options{TopN: 5, TrendDays: 7})
	if !errors.Is(err, database.ErrInconsistentScope) {
		t.Errorf("expected ErrInconsistentScope, got %v", err)
	}
}

func TestReliabilityMTBFAndMTTR(t *testing.T) {
	snap := newFixtureStore(t).Snapshot()
	scope, _ := ResolveScope(fullFilter(), snap, testAreas)
	history, _ := scope.ProductionHistory(snap)
	recs := scope.FilterWindow(annotate(t, history...))

	rel := Reliability(recs, scope.SelectDowntime(snap), &scope)
	if len(rel) != 3 {
		t.Fatalf("expected 3 machines, got %d", len(rel))
	}
	m1 := rel[0]
	// M1 ran 450 + 460 minutes with one 30 minute stop
	if m1.MachineID != "M1" || m1.Failures != 1 || m1.MTBF != 910 || m1.MTTR != 30 {
		t.Errorf("unexpected M1 reliability %+v", m1)
	}
}
