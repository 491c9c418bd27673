package analysis

import (
	"math"
	"testing"
)

func TestBoxplotLinearInterpolation(t *testing.T) {
	got := Boxplot("L1", []float64{4, 1, 3, 2})
	want := BoxplotStats{Line: "L1", Min: 1, Q1: 1.75, Median: 2.5, Q3: 3.25, Max: 4}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestBoxplotOddSeries(t *testing.T) {
	got := Boxplot("L1", []float64{7, 15, 36, 39, 40, 41})
	// R-7: h = 5*0.25 = 1.25 -> 15 + 0.25*21
	if math.Abs(got.Q1-20.25) > 1e-9 || math.Abs(got.Median-37.5) > 1e-9 || math.Abs(got.Q3-39.75) > 1e-9 {
		t.Errorf("unexpected quartiles %+v", got)
	}
}

func TestBoxplotSentinels(t *testing.T) {
	if got := Boxplot("L9", nil); got != (BoxplotStats{Line: "L9"}) {
		t.Errorf("expected zero sentinel, got %+v", got)
	}
	single := Boxplot("L1", []float64{42})
	if single.Min != 42 || single.Q1 != 42 || single.Median != 42 || single.Q3 != 42 || single.Max != 42 {
		t.Errorf("single value should collapse, got %+v", single)
	}
}

func TestBoxplotByLineCoversEveryLine(t *testing.T) {
	records := []AnnotatedRecord{
		{ProductionRecord: prod("P1", "L1", "M1", "A", jan10, 100, 0, 10, 0)},
		{ProductionRecord: prod("P2", "L1", "M2", "A", jan10, 300, 0, 10, 0)},
	}
	got := BoxplotByLine(records, []string{"L1", "L2"})
	if len(got) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(got))
	}
	if got[0].Median != 200 {
		t.Errorf("L1 median = %v, want 200", got[0].Median)
	}
	if got[1] != (BoxplotStats{Line: "L2"}) {
		t.Errorf("L2 should be zero sentinel, got %+v", got[1])
	}
}
