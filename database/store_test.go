package database

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"
)

var day1 = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	s.SetClock(func() time.Time { return day1.Add(8 * time.Hour) })
	if _, err := s.PutMachine(MachineInfo{MachineID: "M1", Name: "Press 1", LineID: "L1", IdealCycleTime: 0.045, DesignSpeed: 22}); err != nil {
		t.Fatalf("PutMachine: %v", err)
	}
	return s
}

func prodRecord(id string, defects int) ProductionRecord {
	return ProductionRecord{
		ID: id, Date: day1, LineID: "L1", MachineID: "M1", ItemCode: "ITEM-1",
		ActualQuantity: 9500, DefectQuantity: defects,
		RunTimeMinutes: 450, DowntimeMinutes: 30, IdealCycleTime: 0.045, Shift: ShiftA,
	}
}

func TestAppendProductionRejectsWholeBatch(t *testing.T) {
	s := newTestStore(t)
	before := s.Revision()

	bad := prodRecord("P2", 0)
	bad.IdealCycleTime = 0
	_, err := s.AppendProduction(prodRecord("P1", 10), bad)
	if !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
	if got := len(s.Snapshot().Production); got != 0 {
		t.Errorf("expected no records after failed batch, got %d", got)
	}
	if s.Revision() != before {
		t.Errorf("revision moved on failed batch: %d -> %d", before, s.Revision())
	}
}

func TestAppendProductionAssignsIDAndTruncatesDate(t *testing.T) {
	s := newTestStore(t)
	r := prodRecord("", 1)
	r.Date = day1.Add(13*time.Hour + 5*time.Minute)

	out, err := s.AppendProduction(r)
	if err != nil {
		t.Fatalf("AppendProduction: %v", err)
	}
	if out[0].ID == "" {
		t.Error("expected generated id")
	}
	if !out[0].Date.Equal(day1) {
		t.Errorf("expected date truncated to %v, got %v", day1, out[0].Date)
	}
}

func TestAppendProductionRejectsDuplicateID(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AppendProduction(prodRecord("P1", 0)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AppendProduction(prodRecord("P1", 0)); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected duplicate rejection, got %v", err)
	}
}

func TestAppendProductionRejectsNonFiniteValues(t *testing.T) {
	mutations := map[string]func(r *ProductionRecord){
		"NaN ideal cycle":      func(r *ProductionRecord) { r.IdealCycleTime = math.NaN() },
		"infinite ideal cycle": func(r *ProductionRecord) { r.IdealCycleTime = math.Inf(1) },
		"NaN run time":         func(r *ProductionRecord) { r.RunTimeMinutes = math.NaN() },
		"infinite downtime":    func(r *ProductionRecord) { r.DowntimeMinutes = math.Inf(1) },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			s := newTestStore(t)
			r := prodRecord("P1", 0)
			mutate(&r)
			if _, err := s.AppendProduction(r); !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("expected ErrInvalidRecord, got %v", err)
			}
			if n := len(s.Snapshot().Production); n != 0 {
				t.Errorf("expected empty store, got %d records", n)
			}
		})
	}
}

func downtimeRecord(id string) DowntimeRecord {
	return DowntimeRecord{
		ID: id, Date: day1, MachineID: "M1", ReasonCode: "Jam", DurationMinutes: 30,
		StartTime: day1.Add(9 * time.Hour), EndTime: day1.Add(9*time.Hour + 30*time.Minute),
	}
}

func TestAppendDowntimeRejectsDuplicateID(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AppendDowntime(downtimeRecord("D1")); err != nil {
		t.Fatal(err)
	}
	rev := s.Revision()

	if _, err := s.AppendDowntime(downtimeRecord("D1")); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected duplicate rejection, got %v", err)
	}
	if _, err := s.AppendDowntime(downtimeRecord("D2"), downtimeRecord("D2")); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected in-batch duplicate rejection, got %v", err)
	}
	if n := len(s.Snapshot().Downtime); n != 1 {
		t.Errorf("expected 1 downtime episode, got %d", n)
	}
	if s.Revision() != rev {
		t.Errorf("revision moved on rejected batches: %d -> %d", rev, s.Revision())
	}
	if !s.HasDowntime("D1") || s.HasDowntime("D2") {
		t.Error("HasDowntime does not match stored episodes")
	}

	bad := downtimeRecord("D3")
	bad.DurationMinutes = math.NaN()
	if _, err := s.AppendDowntime(bad); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected NaN duration rejection, got %v", err)
	}
}

func TestRecordDefectCorrection(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AppendProduction(prodRecord("P1", 50)); err != nil {
		t.Fatal(err)
	}

	entry, err := s.RecordDefectCorrection("P1", 42, "qa.lead")
	if err != nil {
		t.Fatalf("RecordDefectCorrection: %v", err)
	}
	if entry.PreviousValue != 50 || entry.NewValue != 42 || entry.ActingUser != "qa.lead" {
		t.Errorf("unexpected log entry: %+v", entry)
	}
	rec, _ := s.GetProduction("P1")
	if rec.DefectQuantity != 42 {
		t.Errorf("expected live record updated to 42, got %d", rec.DefectQuantity)
	}
}

func TestRecordDefectCorrectionFailuresLeaveStoreUntouched(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AppendProduction(prodRecord("P1", 50)); err != nil {
		t.Fatal(err)
	}
	before := s.Revision()

	cases := []struct {
		name string
		id   string
		qty  int
		user string
		want error
	}{
		{"negative quantity", "P1", -1, "qa", ErrInvalidRecord},
		{"unknown record", "P404", 3, "qa", ErrNotFound},
		{"missing user", "P1", 3, "", ErrInvalidRecord},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.RecordDefectCorrection(tc.id, tc.qty, tc.user)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if s.Revision() != before {
		t.Errorf("revision moved: %d -> %d", before, s.Revision())
	}
	if len(s.Snapshot().Adjustments) != 0 {
		t.Error("expected no adjustment logs")
	}
	rec, _ := s.GetProduction("P1")
	if rec.DefectQuantity != 50 {
		t.Errorf("defect quantity changed to %d", rec.DefectQuantity)
	}
}

func TestAdjustmentLogReplayReproducesCurrentValue(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 25; trial++ {
		s := newTestStore(t)
		if _, err := s.AppendProduction(prodRecord("P1", rng.Intn(100)), prodRecord("P2", 5)); err != nil {
			t.Fatal(err)
		}
		corrections := 1 + rng.Intn(8)
		for i := 0; i < corrections; i++ {
			id := "P1"
			if rng.Intn(3) == 0 {
				id = "P2"
			}
			if _, err := s.RecordDefectCorrection(id, rng.Intn(200), "qa"); err != nil {
				t.Fatal(err)
			}
		}

		for _, id := range []string{"P1", "P2"} {
			logs, err := s.AdjustmentLogs(id)
			if err != nil {
				t.Fatal(err)
			}
			if len(logs) == 0 {
				continue
			}
			replayed, err := ReplayDefectQuantity(logs)
			if err != nil {
				t.Fatalf("trial %d: replay %s: %v", trial, id, err)
			}
			rec, _ := s.GetProduction(id)
			if replayed != rec.DefectQuantity {
				t.Errorf("trial %d: replay of %s gave %d, record holds %d", trial, id, replayed, rec.DefectQuantity)
			}
		}
	}
}

func TestReplayDetectsBrokenChain(t *testing.T) {
	logs := []DefectAdjustmentLog{
		{LogID: "a", PreviousValue: 10, NewValue: 8},
		{LogID: "b", PreviousValue: 7, NewValue: 3},
	}
	if _, err := ReplayDefectQuantity(logs); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected broken chain error, got %v", err)
	}
}

func TestConcurrentDefectAppendsAreNotLost(t *testing.T) {
	s := newTestStore(t)
	const writers = 64

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AppendDefectRecord(NewDefectData{
				Date: day1, MachineID: "M1", ShiftID: ShiftB, DefectTypeID: "SCRATCH",
				Quantity: 1, Severity: SeverityLow, ReporterID: "op1",
			})
			if err != nil {
				t.Error(err)
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Snapshot()
		}()
	}
	wg.Wait()

	if got := len(s.Snapshot().Defects); got != writers {
		t.Errorf("expected %d defects, got %d", writers, got)
	}
}

func TestAppendDefectRecordValidation(t *testing.T) {
	s := newTestStore(t)
	valid := NewDefectData{Date: day1, MachineID: "M1", ShiftID: ShiftA, DefectTypeID: "DENT", Quantity: 2, Severity: SeverityHigh}

	rec, err := s.AppendDefectRecord(valid)
	if err != nil {
		t.Fatalf("AppendDefectRecord: %v", err)
	}
	if rec.Status != DefectOpen || rec.ID == "" {
		t.Errorf("expected open defect with id, got %+v", rec)
	}

	unknownMachine := valid
	unknownMachine.MachineID = "M9"
	if _, err := s.AppendDefectRecord(unknownMachine); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown machine, got %v", err)
	}

	zeroQty := valid
	zeroQty.Quantity = 0
	if _, err := s.AppendDefectRecord(zeroQty); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord for zero quantity, got %v", err)
	}

	badLink := valid
	badLink.MaintenanceOrderID = "WO-404"
	if _, err := s.AppendDefectRecord(badLink); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown order link, got %v", err)
	}
}

func TestUpdateDefectRecord(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.AppendDefectRecord(NewDefectData{Date: day1, MachineID: "M1", ShiftID: ShiftA, DefectTypeID: "DENT", Quantity: 2, Severity: SeverityLow})
	if err != nil {
		t.Fatal(err)
	}

	closed := DefectClosed
	high := SeverityHigh
	updated, err := s.UpdateDefectRecord(rec.ID, DefectPatch{Status: &closed, Severity: &high})
	if err != nil {
		t.Fatalf("UpdateDefectRecord: %v", err)
	}
	if updated.Status != DefectClosed || updated.Severity != SeverityHigh {
		t.Errorf("patch not applied: %+v", updated)
	}

	bogus := DefectStatus("Deleted")
	if _, err := s.UpdateDefectRecord(rec.ID, DefectPatch{Status: &bogus}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord, got %v", err)
	}
	again, _ := s.GetDefect(rec.ID)
	if again.Status != DefectClosed {
		t.Errorf("failed patch leaked: %+v", again)
	}
}

func TestSnapshotIsIsolatedFromStore(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.AppendDefectRecord(NewDefectData{
		Date: day1, MachineID: "M1", ShiftID: ShiftA, DefectTypeID: "DENT", Quantity: 1,
		Severity: SeverityLow, ImageRefs: []string{"img-1"},
	})
	if err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	snap.Defects[0].ImageRefs[0] = "tampered"
	snap.Machines[0].Status = MachineInactive

	again, _ := s.GetDefect(rec.ID)
	if again.ImageRefs[0] != "img-1" {
		t.Errorf("snapshot mutation leaked into store: %v", again.ImageRefs)
	}
	m, _ := s.GetMachine("M1")
	if m.Status != MachineActive {
		t.Errorf("snapshot machine mutation leaked: %s", m.Status)
	}
}

func TestToggleAndUpdateMachine(t *testing.T) {
	s := newTestStore(t)

	m, err := s.ToggleMachineStatus("M1")
	if err != nil || m.Status != MachineInactive {
		t.Fatalf("toggle: %+v %v", m, err)
	}
	m, _ = s.ToggleMachineStatus("M1")
	if m.Status != MachineActive {
		t.Errorf("expected active after second toggle, got %s", m.Status)
	}

	zero := 0.0
	if _, err := s.UpdateMachine("M1", MachinePatch{IdealCycleTime: &zero}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord, got %v", err)
	}
	if _, err := s.ToggleMachineStatus("M404"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMaintenanceOrderLifecycle(t *testing.T) {
	s := newTestStore(t)
	o, err := s.AppendMaintenanceOrder(NewMaintenanceOrder{
		MachineID: "M1", Type: OrderCorrective, Priority: SeverityHigh, ScheduledDate: day1,
	})
	if err != nil {
		t.Fatalf("AppendMaintenanceOrder: %v", err)
	}
	if o.Status != OrderPending {
		t.Errorf("expected pending, got %s", o.Status)
	}

	done := OrderCompleted
	o, err = s.UpdateMaintenanceOrder(o.ID, MaintenanceOrderPatch{Status: &done})
	if err != nil {
		t.Fatal(err)
	}
	if o.CompletedAt == nil {
		t.Error("expected completedAt stamped")
	}

	reopen := OrderInProgress
	o, _ = s.UpdateMaintenanceOrder(o.ID, MaintenanceOrderPatch{Status: &reopen})
	if o.CompletedAt != nil {
		t.Error("expected completedAt cleared on reopen")
	}
}

func TestSparePartStock(t *testing.T) {
	s := newTestStore(t)
	p, err := s.AppendSparePart(SparePart{Name: "Bearing", PartNumber: "BRG-6204", Quantity: 10, MinStock: 4})
	if err != nil {
		t.Fatal(err)
	}
	qty := 3
	if _, err := s.UpdateSparePart(p.ID, SparePartPatch{Quantity: &qty}); err != nil {
		t.Fatal(err)
	}
	low := s.ListSpareParts(true)
	if len(low) != 1 || low[0].ID != p.ID {
		t.Errorf("expected part in low stock list, got %+v", low)
	}

	neg := -1
	if _, err := s.UpdateSparePart(p.ID, SparePartPatch{Quantity: &neg}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestSortDefectsIsStable(t *testing.T) {
	records := []DefectRecord{
		{ID: "a", Severity: SeverityLow, Quantity: 3},
		{ID: "b", Severity: SeverityHigh, Quantity: 3},
		{ID: "c", Severity: SeverityMedium, Quantity: 1},
		{ID: "d", Severity: SeverityHigh, Quantity: 7},
	}

	SortDefects(records, SortDefectsBySeverity, true)
	got := ""
	for _, r := range records {
		got += r.ID
	}
	if got != "bdca" {
		t.Errorf("severity desc: expected bdca, got %s", got)
	}

	SortDefects(records, SortDefectsByQuantity, false)
	got = ""
	for _, r := range records {
		got += r.ID
	}
	if got != "cbad" {
		t.Errorf("quantity asc: expected cbad, got %s", got)
	}
}

func TestParseSortFields(t *testing.T) {
	if f, err := ParseDefectSortField("Quantity"); err != nil || f != SortDefectsByQuantity {
		t.Errorf("ParseDefectSortField: %v %v", f, err)
	}
	if _, err := ParseDefectSortField("color"); !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("expected ErrInvalidFilter, got %v", err)
	}
	if f, err := ParseMachineSortField("line"); err != nil || f != SortMachinesByLine {
		t.Errorf("ParseMachineSortField: %v %v", f, err)
	}
}

func TestShiftWindowWrapsMidnight(t *testing.T) {
	night := ShiftInfo{ID: ShiftC, StartHour: 22, EndHour: 6}
	if !night.Contains(day1.Add(23 * time.Hour)) {
		t.Error("23:00 should be in night shift")
	}
	if !night.Contains(day1.Add(2 * time.Hour)) {
		t.Error("02:00 should be in night shift")
	}
	if night.Contains(day1.Add(12 * time.Hour)) {
		t.Error("12:00 should not be in night shift")
	}
}
