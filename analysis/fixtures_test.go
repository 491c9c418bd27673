package analysis

import (
	"testing"
	"time"

	"oee-dashboard/database"
)

var (
	jan10 = time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	jan11 = jan10.AddDate(0, 0, 1)
	jan12 = jan10.AddDate(0, 0, 2)
)

var testAreas = map[string][]string{
	"press": {"L1"},
	"paint": {"L2", "L3"},
}

func prod(id, line, machine, shift string, day time.Time, actual, defect int, run, down float64) database.ProductionRecord {
	return database.ProductionRecord{
		ID: id, Date: day, LineID: line, MachineID: machine, ItemCode: "ITEM",
		ActualQuantity: actual, DefectQuantity: defect,
		RunTimeMinutes: run, DowntimeMinutes: down, IdealCycleTime: 0.045, Shift: shift,
	}
}

// newFixtureStore seeds three machines on two lines (L3 has no machines) and a
// few days of production, downtime, defects and maintenance orders.
func newFixtureStore(t *testing.T) *database.Store {
	t.Helper()
	s := database.NewStore()
	s.SetClock(func() time.Time { return jan12.Add(12 * time.Hour) })

	for _, m := range []database.MachineInfo{
		{MachineID: "M1", Name: "Press 1", LineID: "L1", IdealCycleTime: 0.045, DesignSpeed: 22},
		{MachineID: "M2", Name: "Press 2", LineID: "L1", IdealCycleTime: 0.045, DesignSpeed: 22},
		{MachineID: "M3", Name: "Painter", LineID: "L2", IdealCycleTime: 0.045, DesignSpeed: 22, Status: database.MachineInactive},
	} {
		if _, err := s.PutMachine(m); err != nil {
			t.Fatal(err)
		}
	}
	for _, sh := range []database.ShiftInfo{
		{ID: database.ShiftA, Name: "Day", StartHour: 6, EndHour: 14},
		{ID: database.ShiftB, Name: "Swing", StartHour: 14, EndHour: 22},
		{ID: database.ShiftC, Name: "Night", StartHour: 22, EndHour: 6},
	} {
		if err := s.PutShift(sh); err != nil {
			t.Fatal(err)
		}
	}

	_, err := s.AppendProduction(
		prod("P1", "L1", "M1", "A", jan10, 9500, 50, 450, 30),
		prod("P2", "L1", "M2", "B", jan10, 8000, 200, 400, 80),
		prod("P3", "L2", "M3", "A", jan11, 7000, 100, 420, 60),
		prod("P4", "L1", "M1", "C", jan12, 9000, 0, 460, 20),
	)
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.AppendDowntime(
		database.DowntimeRecord{ID: "D1", Date: jan10, MachineID: "M1", ReasonCode: "Jam", DurationMinutes: 30,
			StartTime: jan10.Add(9 * time.Hour), EndTime: jan10.Add(9*time.Hour + 30*time.Minute)},
		database.DowntimeRecord{ID: "D2", Date: jan10, MachineID: "M2", ReasonCode: "Setup", DurationMinutes: 80,
			StartTime: jan10.Add(15 * time.Hour), EndTime: jan10.Add(16*time.Hour + 20*time.Minute)},
		database.DowntimeRecord{ID: "D3", Date: jan11, MachineID: "M3", ReasonCode: "Jam", DurationMinutes: 60,
			StartTime: jan11.Add(7 * time.Hour), EndTime: jan11.Add(8 * time.Hour)},
	)
	if err != nil {
		t.Fatal(err)
	}

	for _, d := range []database.NewDefectData{
		{Date: jan10, MachineID: "M1", ShiftID: "A", DefectTypeID: "Scratch", CauseCategory: "Material", Quantity: 50, Severity: database.SeverityLow},
		{Date: jan10, MachineID: "M2", ShiftID: "B", DefectTypeID: "Dent", CauseCategory: "Machine", Quantity: 150, Severity: database.SeverityHigh, IsAbnormal: true},
		{Date: jan11, MachineID: "M3", ShiftID: "A", DefectTypeID: "Crack", CauseCategory: "Machine", Quantity: 250, Severity: database.SeverityMedium},
	} {
		if _, err := s.AppendDefectRecord(d); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := s.AppendMaintenanceOrder(database.NewMaintenanceOrder{
		MachineID: "M1", Type: database.OrderPreventive, Priority: database.SeverityLow, ScheduledDate: jan10,
	}); err != nil {
		t.Fatal(err)
	}
	return s
}

func fullFilter() FilterSpec {
	return FilterSpec{DateFrom: jan10, DateTo: jan12, Area: "all", Shift: "all", MachineStatus: "all"}
}
