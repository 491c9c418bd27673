package analysis

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"oee-dashboard/database"
)

func TestResolveScopeAreas(t *testing.T) {
	snap := newFixtureStore(t).Snapshot()

	cases := []struct {
		name     string
		area     string
		status   string
		lines    []string
		machines []string
	}{
		{"all lines", "all", "all", []string{"L1", "L2", "L3"}, []string{"M1", "M2", "M3"}},
		{"named area", "press", "all", []string{"L1"}, []string{"M1", "M2"}},
		{"area without machines", "paint", "active", []string{"L2", "L3"}, []string{}},
		{"inactive only", "all", "inactive", []string{"L1", "L2", "L3"}, []string{"M3"}},
		{"unknown area", "welding", "all", []string{}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := fullFilter()
			f.Area = tc.area
			f.MachineStatus = tc.status
			scope, err := ResolveScope(f, snap, testAreas)
			if err != nil {
				t.Fatalf("ResolveScope: %v", err)
			}
			if !reflect.DeepEqual(scope.Lines, tc.lines) {
				t.Errorf("lines = %v, want %v", scope.Lines, tc.lines)
			}
			if !reflect.DeepEqual(scope.MachineIDs, tc.machines) {
				t.Errorf("machines = %v, want %v", scope.MachineIDs, tc.machines)
			}
		})
	}
}

func TestResolveScopeErrors(t *testing.T) {
	snap := newFixtureStore(t).Snapshot()

	inverted := fullFilter()
	inverted.DateFrom, inverted.DateTo = jan12, jan10

	missingFrom := fullFilter()
	missingFrom.DateFrom = time.Time{}

	badShift := fullFilter()
	badShift.Shift = "D"

	badStatus := fullFilter()
	badStatus.MachineStatus = "broken"

	unknownMachine := fullFilter()
	unknownMachine.MachineIDs = []string{"M1", "M404"}

	cases := []struct {
		name   string
		filter FilterSpec
		want   error
	}{
		{"inverted range", inverted, database.ErrInvalidRange},
		{"missing dateFrom", missingFrom, database.ErrInvalidRange},
		{"bad shift", badShift, database.ErrInvalidFilter},
		{"bad status", badStatus, database.ErrInvalidFilter},
		{"unknown machine", unknownMachine, database.ErrInconsistentScope},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ResolveScope(tc.filter, snap, testAreas); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
