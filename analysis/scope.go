package analysis

import (
	"fmt"
	"sort"
	"time"

	"oee-dashboard/database"
)

// Scope is a resolved filter: the concrete lines and machines a dashboard covers,
// the inclusive date window and the shift token applied per record.
type Scope struct {
	DateFrom   time.Time `json:"dateFrom"`
	DateTo     time.Time `json:"dateTo"`
	Area       string    `json:"area"`
	Lines      []string  `json:"lines"`
	MachineIDs []string  `json:"machineIds"`
	Shift      string    `json:"shift"`

	machines map[string]database.MachineInfo
	known    map[string]database.MachineInfo
	lineSet  map[string]bool
}

// ResolveScope turns a filter into the set of lines and machines in scope.
// areas maps an area name to its lines; an unknown area resolves to no lines.
func ResolveScope(filter FilterSpec, snap *database.Snapshot, areas map[string][]string) (Scope, error) {
	f, err := filter.Normalize()
	if err != nil {
		return Scope{}, err
	}

	known := snap.MachineIndex()
	lines := resolveLines(f.Area, snap.Machines, areas)
	lineSet := make(map[string]bool, len(lines))
	for _, l := range lines {
		lineSet[l] = true
	}

	var restrict map[string]bool
	if len(f.MachineIDs) > 0 {
		restrict = make(map[string]bool, len(f.MachineIDs))
		for _, id := range f.MachineIDs {
			if _, ok := known[id]; !ok {
				return Scope{}, fmt.Errorf("%w: machine %s is not in master data", database.ErrInconsistentScope, id)
			}
			restrict[id] = true
		}
	}

	machines := make(map[string]database.MachineInfo)
	ids := []string{}
	for _, m := range snap.Machines {
		if !lineSet[m.LineID] {
			continue
		}
		if f.MachineStatus != AllToken && m.Status != f.MachineStatus {
			continue
		}
		if restrict != nil && !restrict[m.MachineID] {
			continue
		}
		machines[m.MachineID] = m
		ids = append(ids, m.MachineID)
	}
	sort.Strings(ids)

	return Scope{
		DateFrom:   f.DateFrom,
		DateTo:     f.DateTo,
		Area:       f.Area,
		Lines:      lines,
		MachineIDs: ids,
		Shift:      f.Shift,
		machines:   machines,
		known:      known,
		lineSet:    lineSet,
	}, nil
}

func resolveLines(area string, machines []database.MachineInfo, areas map[string][]string) []string {
	set := make(map[string]bool)
	if area == AllToken {
		for _, m := range machines {
			set[m.LineID] = true
		}
		for _, ls := range areas {
			for _, l := range ls {
				set[l] = true
			}
		}
	} else {
		for _, l := range areas[area] {
			set[l] = true
		}
	}

	lines := make([]string, 0, len(set))
	for l := range set {
		lines = append(lines, l)
	}
	sort.Strings(lines)
	return lines
}

// Shifts returns the shift codes the heatmap covers
func (s *Scope) Shifts() []string {
	if s.Shift == AllToken {
		return append([]string(nil), database.ShiftCodes...)
	}
	return []string{s.Shift}
}

// HasMachine reports whether a machine is in scope
func (s *Scope) HasMachine(id string) bool {
	_, ok := s.machines[id]
	return ok
}

// Machine returns the master data of a machine in scope
func (s *Scope) Machine(id string) (database.MachineInfo, bool) {
	m, ok := s.machines[id]
	return m, ok
}

// MatchShift applies the shift token to a record's shift
func (s *Scope) MatchShift(code string) bool {
	return s.Shift == AllToken || s.Shift == code
}

// InWindow reports whether a day lies in the inclusive date window
func (s *Scope) InWindow(t time.Time) bool {
	d := database.Day(t)
	return !d.Before(s.DateFrom) && !d.After(s.DateTo)
}

// ProductionHistory returns the production records in machine and shift scope
// for every date. Records are attributed to their machine's current line, the
// same rule scope membership uses, so a moved machine reports under its new
// line in every view. A record on an in-scope line whose machine is missing
// from master data makes the scope inconsistent.
func (s *Scope) ProductionHistory(snap *database.Snapshot) ([]database.ProductionRecord, error) {
	out := []database.ProductionRecord{}
	for _, r := range snap.Production {
		if !s.MatchShift(r.Shift) {
			continue
		}
		if m, ok := s.Machine(r.MachineID); ok {
			r.LineID = m.LineID
			out = append(out, r)
			continue
		}
		if _, ok := s.known[r.MachineID]; !ok && s.lineSet[r.LineID] {
			return nil, fmt.Errorf("%w: production record %s references unknown machine %s",
				database.ErrInconsistentScope, r.ID, r.MachineID)
		}
	}
	return out, nil
}

// FilterWindow keeps the annotated records dated inside the window
func (s *Scope) FilterWindow(records []AnnotatedRecord) []AnnotatedRecord {
	out := []AnnotatedRecord{}
	for _, r := range records {
		if s.InWindow(r.Date) {
			out = append(out, r)
		}
	}
	return out
}

// SelectDowntime returns the downtime episodes in scope. An episode's shift is
// the shift whose window contains its start time.
func (s *Scope) SelectDowntime(snap *database.Snapshot) []database.DowntimeRecord {
	out := []database.DowntimeRecord{}
	for _, r := range snap.Downtime {
		if !s.HasMachine(r.MachineID) || !s.InWindow(r.Date) {
			continue
		}
		if s.Shift != AllToken && (r.StartTime.IsZero() || snap.ShiftOf(r.StartTime) != s.Shift) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// SelectDefects returns the defect observations in scope
func (s *Scope) SelectDefects(snap *database.Snapshot) []database.DefectRecord {
	out := []database.DefectRecord{}
	for _, r := range snap.Defects {
		if s.HasMachine(r.MachineID) && s.InWindow(r.Date) && s.MatchShift(r.ShiftID) {
			out = append(out, r)
		}
	}
	return out
}

// SelectOrders returns the maintenance orders scheduled in scope
func (s *Scope) SelectOrders(snap *database.Snapshot) []database.MaintenanceOrder {
	out := []database.MaintenanceOrder{}
	for _, o := range snap.MaintenanceOrders {
		if s.HasMachine(o.MachineID) && s.InWindow(o.ScheduledDate) {
			out = append(out, o)
		}
	}
	return out
}
