package database

import (
	"fmt"
	"sort"
	"strings"
)

// DefectSortField enumerates the sortable columns of the defect table
type DefectSortField int

const (
	SortDefectsByDate DefectSortField = iota
	SortDefectsBySeverity
	SortDefectsByStatus
	SortDefectsByQuantity
	SortDefectsByMachine
)

// ParseDefectSortField maps a column name to its sort field; "" means date
func ParseDefectSortField(s string) (DefectSortField, error) {
	switch strings.ToLower(s) {
	case "", "date":
		return SortDefectsByDate, nil
	case "severity":
		return SortDefectsBySeverity, nil
	case "status":
		return SortDefectsByStatus, nil
	case "quantity":
		return SortDefectsByQuantity, nil
	case "machine", "machineid":
		return SortDefectsByMachine, nil
	}
	return 0, fmt.Errorf("%w: unknown defect sort field %q", ErrInvalidFilter, s)
}

var severityRank = map[Severity]int{SeverityLow: 0, SeverityMedium: 1, SeverityHigh: 2}

var statusRank = map[DefectStatus]int{DefectOpen: 0, DefectInProgress: 1, DefectClosed: 2}

func defectLess(field DefectSortField) func(a, b DefectRecord) bool {
	switch field {
	case SortDefectsBySeverity:
		return func(a, b DefectRecord) bool { return severityRank[a.Severity] < severityRank[b.Severity] }
	case SortDefectsByStatus:
		return func(a, b DefectRecord) bool { return statusRank[a.Status] < statusRank[b.Status] }
	case SortDefectsByQuantity:
		return func(a, b DefectRecord) bool { return a.Quantity < b.Quantity }
	case SortDefectsByMachine:
		return func(a, b DefectRecord) bool { return a.MachineID < b.MachineID }
	default:
		return func(a, b DefectRecord) bool { return a.Date.Before(b.Date) }
	}
}

// SortDefects orders records in place by field; equal keys keep their order
func SortDefects(records []DefectRecord, field DefectSortField, desc bool) {
	less := defectLess(field)
	sort.SliceStable(records, func(i, j int) bool {
		if desc {
			return less(records[j], records[i])
		}
		return less(records[i], records[j])
	})
}

// DefectQuery filters and orders the defect table
type DefectQuery struct {
	MachineID string
	Status    DefectStatus
	Severity  Severity
	Sort      DefectSortField
	Desc      bool
}

// ListDefects returns the defect records matching q
func (s *Store) ListDefects(q DefectQuery) []DefectRecord {
	s.mu.RLock()
	out := make([]DefectRecord, 0, len(s.defects))
	for _, d := range s.defects {
		if q.MachineID != "" && d.MachineID != q.MachineID {
			continue
		}
		if q.Status != "" && d.Status != q.Status {
			continue
		}
		if q.Severity != "" && d.Severity != q.Severity {
			continue
		}
		out = append(out, cloneDefect(d))
	}
	s.mu.RUnlock()

	SortDefects(out, q.Sort, q.Desc)
	return out
}

// MachineSortField enumerates the sortable columns of the machine table
type MachineSortField int

const (
	SortMachinesByID MachineSortField = iota
	SortMachinesByName
	SortMachinesByLine
	SortMachinesByStatus
	SortMachinesByIdealCycleTime
)

// ParseMachineSortField maps a column name to its sort field; "" means id
func ParseMachineSortField(s string) (MachineSortField, error) {
	switch strings.ToLower(s) {
	case "", "id", "machineid":
		return SortMachinesByID, nil
	case "name":
		return SortMachinesByName, nil
	case "line", "lineid":
		return SortMachinesByLine, nil
	case "status":
		return SortMachinesByStatus, nil
	case "idealcycletime":
		return SortMachinesByIdealCycleTime, nil
	}
	return 0, fmt.Errorf("%w: unknown machine sort field %q", ErrInvalidFilter, s)
}

// SortMachines orders machines in place by field; equal keys keep their order
func SortMachines(machines []MachineInfo, field MachineSortField, desc bool) {
	var less func(a, b MachineInfo) bool
	switch field {
	case SortMachinesByName:
		less = func(a, b MachineInfo) bool { return a.Name < b.Name }
	case SortMachinesByLine:
		less = func(a, b MachineInfo) bool { return a.LineID < b.LineID }
	case SortMachinesByStatus:
		less = func(a, b MachineInfo) bool { return a.Status < b.Status }
	case SortMachinesByIdealCycleTime:
		less = func(a, b MachineInfo) bool { return a.IdealCycleTime < b.IdealCycleTime }
	default:
		less = func(a, b MachineInfo) bool { return a.MachineID < b.MachineID }
	}
	sort.SliceStable(machines, func(i, j int) bool {
		if desc {
			return less(machines[j], machines[i])
		}
		return less(machines[i], machines[j])
	})
}

// ListMachines returns all machines ordered by field
func (s *Store) ListMachines(field MachineSortField, desc bool) []MachineInfo {
	s.mu.RLock()
	out := make([]MachineInfo, 0, len(s.machineOrder))
	for _, id := range s.machineOrder {
		out = append(out, s.machines[id])
	}
	s.mu.RUnlock()

	SortMachines(out, field, desc)
	return out
}

// ListMaintenanceOrders returns orders, optionally restricted to one machine
func (s *Store) ListMaintenanceOrders(machineID string) []MaintenanceOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []MaintenanceOrder{}
	for _, o := range s.orders {
		if machineID != "" && o.MachineID != machineID {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	return out
}

// ListSpareParts returns the inventory, optionally only parts at or below minimum stock
func (s *Store) ListSpareParts(lowStockOnly bool) []SparePart {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []SparePart{}
	for _, p := range s.parts {
		if lowStockOnly && !p.LowStock() {
			continue
		}
		out = append(out, clonePart(p))
	}
	return out
}
