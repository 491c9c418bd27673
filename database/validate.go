package database

import (
	"fmt"
	"math"
)

// Finite reports whether every value is a real number (no NaN or Inf)
func Finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func validShift(code string) bool {
	return code == ShiftA || code == ShiftB || code == ShiftC
}

func validSeverity(s Severity) bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

func validDefectStatus(s DefectStatus) bool {
	return s == DefectOpen || s == DefectInProgress || s == DefectClosed
}

func validMachineStatus(s string) bool {
	return s == MachineActive || s == MachineInactive
}

func validOrderStatus(s string) bool {
	return s == OrderPending || s == OrderInProgress || s == OrderCompleted
}

// ValidateProduction checks the numeric and identity preconditions of a production record
func ValidateProduction(r ProductionRecord) error {
	switch {
	case r.MachineID == "" || r.LineID == "":
		return fmt.Errorf("%w: production record needs machineId and lineId", ErrInvalidRecord)
	case r.Date.IsZero():
		return fmt.Errorf("%w: production record %s has no date", ErrInvalidRecord, r.ID)
	case r.ActualQuantity < 0 || r.DefectQuantity < 0:
		return fmt.Errorf("%w: negative quantity on %s", ErrInvalidRecord, r.ID)
	case !Finite(r.RunTimeMinutes, r.DowntimeMinutes, r.IdealCycleTime):
		return fmt.Errorf("%w: non-finite time on %s", ErrInvalidRecord, r.ID)
	case r.RunTimeMinutes < 0 || r.DowntimeMinutes < 0:
		return fmt.Errorf("%w: negative time on %s", ErrInvalidRecord, r.ID)
	case !(r.IdealCycleTime > 0):
		return fmt.Errorf("%w: idealCycleTime must be > 0 on %s", ErrInvalidRecord, r.ID)
	case !validShift(r.Shift):
		return fmt.Errorf("%w: unknown shift %q on %s", ErrInvalidRecord, r.Shift, r.ID)
	}
	return nil
}

// ValidateDowntime checks a downtime episode
func ValidateDowntime(r DowntimeRecord) error {
	switch {
	case r.MachineID == "":
		return fmt.Errorf("%w: downtime record needs machineId", ErrInvalidRecord)
	case r.Date.IsZero():
		return fmt.Errorf("%w: downtime record %s has no date", ErrInvalidRecord, r.ID)
	case !Finite(r.DurationMinutes) || !(r.DurationMinutes > 0):
		return fmt.Errorf("%w: downtime duration must be > 0 on %s", ErrInvalidRecord, r.ID)
	case !r.StartTime.IsZero() && !r.EndTime.IsZero() && r.EndTime.Before(r.StartTime):
		return fmt.Errorf("%w: downtime %s ends before it starts", ErrInvalidRecord, r.ID)
	}
	return nil
}

func validateNewDefect(d NewDefectData) error {
	switch {
	case d.MachineID == "" || d.DefectTypeID == "":
		return fmt.Errorf("%w: defect needs machineId and defectTypeId", ErrInvalidRecord)
	case d.Date.IsZero():
		return fmt.Errorf("%w: defect has no date", ErrInvalidRecord)
	case d.Quantity <= 0:
		return fmt.Errorf("%w: defect quantity must be > 0", ErrInvalidRecord)
	case !validShift(d.ShiftID):
		return fmt.Errorf("%w: unknown shift %q", ErrInvalidRecord, d.ShiftID)
	case !validSeverity(d.Severity):
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidRecord, d.Severity)
	}
	return nil
}

// ValidateMachine checks a machine descriptor
func ValidateMachine(m MachineInfo) error {
	switch {
	case m.MachineID == "" || m.LineID == "":
		return fmt.Errorf("%w: machine needs machineId and lineId", ErrInvalidRecord)
	case !Finite(m.IdealCycleTime, m.DesignSpeed) || !(m.IdealCycleTime > 0):
		return fmt.Errorf("%w: machine %s idealCycleTime must be > 0", ErrInvalidRecord, m.MachineID)
	case m.DesignSpeed < 0:
		return fmt.Errorf("%w: machine %s designSpeed must be >= 0", ErrInvalidRecord, m.MachineID)
	case !validMachineStatus(m.Status):
		return fmt.Errorf("%w: machine %s has unknown status %q", ErrInvalidRecord, m.MachineID, m.Status)
	}
	return nil
}

func validateOrder(o MaintenanceOrder) error {
	switch {
	case o.MachineID == "":
		return fmt.Errorf("%w: maintenance order needs machineId", ErrInvalidRecord)
	case o.Type != OrderPreventive && o.Type != OrderCorrective:
		return fmt.Errorf("%w: unknown maintenance type %q", ErrInvalidRecord, o.Type)
	case !validSeverity(o.Priority):
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidRecord, o.Priority)
	case !validOrderStatus(o.Status):
		return fmt.Errorf("%w: unknown maintenance status %q", ErrInvalidRecord, o.Status)
	}
	return nil
}

func validateSparePart(p SparePart) error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: spare part needs a name", ErrInvalidRecord)
	case p.Quantity < 0 || p.MinStock < 0:
		return fmt.Errorf("%w: spare part %s stock must be >= 0", ErrInvalidRecord, p.Name)
	}
	return nil
}
