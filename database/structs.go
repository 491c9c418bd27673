package database

import "time"

// Shift codes used by production and defect records
const (
	ShiftA = "A"
	ShiftB = "B"
	ShiftC = "C"
)

// ShiftCodes lists every shift in display order
var ShiftCodes = []string{ShiftA, ShiftB, ShiftC}

// Machine status values
const (
	MachineActive   = "active"
	MachineInactive = "inactive"
)

// Severity grades a defect observation
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// DefectStatus tracks a defect through its lifecycle
type DefectStatus string

const (
	DefectOpen       DefectStatus = "Open"
	DefectInProgress DefectStatus = "InProgress"
	DefectClosed     DefectStatus = "Closed"
)

// Maintenance order enums
const (
	OrderPreventive = "preventive"
	OrderCorrective = "corrective"

	OrderPending    = "Pending"
	OrderInProgress = "InProgress"
	OrderCompleted  = "Completed"
)

// ProductionRecord is one machine/shift/day observation.
// Availability, performance, quality and OEE are derived and never stored.
type ProductionRecord struct {
	ID              string    `json:"id"`
	Date            time.Time `json:"date"`
	LineID          string    `json:"lineId"`
	MachineID       string    `json:"machineId"`
	ItemCode        string    `json:"itemCode"`
	ActualQuantity  int       `json:"actualQuantity"`
	DefectQuantity  int       `json:"defectQuantity"`
	RunTimeMinutes  float64   `json:"runTimeMinutes"`
	DowntimeMinutes float64   `json:"downtimeMinutes"`
	IdealCycleTime  float64   `json:"idealCycleTime"` // minutes per unit
	Shift           string    `json:"shift"`
}

// DowntimeRecord is one downtime episode
type DowntimeRecord struct {
	ID              string    `json:"id"`
	Date            time.Time `json:"date"`
	MachineID       string    `json:"machineId"`
	ReasonCode      string    `json:"reasonCode"`
	DurationMinutes float64   `json:"durationMinutes"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
}

// DefectRecord is one operator-entered quality defect observation
type DefectRecord struct {
	ID                 string       `json:"id"`
	Date               time.Time    `json:"date"`
	MachineID          string       `json:"machineId"`
	ShiftID            string       `json:"shiftId"`
	DefectTypeID       string       `json:"defectTypeId"`
	CauseCategory      string       `json:"causeCategory"`
	Quantity           int          `json:"quantity"`
	Note               string       `json:"note"`
	Severity           Severity     `json:"severity"`
	Status             DefectStatus `json:"status"`
	IsAbnormal         bool         `json:"isAbnormal"`
	ReporterID         string       `json:"reporterId"`
	MaintenanceOrderID string       `json:"maintenanceOrderId,omitempty"`
	ImageRefs          []string     `json:"imageRefs,omitempty"`
	CreatedAt          time.Time    `json:"createdAt"`
}

// NewDefectData is the operator input for a defect record
type NewDefectData struct {
	Date               time.Time `json:"date"`
	MachineID          string    `json:"machineId"`
	ShiftID            string    `json:"shiftId"`
	DefectTypeID       string    `json:"defectTypeId"`
	CauseCategory      string    `json:"causeCategory"`
	Quantity           int       `json:"quantity"`
	Note               string    `json:"note"`
	Severity           Severity  `json:"severity"`
	IsAbnormal         bool      `json:"isAbnormal"`
	ReporterID         string    `json:"reporterId"`
	MaintenanceOrderID string    `json:"maintenanceOrderId,omitempty"`
	ImageRefs          []string  `json:"imageRefs,omitempty"`
}

// DefectPatch carries the mutable fields of a defect record
type DefectPatch struct {
	Status             *DefectStatus `json:"status,omitempty"`
	Severity           *Severity     `json:"severity,omitempty"`
	Note               *string       `json:"note,omitempty"`
	MaintenanceOrderID *string       `json:"maintenanceOrderId,omitempty"`
}

// DefectAdjustmentLog journals one defect-quantity correction.
// Entries are append-only.
type DefectAdjustmentLog struct {
	LogID              string    `json:"logId"`
	ProductionRecordID string    `json:"productionRecordId"`
	Timestamp          time.Time `json:"timestamp"`
	PreviousValue      int       `json:"previousValue"`
	NewValue           int       `json:"newValue"`
	ActingUser         string    `json:"actingUser"`
}

// MachineInfo is the static machine descriptor
type MachineInfo struct {
	MachineID      string  `json:"machineId"`
	Name           string  `json:"name"`
	LineID         string  `json:"lineId"`
	IdealCycleTime float64 `json:"idealCycleTime"`
	DesignSpeed    float64 `json:"designSpeed"`
	Status         string  `json:"status"`
}

// MachinePatch carries the editable fields of a machine
type MachinePatch struct {
	Name           *string  `json:"name,omitempty"`
	LineID         *string  `json:"lineId,omitempty"`
	IdealCycleTime *float64 `json:"idealCycleTime,omitempty"`
	DesignSpeed    *float64 `json:"designSpeed,omitempty"`
	Status         *string  `json:"status,omitempty"`
}

// ShiftInfo defines a shift window in whole hours.
// A window whose end is not after its start wraps midnight.
type ShiftInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StartHour int    `json:"startHour"`
	EndHour   int    `json:"endHour"`
}

// Contains reports whether t falls inside the shift window
func (s ShiftInfo) Contains(t time.Time) bool {
	h := t.Hour()
	if s.StartHour < s.EndHour {
		return h >= s.StartHour && h < s.EndHour
	}
	return h >= s.StartHour || h < s.EndHour
}

// User is an operator, engineer or administrator
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// SparePart is a stocked maintenance part
type SparePart struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	PartNumber           string   `json:"partNumber"`
	Quantity             int      `json:"quantity"`
	MinStock             int      `json:"minStock"`
	Location             string   `json:"location"`
	CompatibleMachineIDs []string `json:"compatibleMachineIds,omitempty"`
}

// LowStock reports whether the part is at or below its minimum stock
func (p SparePart) LowStock() bool {
	return p.Quantity <= p.MinStock
}

// SparePartPatch carries the editable fields of a spare part
type SparePartPatch struct {
	Name     *string `json:"name,omitempty"`
	Quantity *int    `json:"quantity,omitempty"`
	MinStock *int    `json:"minStock,omitempty"`
	Location *string `json:"location,omitempty"`
}

// MaintenanceOrder is a preventive or corrective work order on a machine
type MaintenanceOrder struct {
	ID            string     `json:"id"`
	MachineID     string     `json:"machineId"`
	Type          string     `json:"type"`
	Priority      Severity   `json:"priority"`
	Status        string     `json:"status"`
	Description   string     `json:"description"`
	AssigneeID    string     `json:"assigneeId"`
	ScheduledDate time.Time  `json:"scheduledDate"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// NewMaintenanceOrder is the input for a maintenance order
type NewMaintenanceOrder struct {
	MachineID     string    `json:"machineId"`
	Type          string    `json:"type"`
	Priority      Severity  `json:"priority"`
	Description   string    `json:"description"`
	AssigneeID    string    `json:"assigneeId"`
	ScheduledDate time.Time `json:"scheduledDate"`
}

// MaintenanceOrderPatch carries the editable fields of a maintenance order
type MaintenanceOrderPatch struct {
	Status        *string    `json:"status,omitempty"`
	Priority      *Severity  `json:"priority,omitempty"`
	AssigneeID    *string    `json:"assigneeId,omitempty"`
	Description   *string    `json:"description,omitempty"`
	ScheduledDate *time.Time `json:"scheduledDate,omitempty"`
}

// Snapshot is a consistent copy of the store contents at one revision
type Snapshot struct {
	Revision          uint64                `json:"revision"`
	Production        []ProductionRecord    `json:"production"`
	Downtime          []DowntimeRecord      `json:"downtime"`
	Defects           []DefectRecord        `json:"defects"`
	Adjustments       []DefectAdjustmentLog `json:"adjustments"`
	Machines          []MachineInfo         `json:"machines"`
	Shifts            []ShiftInfo           `json:"shifts"`
	Users             []User                `json:"users"`
	SpareParts        []SparePart           `json:"spareParts"`
	MaintenanceOrders []MaintenanceOrder    `json:"maintenanceOrders"`
}

// MachineIndex maps machine IDs to their descriptors
func (s *Snapshot) MachineIndex() map[string]MachineInfo {
	idx := make(map[string]MachineInfo, len(s.Machines))
	for _, m := range s.Machines {
		idx[m.MachineID] = m
	}
	return idx
}

// ShiftOf returns the shift code whose window contains t, or "" if none does
func (s *Snapshot) ShiftOf(t time.Time) string {
	for _, sh := range s.Shifts {
		if sh.Contains(t) {
			return sh.ID
		}
	}
	return ""
}
