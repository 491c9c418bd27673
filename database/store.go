package database

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the in-memory Record Store.
// Reads hand out copies; mutations are serialized and bump the revision.
type Store struct {
	mu       sync.RWMutex
	revision uint64

	production  []ProductionRecord
	prodIndex   map[string]int
	downtime    []DowntimeRecord
	downIndex   map[string]int
	defects     []DefectRecord
	defectIndex map[string]int
	adjustments []DefectAdjustmentLog

	machines     map[string]MachineInfo
	machineOrder []string
	shifts       []ShiftInfo
	users        map[string]User
	userOrder    []string
	parts        []SparePart
	partIndex    map[string]int
	orders       []MaintenanceOrder
	orderIndex   map[string]int

	now   func() time.Time
	newID func() string
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		prodIndex:   make(map[string]int),
		downIndex:   make(map[string]int),
		defectIndex: make(map[string]int),
		machines:    make(map[string]MachineInfo),
		users:       make(map[string]User),
		partIndex:   make(map[string]int),
		orderIndex:  make(map[string]int),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
}

// SetClock overrides the timestamp source (tests, replay tooling)
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Revision returns the number of successful mutations applied so far
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Snapshot returns a deep copy of the store contents
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Revision:          s.revision,
		Production:        slices.Clone(s.production),
		Downtime:          slices.Clone(s.downtime),
		Defects:           make([]DefectRecord, len(s.defects)),
		Adjustments:       slices.Clone(s.adjustments),
		Machines:          make([]MachineInfo, 0, len(s.machineOrder)),
		Shifts:            slices.Clone(s.shifts),
		Users:             make([]User, 0, len(s.userOrder)),
		SpareParts:        make([]SparePart, len(s.parts)),
		MaintenanceOrders: make([]MaintenanceOrder, len(s.orders)),
	}
	for i, d := range s.defects {
		snap.Defects[i] = cloneDefect(d)
	}
	for _, id := range s.machineOrder {
		snap.Machines = append(snap.Machines, s.machines[id])
	}
	for _, id := range s.userOrder {
		snap.Users = append(snap.Users, s.users[id])
	}
	for i, p := range s.parts {
		snap.SpareParts[i] = clonePart(p)
	}
	for i, o := range s.orders {
		snap.MaintenanceOrders[i] = cloneOrder(o)
	}
	return snap
}

func cloneDefect(d DefectRecord) DefectRecord {
	d.ImageRefs = slices.Clone(d.ImageRefs)
	return d
}

func clonePart(p SparePart) SparePart {
	p.CompatibleMachineIDs = slices.Clone(p.CompatibleMachineIDs)
	return p
}

func cloneOrder(o MaintenanceOrder) MaintenanceOrder {
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		o.CompletedAt = &t
	}
	return o
}

// AppendProduction appends a batch of production records.
// The whole batch is validated before anything is written.
func (s *Store) AppendProduction(records ...ProductionRecord) ([]ProductionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make([]ProductionRecord, len(records))
	seen := make(map[string]bool, len(records))
	for i, r := range records {
		if r.ID == "" {
			r.ID = s.newID()
		}
		if err := ValidateProduction(r); err != nil {
			return nil, err
		}
		if _, dup := s.prodIndex[r.ID]; dup || seen[r.ID] {
			return nil, fmt.Errorf("%w: duplicate production record id %s", ErrInvalidRecord, r.ID)
		}
		seen[r.ID] = true
		r.Date = truncateDay(r.Date)
		batch[i] = r
	}
	if len(batch) == 0 {
		return batch, nil
	}

	for _, r := range batch {
		s.prodIndex[r.ID] = len(s.production)
		s.production = append(s.production, r)
	}
	s.revision++
	return slices.Clone(batch), nil
}

// AppendDowntime appends a batch of downtime episodes.
// Like production, ids must be unique across the store and the batch.
func (s *Store) AppendDowntime(records ...DowntimeRecord) ([]DowntimeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make([]DowntimeRecord, len(records))
	seen := make(map[string]bool, len(records))
	for i, r := range records {
		if r.ID == "" {
			r.ID = s.newID()
		}
		if err := ValidateDowntime(r); err != nil {
			return nil, err
		}
		if _, dup := s.downIndex[r.ID]; dup || seen[r.ID] {
			return nil, fmt.Errorf("%w: duplicate downtime record id %s", ErrInvalidRecord, r.ID)
		}
		seen[r.ID] = true
		r.Date = truncateDay(r.Date)
		batch[i] = r
	}
	if len(batch) == 0 {
		return batch, nil
	}

	for _, r := range batch {
		s.downIndex[r.ID] = len(s.downtime)
		s.downtime = append(s.downtime, r)
	}
	s.revision++
	return slices.Clone(batch), nil
}

// GetProduction returns one production record
func (s *Store) GetProduction(id string) (ProductionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.prodIndex[id]
	if !ok {
		return ProductionRecord{}, fmt.Errorf("%w: production record %s", ErrNotFound, id)
	}
	return s.production[i], nil
}

// HasDowntime reports whether a downtime episode with this id is stored
func (s *Store) HasDowntime(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.downIndex[id]
	return ok
}

// RecordDefectCorrection replaces the defect quantity of a production record and
// journals the change. The log entry and the record update land together.
func (s *Store) RecordDefectCorrection(productionID string, newDefectQuantity int, actingUser string) (DefectAdjustmentLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if newDefectQuantity < 0 {
		return DefectAdjustmentLog{}, fmt.Errorf("%w: defect quantity must be >= 0, got %d", ErrInvalidRecord, newDefectQuantity)
	}
	if actingUser == "" {
		return DefectAdjustmentLog{}, fmt.Errorf("%w: correction needs an acting user", ErrInvalidRecord)
	}
	i, ok := s.prodIndex[productionID]
	if !ok {
		return DefectAdjustmentLog{}, fmt.Errorf("%w: production record %s", ErrNotFound, productionID)
	}

	entry := DefectAdjustmentLog{
		LogID:              s.newID(),
		ProductionRecordID: productionID,
		Timestamp:          s.now(),
		PreviousValue:      s.production[i].DefectQuantity,
		NewValue:           newDefectQuantity,
		ActingUser:         actingUser,
	}
	s.adjustments = append(s.adjustments, entry)
	s.production[i].DefectQuantity = newDefectQuantity
	s.revision++
	return entry, nil
}

// AdjustmentLogs returns the correction journal of one production record in append order
func (s *Store) AdjustmentLogs(productionID string) ([]DefectAdjustmentLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.prodIndex[productionID]; !ok {
		return nil, fmt.Errorf("%w: production record %s", ErrNotFound, productionID)
	}
	logs := []DefectAdjustmentLog{}
	for _, l := range s.adjustments {
		if l.ProductionRecordID == productionID {
			logs = append(logs, l)
		}
	}
	return logs, nil
}

// ReplayDefectQuantity folds a record's journal in order and returns the resulting
// defect quantity. Each entry must start from the value the previous one produced.
func ReplayDefectQuantity(logs []DefectAdjustmentLog) (int, error) {
	if len(logs) == 0 {
		return 0, fmt.Errorf("%w: empty adjustment history", ErrNotFound)
	}
	current := logs[0].PreviousValue
	for _, l := range logs {
		if l.PreviousValue != current {
			return 0, fmt.Errorf("%w: log %s starts at %d, expected %d", ErrInvalidRecord, l.LogID, l.PreviousValue, current)
		}
		current = l.NewValue
	}
	return current, nil
}

// AppendDefectRecord validates operator input and stores a new open defect
func (s *Store) AppendDefectRecord(data NewDefectData) (DefectRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateNewDefect(data); err != nil {
		return DefectRecord{}, err
	}
	if _, ok := s.machines[data.MachineID]; !ok {
		return DefectRecord{}, fmt.Errorf("%w: machine %s", ErrNotFound, data.MachineID)
	}
	if data.MaintenanceOrderID != "" {
		if _, ok := s.orderIndex[data.MaintenanceOrderID]; !ok {
			return DefectRecord{}, fmt.Errorf("%w: maintenance order %s", ErrNotFound, data.MaintenanceOrderID)
		}
	}

	rec := DefectRecord{
		ID:                 s.newID(),
		Date:               truncateDay(data.Date),
		MachineID:          data.MachineID,
		ShiftID:            data.ShiftID,
		DefectTypeID:       data.DefectTypeID,
		CauseCategory:      data.CauseCategory,
		Quantity:           data.Quantity,
		Note:               data.Note,
		Severity:           data.Severity,
		Status:             DefectOpen,
		IsAbnormal:         data.IsAbnormal,
		ReporterID:         data.ReporterID,
		MaintenanceOrderID: data.MaintenanceOrderID,
		ImageRefs:          slices.Clone(data.ImageRefs),
		CreatedAt:          s.now(),
	}
	s.defectIndex[rec.ID] = len(s.defects)
	s.defects = append(s.defects, rec)
	s.revision++
	return cloneDefect(rec), nil
}

// UpdateDefectRecord applies a status/severity/note patch
func (s *Store) UpdateDefectRecord(id string, patch DefectPatch) (DefectRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.defectIndex[id]
	if !ok {
		return DefectRecord{}, fmt.Errorf("%w: defect %s", ErrNotFound, id)
	}
	rec := cloneDefect(s.defects[i])
	if patch.Status != nil {
		if !validDefectStatus(*patch.Status) {
			return DefectRecord{}, fmt.Errorf("%w: unknown defect status %q", ErrInvalidRecord, *patch.Status)
		}
		rec.Status = *patch.Status
	}
	if patch.Severity != nil {
		if !validSeverity(*patch.Severity) {
			return DefectRecord{}, fmt.Errorf("%w: unknown severity %q", ErrInvalidRecord, *patch.Severity)
		}
		rec.Severity = *patch.Severity
	}
	if patch.Note != nil {
		rec.Note = *patch.Note
	}
	if patch.MaintenanceOrderID != nil {
		if *patch.MaintenanceOrderID != "" {
			if _, ok := s.orderIndex[*patch.MaintenanceOrderID]; !ok {
				return DefectRecord{}, fmt.Errorf("%w: maintenance order %s", ErrNotFound, *patch.MaintenanceOrderID)
			}
		}
		rec.MaintenanceOrderID = *patch.MaintenanceOrderID
	}

	s.defects[i] = rec
	s.revision++
	return cloneDefect(rec), nil
}

// GetDefect returns one defect record
func (s *Store) GetDefect(id string) (DefectRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.defectIndex[id]
	if !ok {
		return DefectRecord{}, fmt.Errorf("%w: defect %s", ErrNotFound, id)
	}
	return cloneDefect(s.defects[i]), nil
}

// PutMachine inserts or replaces a machine descriptor
func (s *Store) PutMachine(m MachineInfo) (MachineInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Status == "" {
		m.Status = MachineActive
	}
	if err := ValidateMachine(m); err != nil {
		return MachineInfo{}, err
	}
	if _, exists := s.machines[m.MachineID]; !exists {
		s.machineOrder = append(s.machineOrder, m.MachineID)
	}
	s.machines[m.MachineID] = m
	s.revision++
	return m, nil
}

// UpdateMachine applies an administrative edit
func (s *Store) UpdateMachine(id string, patch MachinePatch) (MachineInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.machines[id]
	if !ok {
		return MachineInfo{}, fmt.Errorf("%w: machine %s", ErrNotFound, id)
	}
	if patch.Name != nil {
		m.Name = *patch.Name
	}
	if patch.LineID != nil {
		m.LineID = *patch.LineID
	}
	if patch.IdealCycleTime != nil {
		m.IdealCycleTime = *patch.IdealCycleTime
	}
	if patch.DesignSpeed != nil {
		m.DesignSpeed = *patch.DesignSpeed
	}
	if patch.Status != nil {
		m.Status = *patch.Status
	}
	if err := ValidateMachine(m); err != nil {
		return MachineInfo{}, err
	}
	s.machines[id] = m
	s.revision++
	return m, nil
}

// ToggleMachineStatus flips a machine between active and inactive
func (s *Store) ToggleMachineStatus(id string) (MachineInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.machines[id]
	if !ok {
		return MachineInfo{}, fmt.Errorf("%w: machine %s", ErrNotFound, id)
	}
	if m.Status == MachineActive {
		m.Status = MachineInactive
	} else {
		m.Status = MachineActive
	}
	s.machines[id] = m
	s.revision++
	return m, nil
}

// GetMachine returns one machine descriptor
func (s *Store) GetMachine(id string) (MachineInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.machines[id]
	if !ok {
		return MachineInfo{}, fmt.Errorf("%w: machine %s", ErrNotFound, id)
	}
	return m, nil
}

// PutShift inserts or replaces a shift definition
func (s *Store) PutShift(sh ShiftInfo) error {
	if !validShift(sh.ID) {
		return fmt.Errorf("%w: unknown shift %q", ErrInvalidRecord, sh.ID)
	}
	if sh.StartHour < 0 || sh.StartHour > 23 || sh.EndHour < 0 || sh.EndHour > 23 {
		return fmt.Errorf("%w: shift %s hours out of range", ErrInvalidRecord, sh.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.shifts {
		if existing.ID == sh.ID {
			s.shifts[i] = sh
			s.revision++
			return nil
		}
	}
	s.shifts = append(s.shifts, sh)
	s.revision++
	return nil
}

// PutUser inserts or replaces a user
func (s *Store) PutUser(u User) error {
	if u.ID == "" {
		return fmt.Errorf("%w: user needs an id", ErrInvalidRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[u.ID]; !exists {
		s.userOrder = append(s.userOrder, u.ID)
	}
	s.users[u.ID] = u
	s.revision++
	return nil
}

// AppendMaintenanceOrder creates a pending maintenance order
func (s *Store) AppendMaintenanceOrder(in NewMaintenanceOrder) (MaintenanceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := MaintenanceOrder{
		ID:            s.newID(),
		MachineID:     in.MachineID,
		Type:          in.Type,
		Priority:      in.Priority,
		Status:        OrderPending,
		Description:   in.Description,
		AssigneeID:    in.AssigneeID,
		ScheduledDate: truncateDay(in.ScheduledDate),
		CreatedAt:     s.now(),
	}
	if err := validateOrder(o); err != nil {
		return MaintenanceOrder{}, err
	}
	if _, ok := s.machines[o.MachineID]; !ok {
		return MaintenanceOrder{}, fmt.Errorf("%w: machine %s", ErrNotFound, o.MachineID)
	}
	s.orderIndex[o.ID] = len(s.orders)
	s.orders = append(s.orders, o)
	s.revision++
	return cloneOrder(o), nil
}

// UpdateMaintenanceOrder applies a patch; completing an order stamps completedAt
func (s *Store) UpdateMaintenanceOrder(id string, patch MaintenanceOrderPatch) (MaintenanceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.orderIndex[id]
	if !ok {
		return MaintenanceOrder{}, fmt.Errorf("%w: maintenance order %s", ErrNotFound, id)
	}
	o := cloneOrder(s.orders[i])
	if patch.Status != nil {
		o.Status = *patch.Status
	}
	if patch.Priority != nil {
		o.Priority = *patch.Priority
	}
	if patch.AssigneeID != nil {
		o.AssigneeID = *patch.AssigneeID
	}
	if patch.Description != nil {
		o.Description = *patch.Description
	}
	if patch.ScheduledDate != nil {
		o.ScheduledDate = truncateDay(*patch.ScheduledDate)
	}
	if err := validateOrder(o); err != nil {
		return MaintenanceOrder{}, err
	}
	switch {
	case o.Status == OrderCompleted && o.CompletedAt == nil:
		t := s.now()
		o.CompletedAt = &t
	case o.Status != OrderCompleted:
		o.CompletedAt = nil
	}

	s.orders[i] = o
	s.revision++
	return cloneOrder(o), nil
}

// AppendSparePart adds a spare part to the inventory
func (s *Store) AppendSparePart(p SparePart) (SparePart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = s.newID()
	}
	if err := validateSparePart(p); err != nil {
		return SparePart{}, err
	}
	if _, dup := s.partIndex[p.ID]; dup {
		return SparePart{}, fmt.Errorf("%w: duplicate spare part id %s", ErrInvalidRecord, p.ID)
	}
	p = clonePart(p)
	s.partIndex[p.ID] = len(s.parts)
	s.parts = append(s.parts, p)
	s.revision++
	return clonePart(p), nil
}

// UpdateSparePart applies a stock or location edit
func (s *Store) UpdateSparePart(id string, patch SparePartPatch) (SparePart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.partIndex[id]
	if !ok {
		return SparePart{}, fmt.Errorf("%w: spare part %s", ErrNotFound, id)
	}
	p := clonePart(s.parts[i])
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Quantity != nil {
		p.Quantity = *patch.Quantity
	}
	if patch.MinStock != nil {
		p.MinStock = *patch.MinStock
	}
	if patch.Location != nil {
		p.Location = *patch.Location
	}
	if err := validateSparePart(p); err != nil {
		return SparePart{}, err
	}
	s.parts[i] = p
	s.revision++
	return clonePart(p), nil
}

// truncateDay normalises a timestamp to its UTC calendar day
func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Day exposes the calendar-day normalisation used by the store
func Day(t time.Time) time.Time {
	return truncateDay(t)
}
