package etl

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"oee-dashboard/config"
	"oee-dashboard/database"
)

var (
	defaultItems           = []string{"ITEM-A100", "ITEM-B200", "ITEM-C300"}
	defaultDefectTypes     = []string{"Scratch", "Dent", "Crack", "Contamination", "Misalignment"}
	defaultDowntimeReasons = []string{"Jam", "Setup", "Breakdown", "Material Shortage", "Quality Check"}
	causeCategories        = []string{"Man", "Machine", "Material", "Method"}
	defaultLines           = []string{"L1", "L2"}
)

// DefaultShifts are the three plant shifts; C wraps midnight
var DefaultShifts = []database.ShiftInfo{
	{ID: database.ShiftA, Name: "Day", StartHour: 6, EndHour: 14},
	{ID: database.ShiftB, Name: "Swing", StartHour: 14, EndHour: 22},
	{ID: database.ShiftC, Name: "Night", StartHour: 22, EndHour: 6},
}

const shiftMinutes = 480.0

// MockDataset is everything one generator run produces
type MockDataset struct {
	Shifts     []database.ShiftInfo
	Users      []database.User
	Machines   []database.MachineInfo
	SpareParts []database.SparePart
	Production []database.ProductionRecord
	Downtime   []database.DowntimeRecord
	Orders     []database.NewMaintenanceOrder
	Defects    []database.NewDefectData
}

// MockDataGenerator generates realistic plant data.
// The same seed, areas and end date always produce the same dataset.
type MockDataGenerator struct {
	config *config.MockDataConfig
	areas  map[string][]string
	rand   *rand.Rand
}

// NewMockDataGenerator creates a new mock data generator
func NewMockDataGenerator(cfg *config.MockDataConfig, areas map[string][]string) *MockDataGenerator {
	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}
	return &MockDataGenerator{
		config: cfg,
		areas:  areas,
		rand:   rand.New(rand.NewSource(seed)),
	}
}

func orDefault(values, fallback []string) []string {
	if len(values) == 0 {
		return fallback
	}
	return values
}

// lines returns every configured line once, sorted
func (m *MockDataGenerator) lines() []string {
	seen := make(map[string]bool)
	var out []string
	for _, lines := range m.areas {
		for _, l := range lines {
			if !seen[l] {
				seen[l] = true
				out = append(out, l)
			}
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultLines...)
	}
	sort.Strings(out)
	return out
}

// Generate builds a dataset covering TimeRangeDays days ending on end
func (m *MockDataGenerator) Generate(end time.Time) *MockDataset {
	ds := &MockDataset{
		Shifts: append([]database.ShiftInfo(nil), DefaultShifts...),
		Users: []database.User{
			{ID: "U001", Name: "Line Operator", Role: "operator"},
			{ID: "U002", Name: "Process Engineer", Role: "engineer"},
			{ID: "U003", Name: "Plant Admin", Role: "admin"},
		},
	}

	perLine := m.config.MachinesPerLine
	if perLine <= 0 {
		perLine = 3
	}
	for _, line := range m.lines() {
		for i := 1; i <= perLine; i++ {
			ict := 0.04 + float64(m.rand.Intn(5))*0.01
			ds.Machines = append(ds.Machines, database.MachineInfo{
				MachineID:      fmt.Sprintf("%s-M%02d", line, i),
				Name:           fmt.Sprintf("%s Machine %d", line, i),
				LineID:         line,
				IdealCycleTime: ict,
				DesignSpeed:    math.Round(60/ict*10) / 10,
				Status:         database.MachineActive,
			})
		}
	}

	ds.SpareParts = m.spareParts(ds.Machines)

	days := m.config.TimeRangeDays
	if days <= 0 {
		days = 30
	}
	end = database.Day(end)
	start := end.AddDate(0, 0, -(days - 1))

	items := orDefault(m.config.Items, defaultItems)
	reasons := orDefault(m.config.DowntimeReasons, defaultDowntimeReasons)
	defectTypes := orDefault(m.config.DefectTypes, defaultDefectTypes)

	for day := 0; day < days; day++ {
		date := start.AddDate(0, 0, day)
		// slow wave so trends have shape
		wave := 0.05 * math.Sin(float64(day)*0.3)

		for _, mc := range ds.Machines {
			for _, sh := range ds.Shifts {
				prod, down := m.productionFor(date, mc, sh, items, reasons, wave)
				ds.Production = append(ds.Production, prod)
				if down != nil {
					ds.Downtime = append(ds.Downtime, *down)
				}
			}

			if m.rand.Float64() < 0.25 {
				ds.Defects = append(ds.Defects, m.defectFor(date, mc, defectTypes))
			}
			if date.Weekday() == time.Monday {
				ds.Orders = append(ds.Orders, database.NewMaintenanceOrder{
					MachineID:     mc.MachineID,
					Type:          database.OrderPreventive,
					Priority:      database.SeverityLow,
					Description:   "Weekly preventive inspection",
					AssigneeID:    "U002",
					ScheduledDate: date,
				})
			}
		}
	}
	return ds
}

func (m *MockDataGenerator) productionFor(date time.Time, mc database.MachineInfo, sh database.ShiftInfo, items, reasons []string, wave float64) (database.ProductionRecord, *database.DowntimeRecord) {
	downtime := 0.0
	if m.rand.Float64() < 0.4 {
		downtime = float64(5 + m.rand.Intn(56))
	}
	run := shiftMinutes - downtime

	perf := 0.82 + wave + m.rand.Float64()*0.15
	pieces := int(run * perf / mc.IdealCycleTime)
	defects := int(float64(pieces) * m.rand.Float64() * 0.03)

	id := fmt.Sprintf("PR-%s-%s-%s", date.Format("20060102"), mc.MachineID, sh.ID)
	prod := database.ProductionRecord{
		ID:              id,
		Date:            date,
		LineID:          mc.LineID,
		MachineID:       mc.MachineID,
		ItemCode:        items[m.rand.Intn(len(items))],
		ActualQuantity:  pieces - defects,
		DefectQuantity:  defects,
		RunTimeMinutes:  run,
		DowntimeMinutes: downtime,
		IdealCycleTime:  mc.IdealCycleTime,
		Shift:           sh.ID,
	}
	if downtime == 0 {
		return prod, nil
	}

	offset := time.Duration(m.rand.Intn(int(shiftMinutes-downtime))) * time.Minute
	startTime := date.Add(time.Duration(sh.StartHour)*time.Hour + offset)
	return prod, &database.DowntimeRecord{
		ID:              "DT-" + id[len("PR-"):],
		Date:            date,
		MachineID:       mc.MachineID,
		ReasonCode:      reasons[m.rand.Intn(len(reasons))],
		DurationMinutes: downtime,
		StartTime:       startTime,
		EndTime:         startTime.Add(time.Duration(downtime) * time.Minute),
	}
}

func (m *MockDataGenerator) defectFor(date time.Time, mc database.MachineInfo, defectTypes []string) database.NewDefectData {
	severity := database.SeverityLow
	switch r := m.rand.Float64(); {
	case r > 0.9:
		severity = database.SeverityHigh
	case r > 0.6:
		severity = database.SeverityMedium
	}
	return database.NewDefectData{
		Date:          date,
		MachineID:     mc.MachineID,
		ShiftID:       database.ShiftCodes[m.rand.Intn(len(database.ShiftCodes))],
		DefectTypeID:  defectTypes[m.rand.Intn(len(defectTypes))],
		CauseCategory: causeCategories[m.rand.Intn(len(causeCategories))],
		Quantity:      1 + m.rand.Intn(20),
		Severity:      severity,
		IsAbnormal:    severity == database.SeverityHigh,
		ReporterID:    "U001",
	}
}

func (m *MockDataGenerator) spareParts(machines []database.MachineInfo) []database.SparePart {
	names := []string{"Drive Belt", "Bearing 6204", "Proximity Sensor", "Hydraulic Seal"}
	parts := make([]database.SparePart, 0, len(names))
	for i, name := range names {
		var compatible []string
		for _, mc := range machines {
			if m.rand.Intn(2) == 0 {
				compatible = append(compatible, mc.MachineID)
			}
		}
		parts = append(parts, database.SparePart{
			ID:                   fmt.Sprintf("SP%03d", i+1),
			Name:                 name,
			PartNumber:           fmt.Sprintf("PN-%04d", 1000+i*37),
			Quantity:             m.rand.Intn(30),
			MinStock:             5,
			Location:             fmt.Sprintf("Rack %c", 'A'+i),
			CompatibleMachineIDs: compatible,
		})
	}
	return parts
}

// LoadDataset writes a dataset into the store, master data first.
// Production records already present are skipped so repeated loads are safe.
func LoadDataset(store *database.Store, ds *MockDataset) (map[string]int, error) {
	counts := make(map[string]int)

	for _, sh := range ds.Shifts {
		if err := store.PutShift(sh); err != nil {
			return counts, fmt.Errorf("failed to load shift %s: %w", sh.ID, err)
		}
	}
	counts["shifts"] = len(ds.Shifts)

	for _, u := range ds.Users {
		if err := store.PutUser(u); err != nil {
			return counts, fmt.Errorf("failed to load user %s: %w", u.ID, err)
		}
	}
	counts["users"] = len(ds.Users)

	// existing machines keep their administrative edits
	for _, mc := range ds.Machines {
		if _, err := store.GetMachine(mc.MachineID); err == nil {
			continue
		}
		if _, err := store.PutMachine(mc); err != nil {
			return counts, fmt.Errorf("failed to load machine %s: %w", mc.MachineID, err)
		}
		counts["machines"]++
	}

	snap := store.Snapshot()
	existingParts := make(map[string]bool, len(snap.SpareParts))
	for _, p := range snap.SpareParts {
		existingParts[p.ID] = true
	}
	for _, p := range ds.SpareParts {
		if existingParts[p.ID] {
			continue
		}
		if _, err := store.AppendSparePart(p); err != nil {
			return counts, fmt.Errorf("failed to load spare part %s: %w", p.ID, err)
		}
		counts["spare_parts"]++
	}

	fresh := NewProduction(store, ds.Production)
	if _, err := store.AppendProduction(fresh...); err != nil {
		return counts, fmt.Errorf("failed to load production: %w", err)
	}
	counts["production"] = len(fresh)

	downtime := NewDowntime(store, ds.Downtime)
	if _, err := store.AppendDowntime(downtime...); err != nil {
		return counts, fmt.Errorf("failed to load downtime: %w", err)
	}
	counts["downtime"] = len(downtime)

	// orders and defects carry store-assigned ids, so only a fresh production load adds them
	if len(fresh) == 0 {
		return counts, nil
	}
	for _, o := range ds.Orders {
		if _, err := store.AppendMaintenanceOrder(o); err != nil {
			return counts, fmt.Errorf("failed to load maintenance order: %w", err)
		}
	}
	counts["maintenance_orders"] = len(ds.Orders)

	for _, d := range ds.Defects {
		if _, err := store.AppendDefectRecord(d); err != nil {
			return counts, fmt.Errorf("failed to load defect: %w", err)
		}
	}
	counts["defects"] = len(ds.Defects)

	return counts, nil
}

// NewProduction drops records whose id the store already holds
func NewProduction(store *database.Store, records []database.ProductionRecord) []database.ProductionRecord {
	out := make([]database.ProductionRecord, 0, len(records))
	for _, r := range records {
		if r.ID != "" {
			if _, err := store.GetProduction(r.ID); err == nil {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// NewDowntime drops episodes whose id the store already holds and repeats
// within the batch, keeping the first occurrence
func NewDowntime(store *database.Store, records []database.DowntimeRecord) []database.DowntimeRecord {
	out := make([]database.DowntimeRecord, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if r.ID != "" {
			if seen[r.ID] || store.HasDowntime(r.ID) {
				continue
			}
			seen[r.ID] = true
		}
		out = append(out, r)
	}
	return out
}

// RunMockGeneration seeds the store with a generated dataset ending on end
func RunMockGeneration(store *database.Store, cfg *config.Config, end time.Time) (map[string]int, error) {
	areas := cfg.Areas
	if cfg.AreaManager != nil {
		areas = cfg.AreaManager.GetAll()
	}
	generator := NewMockDataGenerator(&cfg.MockData, areas)
	return LoadDataset(store, generator.Generate(end))
}
