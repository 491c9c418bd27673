package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// AreaConfigManager manages the area -> lines table used to resolve dashboard scope
type AreaConfigManager struct {
	configPath string
	mu         sync.RWMutex
	defaults   map[string][]string
	Areas      map[string][]string `json:"areas"`
}

// NewAreaConfigManager creates a manager seeded with defaults until Load finds a saved table
func NewAreaConfigManager(path string, defaults map[string][]string) *AreaConfigManager {
	return &AreaConfigManager{
		configPath: path,
		defaults:   copyAreas(defaults),
		Areas:      copyAreas(defaults),
	}
}

// Load reads the table from disk; a missing file is created from the defaults
func (m *AreaConfigManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			m.Areas = copyAreas(m.defaults)
			return m.saveInternal()
		}
		return err
	}

	if len(data) == 0 {
		m.Areas = copyAreas(m.defaults)
		return nil
	}

	areas := make(map[string][]string)
	if err := json.Unmarshal(data, &areas); err != nil {
		return fmt.Errorf("failed to parse %s: %w", m.configPath, err)
	}
	m.Areas = areas
	return nil
}

// Save replaces the table and writes it to disk
func (m *AreaConfigManager) Save(areas map[string][]string) error {
	for name, lines := range areas {
		if name == "" || name == "all" {
			return fmt.Errorf("invalid area name %q", name)
		}
		for _, l := range lines {
			if l == "" {
				return fmt.Errorf("area %s has an empty line id", name)
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Areas = copyAreas(areas)
	return m.saveInternal()
}

// saveInternal writes to disk (must hold lock)
func (m *AreaConfigManager) saveInternal() error {
	if m.configPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(m.Areas, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(m.configPath, data, 0644)
}

// LinesFor returns the lines mapped to an area
func (m *AreaConfigManager) LinesFor(area string) ([]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lines, ok := m.Areas[area]
	return append([]string(nil), lines...), ok
}

// GetAll returns a copy of the table
func (m *AreaConfigManager) GetAll() map[string][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyAreas(m.Areas)
}

// Names returns the area names in sorted order
func (m *AreaConfigManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.Areas))
	for name := range m.Areas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func copyAreas(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}
