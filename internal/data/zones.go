// Package data loads the static YAML tables the hub needs at boot.
package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ZonePoint is a zone plus a landing coordinate.
type ZonePoint struct {
	ZoneID uint16 `yaml:"zone_id"`
	X      int16  `yaml:"x"`
	Y      int16  `yaml:"y"`
}

// ZoneEntry describes one zone of the cluster.
type ZoneEntry struct {
	ZoneID uint16 `yaml:"zone_id"`
	Name   string `yaml:"name"`
}

type zoneFile struct {
	Zones    []ZoneEntry `yaml:"zones"`
	Fallback []ZonePoint `yaml:"fallback"`
	Start    ZonePoint   `yaml:"start"`
}

// ZoneTable is the zone catalog plus the ordered fallback list tried when a
// character's last zone is hosted by no live world server.
type ZoneTable struct {
	byID     map[uint16]ZoneEntry
	fallback []ZonePoint
	start    ZonePoint
}

// LoadZoneTable reads the zone catalog from a YAML file.
func LoadZoneTable(path string) (*ZoneTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zone file %s: %w", path, err)
	}
	var f zoneFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse zone file %s: %w", path, err)
	}
	if len(f.Fallback) == 0 {
		return nil, fmt.Errorf("zone file %s: empty fallback list", path)
	}

	t := &ZoneTable{
		byID:     make(map[uint16]ZoneEntry, len(f.Zones)),
		fallback: f.Fallback,
		start:    f.Start,
	}
	for _, z := range f.Zones {
		t.byID[z.ZoneID] = z
	}
	return t, nil
}

// Get returns the zone entry and whether the zone is known.
func (t *ZoneTable) Get(zoneID uint16) (ZoneEntry, bool) {
	z, ok := t.byID[zoneID]
	return z, ok
}

// Name returns the zone's display name, or a placeholder for unknown zones.
func (t *ZoneTable) Name(zoneID uint16) string {
	if z, ok := t.byID[zoneID]; ok {
		return z.Name
	}
	return fmt.Sprintf("zone-%d", zoneID)
}

// Fallback returns the ordered default-zone list.
func (t *ZoneTable) Fallback() []ZonePoint {
	return t.fallback
}

// Start returns the landing point for newly created characters.
func (t *ZoneTable) Start() ZonePoint {
	return t.start
}

// Count returns the catalog size.
func (t *ZoneTable) Count() int {
	return len(t.byID)
}
