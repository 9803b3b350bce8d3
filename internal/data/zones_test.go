package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleZones = `
zones:
  - zone_id: 0
    name: "village"
  - zone_id: 1
    name: "castle"
fallback:
  - zone_id: 0
    x: 120
    y: 88
  - zone_id: 1
    x: 64
    y: 64
start:
  zone_id: 0
  x: 120
  y: 88
`

func writeZoneFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zone_list.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadZoneTable(t *testing.T) {
	tab, err := LoadZoneTable(writeZoneFile(t, sampleZones))
	require.NoError(t, err)

	assert.Equal(t, 2, tab.Count())

	z, ok := tab.Get(1)
	require.True(t, ok)
	assert.Equal(t, "castle", z.Name)

	_, ok = tab.Get(9)
	assert.False(t, ok)

	assert.Equal(t, "village", tab.Name(0))
	assert.Equal(t, "zone-9", tab.Name(9))

	fb := tab.Fallback()
	require.Len(t, fb, 2)
	assert.Equal(t, uint16(0), fb[0].ZoneID)
	assert.Equal(t, int16(120), fb[0].X)

	start := tab.Start()
	assert.Equal(t, uint16(0), start.ZoneID)
}

func TestLoadZoneTableRejectsEmptyFallback(t *testing.T) {
	_, err := LoadZoneTable(writeZoneFile(t, `
zones:
  - zone_id: 0
    name: "village"
fallback: []
start:
  zone_id: 0
  x: 1
  y: 1
`))
	assert.Error(t, err)
}

func TestLoadZoneTableMissingFile(t *testing.T) {
	_, err := LoadZoneTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
