package handler

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charhub/server/internal/component"
	"github.com/charhub/server/internal/data"
	gonet "github.com/charhub/server/internal/net"
	"github.com/charhub/server/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSession(t *testing.T, id uint64) *gonet.Session {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return gonet.NewSession(server, id, 8, 8, 0, time.Second, zap.NewNop())
}

func newTestZones(t *testing.T) *data.ZoneTable {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zones.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
zones:
  - zone_id: 0
    name: "village"
  - zone_id: 1
    name: "castle"
  - zone_id: 2
    name: "wilds"
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
`), 0o644))
	tab, err := data.LoadZoneTable(path)
	require.NoError(t, err)
	return tab
}

func TestRouteForZoneDirectHit(t *testing.T) {
	worlds := world.NewTable(4, zap.NewNop())
	rec, err := worlds.Register(newTestSession(t, 1), "alpha", "10.0.0.1", 7000)
	require.NoError(t, err)
	rec.Zones = map[uint16]struct{}{2: {}}

	deps := &Deps{Worlds: worlds, Zones: newTestZones(t)}

	cs := &component.CharacterState{ZoneID: 2, X: 10, Y: 20}
	got := routeForZone(deps, cs)

	require.Same(t, rec, got)
	assert.Equal(t, uint16(2), cs.ZoneID, "landing point untouched on a direct hit")
	assert.Equal(t, int16(10), cs.X)
}

func TestRouteForZoneFallbackRelocates(t *testing.T) {
	worlds := world.NewTable(4, zap.NewNop())
	rec, err := worlds.Register(newTestSession(t, 1), "alpha", "10.0.0.1", 7000)
	require.NoError(t, err)
	rec.Zones = map[uint16]struct{}{1: {}} // hosts the second fallback only

	deps := &Deps{Worlds: worlds, Zones: newTestZones(t)}

	cs := &component.CharacterState{ZoneID: 2, X: 10, Y: 20}
	got := routeForZone(deps, cs)

	require.Same(t, rec, got)
	assert.Equal(t, uint16(1), cs.ZoneID, "relocated to the first hostable fallback")
	assert.Equal(t, int16(64), cs.X)
	assert.Equal(t, int16(64), cs.Y)
}

func TestRouteForZoneNoWorldAvailable(t *testing.T) {
	deps := &Deps{Worlds: world.NewTable(4, zap.NewNop()), Zones: newTestZones(t)}

	cs := &component.CharacterState{ZoneID: 2}
	assert.Nil(t, routeForZone(deps, cs))
	assert.Equal(t, uint16(2), cs.ZoneID, "state untouched when routing fails")
}

func TestRouteForZoneSkipsUnwritableWorld(t *testing.T) {
	worlds := world.NewTable(4, zap.NewNop())
	stuck, err := worlds.Register(newTestSession(t, 1), "alpha", "10.0.0.1", 7000)
	require.NoError(t, err)
	stuck.Zones = map[uint16]struct{}{2: {}}

	healthy, err := worlds.Register(newTestSession(t, 2), "beta", "10.0.0.2", 7000)
	require.NoError(t, err)
	healthy.Zones = map[uint16]struct{}{0: {}}

	// Saturate the stuck world's output queue; Writable goes false.
	for i := 0; i < cap(stuck.Session.OutQueue); i++ {
		stuck.Session.OutQueue <- []byte{0}
	}

	deps := &Deps{Worlds: worlds, Zones: newTestZones(t)}

	cs := &component.CharacterState{ZoneID: 2}
	got := routeForZone(deps, cs)

	require.Same(t, healthy, got)
	assert.Equal(t, uint16(0), cs.ZoneID)
}

func TestWorldKickerSendKick(t *testing.T) {
	worlds := world.NewTable(4, zap.NewNop())
	rec, err := worlds.Register(newTestSession(t, 1), "alpha", "10.0.0.1", 7000)
	require.NoError(t, err)

	k := &WorldKicker{Worlds: worlds}

	assert.True(t, k.SendKick(rec.Index, 100, 5, 1))
	rec.Session.FlushOutput()
	assert.Len(t, rec.Session.OutQueue, 1)

	assert.False(t, k.SendKick(3, 100, 5, 1), "empty slot is unreachable")

	worlds.Remove(rec.Index)
	assert.False(t, k.SendKick(rec.Index, 100, 5, 1))
}
