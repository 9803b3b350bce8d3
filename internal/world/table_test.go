package world

import (
	"net"
	"testing"
	"time"

	gonet "github.com/charhub/server/internal/net"
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
	// I/O goroutines are not started; Send only buffers.
	return gonet.NewSession(server, id, 8, 8, 0, time.Second, zap.NewNop())
}

func TestTableRegisterAssignsSlots(t *testing.T) {
	tab := NewTable(2, zap.NewNop())

	a, err := tab.Register(newTestSession(t, 1), "alpha", "10.0.0.1", 7000)
	require.NoError(t, err)
	b, err := tab.Register(newTestSession(t, 2), "beta", "10.0.0.2", 7000)
	require.NoError(t, err)

	assert.Equal(t, int32(0), a.Index)
	assert.Equal(t, int32(1), b.Index)

	_, err = tab.Register(newTestSession(t, 3), "gamma", "10.0.0.3", 7000)
	assert.ErrorIs(t, err, ErrTableFull)
}

func TestTableRemoveFreesSlot(t *testing.T) {
	tab := NewTable(2, zap.NewNop())

	a, err := tab.Register(newTestSession(t, 1), "alpha", "10.0.0.1", 7000)
	require.NoError(t, err)

	removed := tab.Remove(a.Index)
	assert.Same(t, a, removed)
	assert.Nil(t, tab.Get(a.Index))

	// Slot is reusable.
	c, err := tab.Register(newTestSession(t, 2), "gamma", "10.0.0.3", 7000)
	require.NoError(t, err)
	assert.Equal(t, int32(0), c.Index)
}

func TestTableRemoveOutOfRange(t *testing.T) {
	tab := NewTable(2, zap.NewNop())
	assert.Nil(t, tab.Remove(-1))
	assert.Nil(t, tab.Remove(5))
}

func TestTableByZone(t *testing.T) {
	tab := NewTable(4, zap.NewNop())

	a, _ := tab.Register(newTestSession(t, 1), "alpha", "10.0.0.1", 7000)
	b, _ := tab.Register(newTestSession(t, 2), "beta", "10.0.0.2", 7000)
	a.Zones = map[uint16]struct{}{0: {}, 1: {}}
	b.Zones = map[uint16]struct{}{2: {}}

	assert.Same(t, a, tab.ByZone(1))
	assert.Same(t, b, tab.ByZone(2))
	assert.Nil(t, tab.ByZone(9))
}

func TestTableByAddress(t *testing.T) {
	tab := NewTable(4, zap.NewNop())

	a, _ := tab.Register(newTestSession(t, 1), "alpha", "10.0.0.1", 7000)
	tab.Register(newTestSession(t, 2), "beta", "10.0.0.2", 7001)

	assert.Same(t, a, tab.ByAddress("10.0.0.1", 7000))
	assert.Nil(t, tab.ByAddress("10.0.0.1", 7001))
}

func TestTableTotalUsers(t *testing.T) {
	tab := NewTable(4, zap.NewNop())

	a, _ := tab.Register(newTestSession(t, 1), "alpha", "10.0.0.1", 7000)
	b, _ := tab.Register(newTestSession(t, 2), "beta", "10.0.0.2", 7000)
	a.Users = 30
	b.Users = 12

	assert.Equal(t, int32(42), tab.TotalUsers())

	tab.Remove(a.Index)
	assert.Equal(t, int32(12), tab.TotalUsers())
}

func TestTableBroadcastExcept(t *testing.T) {
	tab := NewTable(4, zap.NewNop())

	a, _ := tab.Register(newTestSession(t, 1), "alpha", "10.0.0.1", 7000)
	b, _ := tab.Register(newTestSession(t, 2), "beta", "10.0.0.2", 7000)

	tab.BroadcastExcept(a.Index, []byte{0x01, 0x02})

	// Buffered output only lands in OutQueue on flush.
	a.Session.FlushOutput()
	b.Session.FlushOutput()
	assert.Len(t, a.Session.OutQueue, 0)
	assert.Len(t, b.Session.OutQueue, 1)
}
