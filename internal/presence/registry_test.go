package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeNotifier struct {
	online  []int32
	offline []int32
}

func (f *fakeNotifier) AccountOnline(id int32)  { f.online = append(f.online, id) }
func (f *fakeNotifier) AccountOffline(id int32) { f.offline = append(f.offline, id) }

type kickCall struct {
	world, account, char int32
	reason               byte
}

type fakeKicker struct {
	calls []kickCall
	ok    bool
}

func (f *fakeKicker) SendKick(world, account, char int32, reason byte) bool {
	f.calls = append(f.calls, kickCall{world, account, char, reason})
	return f.ok
}

func newTestRegistry(kickGrace, idleGrace int64) (*Registry, *fakeNotifier, *fakeKicker) {
	n := &fakeNotifier{}
	k := &fakeKicker{ok: true}
	return NewRegistry(kickGrace, idleGrace, n, k, zap.NewNop()), n, k
}

func TestMarkOnlineConflictKicksOldWorld(t *testing.T) {
	r, n, k := newTestRegistry(10, 100)

	r.MarkOnline(100, 5, 0)
	require.Len(t, k.calls, 0)

	// Same account shows up playing another character on world 1.
	r.MarkOnline(100, 6, 1)

	require.Len(t, k.calls, 1)
	assert.Equal(t, kickCall{world: 0, account: 100, char: 5, reason: KickDuplicateLogin}, k.calls[0])

	rec := r.Get(100)
	require.NotNil(t, rec)
	assert.Equal(t, int32(1), rec.World, "last write wins")
	assert.Equal(t, int32(6), rec.CharID)
	assert.Len(t, n.online, 2)
}

func TestMarkOnlineSameWorldNoKick(t *testing.T) {
	r, _, k := newTestRegistry(10, 100)

	r.MarkOnline(100, 5, 2)
	r.MarkOnline(100, 5, 2) // re-announcement
	assert.Len(t, k.calls, 0)
}

func TestRequestKickGraceTimeout(t *testing.T) {
	r, n, _ := newTestRegistry(5, 100)

	r.MarkOnline(100, 5, 0)
	r.RequestKick(100, KickServerRequest)

	rec := r.Get(100)
	require.True(t, rec.KickPending())
	assert.True(t, rec.OnWorld(), "still online while the kick is in flight")

	// The disconnect confirmation never arrives; the grace deadline fires.
	for i := 0; i < 5; i++ {
		r.Tick()
	}

	rec = r.Get(100)
	assert.False(t, rec.OnWorld())
	assert.False(t, rec.KickPending())
	assert.Contains(t, n.offline, int32(100))
}

func TestRequestKickConfirmedBeforeDeadline(t *testing.T) {
	r, _, _ := newTestRegistry(5, 100)

	r.MarkOnline(100, 5, 0)
	r.RequestKick(100, KickDuplicateLogin)
	r.Tick()

	// The world confirms the disconnect.
	r.MarkOffline(100)

	rec := r.Get(100)
	assert.False(t, rec.KickPending())

	// Later ticks must not fire a stale deadline.
	for i := 0; i < 10; i++ {
		r.Tick()
	}
	assert.False(t, r.Get(100).KickPending())
}

func TestRequestKickUnreachableWorldResolvesLocally(t *testing.T) {
	r, n, k := newTestRegistry(5, 100)
	k.ok = false // destination gone

	r.MarkOnline(100, 5, 0)
	r.RequestKick(100, KickServerRequest)

	rec := r.Get(100)
	assert.False(t, rec.OnWorld(), "no reachable world, resolve immediately")
	assert.Contains(t, n.offline, int32(100))
}

func TestWorldLossUnknownThenResolve(t *testing.T) {
	r, n, _ := newTestRegistry(10, 100)

	r.MarkOnline(100, 5, 1)
	r.MarkOnline(200, 6, 1)
	r.MarkOnline(300, 7, 2)

	// World 1 drops.
	r.MarkUnknown(1)
	assert.Equal(t, WorldUnknown, r.Get(100).World)
	assert.Equal(t, WorldUnknown, r.Get(200).World)
	assert.Equal(t, int32(2), r.Get(300).World, "other worlds untouched")

	// World 1's slot re-announces: account 100 came back, 200 did not.
	r.MarkOnline(100, 5, 1)
	r.ResolveUnknown(1)

	assert.Equal(t, int32(1), r.Get(100).World)
	assert.False(t, r.Get(200).OnWorld())
	assert.Contains(t, n.offline, int32(200))
	assert.Equal(t, int32(2), r.Get(300).World)
}

func TestResolveUnknownScopedToWorld(t *testing.T) {
	r, _, _ := newTestRegistry(10, 100)

	r.MarkOnline(100, 5, 1)
	r.MarkOnline(200, 6, 2)
	r.MarkUnknown(1)
	r.MarkUnknown(2)

	r.ResolveUnknown(1)

	assert.False(t, r.Get(100).OnWorld())
	assert.Equal(t, WorldUnknown, r.Get(200).World, "other world's limbo untouched")

	r.ResolveUnknown(WorldNone) // resolve everything
	assert.False(t, r.Get(200).OnWorld())
}

func TestSweepEvictsIdleRecords(t *testing.T) {
	r, _, _ := newTestRegistry(5, 3)

	r.MarkOnline(100, 5, 0)
	r.MarkOffline(100)

	for i := 0; i < 3; i++ {
		r.Tick()
	}
	r.Sweep()
	assert.Nil(t, r.Get(100), "idle detached record must be evicted")
}

func TestSweepKeepsOwnedAndActiveRecords(t *testing.T) {
	r, _, _ := newTestRegistry(5, 3)

	r.SetCharSelect(100, 77) // owned by a live hub session
	r.MarkOnline(200, 6, 1)  // live on a world

	for i := 0; i < 10; i++ {
		r.Tick()
	}
	r.Sweep()

	assert.NotNil(t, r.Get(100))
	assert.NotNil(t, r.Get(200))
}

func TestSweepResolvesStrandedUnknown(t *testing.T) {
	r, n, _ := newTestRegistry(5, 3)

	r.MarkOnline(100, 5, 1)
	r.MarkUnknown(1)

	r.Sweep()
	assert.False(t, r.Get(100).OnWorld())
	assert.Contains(t, n.offline, int32(100))
}

func TestDetachBeforeHandOffGoesOffline(t *testing.T) {
	r, n, _ := newTestRegistry(5, 100)

	r.SetCharSelect(100, 77)
	r.Detach(100, 77)

	rec := r.Get(100)
	assert.Equal(t, uint64(0), rec.SessionID)
	assert.Contains(t, n.offline, int32(100))
}

func TestDetachAfterHandOffLeavesWorldOwnership(t *testing.T) {
	r, n, _ := newTestRegistry(5, 100)

	r.SetCharSelect(100, 77)
	r.MarkOnline(100, 5, 1)
	r.Detach(100, 77) // hub-side connection closed after hand-off

	rec := r.Get(100)
	assert.True(t, rec.OnWorld(), "world server owns the account now")
	assert.Empty(t, n.offline)
}

func TestDetachIgnoresStaleSession(t *testing.T) {
	r, _, _ := newTestRegistry(5, 100)

	r.SetCharSelect(100, 77)
	r.SetCharSelect(100, 88) // relog claimed the account

	r.Detach(100, 77) // old session's cleanup arrives late
	assert.Equal(t, uint64(88), r.Get(100).SessionID)
}

func TestTransferMovesWithoutKick(t *testing.T) {
	r, n, k := newTestRegistry(5, 100)

	r.MarkOnline(100, 5, 0)
	onlineBefore := len(n.online)

	r.Transfer(100, 5, 1)

	rec := r.Get(100)
	assert.Equal(t, int32(1), rec.World)
	assert.Len(t, k.calls, 0, "a transfer is not a double login")
	assert.Len(t, n.online, onlineBefore, "no presence churn toward the auth server")
}
