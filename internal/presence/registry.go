// Package presence is the single source of truth for "is this account
// active, and where". All mutation happens on the tick loop; reconciliation
// after world-server failures is timeout-driven, never consensus-driven.
package presence

import (
	"go.uber.org/zap"
)

// World index sentinels, as carried in records and on the wire.
const (
	WorldNone    int32 = -1 // not on any world server
	WorldUnknown int32 = -2 // was on a world server we lost contact with
)

// NoCharacter marks a record with no character selected (account is at the
// hub's character-select screen, or fully offline).
const NoCharacter int32 = -1

// Kick reasons passed to the KickSender.
const (
	KickDuplicateLogin byte = 1
	KickServerRequest  byte = 2 // auth server asked for it (ban, admin kick)
)

// Record tracks one account's presence.
type Record struct {
	AccountID int32
	CharID    int32
	World     int32
	SessionID uint64 // owning hub-side client session, 0 = none

	lastWorld int32 // world the record pointed at before going Unknown
	kickAt    int64 // tick deadline of a pending kick, 0 = none
	idleSince int64 // tick when the record became fully detached
}

// OnWorld reports whether the account is live on a reachable world server.
func (rec *Record) OnWorld() bool { return rec.World > WorldNone }

// KickPending reports whether a kick grace timer is armed.
func (rec *Record) KickPending() bool { return rec.kickAt != 0 }

// Notifier pushes account-level presence changes to the authentication
// server for cluster-wide locking. Implementations must not block.
type Notifier interface {
	AccountOnline(accountID int32)
	AccountOffline(accountID int32)
}

// KickSender asks a world server to forcibly drop an account. Returns false
// when the destination is gone or not writable; the registry then resolves
// the account locally instead of waiting.
type KickSender interface {
	SendKick(world int32, accountID, charID int32, reason byte) bool
}

// Registry maps account id to presence record. Owned by the tick loop.
type Registry struct {
	records map[int32]*Record
	notif   Notifier
	kicks   KickSender

	now       int64 // current tick, advanced by Tick
	kickGrace int64 // ticks before an unanswered kick resolves to offline
	idleGrace int64 // ticks a detached record survives before the sweep
	log       *zap.Logger
}

func NewRegistry(kickGraceTicks, idleGraceTicks int64, notif Notifier, kicks KickSender, log *zap.Logger) *Registry {
	return &Registry{
		records:   make(map[int32]*Record),
		notif:     notif,
		kicks:     kicks,
		kickGrace: kickGraceTicks,
		idleGrace: idleGraceTicks,
		log:       log,
	}
}

// Get returns the record for an account, or nil.
func (r *Registry) Get(accountID int32) *Record {
	return r.records[accountID]
}

// Count returns the number of tracked accounts.
func (r *Registry) Count() int {
	return len(r.records)
}

// OnlineAccounts returns the ids of accounts live on a world server.
func (r *Registry) OnlineAccounts() []int32 {
	out := make([]int32, 0, len(r.records))
	for id, rec := range r.records {
		if rec.OnWorld() {
			out = append(out, id)
		}
	}
	return out
}

// lookupOrCreate fetches the record, creating it lazily on first reference.
func (r *Registry) lookupOrCreate(accountID int32) *Record {
	rec, ok := r.records[accountID]
	if !ok {
		rec = &Record{
			AccountID: accountID,
			CharID:    NoCharacter,
			World:     WorldNone,
			idleSince: r.now,
		}
		r.records[accountID] = rec
	}
	return rec
}

func (r *Registry) cancelKick(rec *Record) {
	rec.kickAt = 0
}

// SetCharSelect claims the account for a hub-side client session that just
// authenticated: no character yet, no world server, any pending kick is
// cancelled. The auth server is told the account is online.
func (r *Registry) SetCharSelect(accountID int32, sessionID uint64) {
	rec := r.lookupOrCreate(accountID)
	rec.CharID = NoCharacter
	rec.World = WorldNone
	rec.SessionID = sessionID
	r.cancelKick(rec)
	r.notif.AccountOnline(accountID)
}

// MarkOnline records the account as playing charID on the given world
// server. If another reachable world server still claims the account this is
// a double-login conflict: that server is asked to drop the account before
// the record is overwritten (last write wins, but never silently).
func (r *Registry) MarkOnline(accountID, charID, world int32) {
	rec := r.lookupOrCreate(accountID)

	if rec.CharID != NoCharacter && rec.OnWorld() && rec.World != world && charID != NoCharacter {
		r.log.Warn("帳號重複上線，要求原世界伺服器踢出",
			zap.Int32("account", accountID),
			zap.Int32("old_world", rec.World),
			zap.Int32("new_world", world),
		)
		r.kicks.SendKick(rec.World, accountID, rec.CharID, KickDuplicateLogin)
	}

	r.cancelKick(rec)
	rec.CharID = charID
	rec.World = world
	r.notif.AccountOnline(accountID)
}

// Transfer moves the account's assignment to a new world server during a
// mid-session transfer. Unlike MarkOnline this never fires the double-login
// kick: the source world requested the move and has already released the
// character. No auth-server notice either, the account never went offline.
func (r *Registry) Transfer(accountID, charID, world int32) {
	rec := r.lookupOrCreate(accountID)
	r.cancelKick(rec)
	rec.CharID = charID
	rec.World = world
}

// MarkOffline clears the account's world assignment, cancels any pending
// kick, and tells the auth server the account is gone. The record itself
// stays until the sweep evicts it (cheap on relog).
func (r *Registry) MarkOffline(accountID int32) {
	rec, ok := r.records[accountID]
	if !ok {
		r.notif.AccountOffline(accountID)
		return
	}
	rec.CharID = NoCharacter
	rec.World = WorldNone
	rec.idleSince = r.now
	r.cancelKick(rec)
	r.notif.AccountOffline(accountID)
}

// MarkUnknown flags every record on the given world as "lost contact, not
// yet proven offline". Called when a world server's connection drops.
func (r *Registry) MarkUnknown(world int32) {
	for _, rec := range r.records {
		if rec.World == world {
			rec.World = WorldUnknown
			rec.lastWorld = world
			rec.idleSince = r.now
		}
	}
}

// ResolveUnknown transitions records stuck on an unreachable world to
// offline. Pass WorldNone to resolve every unknown record, or a specific
// world index to scope the pass. Records with an in-flight kick are left
// alone; their grace timer resolves them.
func (r *Registry) ResolveUnknown(world int32) {
	for id, rec := range r.records {
		if rec.World != WorldUnknown {
			continue
		}
		if world != WorldNone && rec.lastWorld != world {
			continue
		}
		if rec.KickPending() {
			continue
		}
		r.MarkOffline(id)
	}
}

// RequestKick asks whatever world server hosts the account to drop it, and
// arms a single-shot grace deadline in case the disconnect notice never
// arrives. An account with no reachable world resolves immediately.
func (r *Registry) RequestKick(accountID int32, reason byte) {
	rec, ok := r.records[accountID]
	if !ok {
		return
	}
	if rec.OnWorld() {
		if r.kicks.SendKick(rec.World, accountID, rec.CharID, reason) {
			if !rec.KickPending() {
				rec.kickAt = r.now + r.kickGrace
			}
			return
		}
		// Destination unavailable: fall through and resolve locally.
	}
	if !rec.KickPending() {
		r.MarkOffline(accountID)
	}
}

// Tick advances the registry clock and fires expired kick deadlines. The
// timeout path is optimistic: if the disconnect confirmation never arrived
// we force the account offline, accepting a small window where "offline" is
// recorded slightly early, so no account stays stuck online forever.
func (r *Registry) Tick() {
	r.now++
	for id, rec := range r.records {
		if rec.kickAt != 0 && r.now >= rec.kickAt {
			rec.kickAt = 0
			r.log.Info("踢出寬限逾時，強制標記離線", zap.Int32("account", id))
			r.MarkOffline(id)
		}
	}
}

// Now returns the registry tick clock (for tests and callers arming
// deadlines of their own).
func (r *Registry) Now() int64 {
	return r.now
}

// Sweep garbage-collects detached records: no owning connection, no world
// assignment, no pending kick, idle past the grace window. Records still in
// Unknown are first resolved to offline. Keeps the registry bounded.
func (r *Registry) Sweep() {
	for id, rec := range r.records {
		if rec.SessionID != 0 {
			continue
		}
		if rec.World == WorldUnknown && !rec.KickPending() {
			r.MarkOffline(id)
		}
		if rec.World < 0 && !rec.KickPending() && r.now-rec.idleSince >= r.idleGrace {
			delete(r.records, id)
		}
	}
}

// Detach drops a hub-side client session's claim on the account. If
// ownership never moved to a world server the account goes offline;
// otherwise the registry is left alone, the world server owns it now.
func (r *Registry) Detach(accountID int32, sessionID uint64) {
	rec, ok := r.records[accountID]
	if !ok || rec.SessionID != sessionID {
		return
	}
	rec.SessionID = 0
	rec.idleSince = r.now
	if !rec.OnWorld() && rec.World != WorldUnknown {
		r.MarkOffline(accountID)
	}
}
