// Package system holds the tick-loop phases of the hub. Everything here runs
// on the single loop goroutine.
package system

import (
	"context"
	"fmt"
	"time"

	gonet "github.com/charhub/server/internal/net"
	"github.com/charhub/server/internal/net/packet"
	"github.com/charhub/server/internal/persist"
	"github.com/charhub/server/internal/presence"
	"github.com/charhub/server/internal/world"
	"go.uber.org/zap"
)

// InputSystem drains packet queues from all sessions and dispatches them
// through the packet registry, then handles disconnect cleanup and flushes
// buffered output.
type InputSystem struct {
	netServer  *gonet.Server
	registry   *packet.Registry
	store      *gonet.SessionStore
	presence   *presence.Registry
	worlds     *world.Table
	charRepo   *persist.CharacterRepo
	pending    map[int32]uint64 // shared with the handlers' Deps
	maxPerTick int
	log        *zap.Logger
}

func NewInputSystem(
	netServer *gonet.Server,
	registry *packet.Registry,
	store *gonet.SessionStore,
	pres *presence.Registry,
	worlds *world.Table,
	charRepo *persist.CharacterRepo,
	pending map[int32]uint64,
	maxPerTick int,
	log *zap.Logger,
) *InputSystem {
	return &InputSystem{
		netServer:  netServer,
		registry:   registry,
		store:      store,
		presence:   pres,
		worlds:     worlds,
		charRepo:   charRepo,
		pending:    pending,
		maxPerTick: maxPerTick,
		log:        log,
	}
}

func (s *InputSystem) Update() {
	// Accept new sessions
	for {
		select {
		case sess := <-s.netServer.NewSessions():
			s.store.Add(sess)
		default:
			goto doneNew
		}
	}
doneNew:

	// Process dead sessions reported in earlier ticks
	for {
		select {
		case id := <-s.netServer.DeadSessions():
			s.store.Remove(id)
		default:
			goto doneDead
		}
	}
doneDead:

	// Drain packets from each session (up to maxPerTick per session)
	for id, sess := range s.store.Raw() {
		if sess.IsClosed() {
			// Drain remaining packets before cleanup: a world server's last
			// frames may be final saves that must still land.
			for i := 0; i < s.maxPerTick; i++ {
				select {
				case data := <-sess.InQueue:
					if err := s.registry.Dispatch(sess, sess.State(), data); err != nil {
						s.log.Debug("封包分派錯誤 (斷線中)",
							zap.Uint64("session", sess.ID),
							zap.Error(err),
						)
					}
				default:
					goto doneClosing
				}
			}
		doneClosing:
			sess.FlushOutput()
			s.handleDisconnect(sess)
			s.netServer.NotifyDead(id)
			s.store.Remove(id)
			continue
		}

		s.dispatchLive(sess)
	}

	s.store.ForEach(func(sess *gonet.Session) {
		sess.FlushOutput()
	})
}

// dispatchLive drains up to maxPerTick packets from a live session.
func (s *InputSystem) dispatchLive(sess *gonet.Session) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case data := <-sess.InQueue:
			if err := s.registry.Dispatch(sess, sess.State(), data); err != nil {
				// A binary peer that desynchronized is never trusted again.
				s.log.Warn("封包分派錯誤，斷開連線",
					zap.Uint64("session", sess.ID),
					zap.Error(err),
				)
				sess.Close()
				return
			}
		default:
			return
		}
	}
}

// handleDisconnect cleans up hub state when a session dies. What that means
// depends on what the peer was.
func (s *InputSystem) handleDisconnect(sess *gonet.Session) {
	switch {
	case sess.WorldIndex >= 0:
		s.handleWorldDisconnect(sess)
	case sess.AccountID != 0:
		s.handleClientDisconnect(sess)
	}
	// The auth link needs no cleanup here: the link manager notices the dead
	// session on its next Maintain and starts redialing.
}

// handleWorldDisconnect tears down a lost world server: its slot is freed,
// the survivors learn its zones are gone, and every account it hosted moves
// to the unknown state until re-announced or swept.
func (s *InputSystem) handleWorldDisconnect(sess *gonet.Session) {
	rec := s.worlds.Remove(sess.WorldIndex)
	if rec == nil {
		return
	}

	s.presence.MarkUnknown(rec.Index)

	w := packet.NewWriter(packet.H_OPCODE_ZONES_GONE)
	w.WriteD(rec.Index)
	s.worlds.BroadcastExcept(rec.Index, w.Bytes())

	s.log.Warn(fmt.Sprintf("世界伺服器離線  name=%s  index=%d  users=%d", rec.Name, rec.Index, rec.Users))
}

// handleClientDisconnect releases a client session's claim on its account. A
// handed-off session leaves the presence record alone, the world server owns
// the account now.
func (s *InputSystem) handleClientDisconnect(sess *gonet.Session) {
	if id, ok := s.pending[sess.AccountID]; ok && id == sess.ID {
		delete(s.pending, sess.AccountID)
	}

	s.presence.Detach(sess.AccountID, sess.ID)

	if sess.State() != packet.StateHandedOff {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		s.charRepo.SetAccountOffline(ctx, sess.AccountID)
		cancel()
	}
}

// SessionCount returns the current number of active sessions.
func (s *InputSystem) SessionCount() int {
	return s.store.Count()
}
