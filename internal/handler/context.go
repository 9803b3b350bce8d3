package handler

import (
	"github.com/charhub/server/internal/auth"
	"github.com/charhub/server/internal/authlink"
	"github.com/charhub/server/internal/config"
	"github.com/charhub/server/internal/data"
	gonet "github.com/charhub/server/internal/net"
	"github.com/charhub/server/internal/net/packet"
	"github.com/charhub/server/internal/persist"
	"github.com/charhub/server/internal/presence"
	"github.com/charhub/server/internal/scripting"
	"github.com/charhub/server/internal/world"
	"go.uber.org/zap"
)

// Deps holds shared dependencies injected into all packet handlers.
type Deps struct {
	CharRepo *persist.CharacterRepo
	Config   *config.Config
	Log      *zap.Logger
	Ledger   *auth.Ledger
	Presence *presence.Registry
	Worlds   *world.Table
	AuthLink *authlink.Link
	Zones    *data.ZoneTable
	Policy   *scripting.Engine
	Sessions *gonet.SessionStore

	// PendingVerify maps account id to the client session waiting on an
	// auth-server verdict. Tick-loop only.
	PendingVerify map[int32]uint64
}

// WorldKicker implements presence.KickSender over the world-server table.
type WorldKicker struct {
	Worlds *world.Table
}

func (k *WorldKicker) SendKick(worldIdx int32, accountID, charID int32, reason byte) bool {
	rec := k.Worlds.Get(worldIdx)
	if rec == nil || !rec.Session.Writable() {
		return false
	}
	w := packet.NewWriter(packet.H_OPCODE_KICK_ACCOUNT)
	w.WriteD(accountID)
	w.WriteD(charID)
	w.WriteC(reason)
	rec.Session.Send(w.Bytes())
	return true
}

// RegisterAll registers all packet handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	// Client: entry handshake
	reg.Register(packet.C_OPCODE_ENTER,
		[]packet.SessionState{packet.StateConnected},
		func(sess any, r *packet.Reader) {
			HandleEnter(sess.(*gonet.Session), r, deps)
		},
	)

	// Client: character-select screen
	selectStates := []packet.SessionState{packet.StateAuthenticated}

	reg.Register(packet.C_OPCODE_SELECT_CHAR, selectStates,
		func(sess any, r *packet.Reader) {
			HandleSelectChar(sess.(*gonet.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_MAKE_CHAR, selectStates,
		func(sess any, r *packet.Reader) {
			HandleMakeChar(sess.(*gonet.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_DELETE_CHAR, selectStates,
		func(sess any, r *packet.Reader) {
			HandleDeleteChar(sess.(*gonet.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_KEEPALIVE,
		[]packet.SessionState{
			packet.StateConnected, packet.StateAwaitingVerify,
			packet.StateAuthenticated, packet.StateHandedOff,
		},
		func(sess any, r *packet.Reader) {
			// Keep-alive: no-op, just prevents idle timeout
		},
	)

	// World server: handshake then operational traffic
	reg.Register(packet.W_OPCODE_LOGIN,
		[]packet.SessionState{packet.StateConnected},
		func(sess any, r *packet.Reader) {
			HandleWorldLogin(sess.(*gonet.Session), r, deps)
		},
	)

	worldStates := []packet.SessionState{packet.StateWorldServer}

	reg.Register(packet.W_OPCODE_ZONE_LIST, worldStates,
		func(sess any, r *packet.Reader) {
			HandleZoneList(sess.(*gonet.Session), r, deps)
		},
	)
	reg.Register(packet.W_OPCODE_USER_COUNT, worldStates,
		func(sess any, r *packet.Reader) {
			HandleWorldUserCount(sess.(*gonet.Session), r, deps)
		},
	)
	reg.Register(packet.W_OPCODE_SET_ONLINE, worldStates,
		func(sess any, r *packet.Reader) {
			HandleWorldSetOnline(sess.(*gonet.Session), r, deps)
		},
	)
	reg.Register(packet.W_OPCODE_SET_OFFLINE, worldStates,
		func(sess any, r *packet.Reader) {
			HandleWorldSetOffline(sess.(*gonet.Session), r, deps)
		},
	)
	reg.Register(packet.W_OPCODE_SAVE_CHAR, worldStates,
		func(sess any, r *packet.Reader) {
			HandleSaveChar(sess.(*gonet.Session), r, deps)
		},
	)
	reg.Register(packet.W_OPCODE_TRANSFER_REQ, worldStates,
		func(sess any, r *packet.Reader) {
			HandleTransferReq(sess.(*gonet.Session), r, deps)
		},
	)

	// Auth-server link
	linkStates := []packet.SessionState{packet.StateAuthLink}

	reg.Register(packet.A_OPCODE_LINK_ACK, linkStates,
		func(sess any, r *packet.Reader) {
			HandleLinkAck(sess.(*gonet.Session), r, deps)
		},
	)
	reg.Register(packet.A_OPCODE_VERIFY_ACK, linkStates,
		func(sess any, r *packet.Reader) {
			HandleVerifyAck(sess.(*gonet.Session), r, deps)
		},
	)
	reg.Register(packet.A_OPCODE_GRANT_NOTIFY, linkStates,
		func(sess any, r *packet.Reader) {
			HandleGrantNotify(sess.(*gonet.Session), r, deps)
		},
	)
	reg.Register(packet.A_OPCODE_BAN_NOTIFY, linkStates,
		func(sess any, r *packet.Reader) {
			HandleBanNotify(sess.(*gonet.Session), r, deps)
		},
	)
	reg.Register(packet.A_OPCODE_KICK_REQ, linkStates,
		func(sess any, r *packet.Reader) {
			HandleKickReq(sess.(*gonet.Session), r, deps)
		},
	)
	reg.Register(packet.A_OPCODE_SEX_CHANGED, linkStates,
		func(sess any, r *packet.Reader) {
			HandleSexChanged(sess.(*gonet.Session), r, deps)
		},
	)
	reg.Register(packet.A_OPCODE_GM_LEVEL, linkStates,
		func(sess any, r *packet.Reader) {
			HandleGMLevel(sess.(*gonet.Session), r, deps)
		},
	)
}
