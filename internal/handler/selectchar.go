package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/charhub/server/internal/component"
	gonet "github.com/charhub/server/internal/net"
	"github.com/charhub/server/internal/net/packet"
	"github.com/charhub/server/internal/world"
	"go.uber.org/zap"
)

// HandleSelectChar processes C_OPCODE_SELECT_CHAR: the client picked a
// character and the hub hands the session off to a world server.
// Format: [opcode][C slot]
func HandleSelectChar(sess *gonet.Session, r *packet.Reader, deps *Deps) {
	slot := int16(r.ReadC())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cs, err := deps.CharRepo.LoadBySlot(ctx, sess.AccountID, slot)
	if err != nil {
		deps.Log.Error("選擇角色載入失敗",
			zap.Int32("account", sess.AccountID),
			zap.Int16("slot", slot),
			zap.Error(err),
		)
		sendRefuse(sess, packet.RefuseServerClosed)
		return
	}
	if cs == nil {
		// Empty slot: the client never saw it in its list, forged packet.
		sess.Close()
		return
	}

	dest := routeForZone(deps, cs)
	if dest == nil {
		// No world server can take the character. The presence registry is
		// left untouched: the account stays at character select.
		deps.Log.Warn(fmt.Sprintf("無可用世界伺服器  account=%d  zone=%d", sess.AccountID, cs.ZoneID))
		sendRefuse(sess, packet.RefuseServerClosed)
		return
	}

	blob, err := component.EncodeState(cs)
	if err != nil {
		deps.Log.Error("角色狀態編碼失敗", zap.Int32("char", cs.CharID), zap.Error(err))
		sendRefuse(sess, packet.RefuseServerClosed)
		return
	}

	// Push the character to the world server first, then point the client at
	// it. The world holds the state in escrow until the client shows up with
	// matching tokens.
	w := packet.NewWriter(packet.H_OPCODE_PUSH_CHAR)
	w.WriteD(sess.AccountID)
	w.WriteD(cs.CharID)
	w.WriteDU(sess.LoginID1)
	w.WriteDU(sess.LoginID2)
	w.WriteQ(sess.Expiration)
	w.WriteC(sess.Sex)
	w.WriteS(sess.IP, 16)
	w.WriteBlob(blob)
	dest.Session.Send(w.Bytes())

	deps.Presence.MarkOnline(sess.AccountID, cs.CharID, dest.Index)
	if err := deps.CharRepo.SetOnline(ctx, cs.CharID, true); err != nil {
		deps.Log.Error("上線旗標寫入失敗", zap.Int32("char", cs.CharID), zap.Error(err))
	}
	writeCharLog(deps, sess.AccountID, slot, cs.Name, "select")

	reply := packet.NewWriter(packet.S_OPCODE_ZONE_SERVER)
	reply.WriteD(cs.CharID)
	reply.WriteH(cs.ZoneID)
	reply.WriteS(dest.IP, 16)
	reply.WriteH(dest.Port)
	sess.Send(reply.Bytes())

	sess.SetState(packet.StateHandedOff)
	deps.Log.Info(fmt.Sprintf("角色進入世界  account=%d  name=%s  world=%s  zone=%d",
		sess.AccountID, cs.Name, dest.Name, cs.ZoneID))
}

// routeForZone picks the world server for the character's last zone. When no
// live server hosts it the ordered fallback list is walked and the character
// is relocated to the first zone a server can take; cs is updated in place so
// the hand-off blob carries the new landing point. An unwritable destination
// counts as unavailable.
func routeForZone(deps *Deps, cs *component.CharacterState) *world.Record {
	if rec := deps.Worlds.ByZone(cs.ZoneID); rec != nil && rec.Session.Writable() {
		return rec
	}
	for _, fb := range deps.Zones.Fallback() {
		rec := deps.Worlds.ByZone(fb.ZoneID)
		if rec == nil || !rec.Session.Writable() {
			continue
		}
		cs.ZoneID, cs.X, cs.Y = fb.ZoneID, fb.X, fb.Y
		return rec
	}
	return nil
}
