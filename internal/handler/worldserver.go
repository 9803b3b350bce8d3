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
	"golang.org/x/crypto/bcrypt"
)

// Login ack codes sent with H_OPCODE_LOGIN_ACK.
const (
	worldLoginOK       byte = 0x00
	worldLoginFull     byte = 0x01
	worldLoginRejected byte = 0x03
)

// HandleWorldLogin processes W_OPCODE_LOGIN, a world server's handshake on
// the shared listening port.
// Format: [opcode][S name:20][S password:24][S public_ip:16][H public_port]
func HandleWorldLogin(sess *gonet.Session, r *packet.Reader, deps *Deps) {
	name := r.ReadS(20)
	password := r.ReadS(24)
	ip := r.ReadS(16)
	port := r.ReadH()

	if err := bcrypt.CompareHashAndPassword([]byte(deps.Config.World.PasswordHash), []byte(password)); err != nil {
		deps.Log.Warn(fmt.Sprintf("世界伺服器驗證失敗  name=%s  ip=%s", name, sess.IP))
		sendWorldLoginAck(sess, worldLoginRejected)
		sess.Close()
		return
	}

	rec, err := deps.Worlds.Register(sess, name, ip, port)
	if err != nil {
		deps.Log.Warn("世界伺服器列表已滿", zap.String("name", name))
		sendWorldLoginAck(sess, worldLoginFull)
		sess.Close()
		return
	}

	sess.WorldIndex = rec.Index
	sess.SetState(packet.StateWorldServer)
	sendWorldLoginAck(sess, worldLoginOK)

	// Tell the newcomer about every peer's zones right away; its own list
	// reaches the peers once it sends W_OPCODE_ZONE_LIST.
	for _, peer := range deps.Worlds.Live() {
		if peer.Index != rec.Index && len(peer.Zones) > 0 {
			sess.Send(buildZonesPeer(peer))
		}
	}

	deps.Log.Info(fmt.Sprintf("世界伺服器上線  name=%s  index=%d  addr=%s:%d", name, rec.Index, ip, port))
}

func sendWorldLoginAck(sess *gonet.Session, code byte) {
	w := packet.NewWriter(packet.H_OPCODE_LOGIN_ACK)
	w.WriteC(code)
	sess.Send(w.Bytes())
}

// buildZonesPeer builds H_OPCODE_ZONES_PEER for one world server's zone set.
// Format: [opcode][D index][S ip:16][H port][H count][H zone]...
func buildZonesPeer(rec *world.Record) []byte {
	w := packet.NewWriter(packet.H_OPCODE_ZONES_PEER)
	w.WriteD(rec.Index)
	w.WriteS(rec.IP, 16)
	w.WriteH(rec.Port)
	w.WriteH(uint16(len(rec.Zones)))
	for zone := range rec.Zones {
		w.WriteH(zone)
	}
	return w.Bytes()
}

// HandleZoneList processes W_OPCODE_ZONE_LIST, the zone set a world server
// hosts. Replaces any previous announcement wholesale.
// Format: [opcode][H count][H zone]...
func HandleZoneList(sess *gonet.Session, r *packet.Reader, deps *Deps) {
	rec := deps.Worlds.Get(sess.WorldIndex)
	if rec == nil {
		sess.Close()
		return
	}

	count := int(r.ReadH())
	rec.Zones = make(map[uint16]struct{}, count)
	for i := 0; i < count; i++ {
		rec.Zones[r.ReadH()] = struct{}{}
	}

	deps.Worlds.BroadcastExcept(rec.Index, buildZonesPeer(rec))

	// A world that announces zones is done re-announcing its players too;
	// anything still in limbo from this slot's previous life is offline.
	deps.Presence.ResolveUnknown(rec.Index)

	deps.Log.Info(fmt.Sprintf("世界伺服器區域表更新  name=%s  zones=%d", rec.Name, count))
}

// HandleWorldUserCount processes W_OPCODE_USER_COUNT.
// Format: [opcode][D users]
func HandleWorldUserCount(sess *gonet.Session, r *packet.Reader, deps *Deps) {
	if rec := deps.Worlds.Get(sess.WorldIndex); rec != nil {
		rec.Users = r.ReadD()
	}
}

// HandleWorldSetOnline processes W_OPCODE_SET_ONLINE: a world server confirms
// a character entered play (hand-off landed, transfer landed, or a
// re-announcement after the hub restarted).
// Format: [opcode][D account][D char]
func HandleWorldSetOnline(sess *gonet.Session, r *packet.Reader, deps *Deps) {
	accountID := r.ReadD()
	charID := r.ReadD()

	deps.Presence.MarkOnline(accountID, charID, sess.WorldIndex)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := deps.CharRepo.SetOnline(ctx, charID, true); err != nil {
		deps.Log.Error("上線旗標寫入失敗", zap.Int32("char", charID), zap.Error(err))
	}
}

// HandleWorldSetOffline processes W_OPCODE_SET_OFFLINE: the character left
// play without a final save (returned to character select on another
// connection, or the world dropped it).
// Format: [opcode][D account][D char]
func HandleWorldSetOffline(sess *gonet.Session, r *packet.Reader, deps *Deps) {
	accountID := r.ReadD()
	charID := r.ReadD()

	deps.Presence.MarkOffline(accountID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := deps.CharRepo.SetOnline(ctx, charID, false); err != nil {
		deps.Log.Error("離線旗標寫入失敗", zap.Int32("char", charID), zap.Error(err))
	}
}

// HandleSaveChar processes W_OPCODE_SAVE_CHAR, a full character state pushed
// back by a world server. The final flag marks a logout save: the account
// goes offline once the state is durable.
// Format: [opcode][D account][D char][C final][blob]
func HandleSaveChar(sess *gonet.Session, r *packet.Reader, deps *Deps) {
	accountID := r.ReadD()
	charID := r.ReadD()
	final := r.ReadC() != 0
	blob := r.ReadBlob()

	cs, err := component.DecodeState(blob)
	if err != nil {
		deps.Log.Error("角色狀態解碼失敗",
			zap.Int32("char", charID),
			zap.Int32("world", sess.WorldIndex),
			zap.Error(err),
		)
		sendSaveAck(sess, accountID, charID, false)
		return
	}
	if cs.CharID != charID || cs.AccountID != accountID {
		// Identity fields must match the envelope, a mismatched save is
		// never written.
		deps.Log.Warn("角色狀態識別欄位不符",
			zap.Int32("char", charID),
			zap.Int32("blob_char", cs.CharID),
		)
		sendSaveAck(sess, accountID, charID, false)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := deps.CharRepo.SaveState(ctx, cs); err != nil {
		deps.Log.Error("角色存檔失敗", zap.Int32("char", charID), zap.Error(err))
		sendSaveAck(sess, accountID, charID, false)
		return
	}

	if final {
		deps.Presence.MarkOffline(accountID)
		if err := deps.CharRepo.SetOnline(ctx, charID, false); err != nil {
			deps.Log.Error("離線旗標寫入失敗", zap.Int32("char", charID), zap.Error(err))
		}
	}
	sendSaveAck(sess, accountID, charID, true)
}

func sendSaveAck(sess *gonet.Session, accountID, charID int32, ok bool) {
	w := packet.NewWriter(packet.H_OPCODE_SAVE_ACK)
	w.WriteD(accountID)
	w.WriteD(charID)
	if ok {
		w.WriteC(1)
	} else {
		w.WriteC(0)
	}
	sess.Send(w.Bytes())
}
