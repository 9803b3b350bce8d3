package handler

import (
	"context"
	"fmt"
	"time"

	gonet "github.com/charhub/server/internal/net"
	"github.com/charhub/server/internal/net/packet"
	"github.com/charhub/server/internal/presence"
	"go.uber.org/zap"
)

// Kinds carried in H_OPCODE_ADMIN_NOTIFY fan-outs to world servers.
const (
	adminNotifyBan byte = 1
	adminNotifySex byte = 2
	adminNotifyGM  byte = 3
)

// HandleLinkAck processes A_OPCODE_LINK_ACK, the auth server's answer to our
// handshake.
// Format: [opcode][C code] — 0 means accepted.
func HandleLinkAck(sess *gonet.Session, r *packet.Reader, deps *Deps) {
	code := r.ReadC()
	if code != 0 {
		deps.Log.Error("帳號伺服器拒絕連線", zap.Uint8("code", code))
		deps.AuthLink.SetReady(false)
		sess.Close()
		return
	}
	deps.AuthLink.SetReady(true)
	deps.Log.Info("帳號伺服器連線就緒")
}

// HandleVerifyAck processes A_OPCODE_VERIFY_ACK, the verdict for a client the
// ledger could not vouch for.
// Format: [opcode][D account][C result][C sex][Q expiration][S email:40]
func HandleVerifyAck(sess *gonet.Session, r *packet.Reader, deps *Deps) {
	accountID := r.ReadD()
	result := r.ReadC()
	sex := r.ReadC()
	expiration := r.ReadQ()
	email := r.ReadS(40)

	sessID, ok := deps.PendingVerify[accountID]
	if !ok {
		return // client gave up while we waited
	}
	delete(deps.PendingVerify, accountID)

	client := deps.Sessions.Get(sessID)
	if client == nil || client.IsClosed() {
		return
	}
	if client.State() != packet.StateAwaitingVerify || client.AccountID != accountID {
		return
	}

	if result != 0 {
		deps.Log.Info(fmt.Sprintf("帳號驗證被拒  account=%d  result=%d", accountID, result))
		sendRefuse(client, packet.RefuseAuthFailed)
		client.Close()
		return
	}

	client.Sex = sex
	client.Expiration = expiration
	client.Email = email
	acceptClient(client, deps)
}

// HandleGrantNotify processes A_OPCODE_GRANT_NOTIFY: the auth server just
// issued a grant and the client is about to show up here.
// Format: [opcode][D account][D login_id1][D login_id2][C sex][Q expiration][S ip:16]
func HandleGrantNotify(sess *gonet.Session, r *packet.Reader, deps *Deps) {
	accountID := r.ReadD()
	loginID1 := r.ReadDU()
	loginID2 := r.ReadDU()
	sex := r.ReadC()
	expiration := r.ReadQ()
	ip := r.ReadS(16)

	deps.Ledger.Issue(accountID, loginID1, loginID2, ip, sex, expiration)
}

// HandleBanNotify processes A_OPCODE_BAN_NOTIFY. The account is ejected from
// the cluster and every world server is told so it can drop local caches.
// Format: [opcode][D account][Q until]
func HandleBanNotify(sess *gonet.Session, r *packet.Reader, deps *Deps) {
	accountID := r.ReadD()
	until := r.ReadQ()

	deps.Log.Info(fmt.Sprintf("帳號遭封鎖  account=%d", accountID))
	ejectAccount(deps, accountID)
	broadcastAdminNotify(deps, adminNotifyBan, accountID, until)
}

// HandleKickReq processes A_OPCODE_KICK_REQ, an operator-initiated kick.
// Format: [opcode][D account]
func HandleKickReq(sess *gonet.Session, r *packet.Reader, deps *Deps) {
	accountID := r.ReadD()
	deps.Log.Info(fmt.Sprintf("帳號伺服器要求踢出  account=%d", accountID))
	ejectAccount(deps, accountID)
}

// HandleSexChanged processes A_OPCODE_SEX_CHANGED. The change touches every
// character row, so the account is kicked to force a clean reload.
// Format: [opcode][D account][C sex]
func HandleSexChanged(sess *gonet.Session, r *packet.Reader, deps *Deps) {
	accountID := r.ReadD()
	sex := r.ReadC()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := deps.CharRepo.UpdateSex(ctx, accountID, sex); err != nil {
		deps.Log.Error("性別變更寫入失敗", zap.Int32("account", accountID), zap.Error(err))
	}

	ejectAccount(deps, accountID)
	broadcastAdminNotify(deps, adminNotifySex, accountID, int64(sex))
}

// HandleGMLevel processes A_OPCODE_GM_LEVEL. The hub keeps no GM state of its
// own, the change is only fanned out to the world servers.
// Format: [opcode][D account][C level]
func HandleGMLevel(sess *gonet.Session, r *packet.Reader, deps *Deps) {
	accountID := r.ReadD()
	level := r.ReadC()
	broadcastAdminNotify(deps, adminNotifyGM, accountID, int64(level))
}

// ejectAccount removes the account from wherever it currently is: voids its
// pending grants, closes a hub-side client session, and asks the hosting
// world server for a kick.
func ejectAccount(deps *Deps, accountID int32) {
	deps.Ledger.Void(accountID)
	delete(deps.PendingVerify, accountID)

	if client := deps.Sessions.ByAccount(accountID); client != nil {
		sendRefuse(client, packet.RefuseAuthFailed)
		client.Close()
	}
	deps.Presence.RequestKick(accountID, presence.KickServerRequest)
}

// broadcastAdminNotify fans an account-level admin event out to every world
// server.
// Format: [opcode][C kind][D account][Q value]
func broadcastAdminNotify(deps *Deps, kind byte, accountID int32, value int64) {
	w := packet.NewWriter(packet.H_OPCODE_ADMIN_NOTIFY)
	w.WriteC(kind)
	w.WriteD(accountID)
	w.WriteQ(value)
	deps.Worlds.Broadcast(w.Bytes())
}
