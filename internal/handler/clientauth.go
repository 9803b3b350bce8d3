package handler

import (
	"fmt"

	gonet "github.com/charhub/server/internal/net"
	"github.com/charhub/server/internal/net/packet"
	"github.com/charhub/server/internal/presence"
)

// HandleEnter processes C_OPCODE_ENTER, a game client presenting the token
// pair it got from the auth server.
// Format: [opcode][D account][D login_id1][D login_id2][C sex]
func HandleEnter(sess *gonet.Session, r *packet.Reader, deps *Deps) {
	accountID := r.ReadD()
	loginID1 := r.ReadDU()
	loginID2 := r.ReadDU()
	sex := r.ReadC()

	if accountID <= 0 {
		sendRefuse(sess, packet.RefuseAuthFailed)
		sess.Close()
		return
	}

	// Account already live on a world server (or in limbo after a world-server
	// loss): ask the hosting world to drop it and refuse this connection. The
	// client retries after the kick lands.
	if rec := deps.Presence.Get(accountID); rec != nil {
		if rec.OnWorld() || rec.World == presence.WorldUnknown {
			deps.Presence.RequestKick(accountID, presence.KickDuplicateLogin)
			sendRefuse(sess, packet.RefuseAlreadyOn)
			sess.Close()
			return
		}
	}

	sess.AccountID = accountID
	sess.LoginID1 = loginID1
	sess.LoginID2 = loginID2
	sess.Sex = sex

	// Fast path: the auth server already announced this grant.
	if grant, ok := deps.Ledger.Consume(accountID, loginID1, loginID2, sess.IP); ok {
		sess.Sex = grant.Sex
		sess.Expiration = grant.Expiration
		acceptClient(sess, deps)
		return
	}

	// Ledger miss: the grant aged out or never arrived, fall back to a full
	// verification round trip.
	if !deps.AuthLink.SendVerify(accountID, loginID1, loginID2, sess.IP, sex) {
		deps.Log.Warn(fmt.Sprintf("帳號伺服器離線，無法驗證  account=%d", accountID))
		sendRefuse(sess, packet.RefuseAuthFailed)
		sess.Close()
		return
	}
	deps.PendingVerify[accountID] = sess.ID
	sess.SetState(packet.StateAwaitingVerify)
}

// acceptClient finishes client authentication: binds the account to this
// session, claims it in the presence registry, and sends the character list.
func acceptClient(sess *gonet.Session, deps *Deps) {
	if prev := deps.Sessions.BindAccount(sess.AccountID, sess); prev != nil {
		// Stale hub-side connection for the same account, drop it.
		prev.Close()
	}
	deps.Presence.SetCharSelect(sess.AccountID, sess.ID)
	sess.SetState(packet.StateAuthenticated)

	sendCharacterList(sess, deps)

	deps.Log.Info(fmt.Sprintf("客戶端驗證成功  account=%d  ip=%s", sess.AccountID, sess.IP))
}

// sendRefuse sends S_OPCODE_REFUSE with a reason code.
func sendRefuse(sess *gonet.Session, code byte) {
	w := packet.NewWriter(packet.S_OPCODE_REFUSE)
	w.WriteC(code)
	sess.Send(w.Bytes())
}
