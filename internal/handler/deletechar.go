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

// HandleDeleteChar processes C_OPCODE_DELETE_CHAR.
// Format: [opcode][D char_id][S email:40]
// The email must match the one on the account when the auth server provided
// one; accounts without a registered email skip the check.
func HandleDeleteChar(sess *gonet.Session, r *packet.Reader, deps *Deps) {
	charID := r.ReadD()
	email := r.ReadS(40)

	slot := int16(-1)
	for i, id := range sess.CharSlots {
		if id == charID && id != presence.NoCharacter {
			slot = int16(i)
			break
		}
	}
	if slot < 0 {
		// Not this account's character.
		sendDeleteFail(sess)
		return
	}

	if sess.Email != "" && email != sess.Email {
		sendDeleteFail(sess)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cs, err := deps.CharRepo.LoadByID(ctx, charID)
	if err != nil || cs == nil {
		deps.Log.Error("刪除角色載入失敗", zap.Int32("char", charID), zap.Error(err))
		sendDeleteFail(sess)
		return
	}

	ok, err := deps.CharRepo.Delete(ctx, sess.AccountID, charID)
	if err != nil || !ok {
		deps.Log.Error("刪除角色資料庫錯誤", zap.Int32("char", charID), zap.Error(err))
		sendDeleteFail(sess)
		return
	}

	sess.CharSlots[slot] = presence.NoCharacter
	writeCharLog(deps, sess.AccountID, slot, cs.Name, "delete")
	deps.Log.Info(fmt.Sprintf("角色已刪除  account=%d  name=%s", sess.AccountID, cs.Name))

	w := packet.NewWriter(packet.S_OPCODE_DELETE_OK)
	w.WriteD(charID)
	sess.Send(w.Bytes())
}

func sendDeleteFail(sess *gonet.Session) {
	w := packet.NewWriter(packet.S_OPCODE_DELETE_FAIL)
	sess.Send(w.Bytes())
}
