package handler

import (
	"context"
	"time"

	"github.com/charhub/server/internal/component"
	gonet "github.com/charhub/server/internal/net"
	"github.com/charhub/server/internal/net/packet"
	"github.com/charhub/server/internal/presence"
	"go.uber.org/zap"
)

// sendCharacterList sends S_OPCODE_ACCEPT with the account's characters and
// rebuilds the session's slot index.
// Format: [opcode][C max_slots][C count] then per character:
// [D char_id][S name:24][C slot][C sex][H class][H level][Q exp]
// [D hp][D max_hp][D mp][D max_mp][H zone_id]
func sendCharacterList(sess *gonet.Session, deps *Deps) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	chars, err := deps.CharRepo.ListByAccount(ctx, sess.AccountID)
	if err != nil {
		deps.Log.Error("載入角色列表資料庫錯誤",
			zap.Int32("account", sess.AccountID),
			zap.Error(err),
		)
		sendRefuse(sess, packet.RefuseServerClosed)
		sess.Close()
		return
	}

	maxSlots := deps.Config.Character.SlotsPerAccount
	sess.CharSlots = make([]int32, maxSlots)
	for i := range sess.CharSlots {
		sess.CharSlots[i] = presence.NoCharacter
	}

	w := packet.NewWriter(packet.S_OPCODE_ACCEPT)
	w.WriteC(byte(maxSlots))
	w.WriteC(byte(len(chars)))
	for _, cs := range chars {
		writeCharSummary(w, cs)
		if int(cs.Slot) < maxSlots {
			sess.CharSlots[cs.Slot] = cs.CharID
		}
	}
	sess.Send(w.Bytes())
}

// writeCharSummary writes one fixed-width character entry.
func writeCharSummary(w *packet.Writer, cs *component.CharacterState) {
	w.WriteD(cs.CharID)
	w.WriteS(cs.Name, packet.NameLength)
	w.WriteC(byte(cs.Slot))
	w.WriteC(cs.Sex)
	w.WriteH(uint16(cs.Class))
	w.WriteH(uint16(cs.Level))
	w.WriteQ(cs.Exp)
	w.WriteD(cs.HP)
	w.WriteD(cs.MaxHP)
	w.WriteD(cs.MP)
	w.WriteD(cs.MaxMP)
	w.WriteH(cs.ZoneID)
}
