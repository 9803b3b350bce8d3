package handler

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/charhub/server/internal/component"
	gonet "github.com/charhub/server/internal/net"
	"github.com/charhub/server/internal/net/packet"
	"github.com/charhub/server/internal/presence"
	"github.com/charhub/server/internal/scripting"
	"go.uber.org/zap"
)

// Creation failure codes sent with S_OPCODE_MAKE_FAIL.
const (
	makeFailGeneric  byte = 0x00
	makeFailName     byte = 0x01 // invalid or duplicate name
	makeFailSlot     byte = 0x02 // slot out of range or occupied
	makeFailRejected byte = 0x03 // policy script said no
)

// Starting vitals for a fresh character; everything beyond these is the world
// servers' business once the character enters play.
const (
	startLevel int16 = 1
	startHP    int32 = 40
	startMP    int32 = 11
)

// HandleMakeChar processes C_OPCODE_MAKE_CHAR.
// Format: [opcode][S name:24][C slot][H class]
// [C str][C dex][C con][C int][C wis][C cha]
func HandleMakeChar(sess *gonet.Session, r *packet.Reader, deps *Deps) {
	name := r.ReadS(packet.NameLength)
	slot := int16(r.ReadC())
	class := int16(r.ReadH())
	str := int16(r.ReadC())
	dex := int16(r.ReadC())
	con := int16(r.ReadC())
	intel := int16(r.ReadC())
	wis := int16(r.ReadC())
	cha := int16(r.ReadC())

	if int(slot) >= deps.Config.Character.SlotsPerAccount || slot < 0 {
		sendMakeFail(sess, makeFailSlot)
		return
	}
	if int(slot) < len(sess.CharSlots) && sess.CharSlots[slot] != presence.NoCharacter {
		sendMakeFail(sess, makeFailSlot)
		return
	}

	nameLen := utf8.RuneCountInString(name)
	if nameLen < deps.Config.Character.NameMinLen || nameLen > deps.Config.Character.NameMaxLen {
		sendMakeFail(sess, makeFailName)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	taken, err := deps.CharRepo.NameExists(ctx, name)
	if err != nil {
		deps.Log.Error("角色名稱查詢資料庫錯誤", zap.Error(err))
		sendMakeFail(sess, makeFailGeneric)
		return
	}
	if taken {
		sendMakeFail(sess, makeFailName)
		return
	}

	verdict := deps.Policy.ValidateCreation(scripting.CreationRequest{
		Name:  name,
		Class: int(class),
		Str:   int(str),
		Dex:   int(dex),
		Con:   int(con),
		Intel: int(intel),
		Wis:   int(wis),
		Cha:   int(cha),
	})
	if !verdict.OK {
		deps.Log.Info(fmt.Sprintf("角色創建被策略腳本拒絕  name=%s  reason=%s", name, verdict.Reason))
		sendMakeFail(sess, makeFailRejected)
		return
	}

	start := deps.Zones.Start()
	if zoneID, x, y, ok := deps.Policy.StartingZone(int(class)); ok {
		start.ZoneID, start.X, start.Y = zoneID, x, y
	}

	cs := &component.CharacterState{
		AccountID: sess.AccountID,
		Slot:      slot,
		Name:      name,
		Class:     class,
		Sex:       sess.Sex,
		Level:     startLevel,
		HP:        startHP,
		MaxHP:     startHP,
		MP:        startMP,
		MaxMP:     startMP,
		Str:       str,
		Dex:       dex,
		Con:       con,
		Intel:     intel,
		Wis:       wis,
		Cha:       cha,
		ZoneID:    start.ZoneID,
		X:         start.X,
		Y:         start.Y,
	}
	if err := deps.CharRepo.Create(ctx, cs); err != nil {
		deps.Log.Error("角色創建資料庫錯誤", zap.String("name", name), zap.Error(err))
		sendMakeFail(sess, makeFailGeneric)
		return
	}

	if int(slot) < len(sess.CharSlots) {
		sess.CharSlots[slot] = cs.CharID
	}
	writeCharLog(deps, sess.AccountID, slot, name, "make")
	deps.Log.Info(fmt.Sprintf("角色創建完成  account=%d  name=%s  slot=%d", sess.AccountID, name, slot))

	w := packet.NewWriter(packet.S_OPCODE_MAKE_OK)
	writeCharSummary(w, cs)
	sess.Send(w.Bytes())
}

func sendMakeFail(sess *gonet.Session, code byte) {
	w := packet.NewWriter(packet.S_OPCODE_MAKE_FAIL)
	w.WriteC(code)
	sess.Send(w.Bytes())
}

// writeCharLog appends an audit row when char logging is enabled.
func writeCharLog(deps *Deps, accountID int32, slot int16, name, action string) {
	if !deps.Config.Character.LogEnabled {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := deps.CharRepo.Log(ctx, accountID, slot, name, action); err != nil {
		deps.Log.Error("角色記錄寫入失敗", zap.String("action", action), zap.Error(err))
	}
}
