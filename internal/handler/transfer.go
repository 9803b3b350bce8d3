package handler

import (
	"fmt"

	gonet "github.com/charhub/server/internal/net"
	"github.com/charhub/server/internal/net/packet"
	"github.com/charhub/server/internal/world"
)

// HandleTransferReq processes W_OPCODE_TRANSFER_REQ: a world server wants to
// move a live character to a zone it does not host. The hub pushes the state
// to the destination and tells the source where to point the client. The
// source keeps the character until the ack arrives, so a failed transfer
// leaves the player where they were.
// Format: [opcode][D account][D char][D login_id1][D login_id2]
// [H zone][H x][H y][S client_ip:16][blob]
func HandleTransferReq(sess *gonet.Session, r *packet.Reader, deps *Deps) {
	accountID := r.ReadD()
	charID := r.ReadD()
	loginID1 := r.ReadDU()
	loginID2 := r.ReadDU()
	zone := r.ReadH()
	x := int16(r.ReadH())
	y := int16(r.ReadH())
	clientIP := r.ReadS(16)
	blob := r.ReadBlob()

	dest := deps.Worlds.ByZone(zone)
	if dest == nil || dest.Index == sess.WorldIndex || !dest.Session.Writable() {
		sendTransferAck(sess, accountID, charID, nil, zone, x, y)
		deps.Log.Warn(fmt.Sprintf("轉移目的地不可用  account=%d  zone=%d", accountID, zone))
		return
	}

	// Same escrow push as the initial hand-off; the blob is the source
	// world's latest state and the hub does not persist it here. The source
	// issues its own save before releasing the character.
	w := packet.NewWriter(packet.H_OPCODE_PUSH_CHAR)
	w.WriteD(accountID)
	w.WriteD(charID)
	w.WriteDU(loginID1)
	w.WriteDU(loginID2)
	w.WriteQ(0)
	w.WriteC(0)
	w.WriteS(clientIP, 16)
	w.WriteBlob(blob)
	dest.Session.Send(w.Bytes())

	deps.Presence.Transfer(accountID, charID, dest.Index)

	sendTransferAck(sess, accountID, charID, dest, zone, x, y)
	deps.Log.Info(fmt.Sprintf("角色轉移  account=%d  char=%d  world=%d→%d  zone=%d",
		accountID, charID, sess.WorldIndex, dest.Index, zone))
}

// sendTransferAck answers the requesting world. A nil dest means refusal; the
// source then keeps the character in place.
// Format: [opcode][D account][D char][C ok] then on ok:
// [H zone][H x][H y][S ip:16][H port]
func sendTransferAck(sess *gonet.Session, accountID, charID int32, dest *world.Record, zone uint16, x, y int16) {
	w := packet.NewWriter(packet.H_OPCODE_TRANSFER_ACK)
	w.WriteD(accountID)
	w.WriteD(charID)
	if dest == nil {
		w.WriteC(0)
		sess.Send(w.Bytes())
		return
	}
	w.WriteC(1)
	w.WriteH(zone)
	w.WriteH(uint16(x))
	w.WriteH(uint16(y))
	w.WriteS(dest.IP, 16)
	w.WriteH(dest.Port)
	sess.Send(w.Bytes())
}
