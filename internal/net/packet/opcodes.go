package packet

// NameLength is the fixed width of character-name fields on the wire.
const NameLength = 24

// Client ↔ Hub (0x006x family).
const (
	C_OPCODE_ENTER       uint16 = 0x0065 // account id + token pair + sex
	S_OPCODE_ACCEPT      uint16 = 0x006B // character list
	S_OPCODE_REFUSE      uint16 = 0x006C // refuse code
	C_OPCODE_SELECT_CHAR uint16 = 0x0066
	C_OPCODE_MAKE_CHAR   uint16 = 0x0067
	C_OPCODE_DELETE_CHAR uint16 = 0x0068
	S_OPCODE_MAKE_OK     uint16 = 0x006D
	S_OPCODE_MAKE_FAIL   uint16 = 0x006E
	S_OPCODE_DELETE_OK   uint16 = 0x006F
	S_OPCODE_DELETE_FAIL uint16 = 0x0070
	S_OPCODE_ZONE_SERVER uint16 = 0x0071 // go-to-world: char id + zone + address
	C_OPCODE_KEEPALIVE   uint16 = 0x0187
)

// Refuse codes sent with S_OPCODE_REFUSE.
const (
	RefuseAuthFailed   byte = 0x00
	RefuseServerClosed byte = 0x01 // also: no world server available
	RefuseAlreadyOn    byte = 0x08
)

// Hub ↔ Auth server (0x27xx family). The hub dials the auth server.
const (
	H_OPCODE_LINK_LOGIN   uint16 = 0x2710 // credentials
	A_OPCODE_LINK_ACK     uint16 = 0x2711
	H_OPCODE_VERIFY_REQ   uint16 = 0x2712 // account id + tokens + ip
	A_OPCODE_VERIFY_ACK   uint16 = 0x2713 // result + sex + email + entitlement
	H_OPCODE_USER_COUNT   uint16 = 0x2714
	A_OPCODE_GRANT_NOTIFY uint16 = 0x2720 // freshly issued grant
	A_OPCODE_GM_LEVEL     uint16 = 0x2721
	A_OPCODE_SEX_CHANGED  uint16 = 0x2723
	H_OPCODE_SET_ONLINE   uint16 = 0x272B
	H_OPCODE_SET_OFFLINE  uint16 = 0x272C
	A_OPCODE_BAN_NOTIFY   uint16 = 0x2731
	A_OPCODE_KICK_REQ     uint16 = 0x2734
)

// Hub ↔ World server (0x2afx / 0x2bxx family).
const (
	W_OPCODE_LOGIN        uint16 = 0x2AF8 // credentials + public address
	H_OPCODE_LOGIN_ACK    uint16 = 0x2AF9
	W_OPCODE_ZONE_LIST    uint16 = 0x2AFA
	H_OPCODE_ZONES_PEER   uint16 = 0x2B04 // another world's hosted zones
	W_OPCODE_USER_COUNT   uint16 = 0x2AFF
	W_OPCODE_SAVE_CHAR    uint16 = 0x2B01 // char state push-back, final flag
	H_OPCODE_PUSH_CHAR    uint16 = 0x2B02 // hand-off: tokens + entitlement + blob
	W_OPCODE_TRANSFER_REQ uint16 = 0x2B05 // world-to-world transfer
	H_OPCODE_TRANSFER_ACK uint16 = 0x2B06
	H_OPCODE_ADMIN_NOTIFY uint16 = 0x2B14 // ban/sex/GM fan-out
	W_OPCODE_SET_OFFLINE  uint16 = 0x2B17
	W_OPCODE_SET_ONLINE   uint16 = 0x2B19
	H_OPCODE_KICK_ACCOUNT uint16 = 0x2B1F // disconnect-this-account request
	H_OPCODE_ZONES_GONE   uint16 = 0x2B20 // a world's zones became unreachable
	H_OPCODE_SAVE_ACK     uint16 = 0x2B21
)
