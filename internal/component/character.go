package component

import (
	"github.com/vmihailenco/msgpack/v5"
)

// CharacterState is the full mutable character record. The hub only borrows
// it: loaded from persistence at selection, copied whole onto the wire during
// hand-off, written back when a world server saves. World servers own its
// meaning; the hub treats everything past the identity fields as payload.
type CharacterState struct {
	CharID    int32  `msgpack:"char_id"`
	AccountID int32  `msgpack:"account_id"`
	Slot      int16  `msgpack:"slot"`
	Name      string `msgpack:"name"`
	Class     int16  `msgpack:"class"`
	Sex       byte   `msgpack:"sex"`

	Level int16 `msgpack:"level"`
	Exp   int64 `msgpack:"exp"`
	HP    int32 `msgpack:"hp"`
	MaxHP int32 `msgpack:"max_hp"`
	MP    int32 `msgpack:"mp"`
	MaxMP int32 `msgpack:"max_mp"`

	Str   int16 `msgpack:"str"`
	Dex   int16 `msgpack:"dex"`
	Con   int16 `msgpack:"con"`
	Intel int16 `msgpack:"int"`
	Wis   int16 `msgpack:"wis"`
	Cha   int16 `msgpack:"cha"`

	// Last known position; ZoneID drives world-server routing at selection.
	ZoneID uint16 `msgpack:"zone_id"`
	X      int16  `msgpack:"x"`
	Y      int16  `msgpack:"y"`
}

// EncodeState serializes a character state into the opaque hand-off blob.
func EncodeState(cs *CharacterState) ([]byte, error) {
	return msgpack.Marshal(cs)
}

// DecodeState deserializes a hand-off blob pushed back by a world server.
func DecodeState(blob []byte) (*CharacterState, error) {
	cs := &CharacterState{}
	if err := msgpack.Unmarshal(blob, cs); err != nil {
		return nil, err
	}
	return cs, nil
}
