package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWriterReaderFields(t *testing.T) {
	w := NewWriter(C_OPCODE_ENTER)
	w.WriteD(-7)
	w.WriteDU(0xDEADBEEF)
	w.WriteC(3)
	w.WriteQ(1<<40 + 9)

	r := NewReader(w.Bytes())
	assert.Equal(t, C_OPCODE_ENTER, r.Opcode())
	assert.Equal(t, int32(-7), r.ReadD())
	assert.Equal(t, uint32(0xDEADBEEF), r.ReadDU())
	assert.Equal(t, byte(3), r.ReadC())
	assert.Equal(t, int64(1<<40+9), r.ReadQ())
	assert.Equal(t, 0, r.Remaining())
}

func TestFixedWidthStringField(t *testing.T) {
	w := NewWriter(C_OPCODE_MAKE_CHAR)
	w.WriteS("Arthur", NameLength)
	w.WriteC(0xAA) // field after the name must stay aligned

	r := NewReader(w.Bytes())
	assert.Equal(t, "Arthur", r.ReadS(NameLength))
	assert.Equal(t, byte(0xAA), r.ReadC())
}

func TestFixedWidthStringBig5(t *testing.T) {
	w := NewWriter(C_OPCODE_MAKE_CHAR)
	w.WriteS("劍士阿宅", NameLength)

	r := NewReader(w.Bytes())
	assert.Equal(t, "劍士阿宅", r.ReadS(NameLength))
}

func TestFixedWidthStringTruncatesKeepingNUL(t *testing.T) {
	w := NewWriter(C_OPCODE_MAKE_CHAR)
	w.WriteS("abcdefgh", 4)

	r := NewReader(w.Bytes())
	assert.Equal(t, "abc", r.ReadS(4), "truncated to width minus terminator")
}

func TestBlobRoundTrip(t *testing.T) {
	blob := []byte{9, 8, 7, 6, 5}

	w := NewWriter(H_OPCODE_PUSH_CHAR)
	w.WriteD(42)
	w.WriteBlob(blob)
	w.WriteC(0xFF)

	r := NewReader(w.Bytes())
	assert.Equal(t, int32(42), r.ReadD())
	assert.Equal(t, blob, r.ReadBlob())
	assert.Equal(t, byte(0xFF), r.ReadC())
}

func TestReaderPastEndReturnsZero(t *testing.T) {
	w := NewWriter(C_OPCODE_KEEPALIVE)
	r := NewReader(w.Bytes())

	assert.Equal(t, byte(0), r.ReadC())
	assert.Equal(t, int32(0), r.ReadD())
	assert.Equal(t, "", r.ReadS(8))
}

func TestDispatchUnknownOpcode(t *testing.T) {
	reg := NewRegistry(zap.NewNop())

	w := NewWriter(0x7777)
	err := reg.Dispatch(nil, StateConnected, w.Bytes())
	assert.Error(t, err)
}

func TestDispatchStateGate(t *testing.T) {
	reg := NewRegistry(zap.NewNop())

	called := false
	reg.Register(C_OPCODE_SELECT_CHAR, []SessionState{StateAuthenticated},
		func(sess any, r *Reader) { called = true })

	w := NewWriter(C_OPCODE_SELECT_CHAR)
	err := reg.Dispatch(nil, StateConnected, w.Bytes())
	assert.Error(t, err, "select before auth must be rejected")
	assert.False(t, called)

	err = reg.Dispatch(nil, StateAuthenticated, w.Bytes())
	require.NoError(t, err)
	assert.True(t, called)
}

func TestDispatchShortPacket(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	assert.Error(t, reg.Dispatch(nil, StateConnected, []byte{0x65}))
}

func TestDispatchRecoversPanic(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	reg.Register(C_OPCODE_KEEPALIVE, []SessionState{StateConnected},
		func(sess any, r *Reader) { panic("boom") })

	w := NewWriter(C_OPCODE_KEEPALIVE)
	err := reg.Dispatch(nil, StateConnected, w.Bytes())
	assert.Error(t, err, "panic surfaces as an error, not a crash")
}
