package packet

import (
	"encoding/binary"

	"golang.org/x/text/encoding/traditionalchinese"
)

// Reader reads packet fields from a frame payload.
// Bytes 0-1 are always the little-endian opcode.
type Reader struct {
	data []byte
	off  int
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data, off: 2} // skip opcode
}

func (r *Reader) Opcode() uint16 {
	if len(r.data) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(r.data)
}

// ReadC reads 1 unsigned byte.
func (r *Reader) ReadC() byte {
	if r.off >= len(r.data) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

// ReadH reads 2 bytes as little-endian uint16.
func (r *Reader) ReadH() uint16 {
	if r.off+2 > len(r.data) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

// ReadD reads 4 bytes as little-endian int32.
func (r *Reader) ReadD() int32 {
	if r.off+4 > len(r.data) {
		return 0
	}
	v := int32(binary.LittleEndian.Uint32(r.data[r.off:]))
	r.off += 4
	return v
}

// ReadDU reads 4 bytes as little-endian uint32.
func (r *Reader) ReadDU() uint32 {
	if r.off+4 > len(r.data) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

// ReadQ reads 8 bytes as little-endian int64.
func (r *Reader) ReadQ() int64 {
	if r.off+8 > len(r.data) {
		return 0
	}
	v := int64(binary.LittleEndian.Uint64(r.data[r.off:]))
	r.off += 8
	return v
}

// ReadS reads an n-byte fixed-width MS950 (Big5) string field and returns
// UTF-8, trimmed at the first NUL.
func (r *Reader) ReadS(n int) string {
	raw := r.ReadBytes(n)
	for i, b := range raw {
		if b == 0 {
			raw = raw[:i]
			break
		}
	}
	return ms950ToUTF8(raw)
}

// ms950ToUTF8 converts MS950 (Big5) bytes to a UTF-8 string.
// Pure ASCII passes through unchanged; only multi-byte sequences are decoded.
func ms950ToUTF8(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	allASCII := true
	for _, b := range raw {
		if b >= 0x80 {
			allASCII = false
			break
		}
	}
	if allASCII {
		return string(raw)
	}
	decoded, err := traditionalchinese.Big5.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw) // fallback to raw bytes
	}
	return string(decoded)
}

// ReadBytes reads n raw bytes.
func (r *Reader) ReadBytes(n int) []byte {
	if r.off+n > len(r.data) {
		remaining := r.data[r.off:]
		r.off = len(r.data)
		return remaining
	}
	b := make([]byte, n)
	copy(b, r.data[r.off:r.off+n])
	r.off += n
	return b
}

// ReadBlob reads one variable-length block framed by a 2-byte LE length.
func (r *Reader) ReadBlob() []byte {
	n := int(r.ReadH())
	return r.ReadBytes(n)
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}
