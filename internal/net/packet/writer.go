package packet

import (
	"encoding/binary"

	"golang.org/x/text/encoding/traditionalchinese"
)

// Writer builds a server packet. All multi-byte writes are little-endian.
type Writer struct {
	buf []byte
}

func NewWriter(opcode uint16) *Writer {
	w := &Writer{buf: make([]byte, 0, 64)}
	w.WriteH(opcode)
	return w
}

// WriteC writes 1 byte.
func (w *Writer) WriteC(v byte) {
	w.buf = append(w.buf, v)
}

// WriteH writes 2 bytes little-endian.
func (w *Writer) WriteH(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteD writes 4 bytes little-endian (signed or unsigned via cast).
func (w *Writer) WriteD(v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	w.buf = append(w.buf, b[:]...)
}

// WriteDU writes 4 bytes little-endian unsigned.
func (w *Writer) WriteDU(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteQ writes 8 bytes little-endian.
func (w *Writer) WriteQ(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	w.buf = append(w.buf, b[:]...)
}

// WriteS writes an n-byte fixed-width string field, converting UTF-8 to
// MS950 (Big5), NUL-padded and truncated to fit.
func (w *Writer) WriteS(s string, n int) {
	field := make([]byte, n)
	if len(s) > 0 {
		encoded, err := traditionalchinese.Big5.NewEncoder().Bytes([]byte(s))
		if err != nil {
			// Fallback: raw bytes (works for pure ASCII)
			encoded = []byte(s)
		}
		if len(encoded) > n-1 {
			encoded = encoded[:n-1] // always keep a terminating NUL
		}
		copy(field, encoded)
	}
	w.buf = append(w.buf, field...)
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteBlob writes one variable-length block framed by a 2-byte LE length.
func (w *Writer) WriteBlob(b []byte) {
	w.WriteH(uint16(len(b)))
	w.buf = append(w.buf, b...)
}

// Bytes returns the packet content.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the current length.
func (w *Writer) Len() int {
	return len(w.buf)
}
