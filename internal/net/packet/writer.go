package packet

import (
	"encoding/binary"
	"math"

	"github.com/survarena/server/internal/geom"
)

// Writer builds an arena server packet. All multi-byte writes are little-endian.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

func NewWriterWithOpcode(opcode byte) *Writer {
	w := &Writer{buf: make([]byte, 0, 64)}
	w.WriteC(opcode)
	return w
}

// WriteC writes 1 byte.
func (w *Writer) WriteC(v byte) {
	w.buf = append(w.buf, v)
}

// WriteBool writes 1 byte, 0 or 1.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

// WriteH writes 2 bytes little-endian.
func (w *Writer) WriteH(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// WriteD writes 4 bytes little-endian (signed or unsigned via cast).
func (w *Writer) WriteD(v int32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
}

// WriteDU writes 4 bytes little-endian unsigned.
func (w *Writer) WriteDU(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteF writes a float32.
func (w *Writer) WriteF(v float64) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(float32(v)))
}

// WriteVec writes a vector as two float32.
func (w *Writer) WriteVec(v geom.Vec2) {
	w.WriteF(v.X)
	w.WriteF(v.Y)
}

// WriteUnit writes a value in [0,1] quantized to one byte.
func (w *Writer) WriteUnit(v float64) {
	w.WriteC(byte(math.Round(geom.Clamp(v, 0, 1) * 255)))
}

// WriteS writes a UTF-8 string prefixed with its uint16 byte length.
// Strings longer than 65535 bytes are truncated.
func (w *Writer) WriteS(s string) {
	if len(s) > math.MaxUint16 {
		s = s[:math.MaxUint16]
	}
	w.WriteH(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteBlob writes a uint16 length followed by b.
func (w *Writer) WriteBlob(b []byte) {
	w.WriteH(uint16(len(b)))
	w.buf = append(w.buf, b...)
}

// Bytes returns the packet content. The slice aliases the writer buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Reset empties the writer while keeping its capacity.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

// Len returns the current length.
func (w *Writer) Len() int {
	return len(w.buf)
}
