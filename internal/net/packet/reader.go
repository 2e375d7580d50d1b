package packet

import (
	"encoding/binary"
	"errors"
	"math"
	"unicode/utf8"

	"github.com/survarena/server/internal/geom"
)

// ErrShortRead is recorded when a field runs past the end of the packet.
var ErrShortRead = errors.New("packet too short")

// ErrBadString is recorded when a string field is not valid UTF-8.
var ErrBadString = errors.New("invalid utf-8 string")

// Reader reads arena packet fields from a payload. Byte 0 is always the
// opcode. Reads past the end return zero values and latch Err so a handler
// can discard a malformed packet after parsing it.
type Reader struct {
	data []byte
	off  int
	err  error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data, off: 1} // skip opcode byte
}

func (r *Reader) Opcode() byte {
	if len(r.data) == 0 {
		return 0
	}
	return r.data[0]
}

// Err returns the first decoding error, if any.
func (r *Reader) Err() error { return r.err }

func (r *Reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.off+n > len(r.data) {
		r.err = ErrShortRead
		r.off = len(r.data)
		return false
	}
	return true
}

// ReadC reads 1 unsigned byte.
func (r *Reader) ReadC() byte {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

// ReadBool reads 1 byte as a bool.
func (r *Reader) ReadBool() bool {
	return r.ReadC() != 0
}

// ReadH reads 2 bytes as little-endian uint16.
func (r *Reader) ReadH() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

// ReadD reads 4 bytes as little-endian int32.
func (r *Reader) ReadD() int32 {
	if !r.need(4) {
		return 0
	}
	v := int32(binary.LittleEndian.Uint32(r.data[r.off:]))
	r.off += 4
	return v
}

// ReadDU reads 4 bytes as little-endian uint32.
func (r *Reader) ReadDU() uint32 {
	return uint32(r.ReadD())
}

// ReadF reads a float32. NaN and infinities read as zero and latch an error.
func (r *Reader) ReadF() float64 {
	if !r.need(4) {
		return 0
	}
	v := math.Float32frombits(binary.LittleEndian.Uint32(r.data[r.off:]))
	r.off += 4
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		if r.err == nil {
			r.err = errors.New("non-finite float")
		}
		return 0
	}
	return f
}

// ReadVec reads two float32 as a vector.
func (r *Reader) ReadVec() geom.Vec2 {
	x := r.ReadF()
	y := r.ReadF()
	return geom.Vec2{X: x, Y: y}
}

// ReadS reads a uint16-length-prefixed UTF-8 string.
func (r *Reader) ReadS() string {
	n := int(r.ReadH())
	if !r.need(n) {
		return ""
	}
	raw := r.data[r.off : r.off+n]
	r.off += n
	if !utf8.Valid(raw) {
		r.err = ErrBadString
		return ""
	}
	return string(raw)
}

// ReadBytes reads n raw bytes.
func (r *Reader) ReadBytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	b := make([]byte, n)
	copy(b, r.data[r.off:r.off+n])
	r.off += n
	return b
}

// ReadBlob reads a uint16-length-prefixed byte slice.
func (r *Reader) ReadBlob() []byte {
	return r.ReadBytes(int(r.ReadH()))
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}
