package codec

import (
	"encoding/binary"
	"math"
)

// CBOR major types used by the mesh schema.
const (
	majorUint   = 0
	majorNegInt = 1
	majorBytes  = 2
	majorText   = 3
	majorArray  = 4
	majorMap    = 5
	majorSimple = 7

	// simpleFloat32 is the additional-info value for a 32-bit float.
	simpleFloat32 = 26
)

// writer appends CBOR items to a fixed-capacity buffer. The first write
// that would overflow the buffer sets overflow and every later write is a
// no-op, so Encode can fail closed with a single check at the end.
type writer struct {
	buf      [MaxFrameLen]byte
	n        int
	overflow bool
}

func (w *writer) writeType(major uint8, val uint64) {
	if w.overflow {
		return
	}
	var tmp [5]byte
	var n int
	switch {
	case val < 24:
		tmp[0] = major<<5 | uint8(val)
		n = 1
	case val <= 0xFF:
		tmp[0] = major<<5 | 24
		tmp[1] = uint8(val)
		n = 2
	case val <= 0xFFFF:
		tmp[0] = major<<5 | 25
		binary.BigEndian.PutUint16(tmp[1:3], uint16(val))
		n = 3
	case val <= 0xFFFFFFFF:
		tmp[0] = major<<5 | 26
		binary.BigEndian.PutUint32(tmp[1:5], uint32(val))
		n = 5
	default:
		w.overflow = true
		return
	}
	if w.n+n > len(w.buf) {
		w.overflow = true
		return
	}
	copy(w.buf[w.n:], tmp[:n])
	w.n += n
}

func (w *writer) writeUint(v uint32) {
	w.writeType(majorUint, uint64(v))
}

func (w *writer) writeBytes(data []byte) {
	w.writeType(majorBytes, uint64(len(data)))
	w.writeRaw(data)
}

func (w *writer) writeText(s string) {
	w.writeType(majorText, uint64(len(s)))
	w.writeRaw([]byte(s))
}

// writeFloat writes a 32-bit IEEE-754 float. The payload is little-endian
// to stay byte-compatible with the device encoder.
func (w *writer) writeFloat(v float32) {
	w.writeType(majorSimple, simpleFloat32)
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(v))
	w.writeRaw(tmp[:])
}

func (w *writer) writeBool(b bool) {
	if b {
		w.writeUint(1)
	} else {
		w.writeUint(0)
	}
}

func (w *writer) writeMapStart(pairs int) {
	w.writeType(majorMap, uint64(pairs))
}

func (w *writer) writeArrayStart(count int) {
	w.writeType(majorArray, uint64(count))
}

func (w *writer) writeRaw(data []byte) {
	if w.overflow {
		return
	}
	if w.n+len(data) > len(w.buf) {
		w.overflow = true
		return
	}
	copy(w.buf[w.n:], data)
	w.n += len(data)
}
