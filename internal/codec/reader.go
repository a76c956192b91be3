package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// reader consumes CBOR items from a byte slice. Every method returns an
// error wrapping ErrMalformed when the input does not conform, so the
// decoder can drop the frame without exposing partial state.
type reader struct {
	data []byte
	idx  int
}

func (r *reader) readType() (major uint8, val uint64, err error) {
	if r.idx >= len(r.data) {
		return 0, 0, fmt.Errorf("%w: truncated item header", ErrMalformed)
	}
	ib := r.data[r.idx]
	r.idx++
	major = ib >> 5
	ai := ib & 0x1F
	switch {
	case ai < 24:
		return major, uint64(ai), nil
	case ai == 24:
		if r.idx >= len(r.data) {
			return 0, 0, fmt.Errorf("%w: truncated uint8 argument", ErrMalformed)
		}
		val = uint64(r.data[r.idx])
		r.idx++
		return major, val, nil
	case ai == 25:
		if r.idx+2 > len(r.data) {
			return 0, 0, fmt.Errorf("%w: truncated uint16 argument", ErrMalformed)
		}
		val = uint64(binary.BigEndian.Uint16(r.data[r.idx:]))
		r.idx += 2
		return major, val, nil
	case ai == 26:
		if r.idx+4 > len(r.data) {
			return 0, 0, fmt.Errorf("%w: truncated uint32 argument", ErrMalformed)
		}
		val = uint64(binary.BigEndian.Uint32(r.data[r.idx:]))
		r.idx += 4
		return major, val, nil
	default:
		return 0, 0, fmt.Errorf("%w: unsupported additional info %d", ErrMalformed, ai)
	}
}

func (r *reader) readUint() (uint32, error) {
	major, val, err := r.readType()
	if err != nil {
		return 0, err
	}
	if major != majorUint {
		return 0, fmt.Errorf("%w: expected uint, got major %d", ErrMalformed, major)
	}
	return uint32(val), nil
}

// readBytesInto copies a byte string into dst. The wire length must not
// exceed len(dst).
func (r *reader) readBytesInto(dst []byte) error {
	major, val, err := r.readType()
	if err != nil {
		return err
	}
	if major != majorBytes {
		return fmt.Errorf("%w: expected bytes, got major %d", ErrMalformed, major)
	}
	n := int(val)
	if r.idx+n > len(r.data) || n > len(dst) {
		return fmt.Errorf("%w: byte string length %d out of range", ErrMalformed, n)
	}
	copy(dst, r.data[r.idx:r.idx+n])
	r.idx += n
	return nil
}

// readText reads a text string of at most maxLen bytes.
func (r *reader) readText(maxLen int) (string, error) {
	major, val, err := r.readType()
	if err != nil {
		return "", err
	}
	if major != majorText {
		return "", fmt.Errorf("%w: expected text, got major %d", ErrMalformed, major)
	}
	n := int(val)
	if r.idx+n > len(r.data) || n > maxLen {
		return "", fmt.Errorf("%w: text length %d out of range", ErrMalformed, n)
	}
	s := string(r.data[r.idx : r.idx+n])
	r.idx += n
	return s, nil
}

func (r *reader) readFloat() (float32, error) {
	major, val, err := r.readType()
	if err != nil {
		return 0, err
	}
	if major != majorSimple || val != simpleFloat32 {
		return 0, fmt.Errorf("%w: expected float32", ErrMalformed)
	}
	if r.idx+4 > len(r.data) {
		return 0, fmt.Errorf("%w: truncated float32", ErrMalformed)
	}
	f := math.Float32frombits(binary.LittleEndian.Uint32(r.data[r.idx:]))
	r.idx += 4
	return f, nil
}

func (r *reader) readBool() (bool, error) {
	v, err := r.readUint()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (r *reader) readArrayLen() (int, error) {
	major, val, err := r.readType()
	if err != nil {
		return 0, err
	}
	if major != majorArray {
		return 0, fmt.Errorf("%w: expected array, got major %d", ErrMalformed, major)
	}
	return int(val), nil
}

func (r *reader) readMapLen() (int, error) {
	major, val, err := r.readType()
	if err != nil {
		return 0, err
	}
	if major != majorMap {
		return 0, fmt.Errorf("%w: expected map, got major %d", ErrMalformed, major)
	}
	return int(val), nil
}

// skipValue advances past one complete value, recursing into arrays and
// maps. Unknown keys at any nesting level are skipped through here.
func (r *reader) skipValue() error {
	major, val, err := r.readType()
	if err != nil {
		return err
	}
	switch major {
	case majorUint, majorNegInt:
		return nil
	case majorBytes, majorText:
		n := int(val)
		if r.idx+n > len(r.data) {
			return fmt.Errorf("%w: skipped string out of range", ErrMalformed)
		}
		r.idx += n
		return nil
	case majorArray:
		for i := uint64(0); i < val; i++ {
			if err := r.skipValue(); err != nil {
				return err
			}
		}
		return nil
	case majorMap:
		for i := uint64(0); i < val; i++ {
			if err := r.skipValue(); err != nil {
				return err
			}
			if err := r.skipValue(); err != nil {
				return err
			}
		}
		return nil
	case majorSimple:
		if val == simpleFloat32 {
			if r.idx+4 > len(r.data) {
				return fmt.Errorf("%w: skipped float out of range", ErrMalformed)
			}
			r.idx += 4
			return nil
		}
		return fmt.Errorf("%w: unsupported simple value %d", ErrMalformed, val)
	default:
		return fmt.Errorf("%w: unsupported major type %d", ErrMalformed, major)
	}
}
