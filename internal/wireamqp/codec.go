package wireamqp

import (
	"encoding/binary"

	"go.bryk.io/pkg/errors"
)

// Type tags for the simplified AMQP value encoding used on the wire.
// Every tag is followed by a type-specific payload; compound types
// (list, map) recurse into this same encoding for their elements.
const (
	tagNull byte = iota
	tagBool
	tagUint
	tagBinary
	tagString
	tagList
	tagMap
)

// ErrMalformed is the root cause for any decode failure: truncated input,
// an unknown type tag, or a length prefix that does not fit the
// remaining buffer.
var ErrMalformed = errors.New("malformed wire value")

// encoder accumulates the byte encoding of a value tree.
type encoder struct {
	buf []byte
}

func (e *encoder) writeByte(b byte) { e.buf = append(e.buf, b) }

func (e *encoder) writeUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *encoder) writeUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *encoder) writeBytes(b []byte) {
	e.writeUint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// encodeValue appends the tagged encoding of v to the encoder. Supported
// Go types: nil, bool, uint64 (and int, which is promoted), []byte,
// string, []interface{}, map[string]interface{}.
func encodeValue(e *encoder, v interface{}) error {
	switch val := v.(type) {
	case nil:
		e.writeByte(tagNull)
	case bool:
		e.writeByte(tagBool)
		if val {
			e.writeByte(1)
		} else {
			e.writeByte(0)
		}
	case int:
		e.writeByte(tagUint)
		e.writeUint64(uint64(val))
	case uint32:
		e.writeByte(tagUint)
		e.writeUint64(uint64(val))
	case uint64:
		e.writeByte(tagUint)
		e.writeUint64(val)
	case []byte:
		e.writeByte(tagBinary)
		e.writeBytes(val)
	case string:
		e.writeByte(tagString)
		e.writeBytes([]byte(val))
	case []interface{}:
		e.writeByte(tagList)
		e.writeUint32(uint32(len(val)))
		for _, item := range val {
			if err := encodeValue(e, item); err != nil {
				return err
			}
		}
	case map[string]interface{}:
		e.writeByte(tagMap)
		e.writeUint32(uint32(len(val)))
		for k, item := range val {
			e.writeBytes([]byte(k))
			if err := encodeValue(e, item); err != nil {
				return err
			}
		}
	default:
		return errors.Errorf("unsupported value type %T", v)
	}
	return nil
}

// decoder walks a byte slice produced by encodeValue.
type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) readByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, errors.Wrap(ErrMalformed, "truncated tag")
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) readUint32() (uint32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, errors.Wrap(ErrMalformed, "truncated uint32")
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos : d.pos+4])
	d.pos += 4
	return v, nil
}

func (d *decoder) readUint64() (uint64, error) {
	if d.pos+8 > len(d.buf) {
		return 0, errors.Wrap(ErrMalformed, "truncated uint64")
	}
	v := binary.BigEndian.Uint64(d.buf[d.pos : d.pos+8])
	d.pos += 8
	return v, nil
}

func (d *decoder) readBytes() ([]byte, error) {
	n, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	if d.pos+int(n) > len(d.buf) {
		return nil, errors.Wrap(ErrMalformed, "truncated bytes")
	}
	v := d.buf[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return v, nil
}

func decodeValue(d *decoder) (interface{}, error) {
	tag, err := d.readByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagNull:
		return nil, nil
	case tagBool:
		b, err := d.readByte()
		if err != nil {
			return nil, err
		}
		return b != 0, nil
	case tagUint:
		v, err := d.readUint64()
		if err != nil {
			return nil, err
		}
		return v, nil
	case tagBinary:
		b, err := d.readBytes()
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	case tagString:
		b, err := d.readBytes()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case tagList:
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, n)
		for i := range out {
			item, err := decodeValue(d)
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case tagMap:
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		out := make(map[string]interface{}, n)
		for i := uint32(0); i < n; i++ {
			key, err := d.readBytes()
			if err != nil {
				return nil, err
			}
			item, err := decodeValue(d)
			if err != nil {
				return nil, err
			}
			out[string(key)] = item
		}
		return out, nil
	default:
		return nil, errors.Wrap(ErrMalformed, "unknown type tag")
	}
}

// Marshal encodes v (built from the Go types documented on encodeValue)
// into its wire form.
func Marshal(v interface{}) ([]byte, error) {
	e := &encoder{}
	if err := encodeValue(e, v); err != nil {
		return nil, err
	}
	return e.buf, nil
}

// Unmarshal decodes a wire-form value produced by Marshal.
func Unmarshal(buf []byte) (interface{}, error) {
	d := &decoder{buf: buf}
	v, err := decodeValue(d)
	if err != nil {
		return nil, err
	}
	if d.pos != len(buf) {
		return nil, errors.Wrap(ErrMalformed, "trailing bytes")
	}
	return v, nil
}

// asMap is a small helper used throughout performative.go: every
// performative and message section is encoded as a tagMap, so decoding
// one out of an io.Reader-backed frame body is a common pattern.
func asMap(v interface{}) (map[string]interface{}, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, errors.Wrap(ErrMalformed, "expected map")
	}
	return m, nil
}
