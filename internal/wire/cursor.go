package wire

import (
	"bytes"
	"fmt"
)

// Cursor is a Design-Note-driven replacement for manual packet byte-pointer
// arithmetic: a reader over an already-assembled packet payload that returns
// a typed error on a short read rather than panicking or silently producing
// a zero value.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor wraps buf for sequential decoding.
func NewCursor(buf []byte) *Cursor { return &Cursor{buf: buf} }

// ErrShortRead is returned whenever a Cursor read would run past the end of
// the underlying buffer.
type ErrShortRead struct {
	Want, Have int
}

func (e *ErrShortRead) Error() string {
	return fmt.Sprintf("wire: short read: want %d bytes, have %d", e.Want, e.Have)
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

// Pos returns the current read offset.
func (c *Cursor) Pos() int { return c.pos }

// ReadFixed reads exactly n bytes.
func (c *Cursor) ReadFixed(n int) ([]byte, error) {
	if c.Remaining() < n {
		return nil, &ErrShortRead{Want: n, Have: c.Remaining()}
	}
	out := c.buf[c.pos : c.pos+n]
	c.pos += n
	return out, nil
}

// Skip advances the cursor by n bytes without returning them.
func (c *Cursor) Skip(n int) error {
	_, err := c.ReadFixed(n)
	return err
}

// ReadU8 reads one byte.
func (c *Cursor) ReadU8() (byte, error) {
	b, err := c.ReadFixed(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16 reads a little-endian uint16.
func (c *Cursor) ReadU16() (uint16, error) {
	b, err := c.ReadFixed(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

// ReadU24 reads a little-endian 3-byte unsigned integer.
func (c *Cursor) ReadU24() (uint32, error) {
	b, err := c.ReadFixed(3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16, nil
}

// ReadU32 reads a little-endian uint32.
func (c *Cursor) ReadU32() (uint32, error) {
	b, err := c.ReadFixed(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// ReadU64 reads a little-endian uint64.
func (c *Cursor) ReadU64() (uint64, error) {
	b, err := c.ReadFixed(8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v, nil
}

// ReadNulString reads bytes up to (and consuming) the next NUL terminator.
func (c *Cursor) ReadNulString() (string, error) {
	rest := c.buf[c.pos:]
	idx := bytes.IndexByte(rest, 0)
	if idx < 0 {
		return "", fmt.Errorf("wire: unterminated NUL string")
	}
	s := string(rest[:idx])
	c.pos += idx + 1
	return s, nil
}

// ReadLEI reads a length-encoded integer. ok is false when the lead byte was
// the null marker (0xFB); the caller decides how to interpret that per
// context (§4.1).
func (c *Cursor) ReadLEI() (value uint64, ok bool, err error) {
	lead, err := c.ReadU8()
	if err != nil {
		return 0, false, err
	}
	switch {
	case lead < leiNull:
		return uint64(lead), true, nil
	case lead == leiNull:
		return 0, false, nil
	case lead == lei2Byte:
		v, err := c.ReadU16()
		return uint64(v), true, err
	case lead == lei3Byte:
		v, err := c.ReadU24()
		return uint64(v), true, err
	case lead == lei8Byte:
		v, err := c.ReadU64()
		return v, true, err
	default: // 0xFF
		return 0, false, fmt.Errorf("wire: 0xFF is not a valid LEI lead byte")
	}
}

// ReadLenencString reads a length-encoded string: an LEI length followed by
// that many bytes. A null LEI lead yields (nil, false, nil) — a value
// distinct from an empty string.
func (c *Cursor) ReadLenencString() (value []byte, ok bool, err error) {
	n, ok, err := c.ReadLEI()
	if err != nil || !ok {
		return nil, ok, err
	}
	b, err := c.ReadFixed(int(n))
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}
