package axml

import (
	"encoding/binary"
	"fmt"
)

// cursor reads little-endian values from an in-memory buffer. Every read is
// bounds-checked and advances pos.
type cursor struct {
	buf []byte
	pos int
}

func newCursor(buf []byte) *cursor {
	return &cursor{buf: buf}
}

func (c *cursor) offset() int {
	return c.pos
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.pos
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if n < 0 || n > c.remaining() {
		return nil, fmt.Errorf("%w: need %d bytes at 0x%08x, have %d", ErrTruncatedInput, n, c.pos, c.remaining())
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) u8() (uint8, error) {
	b, err := c.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) u16() (uint16, error) {
	b, err := c.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *cursor) u32() (uint32, error) {
	b, err := c.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) i32() (int32, error) {
	v, err := c.u32()
	return int32(v), err
}

func (c *cursor) skip(n int) error {
	_, err := c.bytes(n)
	return err
}

// skipTo moves to an absolute offset. Moving backwards means a chunk was read
// past its declared end.
func (c *cursor) skipTo(abs int) error {
	if abs < c.pos {
		return fmt.Errorf("%w: read past chunk end (0x%08x > 0x%08x)", ErrMalformedHeader, c.pos, abs)
	}
	return c.skip(abs - c.pos)
}

func (c *cursor) chunkHeader() (h chunkHeader, err error) {
	h.Start = c.pos
	if h.Type, err = c.u16(); err != nil {
		return
	}
	if h.HeaderSize, err = c.u16(); err != nil {
		return
	}
	h.Size, err = c.u32()
	return
}
