package bigfile

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Cursor reads little-endian primitives from a byte slice.
//
// Errors are sticky: the first read past the end records an ErrIO and every
// later read returns the zero value, so a record decoder can read all of its
// fields and check Err once.
type Cursor struct {
	buf []byte
	off int
	err error
}

func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

func (c *Cursor) Err() error { return c.err }

func (c *Cursor) Offset() int { return c.off }

// Len is the number of unread bytes.
func (c *Cursor) Len() int { return len(c.buf) - c.off }

// Rest returns the unread bytes without copying.
func (c *Cursor) Rest() []byte { return c.buf[c.off:] }

func (c *Cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || n > c.Len() {
		c.err = newError("cursor", ErrIO, NoKey, errors.Wrapf(io.ErrUnexpectedEOF,
			"read of %d bytes at offset %d, %d available", n, c.off, c.Len()))
		return nil
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b
}

func (c *Cursor) Skip(n int) { c.take(n) }

// Bytes returns the next n bytes without copying.
func (c *Cursor) Bytes(n int) []byte { return c.take(n) }

func (c *Cursor) Uint8() uint8 {
	b := c.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (c *Cursor) Uint16() uint16 {
	b := c.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (c *Cursor) Uint32() uint32 {
	b := c.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (c *Cursor) Int32() int32 { return int32(c.Uint32()) }

func (c *Cursor) Uint64() uint64 {
	b := c.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}
