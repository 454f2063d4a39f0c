// Package binfmt decodes fixed-layout little-endian records from binary files.
//
// Records describe their own on-disk layout by decoding fields one at a time
// from a Cursor, in file order, with no alignment padding. Nothing here
// reinterprets memory: a record only ever sees the bytes it asked for.
package binfmt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrTruncatedRead indicates fewer bytes were available than a record needs.
var ErrTruncatedRead = errors.New("truncated read")

// Record is a fixed-size on-disk structure.
type Record interface {
	// Size returns the exact number of bytes the record occupies on disk.
	Size() int

	// Decode fills the record from c. Decode must consume exactly Size bytes.
	Decode(c *Cursor)
}

// ReadAt reads rec.Size() bytes at off and decodes them into rec.
func ReadAt(r io.ReaderAt, off int64, rec Record) error {
	buf := make([]byte, rec.Size())
	if err := readFull(r, off, buf); err != nil {
		return err
	}

	c := NewCursor(buf)
	rec.Decode(c)
	if err := c.Err(); err != nil {
		return err
	}
	return nil
}

// ReadBytes reads exactly n bytes at off.
//
// The buffer grows as data arrives, so a bogus length taken from a header
// fails with ErrTruncatedRead at end of file instead of allocating n bytes up
// front.
func ReadBytes(r io.ReaderAt, off int64, n int64) ([]byte, error) {
	if off < 0 || n < 0 {
		return nil, fmt.Errorf("%w: invalid range offset=%d length=%d", ErrTruncatedRead, off, n)
	}

	var buf bytes.Buffer
	copied, err := io.CopyN(&buf, io.NewSectionReader(r, off, n), n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: want %d bytes at offset %#x, got %d", ErrTruncatedRead, n, off, copied)
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

func readFull(r io.ReaderAt, off int64, buf []byte) error {
	if off < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrTruncatedRead, off)
	}

	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: want %d bytes at offset %#x, got %d", ErrTruncatedRead, len(buf), off, n)
	}
	return err
}

// Cursor walks a byte slice decoding little-endian fields.
//
// Reading past the end of the buffer does not panic: the cursor records an
// error, returns zero values from then on, and ReadAt reports the error.
type Cursor struct {
	buf []byte
	off int
	err error
}

// NewCursor returns a cursor positioned at the start of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Err returns the first overrun error, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Offset returns the number of bytes consumed so far.
func (c *Cursor) Offset() int {
	return c.off
}

func (c *Cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n > len(c.buf)-c.off {
		c.err = fmt.Errorf("%w: record wants %d bytes at %d, buffer holds %d", ErrTruncatedRead, n, c.off, len(c.buf))
		return nil
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b
}

// U8 decodes one byte.
func (c *Cursor) U8() uint8 {
	b := c.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// U16 decodes a little-endian uint16.
func (c *Cursor) U16() uint16 {
	b := c.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// U32 decodes a little-endian uint32.
func (c *Cursor) U32() uint32 {
	b := c.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// U64 decodes a little-endian uint64.
func (c *Cursor) U64() uint64 {
	b := c.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// Bytes copies len(dst) raw bytes into dst.
func (c *Cursor) Bytes(dst []byte) {
	b := c.take(len(dst))
	if b == nil {
		return
	}
	copy(dst, b)
}

// Skip advances over n bytes the caller does not care about.
func (c *Cursor) Skip(n int) {
	c.take(n)
}
