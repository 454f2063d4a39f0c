package binfmt

// Test Plan for Structured Reader:
// - ReadAt decodes fields in order with no padding
// - ReadAt fails with ErrTruncatedRead when the input is short
// - ReadAt fails with ErrTruncatedRead for negative offsets
// - a record that over-reads its buffer reports an error instead of panicking
// - ReadBytes returns exactly n bytes
// - ReadBytes fails with ErrTruncatedRead for an oversized length

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// packed mirrors a C struct { u8; u32; u16; char[3]; u64 } with #pragma pack(1).
type packed struct {
	A uint8
	B uint32
	C uint16
	D [3]byte
	E uint64
}

func (p *packed) Size() int { return 1 + 4 + 2 + 3 + 8 }

func (p *packed) Decode(c *Cursor) {
	p.A = c.U8()
	p.B = c.U32()
	p.C = c.U16()
	c.Bytes(p.D[:])
	p.E = c.U64()
}

type greedy struct{}

func (greedy) Size() int        { return 2 }
func (greedy) Decode(c *Cursor) { c.U32() }

func TestReadAt_DecodesPackedLayout(t *testing.T) {
	t.Parallel()

	data := []byte{
		0xff, // padding byte before the record
		0x01,
		0x44, 0x33, 0x22, 0x11,
		0xbb, 0xaa,
		'a', 'b', 'c',
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
	}

	var rec packed
	err := ReadAt(bytes.NewReader(data), 1, &rec)
	require.NoError(t, err)

	assert.Equal(t, uint8(0x01), rec.A)
	assert.Equal(t, uint32(0x11223344), rec.B)
	assert.Equal(t, uint16(0xaabb), rec.C)
	assert.Equal(t, [3]byte{'a', 'b', 'c'}, rec.D)
	assert.Equal(t, uint64(0x0102030405060708), rec.E)
}

func TestReadAt_TruncatedInput(t *testing.T) {
	t.Parallel()

	var rec packed
	err := ReadAt(bytes.NewReader(make([]byte, 10)), 0, &rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTruncatedRead)

	err = ReadAt(bytes.NewReader(make([]byte, 64)), 60, &rec)
	assert.ErrorIs(t, err, ErrTruncatedRead)
}

func TestReadAt_NegativeOffset(t *testing.T) {
	t.Parallel()

	var rec packed
	err := ReadAt(bytes.NewReader(make([]byte, 64)), -1, &rec)
	assert.ErrorIs(t, err, ErrTruncatedRead)
}

func TestReadAt_RecordOverrunDoesNotPanic(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		err := ReadAt(bytes.NewReader([]byte{1, 2, 3, 4}), 0, greedy{})
		assert.ErrorIs(t, err, ErrTruncatedRead)
	})
}

func TestReadBytes(t *testing.T) {
	t.Parallel()

	r := bytes.NewReader([]byte("0123456789"))

	b, err := ReadBytes(r, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("23456"), b)

	b, err = ReadBytes(r, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestReadBytes_OversizedLength(t *testing.T) {
	t.Parallel()

	r := bytes.NewReader([]byte("0123456789"))

	_, err := ReadBytes(r, 4, 1<<32)
	assert.ErrorIs(t, err, ErrTruncatedRead)

	_, err = ReadBytes(r, -4, 2)
	assert.ErrorIs(t, err, ErrTruncatedRead)
}
