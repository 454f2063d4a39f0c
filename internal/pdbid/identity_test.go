package pdbid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_RoundTrip(t *testing.T) {
	t.Parallel()

	id := Identity{
		Name: "ntkrnlmp.pdb",
		GUID: GUID{
			Data1: 0x0a0b0c0d,
			Data2: 0x0001,
			Data3: 0xff00,
			Data4: [8]byte{0, 1, 2, 3, 4, 5, 6, 0xff},
		},
		Age: 0x1f,
	}

	line := id.String()
	assert.Equal(t, "ntkrnlmp.pdb,0A0B0C0D0001FF0000010203040506FF1f,1", line)

	got, err := Parse(line)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestParse_Rejects(t *testing.T) {
	t.Parallel()

	for _, line := range []string{
		"",
		"foo.pdb",
		"foo.pdb,1A2B3C4D5E6F708192A3B4C5D6E7F8092a",
		"foo.pdb,1A2B3C4D5E6F708192A3B4C5D6E7F8092a,1,extra",
		",1A2B3C4D5E6F708192A3B4C5D6E7F8092a,1",
		"foo.pdb,1A2B3C4D5E6F708192A3B4C5D6E7F809,1",
		"foo.pdb,ZZ2B3C4D5E6F708192A3B4C5D6E7F8092a,1",
		"foo.pdb,1A2B3C4D5E6F708192A3B4C5D6E7F809xyz,1",
		"foo.pdb,1A2B3C4D5E6F708192A3B4C5D6E7F809123456789,1",
	} {
		_, err := Parse(line)
		assert.ErrorIs(t, err, ErrMalformedIdentity, "line %q", line)
	}
}
