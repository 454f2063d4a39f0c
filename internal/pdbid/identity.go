// Package pdbid extracts PDB identities from PE images and renders them in
// the manifest format used by symchk.
package pdbid

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// GUID is a CodeView GUID in its on-disk field order.
type GUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

// String renders the GUID the way symbol servers key on it: 32 uppercase hex
// digits, no separators, fields in 8-4-4-2-2-2-2-2-2-2-2 order.
func (g GUID) String() string {
	return fmt.Sprintf("%08X%04X%04X%02X%02X%02X%02X%02X%02X%02X%02X",
		g.Data1, g.Data2, g.Data3,
		g.Data4[0], g.Data4[1], g.Data4[2], g.Data4[3],
		g.Data4[4], g.Data4[5], g.Data4[6], g.Data4[7])
}

// Identity names one build of a PDB.
type Identity struct {
	Name string
	GUID GUID
	Age  uint32
}

// Signature returns the GUID immediately followed by the age in lowercase
// hex without padding. It is the middle manifest field and the directory
// name symbol servers store the PDB under.
func (id Identity) Signature() string {
	return id.GUID.String() + strconv.FormatUint(uint64(id.Age), 16)
}

// String renders the manifest line "<name>,<GUID><age>,1".
func (id Identity) String() string {
	return id.Name + "," + id.Signature() + ",1"
}

// Parse decodes a manifest line back into an Identity.
func Parse(line string) (Identity, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 3 {
		return Identity{}, fmt.Errorf("%w: want 3 comma separated fields, got %d in %q", ErrMalformedIdentity, len(fields), line)
	}

	name, sig := fields[0], fields[1]
	if name == "" {
		return Identity{}, fmt.Errorf("%w: empty name in %q", ErrMalformedIdentity, line)
	}
	// 32 GUID digits plus at least one age digit.
	if len(sig) < 33 || len(sig) > 40 {
		return Identity{}, fmt.Errorf("%w: bad signature length %d in %q", ErrMalformedIdentity, len(sig), line)
	}

	raw, err := hex.DecodeString(sig[:32])
	if err != nil {
		return Identity{}, fmt.Errorf("%w: bad GUID in %q: %v", ErrMalformedIdentity, line, err)
	}
	age, err := strconv.ParseUint(sig[32:], 16, 32)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: bad age in %q: %v", ErrMalformedIdentity, line, err)
	}

	// The rendered GUID is big-endian per field.
	id := Identity{Name: name, Age: uint32(age)}
	id.GUID.Data1 = uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3])
	id.GUID.Data2 = uint16(raw[4])<<8 | uint16(raw[5])
	id.GUID.Data3 = uint16(raw[6])<<8 | uint16(raw[7])
	copy(id.GUID.Data4[:], raw[8:16])
	return id, nil
}
