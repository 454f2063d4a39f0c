package pdbid

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/mvp-joe/pdblister/internal/binfmt"
	"github.com/mvp-joe/pdblister/internal/pe"
)

// DebugTypeCodeView is IMAGE_DEBUG_TYPE_CODEVIEW.
const DebugTypeCodeView uint32 = 2

// On-disk record sizes.
const (
	SizeOfDebugDirectory = 28
	SizeOfCodeViewHeader = 24
)

var rsdsSignature = [4]byte{'R', 'S', 'D', 'S'}

var (
	// ErrMalformedDebugTable indicates a debug table size that is zero or not
	// a multiple of the entry size, or a CodeView entry too small for its
	// header.
	ErrMalformedDebugTable = fmt.Errorf("%w: malformed debug directory table", pe.ErrFormat)

	// ErrNoCodeViewEntry indicates no debug entry has type CodeView.
	ErrNoCodeViewEntry = fmt.Errorf("%w: no CodeView debug entry", pe.ErrFormat)

	// ErrInvalidCodeViewSignature indicates the first CodeView entry is not
	// RSDS (NB10 and older formats are not supported).
	ErrInvalidCodeViewSignature = fmt.Errorf("%w: no RSDS signature present in CodeView entry", pe.ErrFormat)

	// ErrInvalidPathEncoding indicates the PDB path is not UTF-8.
	ErrInvalidPathEncoding = fmt.Errorf("%w: PDB path is not valid UTF-8", pe.ErrFormat)

	// ErrMissingNulTerminator indicates the PDB path has no NUL.
	ErrMissingNulTerminator = fmt.Errorf("%w: PDB path is not NUL terminated", pe.ErrFormat)

	// ErrUnparsablePath indicates the PDB path has no file name component.
	ErrUnparsablePath = fmt.Errorf("%w: could not parse file name from PDB path", pe.ErrFormat)

	// ErrMalformedIdentity indicates a manifest line that does not decode.
	ErrMalformedIdentity = errors.New("malformed identity")
)

// DebugDirectory is one IMAGE_DEBUG_DIRECTORY entry.
type DebugDirectory struct {
	Characteristics  uint32
	TimeDateStamp    uint32
	MajorVersion     uint16
	MinorVersion     uint16
	Type             uint32
	SizeOfData       uint32
	AddressOfRawData uint32
	PointerToRawData uint32
}

func (d *DebugDirectory) Size() int { return SizeOfDebugDirectory }

func (d *DebugDirectory) Decode(c *binfmt.Cursor) {
	d.Characteristics = c.U32()
	d.TimeDateStamp = c.U32()
	d.MajorVersion = c.U16()
	d.MinorVersion = c.U16()
	d.Type = c.U32()
	d.SizeOfData = c.U32()
	d.AddressOfRawData = c.U32()
	d.PointerToRawData = c.U32()
}

// CodeViewHeader is the fixed part of a CV_INFO_PDB70 record.
type CodeViewHeader struct {
	Signature [4]byte
	GUID      GUID
	Age       uint32
}

func (h *CodeViewHeader) Size() int { return SizeOfCodeViewHeader }

func (h *CodeViewHeader) Decode(c *binfmt.Cursor) {
	c.Bytes(h.Signature[:])
	h.GUID.Data1 = c.U32()
	h.GUID.Data2 = c.U16()
	h.GUID.Data3 = c.U16()
	c.Bytes(h.GUID.Data4[:])
	h.Age = c.U32()
}

// Extract reads the debug directory table of tableSize bytes at offset and
// decodes the first CodeView entry into an Identity.
//
// Only the first CodeView entry is considered: if it is not RSDS the image is
// rejected even when a later entry would be.
func Extract(r io.ReaderAt, offset int64, tableSize uint32) (Identity, error) {
	if tableSize == 0 || tableSize%SizeOfDebugDirectory != 0 {
		return Identity{}, fmt.Errorf("%w: size %d", ErrMalformedDebugTable, tableSize)
	}
	count := int64(tableSize / SizeOfDebugDirectory)

	for i := int64(0); i < count; i++ {
		var entry DebugDirectory
		if err := binfmt.ReadAt(r, offset+i*SizeOfDebugDirectory, &entry); err != nil {
			return Identity{}, fmt.Errorf("failed to read debug directory entry %d: %w", i, err)
		}
		if entry.Type != DebugTypeCodeView {
			continue
		}
		return decodeCodeView(r, &entry)
	}

	return Identity{}, ErrNoCodeViewEntry
}

func decodeCodeView(r io.ReaderAt, entry *DebugDirectory) (Identity, error) {
	cvOffset := int64(entry.PointerToRawData)

	var cv CodeViewHeader
	if err := binfmt.ReadAt(r, cvOffset, &cv); err != nil {
		return Identity{}, fmt.Errorf("failed to read CodeView header: %w", err)
	}
	if cv.Signature != rsdsSignature {
		return Identity{}, fmt.Errorf("%w: got %q", ErrInvalidCodeViewSignature, cv.Signature[:])
	}
	if entry.SizeOfData < SizeOfCodeViewHeader {
		return Identity{}, fmt.Errorf("%w: CodeView size %d smaller than header", ErrMalformedDebugTable, entry.SizeOfData)
	}

	path, err := binfmt.ReadBytes(r, cvOffset+SizeOfCodeViewHeader, int64(entry.SizeOfData-SizeOfCodeViewHeader))
	if err != nil {
		return Identity{}, fmt.Errorf("failed to read PDB path: %w", err)
	}

	nul := bytes.IndexByte(path, 0)
	if nul < 0 {
		return Identity{}, ErrMissingNulTerminator
	}
	path = path[:nul]
	if !utf8.Valid(path) {
		return Identity{}, ErrInvalidPathEncoding
	}

	name, ok := baseName(string(path))
	if !ok {
		return Identity{}, fmt.Errorf("%w: %q", ErrUnparsablePath, path)
	}

	return Identity{Name: name, GUID: cv.GUID, Age: cv.Age}, nil
}

// baseName returns the final component of a Windows or POSIX path.
// Trailing separators and "." components are ignored; a path ending in ".."
// or consisting only of a drive has no file name. A bare UNC root such as
// `\\server\share` is not special-cased and yields "share".
func baseName(p string) (string, bool) {
	parts := strings.FieldsFunc(p, func(r rune) bool { return r == '\\' || r == '/' })
	for len(parts) > 0 && parts[len(parts)-1] == "." {
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 0 {
		return "", false
	}

	last := parts[len(parts)-1]
	if last == ".." {
		return "", false
	}
	if len(parts) == 1 && len(last) >= 2 && isDrive(last[:2]) {
		// "C:" or drive-relative "C:foo.pdb"
		last = last[2:]
		if last == "" || last == "." || last == ".." {
			return "", false
		}
	}
	return last, true
}

func isDrive(s string) bool {
	return len(s) == 2 && s[1] == ':' && ((s[0] >= 'a' && s[0] <= 'z') || (s[0] >= 'A' && s[0] <= 'Z'))
}

// ExtractFile locates the debug directory of the image at path and extracts
// its identity.
func ExtractFile(path string) (Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return Identity{}, err
	}
	defer func() { _ = f.Close() }()

	return ExtractImage(f)
}

// ExtractImage runs the locator and the extractor over r.
func ExtractImage(r io.ReaderAt) (Identity, error) {
	loc, err := pe.Locate(r)
	if err != nil {
		return Identity{}, err
	}
	id, err := Extract(r, loc.DebugOffset, loc.Debug.Size)
	if err != nil {
		return Identity{}, fmt.Errorf("debug directory in section %q: %w", loc.Sections[loc.DebugSection].SectionName(), err)
	}
	return id, nil
}
