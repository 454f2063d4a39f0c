// Package pe locates the debug directory of PE32 and PE32+ images.
//
// The locator reads the file as stored on disk. It validates the MZ and PE
// signatures, picks the optional header layout from the machine type, reads
// the data directory table and the section table, and maps the debug
// directory's virtual address to a file offset through the first section
// whose raw data covers it.
package pe

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mvp-joe/pdblister/internal/binfmt"
)

var (
	// ErrFormat is the parent of every structural error. Files failing with
	// ErrFormat are not PE images carrying a PDB reference and are expected
	// during a directory scan.
	ErrFormat = errors.New("format error")

	// ErrNotAnExecutable indicates a missing MZ signature.
	ErrNotAnExecutable = fmt.Errorf("%w: no MZ header present", ErrFormat)

	// ErrNotAPeFile indicates a missing PE signature at the new header offset.
	ErrNotAPeFile = fmt.Errorf("%w: no PE header present", ErrFormat)

	// ErrUnsupportedMachine indicates a machine other than x86, IA64 or x64.
	ErrUnsupportedMachine = fmt.Errorf("%w: unsupported PE machine type", ErrFormat)

	// ErrMissingDebugDirectory indicates fewer than 7 data directories or an
	// empty debug entry.
	ErrMissingDebugDirectory = fmt.Errorf("%w: debug directory not present or zero sized", ErrFormat)

	// ErrDebugDirectoryUnmapped indicates no section holds the debug directory.
	ErrDebugDirectoryUnmapped = fmt.Errorf("%w: debug directory not contained in any section", ErrFormat)
)

// Headers holds everything read before the data directory table.
type Headers struct {
	DOS      DOSHeader
	File     FileHeader
	Optional OptionalHeaderInfo

	// DataDirectoryOffset is the file offset of the first data directory,
	// immediately after the fixed part of the optional header.
	DataDirectoryOffset int64
}

// SectionTableOffset returns the file offset of the section table.
func (h *Headers) SectionTableOffset() int64 {
	return int64(h.DOS.NewHeader) + SizeOfFileHeader + int64(h.File.SizeOfOptionalHeader)
}

// Location is the result of walking an image down to its debug directory.
type Location struct {
	Headers
	DataDirectories []DataDirectory
	Sections        []SectionHeader

	// Debug is data directory entry 6.
	Debug DataDirectory

	// DebugOffset is the file offset of the debug directory table.
	DebugOffset int64

	// DebugSection is the index into Sections that maps the debug table.
	DebugSection int
}

// ReadHeaders validates the MZ and PE signatures and decodes the optional
// header variant selected by the machine type.
func ReadHeaders(r io.ReaderAt) (*Headers, error) {
	h := &Headers{}

	if err := binfmt.ReadAt(r, 0, &h.DOS); err != nil {
		return nil, fmt.Errorf("failed to read MZ header: %w", err)
	}
	if h.DOS.Signature != mzSignature {
		return nil, ErrNotAnExecutable
	}

	peOffset := int64(h.DOS.NewHeader)
	if err := binfmt.ReadAt(r, peOffset, &h.File); err != nil {
		return nil, fmt.Errorf("failed to read PE header at %#x: %w", peOffset, err)
	}
	if h.File.Signature != peSignature {
		return nil, ErrNotAPeFile
	}

	optOffset := peOffset + SizeOfFileHeader
	switch h.File.Machine {
	case MachineI386:
		var opt optionalHeader32
		if err := binfmt.ReadAt(r, optOffset, &opt); err != nil {
			return nil, fmt.Errorf("failed to read PE32 optional header: %w", err)
		}
		h.Optional = OptionalHeaderInfo{
			SizeOfImage:         opt.SizeOfImage,
			NumberOfRvaAndSizes: opt.NumberOfRvaAndSizes,
		}
		h.DataDirectoryOffset = optOffset + SizeOfOptionalHeader32
	case MachineIA64, MachineAMD64:
		var opt optionalHeader64
		if err := binfmt.ReadAt(r, optOffset, &opt); err != nil {
			return nil, fmt.Errorf("failed to read PE32+ optional header: %w", err)
		}
		h.Optional = OptionalHeaderInfo{
			SizeOfImage:         opt.SizeOfImage,
			NumberOfRvaAndSizes: opt.NumberOfRvaAndSizes,
		}
		h.DataDirectoryOffset = optOffset + SizeOfOptionalHeader64
	default:
		return nil, fmt.Errorf("%w: %#04x", ErrUnsupportedMachine, h.File.Machine)
	}

	return h, nil
}

// Locate walks r from the MZ header to the debug directory and returns its
// file offset together with the tables read on the way.
func Locate(r io.ReaderAt) (*Location, error) {
	h, err := ReadHeaders(r)
	if err != nil {
		return nil, err
	}
	loc := &Location{Headers: *h}

	loc.DataDirectories, err = readDataDirectories(r, h.DataDirectoryOffset, h.Optional.NumberOfRvaAndSizes)
	if err != nil {
		return nil, err
	}
	if len(loc.DataDirectories) <= DebugDirectoryIndex {
		return nil, fmt.Errorf("%w: only %d data directories", ErrMissingDebugDirectory, len(loc.DataDirectories))
	}
	loc.Debug = loc.DataDirectories[DebugDirectoryIndex]
	if loc.Debug.VirtualAddress == 0 || loc.Debug.Size == 0 {
		return nil, ErrMissingDebugDirectory
	}

	loc.Sections, err = readSections(r, h.SectionTableOffset(), h.File.NumberOfSections)
	if err != nil {
		return nil, err
	}

	for i := range loc.Sections {
		s := &loc.Sections[i]
		if !s.contains(loc.Debug.VirtualAddress, loc.Debug.Size) {
			continue
		}
		loc.DebugSection = i
		loc.DebugOffset = int64(loc.Debug.VirtualAddress) - int64(s.VirtualAddress) + int64(s.PointerToRawData)
		return loc, nil
	}

	return nil, fmt.Errorf("%w: rva %#x size %#x", ErrDebugDirectoryUnmapped, loc.Debug.VirtualAddress, loc.Debug.Size)
}

// IsFormatError reports whether err means the file is not a usable PE image:
// a structural ErrFormat or a read past the end of the file.
func IsFormatError(err error) bool {
	return errors.Is(err, ErrFormat) || errors.Is(err, binfmt.ErrTruncatedRead)
}

// LocateFile opens path and runs Locate on it.
func LocateFile(path string) (*Location, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return Locate(f)
}

// ReadHeadersFile opens path and runs ReadHeaders on it.
func ReadHeadersFile(path string) (*Headers, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return ReadHeaders(f)
}

func readDataDirectories(r io.ReaderAt, off int64, count uint32) ([]DataDirectory, error) {
	// Only the first seven entries matter; the cap keeps a corrupt count from
	// turning into a huge read.
	n := int64(count)
	if n > maxDataDirectoryEntries {
		n = maxDataDirectoryEntries
	}

	raw, err := binfmt.ReadBytes(r, off, n*SizeOfDataDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directories: %w", err)
	}

	c := binfmt.NewCursor(raw)
	dirs := make([]DataDirectory, n)
	for i := range dirs {
		dirs[i].VirtualAddress = c.U32()
		dirs[i].Size = c.U32()
	}
	return dirs, c.Err()
}

func readSections(r io.ReaderAt, off int64, count uint16) ([]SectionHeader, error) {
	sections := make([]SectionHeader, count)
	for i := range sections {
		pos := off + int64(i)*SizeOfSectionHeader
		if err := binfmt.ReadAt(r, pos, &sections[i]); err != nil {
			return nil, fmt.Errorf("failed to read section header %d: %w", i, err)
		}
	}
	return sections, nil
}
