// Package petest builds small synthetic PE32 and PE32+ images for tests.
//
// Headers are written with encoding/binary from packed Go structs, which is
// an independent encoding of the layouts the pe and pdbid packages decode
// field by field.
package petest

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	MachineI386  uint16 = 0x014c
	MachineIA64  uint16 = 0x0200
	MachineAMD64 uint16 = 0x8664
	MachineARM64 uint16 = 0xaa64

	DebugTypeCOFF     uint32 = 1
	DebugTypeCodeView uint32 = 2
	DebugTypeMisc     uint32 = 4
	DebugTypeRepro    uint32 = 16

	newHeaderOffset = 0x80
	fileAlignment   = 0x200
	textRVA         = 0x1000
	rdataRVA        = 0x2000
	sizeOfDebugDir  = 28
	sizeOfCodeView  = 24
)

// GUID is a CodeView GUID in its on-disk field order.
type GUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

// DebugEntry describes one IMAGE_DEBUG_DIRECTORY entry and its payload.
type DebugEntry struct {
	Type uint32

	// CodeView payload fields, used when Raw is nil and Type is CodeView.
	Signature    [4]byte // zero means "RSDS"
	GUID         GUID
	Age          uint32
	Path         string
	NoTerminator bool

	// Raw replaces the generated payload.
	Raw []byte

	// SizeOfData overrides the declared payload size when non-zero.
	SizeOfData uint32
}

// Image describes a synthetic executable.
type Image struct {
	Machine       uint16 // zero means AMD64
	TimeDateStamp uint32
	SizeOfImage   uint32

	// NumberOfRvaAndSizes defaults to 16.
	NumberOfRvaAndSizes uint32

	Debug []DebugEntry

	// Corruption knobs.
	BadMZ               bool
	BadPE               bool
	NoDebugDirectory    bool
	DebugDirectorySize  uint32 // overrides the table size in data directory 6
	UnmapDebugDirectory bool   // points data directory 6 past every section
	ShortDebugSection   bool   // raw size of .rdata ends inside the debug table
}

type dosHeader struct {
	Signature [2]byte
	Fields    [9]uint16
	Entry     uint32
	Tail      [2]uint16
	Reserved  [32]byte
	NewHeader uint32
}

type fileHeader struct {
	Signature            [4]byte
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

type optionalHeader32 struct {
	Magic               uint16
	LinkerVersion       [2]uint8
	Sizes               [3]uint32
	AddressOfEntryPoint uint32
	BaseOfCode          uint32
	BaseOfData          uint32
	ImageBase           uint32
	SectionAlignment    uint32
	FileAlignment       uint32
	Versions            [6]uint16
	Win32VersionValue   uint32
	SizeOfImage         uint32
	SizeOfHeaders       uint32
	CheckSum            uint32
	Subsystem           uint16
	DllCharacteristics  uint16
	StackHeap           [4]uint32
	LoaderFlags         uint32
	NumberOfRvaAndSizes uint32
}

type optionalHeader64 struct {
	Magic               uint16
	LinkerVersion       [2]uint8
	Sizes               [3]uint32
	AddressOfEntryPoint uint32
	BaseOfCode          uint32
	ImageBase           uint64
	SectionAlignment    uint32
	FileAlignment       uint32
	Versions            [6]uint16
	Win32VersionValue   uint32
	SizeOfImage         uint32
	SizeOfHeaders       uint32
	CheckSum            uint32
	Subsystem           uint16
	DllCharacteristics  uint16
	StackHeap           [4]uint64
	LoaderFlags         uint32
	NumberOfRvaAndSizes uint32
}

type dataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

type sectionHeader struct {
	Name                 [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLinenumbers uint32
	NumberOfRelocations  uint16
	NumberOfLinenumbers  uint16
	Characteristics      uint32
}

type debugDirectory struct {
	Characteristics  uint32
	TimeDateStamp    uint32
	MajorVersion     uint16
	MinorVersion     uint16
	Type             uint32
	SizeOfData       uint32
	AddressOfRawData uint32
	PointerToRawData uint32
}

type codeViewHeader struct {
	Signature [4]byte
	GUID      GUID
	Age       uint32
}

// Bytes renders the image.
func (img Image) Bytes() []byte {
	machine := img.Machine
	if machine == 0 {
		machine = MachineAMD64
	}
	numDirs := img.NumberOfRvaAndSizes
	if numDirs == 0 {
		numDirs = 16
	}
	optSize := 112
	if machine == MachineI386 {
		optSize = 96
	}
	optSize += int(numDirs) * 8

	headerEnd := newHeaderOffset + 24 + optSize + 2*40
	textRaw := align(headerEnd, fileAlignment)
	rdataRaw := textRaw + fileAlignment

	// .rdata holds the debug directory table followed by the payloads.
	tableSize := len(img.Debug) * sizeOfDebugDir
	payloads := make([][]byte, len(img.Debug))
	entries := make([]debugDirectory, len(img.Debug))
	cursor := align(tableSize, 4)
	for i, e := range img.Debug {
		payload := e.payload()
		size := uint32(len(payload))
		if e.SizeOfData != 0 {
			size = e.SizeOfData
		}
		entries[i] = debugDirectory{
			TimeDateStamp:    img.TimeDateStamp,
			Type:             e.Type,
			SizeOfData:       size,
			AddressOfRawData: uint32(rdataRVA + cursor),
			PointerToRawData: uint32(rdataRaw + cursor),
		}
		payloads[i] = payload
		cursor = align(cursor+len(payload), 4)
	}
	rdataSize := align(cursor, fileAlignment)
	if rdataSize == 0 {
		rdataSize = fileAlignment
	}

	var buf bytes.Buffer
	w := func(v any) {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			panic(err)
		}
	}

	// MZ header and stub padding up to the PE header.
	dos := dosHeader{Signature: [2]byte{'M', 'Z'}, NewHeader: newHeaderOffset}
	if img.BadMZ {
		dos.Signature = [2]byte{'Z', 'M'}
	}
	w(dos)
	buf.Write(make([]byte, newHeaderOffset-buf.Len()))

	fh := fileHeader{
		Signature:            [4]byte{'P', 'E', 0, 0},
		Machine:              machine,
		NumberOfSections:     2,
		TimeDateStamp:        img.TimeDateStamp,
		SizeOfOptionalHeader: uint16(optSize),
		Characteristics:      0x0022,
	}
	if img.BadPE {
		fh.Signature = [4]byte{'P', 'E', 'X', 0}
	}
	w(fh)

	sizeOfImage := img.SizeOfImage
	if sizeOfImage == 0 {
		sizeOfImage = uint32(rdataRVA + align(rdataSize, 0x1000))
	}
	if machine == MachineI386 {
		w(optionalHeader32{
			Magic:               0x10b,
			ImageBase:           0x400000,
			SectionAlignment:    0x1000,
			FileAlignment:       fileAlignment,
			SizeOfImage:         sizeOfImage,
			SizeOfHeaders:       uint32(textRaw),
			Subsystem:           3,
			NumberOfRvaAndSizes: numDirs,
		})
	} else {
		w(optionalHeader64{
			Magic:               0x20b,
			ImageBase:           0x140000000,
			SectionAlignment:    0x1000,
			FileAlignment:       fileAlignment,
			SizeOfImage:         sizeOfImage,
			SizeOfHeaders:       uint32(textRaw),
			Subsystem:           3,
			NumberOfRvaAndSizes: numDirs,
		})
	}

	dirs := make([]dataDirectory, numDirs)
	if !img.NoDebugDirectory && numDirs > 6 {
		dirs[6] = dataDirectory{VirtualAddress: rdataRVA, Size: uint32(tableSize)}
		if img.DebugDirectorySize != 0 {
			dirs[6].Size = img.DebugDirectorySize
		}
		if img.UnmapDebugDirectory {
			dirs[6].VirtualAddress = 0x80000
		}
	}
	w(dirs)

	rdataRawSize := uint32(rdataSize)
	if img.ShortDebugSection {
		rdataRawSize = uint32(tableSize) - 1
	}
	w([]sectionHeader{
		{
			Name:             name8(".text"),
			VirtualSize:      0x100,
			VirtualAddress:   textRVA,
			SizeOfRawData:    fileAlignment,
			PointerToRawData: uint32(textRaw),
			Characteristics:  0x60000020,
		},
		{
			Name:             name8(".rdata"),
			VirtualSize:      uint32(rdataSize) + 0x1000,
			VirtualAddress:   rdataRVA,
			SizeOfRawData:    rdataRawSize,
			PointerToRawData: uint32(rdataRaw),
			Characteristics:  0x40000040,
		},
	})

	// .text: a single ret, padded.
	buf.Write(make([]byte, textRaw-buf.Len()))
	section := make([]byte, fileAlignment)
	section[0] = 0xc3
	buf.Write(section)

	// .rdata
	rdata := make([]byte, rdataSize)
	var tbl bytes.Buffer
	if err := binary.Write(&tbl, binary.LittleEndian, entries); err != nil {
		panic(err)
	}
	copy(rdata, tbl.Bytes())
	for i, p := range payloads {
		copy(rdata[entries[i].PointerToRawData-uint32(rdataRaw):], p)
	}
	buf.Write(rdata)

	return buf.Bytes()
}

func (e DebugEntry) payload() []byte {
	if e.Raw != nil {
		return e.Raw
	}
	if e.Type != DebugTypeCodeView {
		return make([]byte, 16)
	}

	sig := e.Signature
	if sig == ([4]byte{}) {
		sig = [4]byte{'R', 'S', 'D', 'S'}
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, codeViewHeader{Signature: sig, GUID: e.GUID, Age: e.Age}); err != nil {
		panic(err)
	}
	buf.WriteString(e.Path)
	if !e.NoTerminator {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// CodeView returns a debug entry carrying an RSDS record.
func CodeView(guid GUID, age uint32, path string) DebugEntry {
	return DebugEntry{Type: DebugTypeCodeView, GUID: guid, Age: age, Path: path}
}

// WriteFile renders img into dir/name and returns the full path.
func WriteFile(t testing.TB, dir, name string, img Image) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, img.Bytes(), 0644))
	return path
}

// SampleGUID is a fixed GUID whose symchk rendering is
// "1A2B3C4D5E6F708192A3B4C5D6E7F809".
var SampleGUID = GUID{
	Data1: 0x1a2b3c4d,
	Data2: 0x5e6f,
	Data3: 0x7081,
	Data4: [8]byte{0x92, 0xa3, 0xb4, 0xc5, 0xd6, 0xe7, 0xf8, 0x09},
}

func name8(s string) [8]byte {
	var n [8]byte
	copy(n[:], s)
	return n
}

func align(v, a int) int {
	return (v + a - 1) / a * a
}
