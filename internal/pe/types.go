package pe

import "github.com/mvp-joe/pdblister/internal/binfmt"

// Machine types accepted by the locator.
const (
	MachineI386  uint16 = 0x014c
	MachineIA64  uint16 = 0x0200
	MachineAMD64 uint16 = 0x8664
)

// DebugDirectoryIndex is the data directory slot holding the debug table.
const DebugDirectoryIndex = 6

// On-disk record sizes.
const (
	SizeOfDOSHeader         = 64
	SizeOfFileHeader        = 24 // "PE\0\0" + IMAGE_FILE_HEADER
	SizeOfOptionalHeader32  = 96
	SizeOfOptionalHeader64  = 112
	SizeOfDataDirectory     = 8
	SizeOfSectionHeader     = 40
	maxDataDirectoryEntries = 0x10000
)

var (
	mzSignature = [2]byte{'M', 'Z'}
	peSignature = [4]byte{'P', 'E', 0, 0}
)

// DOSHeader is the legacy MZ stub header.
type DOSHeader struct {
	Signature       [2]byte
	LastPageBytes   uint16
	NumPages        uint16
	NumRelocations  uint16
	HeaderSize      uint16
	MinMemory       uint16
	MaxMemory       uint16
	InitialSS       uint16
	InitialSP       uint16
	Checksum        uint16
	Entry           uint32
	RelocationTable uint16
	Overlay         uint16
	Reserved        [32]byte
	NewHeader       uint32
}

func (h *DOSHeader) Size() int { return SizeOfDOSHeader }

func (h *DOSHeader) Decode(c *binfmt.Cursor) {
	c.Bytes(h.Signature[:])
	h.LastPageBytes = c.U16()
	h.NumPages = c.U16()
	h.NumRelocations = c.U16()
	h.HeaderSize = c.U16()
	h.MinMemory = c.U16()
	h.MaxMemory = c.U16()
	h.InitialSS = c.U16()
	h.InitialSP = c.U16()
	h.Checksum = c.U16()
	h.Entry = c.U32()
	h.RelocationTable = c.U16()
	h.Overlay = c.U16()
	c.Bytes(h.Reserved[:])
	h.NewHeader = c.U32()
}

// FileHeader is the PE signature followed by the COFF file header.
type FileHeader struct {
	Signature            [4]byte
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

func (h *FileHeader) Size() int { return SizeOfFileHeader }

func (h *FileHeader) Decode(c *binfmt.Cursor) {
	c.Bytes(h.Signature[:])
	h.Machine = c.U16()
	h.NumberOfSections = c.U16()
	h.TimeDateStamp = c.U32()
	h.PointerToSymbolTable = c.U32()
	h.NumberOfSymbols = c.U32()
	h.SizeOfOptionalHeader = c.U16()
	h.Characteristics = c.U16()
}

// OptionalHeaderInfo carries the optional header fields the tools use.
type OptionalHeaderInfo struct {
	SizeOfImage         uint32
	NumberOfRvaAndSizes uint32
}

// optionalHeader32 is the fixed part of IMAGE_OPTIONAL_HEADER32, without the
// trailing data directory array.
type optionalHeader32 struct {
	Magic                       uint16
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	BaseOfData                  uint32
	ImageBase                   uint32
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Win32VersionValue           uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint32
	SizeOfStackCommit           uint32
	SizeOfHeapReserve           uint32
	SizeOfHeapCommit            uint32
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
}

func (h *optionalHeader32) Size() int { return SizeOfOptionalHeader32 }

func (h *optionalHeader32) Decode(c *binfmt.Cursor) {
	h.Magic = c.U16()
	h.MajorLinkerVersion = c.U8()
	h.MinorLinkerVersion = c.U8()
	h.SizeOfCode = c.U32()
	h.SizeOfInitializedData = c.U32()
	h.SizeOfUninitializedData = c.U32()
	h.AddressOfEntryPoint = c.U32()
	h.BaseOfCode = c.U32()
	h.BaseOfData = c.U32()
	h.ImageBase = c.U32()
	h.SectionAlignment = c.U32()
	h.FileAlignment = c.U32()
	h.MajorOperatingSystemVersion = c.U16()
	h.MinorOperatingSystemVersion = c.U16()
	h.MajorImageVersion = c.U16()
	h.MinorImageVersion = c.U16()
	h.MajorSubsystemVersion = c.U16()
	h.MinorSubsystemVersion = c.U16()
	h.Win32VersionValue = c.U32()
	h.SizeOfImage = c.U32()
	h.SizeOfHeaders = c.U32()
	h.CheckSum = c.U32()
	h.Subsystem = c.U16()
	h.DllCharacteristics = c.U16()
	h.SizeOfStackReserve = c.U32()
	h.SizeOfStackCommit = c.U32()
	h.SizeOfHeapReserve = c.U32()
	h.SizeOfHeapCommit = c.U32()
	h.LoaderFlags = c.U32()
	h.NumberOfRvaAndSizes = c.U32()
}

// optionalHeader64 is the fixed part of IMAGE_OPTIONAL_HEADER64.
type optionalHeader64 struct {
	Magic                       uint16
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	ImageBase                   uint64
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Win32VersionValue           uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint64
	SizeOfStackCommit           uint64
	SizeOfHeapReserve           uint64
	SizeOfHeapCommit            uint64
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
}

func (h *optionalHeader64) Size() int { return SizeOfOptionalHeader64 }

func (h *optionalHeader64) Decode(c *binfmt.Cursor) {
	h.Magic = c.U16()
	h.MajorLinkerVersion = c.U8()
	h.MinorLinkerVersion = c.U8()
	h.SizeOfCode = c.U32()
	h.SizeOfInitializedData = c.U32()
	h.SizeOfUninitializedData = c.U32()
	h.AddressOfEntryPoint = c.U32()
	h.BaseOfCode = c.U32()
	h.ImageBase = c.U64()
	h.SectionAlignment = c.U32()
	h.FileAlignment = c.U32()
	h.MajorOperatingSystemVersion = c.U16()
	h.MinorOperatingSystemVersion = c.U16()
	h.MajorImageVersion = c.U16()
	h.MinorImageVersion = c.U16()
	h.MajorSubsystemVersion = c.U16()
	h.MinorSubsystemVersion = c.U16()
	h.Win32VersionValue = c.U32()
	h.SizeOfImage = c.U32()
	h.SizeOfHeaders = c.U32()
	h.CheckSum = c.U32()
	h.Subsystem = c.U16()
	h.DllCharacteristics = c.U16()
	h.SizeOfStackReserve = c.U64()
	h.SizeOfStackCommit = c.U64()
	h.SizeOfHeapReserve = c.U64()
	h.SizeOfHeapCommit = c.U64()
	h.LoaderFlags = c.U32()
	h.NumberOfRvaAndSizes = c.U32()
}

// DataDirectory is one (virtual address, size) pair.
type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

// SectionHeader describes one entry of the section table.
type SectionHeader struct {
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

func (s *SectionHeader) Size() int { return SizeOfSectionHeader }

func (s *SectionHeader) Decode(c *binfmt.Cursor) {
	c.Bytes(s.Name[:])
	s.VirtualSize = c.U32()
	s.VirtualAddress = c.U32()
	s.SizeOfRawData = c.U32()
	s.PointerToRawData = c.U32()
	s.PointerToRelocations = c.U32()
	s.PointerToLinenumbers = c.U32()
	s.NumberOfRelocations = c.U16()
	s.NumberOfLinenumbers = c.U16()
	s.Characteristics = c.U32()
}

// SectionName returns the section name with NUL padding removed.
func (s *SectionHeader) SectionName() string {
	n := 0
	for n < len(s.Name) && s.Name[n] != 0 {
		n++
	}
	return string(s.Name[:n])
}

// contains reports whether the on-disk extent of the section covers the
// whole virtual range [va, va+size). Raw size is used rather than virtual
// size because the image is never mapped.
func (s *SectionHeader) contains(va, size uint32) bool {
	start := uint64(s.VirtualAddress)
	end := start + uint64(s.SizeOfRawData)
	first := uint64(va)
	last := first + uint64(size) - 1
	return first >= start && first < end && last >= start && last < end
}
