// Package pegen assembles the byte-level structures common to any PE32+
// image: the DOS header, COFF header, optional header with its sixteen
// data directories, and section headers. The linker's emit phase builds
// the section bodies and calls into this package only for the envelope
// around them, the same split the original PE generator drew between
// "fix up this placeholder RVA later" bookkeeping and section content.
package pegen

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/sys/windows"
)

const (
	// DOSHeaderSize is the reserved MS-DOS header region. e_lfanew (at
	// offset 0x3C) points immediately past it, so the PE signature lands
	// at file offset 0x80 with no stub program in between.
	DOSHeaderSize      = 0x80
	PESignatureSize    = 4
	COFFHeaderSize     = 20
	OptionalHeaderSize = 240 // PE32+
	SectionHeaderSize  = 40
	NumDataDirectories = 16
)

// Section is one section header entry plus the raw bytes that follow it
// in the file.
type Section struct {
	Name            string
	VirtualSize     uint32
	VirtualAddress  uint32
	RawSize         uint32
	RawData         []byte
	Characteristics uint32
}

// Builder accumulates a PE image's envelope and section bodies in order.
type Builder struct {
	ImageBase        uint64
	SectionAlignment uint32
	FileAlignment    uint32
	Subsystem        uint16
	DLLCharacteristics uint16
	EntryPointRVA    uint32
	BaseOfCodeRVA    uint32
	IsDLL            bool

	Sections []Section

	// DataDirectory[i] is (RVA, Size) for directory i; both zero means
	// "not present". Only import (index 1) and export (index 0) are ever
	// populated by this linker.
	DataDirectory [NumDataDirectories][2]uint32
}

// DefaultDLLCharacteristics matches the bit combination the spec names:
// high-entropy ASLR, dynamic base, NX-compatible, terminal-server aware.
func DefaultDLLCharacteristics() uint16 {
	return uint16(windows.IMAGE_DLLCHARACTERISTICS_HIGH_ENTROPY_VA |
		windows.IMAGE_DLLCHARACTERISTICS_DYNAMIC_BASE |
		windows.IMAGE_DLLCHARACTERISTICS_NX_COMPAT |
		windows.IMAGE_DLLCHARACTERISTICS_TERMINAL_SERVER_AWARE)
}

// HeadersSize returns the file-aligned size of everything before the
// first section body: DOS header, PE signature, COFF header, optional
// header, and one section header per section.
func (b *Builder) HeadersSize() uint32 {
	raw := uint32(DOSHeaderSize + PESignatureSize + COFFHeaderSize +
		OptionalHeaderSize + len(b.Sections)*SectionHeaderSize)
	return alignUp(raw, b.FileAlignment)
}

// ImageSize returns the section-aligned size of the whole mapped image,
// derived from the highest section's RVA and virtual size.
func (b *Builder) ImageSize() uint32 {
	var top uint32
	for _, s := range b.Sections {
		if end := s.VirtualAddress + s.VirtualSize; end > top {
			top = end
		}
	}
	return alignUp(top, b.SectionAlignment)
}

// Build writes the full image: headers, data directories, section
// headers, then every section's raw bytes padded to FileAlignment.
func (b *Builder) Build() []byte {
	headersSize := b.HeadersSize()

	var out bytes.Buffer
	writeDOSHeader(&out)
	out.Write(u32(0x00004550)) // "PE\0\0"

	characteristics := uint16(windows.IMAGE_FILE_EXECUTABLE_IMAGE | windows.IMAGE_FILE_LARGE_ADDRESS_AWARE)
	if b.IsDLL {
		characteristics |= windows.IMAGE_FILE_DLL
	}
	out.Write(u16(windows.IMAGE_FILE_MACHINE_AMD64))
	out.Write(u16(uint16(len(b.Sections))))
	out.Write(u32(0)) // TimeDateStamp
	out.Write(u32(0)) // PointerToSymbolTable
	out.Write(u32(0)) // NumberOfSymbols
	out.Write(u16(OptionalHeaderSize))
	out.Write(u16(characteristics))

	var codeSize, initDataSize uint32
	for _, s := range b.Sections {
		if s.Name == ".text" {
			codeSize = s.RawSize
		} else {
			initDataSize += s.RawSize
		}
	}

	out.Write(u16(windows.IMAGE_NT_OPTIONAL_HDR64_MAGIC))
	out.WriteByte(1) // MajorLinkerVersion
	out.WriteByte(0) // MinorLinkerVersion
	out.Write(u32(codeSize))
	out.Write(u32(initDataSize))
	out.Write(u32(0)) // SizeOfUninitializedData
	out.Write(u32(b.EntryPointRVA))
	out.Write(u32(b.BaseOfCodeRVA))
	out.Write(u64(b.ImageBase))
	out.Write(u32(b.SectionAlignment))
	out.Write(u32(b.FileAlignment))
	out.Write(u16(6)) // MajorOperatingSystemVersion
	out.Write(u16(0))
	out.Write(u16(0)) // MajorImageVersion
	out.Write(u16(0))
	out.Write(u16(6)) // MajorSubsystemVersion
	out.Write(u16(0))
	out.Write(u32(0)) // Win32VersionValue
	out.Write(u32(b.ImageSize()))
	out.Write(u32(headersSize))
	out.Write(u32(0)) // CheckSum
	out.Write(u16(b.Subsystem))
	out.Write(u16(b.DLLCharacteristics))
	out.Write(u64(0x100000)) // SizeOfStackReserve
	out.Write(u64(0x1000))   // SizeOfStackCommit
	out.Write(u64(0x100000)) // SizeOfHeapReserve
	out.Write(u64(0x1000))   // SizeOfHeapCommit
	out.Write(u32(0))        // LoaderFlags
	out.Write(u32(NumDataDirectories))

	for _, d := range b.DataDirectory {
		out.Write(u32(d[0]))
		out.Write(u32(d[1]))
	}

	fileOff := headersSize
	for _, s := range b.Sections {
		writeSectionHeader(&out, s, fileOff)
		fileOff += s.RawSize
	}

	padTo(&out, b.FileAlignment)
	for _, s := range b.Sections {
		out.Write(s.RawData)
		padTo(&out, b.FileAlignment)
	}

	return out.Bytes()
}

func writeDOSHeader(out *bytes.Buffer) {
	hdr := make([]byte, DOSHeaderSize)
	binary.LittleEndian.PutUint16(hdr[0:], 0x5A4D) // "MZ"
	binary.LittleEndian.PutUint32(hdr[0x3C:], DOSHeaderSize)
	out.Write(hdr)
}

func writeSectionHeader(out *bytes.Buffer, s Section, fileOff uint32) {
	name := make([]byte, windows.IMAGE_SIZEOF_SHORT_NAME)
	copy(name, s.Name)
	out.Write(name)
	out.Write(u32(s.VirtualSize))
	out.Write(u32(s.VirtualAddress))
	out.Write(u32(s.RawSize))
	out.Write(u32(fileOff))
	out.Write(u32(0)) // PointerToRelocations
	out.Write(u32(0)) // PointerToLinenumbers
	out.Write(u16(0))
	out.Write(u16(0))
	out.Write(u32(s.Characteristics))
}

func padTo(out *bytes.Buffer, align uint32) {
	n := uint32(out.Len())
	if rem := n % align; rem != 0 {
		out.Write(make([]byte, align-rem))
	}
}

func alignUp(value, alignment uint32) uint32 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

func u16(v uint16) []byte { b := make([]byte, 2); binary.LittleEndian.PutUint16(b, v); return b }
func u32(v uint32) []byte { b := make([]byte, 4); binary.LittleEndian.PutUint32(b, v); return b }
func u64(v uint64) []byte { b := make([]byte, 8); binary.LittleEndian.PutUint64(b, v); return b }
