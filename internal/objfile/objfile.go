// Package objfile implements the relocatable object-file container shared
// by the code generator and the linker: named sections, a symbol table with
// visibility bits, typed relocations, and a per-object import list, all
// serialized to a single versioned binary blob with a deduplicated string
// table.
package objfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Magic identifies the container format. Only one magic number is in use;
// an earlier draft of the format carried a second, unused value which is
// not reproduced here.
const Magic uint32 = 0x4F584C46

// Version is the only container version this package understands.
const Version uint16 = 1

// SymbolKind classifies a symbol's storage.
type SymbolKind uint8

const (
	Undefined SymbolKind = iota
	Function
	Data
	Const
	Local
)

func (k SymbolKind) String() string {
	switch k {
	case Undefined:
		return "undefined"
	case Function:
		return "function"
	case Data:
		return "data"
	case Const:
		return "const"
	case Local:
		return "local"
	default:
		return fmt.Sprintf("SymbolKind(%d)", uint8(k))
	}
}

// Section indexes a symbol's owning section.
type Section uint32

const (
	SectionCode Section = iota
	SectionData
	SectionRodata
)

// RelocType is the kind of patch a Relocation describes.
type RelocType uint8

const (
	REL32 RelocType = iota
	RIP32
	ABS64
	ABS32
)

func (t RelocType) String() string {
	switch t {
	case REL32:
		return "REL32"
	case RIP32:
		return "RIP32"
	case ABS64:
		return "ABS64"
	case ABS32:
		return "ABS32"
	default:
		return fmt.Sprintf("RelocType(%d)", uint8(t))
	}
}

// Symbol is one entry of an object file's symbol table.
type Symbol struct {
	Name       string
	Kind       SymbolKind
	Section    Section
	Offset     uint32
	Size       uint32
	IsExported bool
	IsHidden   bool
	IsWeak     bool
}

// Relocation patches a 32- or 64-bit value at Offset once Symbol's final
// address is known.
type Relocation struct {
	Offset uint32
	Type   RelocType
	Symbol string
	Addend int32
}

// Import is a single (DLL, function) pair an object depends on.
type Import struct {
	DLL      string
	Function string
}

// File is a relocatable object: the in-memory form of the on-disk
// container described in the package doc comment.
type File struct {
	ModuleName string

	Code   []byte
	Data   []byte
	Rodata []byte

	Symbols     []Symbol
	symbolIndex map[string]int

	CodeRelocs []Relocation
	DataRelocs []Relocation

	Imports []Import
}

// New returns an empty object file for the given translation unit.
func New(moduleName string) *File {
	return &File{
		ModuleName:  moduleName,
		symbolIndex: make(map[string]int),
	}
}

// AddSymbol inserts or replaces a symbol by name, keeping symbolIndex
// consistent with the insertion-ordered Symbols slice.
func (f *File) AddSymbol(sym Symbol) {
	if f.symbolIndex == nil {
		f.symbolIndex = make(map[string]int)
	}
	if idx, ok := f.symbolIndex[sym.Name]; ok {
		f.Symbols[idx] = sym
		return
	}
	f.symbolIndex[sym.Name] = len(f.Symbols)
	f.Symbols = append(f.Symbols, sym)
}

// FindSymbol looks up a symbol by name in O(1).
func (f *File) FindSymbol(name string) (*Symbol, bool) {
	idx, ok := f.symbolIndex[name]
	if !ok {
		return nil, false
	}
	return &f.Symbols[idx], true
}

// AddCode appends code bytes and returns the pre-append offset.
func (f *File) AddCode(code []byte) uint32 {
	off := uint32(len(f.Code))
	f.Code = append(f.Code, code...)
	return off
}

func padTo8(b []byte) []byte {
	for len(b)%8 != 0 {
		b = append(b, 0)
	}
	return b
}

// AddData appends data bytes, pads the section to an 8-byte boundary, and
// returns the pre-append offset.
func (f *File) AddData(data []byte) uint32 {
	off := uint32(len(f.Data))
	f.Data = append(f.Data, data...)
	f.Data = padTo8(f.Data)
	return off
}

// AddRodata appends read-only data bytes, pads to an 8-byte boundary, and
// returns the pre-append offset.
func (f *File) AddRodata(data []byte) uint32 {
	off := uint32(len(f.Rodata))
	f.Rodata = append(f.Rodata, data...)
	f.Rodata = padTo8(f.Rodata)
	return off
}

// AddString appends a zero-terminated string to the rodata section, pads
// to an 8-byte boundary, and returns the pre-append offset.
func (f *File) AddString(s string) uint32 {
	off := uint32(len(f.Rodata))
	f.Rodata = append(f.Rodata, []byte(s)...)
	f.Rodata = append(f.Rodata, 0)
	f.Rodata = padTo8(f.Rodata)
	return off
}

// AddCodeRelocation records a code-site relocation.
func (f *File) AddCodeRelocation(r Relocation) {
	f.CodeRelocs = append(f.CodeRelocs, r)
}

// AddDataRelocation records a data-site relocation.
func (f *File) AddDataRelocation(r Relocation) {
	f.DataRelocs = append(f.DataRelocs, r)
}

// AddImport records a dependency on a DLL-exported function.
func (f *File) AddImport(dll, function string) {
	f.Imports = append(f.Imports, Import{DLL: dll, Function: function})
}

// header mirrors the on-disk layout exactly; field order matters.
type header struct {
	Magic            uint32
	Version          uint16
	Flags            uint16
	CodeSize         uint32
	DataSize         uint32
	RodataSize       uint32
	SymbolCount      uint32
	CodeRelocCount   uint32
	DataRelocCount   uint32
	ImportCount      uint32
	ModuleNameOffset uint32
	StringTableSize  uint32
}

const (
	headerSize = 4 + 2 + 2 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4
	symRecSize = 20
	relRecSize = 16
	impRecSize = 8
)

// stringTable accumulates strings in first-use order and hands back their
// byte offset; it is the single source of truth for every string written
// into the container.
type stringTable struct {
	buf     bytes.Buffer
	offsets map[string]uint32
}

func newStringTable() *stringTable {
	return &stringTable{offsets: make(map[string]uint32)}
}

func (st *stringTable) add(s string) uint32 {
	if off, ok := st.offsets[s]; ok {
		return off
	}
	off := uint32(st.buf.Len())
	st.offsets[s] = off
	st.buf.WriteString(s)
	st.buf.WriteByte(0)
	return off
}

func packFlags(s Symbol) uint8 {
	var b uint8
	if s.IsExported {
		b |= 1 << 0
	}
	if s.IsHidden {
		b |= 1 << 1
	}
	if s.IsWeak {
		b |= 1 << 2
	}
	return b
}

func unpackFlags(b uint8) (exported, hidden, weak bool) {
	return b&(1<<0) != 0, b&(1<<1) != 0, b&(1<<2) != 0
}

// Write serializes the object file to path.
func (f *File) Write(path string) (err error) {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("objfile: create %s: %w", path, err)
	}
	defer func() {
		cerr := fh.Close()
		if err == nil {
			err = cerr
		}
	}()

	st := newStringTable()
	moduleNameOffset := st.add(f.ModuleName)
	for _, sym := range f.Symbols {
		st.add(sym.Name)
	}
	for _, r := range f.CodeRelocs {
		st.add(r.Symbol)
	}
	for _, r := range f.DataRelocs {
		st.add(r.Symbol)
	}
	for _, imp := range f.Imports {
		st.add(imp.DLL)
		st.add(imp.Function)
	}

	hdr := header{
		Magic:            Magic,
		Version:          Version,
		Flags:            0,
		CodeSize:         uint32(len(f.Code)),
		DataSize:         uint32(len(f.Data)),
		RodataSize:       uint32(len(f.Rodata)),
		SymbolCount:      uint32(len(f.Symbols)),
		CodeRelocCount:   uint32(len(f.CodeRelocs)),
		DataRelocCount:   uint32(len(f.DataRelocs)),
		ImportCount:      uint32(len(f.Imports)),
		ModuleNameOffset: moduleNameOffset,
		StringTableSize:  uint32(st.buf.Len()),
	}

	var out bytes.Buffer
	out.Grow(headerSize + len(f.Code) + len(f.Data) + len(f.Rodata) +
		len(f.Symbols)*symRecSize + (len(f.CodeRelocs)+len(f.DataRelocs))*relRecSize +
		len(f.Imports)*impRecSize + st.buf.Len())

	if err := binary.Write(&out, binary.LittleEndian, hdr); err != nil {
		return err
	}

	if len(f.Code) > 0 {
		out.Write(f.Code)
	}
	if len(f.Data) > 0 {
		out.Write(f.Data)
	}
	if len(f.Rodata) > 0 {
		out.Write(f.Rodata)
	}

	for _, sym := range f.Symbols {
		rec := [symRecSize]byte{}
		binary.LittleEndian.PutUint32(rec[0:4], st.add(sym.Name))
		rec[4] = uint8(sym.Kind)
		rec[5] = packFlags(sym)
		// rec[6:8] is zero padding.
		binary.LittleEndian.PutUint32(rec[8:12], uint32(sym.Section))
		binary.LittleEndian.PutUint32(rec[12:16], sym.Offset)
		binary.LittleEndian.PutUint32(rec[16:20], sym.Size)
		out.Write(rec[:])
	}

	writeRelocs := func(relocs []Relocation) {
		for _, r := range relocs {
			rec := [relRecSize]byte{}
			binary.LittleEndian.PutUint32(rec[0:4], r.Offset)
			rec[4] = uint8(r.Type)
			// rec[5:8] is zero padding.
			binary.LittleEndian.PutUint32(rec[8:12], st.add(r.Symbol))
			binary.LittleEndian.PutUint32(rec[12:16], uint32(r.Addend))
			out.Write(rec[:])
		}
	}
	writeRelocs(f.CodeRelocs)
	writeRelocs(f.DataRelocs)

	for _, imp := range f.Imports {
		rec := [impRecSize]byte{}
		binary.LittleEndian.PutUint32(rec[0:4], st.add(imp.DLL))
		binary.LittleEndian.PutUint32(rec[4:8], st.add(imp.Function))
		out.Write(rec[:])
	}

	out.Write(st.buf.Bytes())

	_, err = fh.Write(out.Bytes())
	return err
}

// Read reconstructs an object file from path, replacing the receiver's
// contents.
func (f *File) Read(path string) (err error) {
	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("objfile: open %s: %w", path, err)
	}
	defer func() {
		cerr := fh.Close()
		if err == nil {
			err = cerr
		}
	}()

	data, err := readAll(fh)
	if err != nil {
		return err
	}
	if len(data) < headerSize {
		return fmt.Errorf("objfile: %s: truncated header", path)
	}

	var hdr header
	if err := binary.Read(bytes.NewReader(data[:headerSize]), binary.LittleEndian, &hdr); err != nil {
		return err
	}
	if hdr.Magic != Magic {
		return fmt.Errorf("objfile: %s: bad magic 0x%08X", path, hdr.Magic)
	}
	if hdr.Version != Version {
		return fmt.Errorf("objfile: %s: unsupported version %d", path, hdr.Version)
	}

	off := headerSize
	readSection := func(size uint32) []byte {
		s := data[off : off+int(size)]
		off += int(size)
		return s
	}
	code := readSection(hdr.CodeSize)
	dataSec := readSection(hdr.DataSize)
	rodata := readSection(hdr.RodataSize)

	type rawSym struct {
		nameOff uint32
		kind    uint8
		flags   uint8
		section uint32
		symOff  uint32
		size    uint32
	}
	rawSyms := make([]rawSym, hdr.SymbolCount)
	for i := range rawSyms {
		rec := data[off : off+symRecSize]
		off += symRecSize
		rawSyms[i] = rawSym{
			nameOff: binary.LittleEndian.Uint32(rec[0:4]),
			kind:    rec[4],
			flags:   rec[5],
			section: binary.LittleEndian.Uint32(rec[8:12]),
			symOff:  binary.LittleEndian.Uint32(rec[12:16]),
			size:    binary.LittleEndian.Uint32(rec[16:20]),
		}
	}

	type rawReloc struct {
		offset   uint32
		typ      uint8
		nameOff  uint32
		addend   int32
	}
	readRawRelocs := func(n uint32) []rawReloc {
		out := make([]rawReloc, n)
		for i := range out {
			rec := data[off : off+relRecSize]
			off += relRecSize
			out[i] = rawReloc{
				offset:  binary.LittleEndian.Uint32(rec[0:4]),
				typ:     rec[4],
				nameOff: binary.LittleEndian.Uint32(rec[8:12]),
				addend:  int32(binary.LittleEndian.Uint32(rec[12:16])),
			}
		}
		return out
	}
	rawCodeRelocs := readRawRelocs(hdr.CodeRelocCount)
	rawDataRelocs := readRawRelocs(hdr.DataRelocCount)

	type rawImport struct {
		dllOff uint32
		fnOff  uint32
	}
	rawImports := make([]rawImport, hdr.ImportCount)
	for i := range rawImports {
		rec := data[off : off+impRecSize]
		off += impRecSize
		rawImports[i] = rawImport{
			dllOff: binary.LittleEndian.Uint32(rec[0:4]),
			fnOff:  binary.LittleEndian.Uint32(rec[4:8]),
		}
	}

	strTab := data[off : off+int(hdr.StringTableSize)]
	getString := func(strOff uint32) string {
		end := strOff
		for end < uint32(len(strTab)) && strTab[end] != 0 {
			end++
		}
		return string(strTab[strOff:end])
	}

	f.ModuleName = getString(hdr.ModuleNameOffset)
	f.Code = append([]byte(nil), code...)
	f.Data = append([]byte(nil), dataSec...)
	f.Rodata = append([]byte(nil), rodata...)
	f.Symbols = nil
	f.symbolIndex = make(map[string]int)
	for _, rs := range rawSyms {
		exported, hidden, weak := unpackFlags(rs.flags)
		f.AddSymbol(Symbol{
			Name:       getString(rs.nameOff),
			Kind:       SymbolKind(rs.kind),
			Section:    Section(rs.section),
			Offset:     rs.symOff,
			Size:       rs.size,
			IsExported: exported,
			IsHidden:   hidden,
			IsWeak:     weak,
		})
	}
	f.CodeRelocs = nil
	for _, rr := range rawCodeRelocs {
		f.CodeRelocs = append(f.CodeRelocs, Relocation{
			Offset: rr.offset,
			Type:   RelocType(rr.typ),
			Symbol: getString(rr.nameOff),
			Addend: rr.addend,
		})
	}
	f.DataRelocs = nil
	for _, rr := range rawDataRelocs {
		f.DataRelocs = append(f.DataRelocs, Relocation{
			Offset: rr.offset,
			Type:   RelocType(rr.typ),
			Symbol: getString(rr.nameOff),
			Addend: rr.addend,
		})
	}
	f.Imports = nil
	for _, ri := range rawImports {
		f.Imports = append(f.Imports, Import{
			DLL:      getString(ri.dllOff),
			Function: getString(ri.fnOff),
		})
	}

	return nil
}

func readAll(fh *os.File) ([]byte, error) {
	info, err := fh.Stat()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, info.Size())
	if _, err := io.ReadFull(fh, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
