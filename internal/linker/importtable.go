package linker

import (
	"encoding/binary"
	"sort"
)

// importTableLayout is the packed .idata section plus the final RVA of
// every imported function's IAT slot, which is what relocations against
// that function must patch to point at.
type importTableLayout struct {
	Bytes  []byte
	IATRVA map[string]uint32
	DLLs   []string // sorted, for export/map reporting
}

// buildImportTable lays out the Import Directory Table, Import Lookup
// Table, Import Address Table, hint/name table, and DLL name pool exactly
// as described for the emitted image: IDT first (20-byte entries, zero
// terminator), then for each DLL its ILT immediately followed by its IAT
// (both 8-byte PE32+ entries, zero-terminated per DLL group), then the
// packed hint/name entries, then the DLL names (each padded to even).
func buildImportTable(imports map[string]map[string]bool, baseRVA uint32) importTableLayout {
	var dlls []string
	for dll := range imports {
		dlls = append(dlls, dll)
	}
	sort.Strings(dlls)

	type dllLayout struct {
		name      string
		funcs     []string
		iltOffset uint32
		iatOffset uint32
		nameOff   uint32
		hintsOff  uint32
	}

	entrySize := func(funcName string) uint32 {
		n := uint32(2 + len(funcName) + 1)
		if n%2 != 0 {
			n++
		}
		return n
	}

	idtSize := uint32((len(dlls) + 1) * 20)
	cursor := idtSize

	layouts := make([]dllLayout, len(dlls))
	for i, dll := range dlls {
		funcs := make([]string, 0, len(imports[dll]))
		for f := range imports[dll] {
			funcs = append(funcs, f)
		}
		sort.Strings(funcs)

		tableSize := uint32(len(funcs)+1) * 8
		layouts[i] = dllLayout{name: dll, funcs: funcs, iltOffset: cursor}
		cursor += tableSize
		layouts[i].iatOffset = cursor
		cursor += tableSize
	}

	for i := range layouts {
		layouts[i].hintsOff = cursor
		for _, f := range layouts[i].funcs {
			cursor += entrySize(f)
		}
	}
	for i := range layouts {
		layouts[i].nameOff = cursor
		n := uint32(len(layouts[i].name) + 1)
		if n%2 != 0 {
			n++
		}
		cursor += n
	}

	buf := make([]byte, cursor)
	iatRVA := make(map[string]uint32)

	idtOff := uint32(0)
	for _, ld := range layouts {
		binary.LittleEndian.PutUint32(buf[idtOff:], baseRVA+ld.iltOffset)
		binary.LittleEndian.PutUint32(buf[idtOff+12:], baseRVA+ld.nameOff)
		binary.LittleEndian.PutUint32(buf[idtOff+16:], baseRVA+ld.iatOffset)
		idtOff += 20
	}
	// buf[idtOff:idtOff+20] is already the zero terminator.

	for _, ld := range layouts {
		hintOff := ld.hintsOff
		iltCur := ld.iltOffset
		iatCur := ld.iatOffset
		for i, f := range ld.funcs {
			hintRVA := uint64(baseRVA + hintOff)
			binary.LittleEndian.PutUint64(buf[iltCur:], hintRVA)
			binary.LittleEndian.PutUint64(buf[iatCur:], hintRVA)
			iatRVA[f] = baseRVA + ld.iatOffset + uint32(i)*8
			hintOff += entrySize(f)
			iltCur += 8
			iatCur += 8
		}
		// Terminators at iltCur/iatCur are already zero.
	}

	for _, ld := range layouts {
		hintOff := ld.hintsOff
		for _, f := range ld.funcs {
			// hint word stays 0 (import by name, not by ordinal)
			copy(buf[hintOff+2:], f)
			hintOff += entrySize(f)
		}
		copy(buf[ld.nameOff:], ld.name)
	}

	return importTableLayout{Bytes: buf, IATRVA: iatRVA, DLLs: dlls}
}
