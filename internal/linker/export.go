package linker

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// resolvedExport is one export entry once its internal symbol has been
// looked up and (if not pinned by the DEF file) assigned an ordinal.
type resolvedExport struct {
	Export
	RVA uint32
}

// buildExportDirectory lays out the Export Directory Table, the address
// table, the ordinal-indexed name pointer table, the ordinal table, and
// the name pool. Ordinals named in the DEF file are honored; everything
// else is assigned sequentially starting at 1. NONAME exports are omitted
// from the name pointer table. DATA exports are laid out exactly like
// function exports: the export directory format itself carries no
// function/data bit, and the Data flag is not written anywhere.
func (l *Linker) buildExportDirectory() ([]byte, error) {
	if len(l.exports) == 0 {
		return nil, nil
	}

	resolved := make([]resolvedExport, 0, len(l.exports))
	nextOrdinal := uint32(1)
	used := make(map[uint32]bool)
	for _, exp := range l.exports {
		if exp.Ordinal != 0 {
			used[exp.Ordinal] = true
		}
	}
	for _, exp := range l.exports {
		g, ok := l.globals[exp.InternalName]
		if !ok {
			return nil, fmt.Errorf("linker: export %q: internal symbol %q not defined", exp.Name, exp.InternalName)
		}
		ord := exp.Ordinal
		if ord == 0 {
			for used[nextOrdinal] {
				nextOrdinal++
			}
			ord = nextOrdinal
			used[ord] = true
		}
		exp.Ordinal = ord
		resolved = append(resolved, resolvedExport{Export: exp, RVA: g.RVA})
	}

	sort.Slice(resolved, func(i, j int) bool { return resolved[i].Ordinal < resolved[j].Ordinal })

	minOrd, maxOrd := resolved[0].Ordinal, resolved[0].Ordinal
	for _, r := range resolved {
		if r.Ordinal < minOrd {
			minOrd = r.Ordinal
		}
		if r.Ordinal > maxOrd {
			maxOrd = r.Ordinal
		}
	}
	addrTableLen := maxOrd - minOrd + 1

	var named []resolvedExport
	for _, r := range resolved {
		if !r.NoName {
			named = append(named, r)
		}
	}
	sort.Slice(named, func(i, j int) bool { return named[i].Name < named[j].Name })

	const dirTableSize = 40
	addrTableOff := uint32(dirTableSize)
	namePtrOff := addrTableOff + addrTableLen*4
	ordTableOff := namePtrOff + uint32(len(named))*4
	namePoolOff := ordTableOff + uint32(len(named))*2

	size := namePoolOff
	for _, r := range named {
		size += uint32(len(r.Name)) + 1
	}

	buf := make([]byte, size)
	// Export Directory Table.
	binary.LittleEndian.PutUint32(buf[16:], minOrd)             // OrdinalBase
	binary.LittleEndian.PutUint32(buf[20:], addrTableLen)        // AddressTableEntries
	binary.LittleEndian.PutUint32(buf[24:], uint32(len(named)))  // NumberOfNamePointers
	binary.LittleEndian.PutUint32(buf[28:], addrTableOff)        // ExportAddressTableRVA (section-relative; caller adds base)
	binary.LittleEndian.PutUint32(buf[32:], namePtrOff)          // NamePointerRVA
	binary.LittleEndian.PutUint32(buf[36:], ordTableOff)         // OrdinalTableRVA

	for _, r := range resolved {
		slot := r.Ordinal - minOrd
		binary.LittleEndian.PutUint32(buf[addrTableOff+slot*4:], r.RVA)
	}

	poolCursor := namePoolOff
	for i, r := range named {
		binary.LittleEndian.PutUint32(buf[namePtrOff+uint32(i)*4:], poolCursor)
		binary.LittleEndian.PutUint16(buf[ordTableOff+uint32(i)*2:], uint16(r.Ordinal-minOrd))
		copy(buf[poolCursor:], r.Name)
		poolCursor += uint32(len(r.Name)) + 1
	}

	return buf, nil
}

// relocateExportRVAs rewrites the section-relative RVAs written by
// buildExportDirectory (ExportAddressTableRVA, NamePointerRVA,
// OrdinalTableRVA, and every name-pool pointer) into image-relative RVAs
// once the section's base RVA is known.
func relocateExportRVAs(buf []byte, baseRVA uint32) {
	if len(buf) == 0 {
		return
	}
	nameCount := binary.LittleEndian.Uint32(buf[24:])
	for _, off := range []int{28, 32, 36} {
		v := binary.LittleEndian.Uint32(buf[off:])
		binary.LittleEndian.PutUint32(buf[off:], v+baseRVA)
	}
	namePtrOff := binary.LittleEndian.Uint32(buf[32:]) - baseRVA
	for i := uint32(0); i < nameCount; i++ {
		p := namePtrOff + i*4
		v := binary.LittleEndian.Uint32(buf[p:])
		binary.LittleEndian.PutUint32(buf[p:], v+baseRVA)
	}
}
