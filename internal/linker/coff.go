package linker

import "encoding/binary"

const coffSymClassExternal = 2

// coffExternalNames extracts the externally-visible symbol names from a
// raw COFF object's symbol table. This is deliberately shallow: it reads
// just enough of the COFF header and symbol table to name-match against
// unresolved relocations during resolve, and never reconstructs sections,
// relocations, or the rest of a COFF object's structure — this linker's
// native object representation is the objfile container, and a static
// library is only ever consulted for symbol names, never for code.
func coffExternalNames(data []byte) []string {
	if len(data) < 20 {
		return nil
	}
	numSymbols := binary.LittleEndian.Uint32(data[12:16])
	symTabOff := binary.LittleEndian.Uint32(data[8:12])
	if numSymbols == 0 || symTabOff == 0 {
		return nil
	}

	const symRecSize = 18
	symTabEnd := uint64(symTabOff) + uint64(numSymbols)*symRecSize
	if symTabEnd > uint64(len(data)) {
		return nil
	}
	strTabOff := uint32(symTabEnd)

	var strTab []byte
	if strTabOff+4 <= uint32(len(data)) {
		strTabSize := binary.LittleEndian.Uint32(data[strTabOff : strTabOff+4])
		end := strTabOff + strTabSize
		if end > uint32(len(data)) {
			end = uint32(len(data))
		}
		strTab = data[strTabOff:end]
	}

	lookupLongName := func(off uint32) string {
		if strTab == nil || off >= uint32(len(strTab)) {
			return ""
		}
		end := off
		for end < uint32(len(strTab)) && strTab[end] != 0 {
			end++
		}
		return string(strTab[off:end])
	}

	var names []string
	i := uint32(0)
	for i < numSymbols {
		off := symTabOff + i*symRecSize
		rec := data[off : off+symRecSize]

		storageClass := rec[16]
		numAux := rec[17]

		if storageClass == coffSymClassExternal {
			var name string
			if binary.LittleEndian.Uint32(rec[0:4]) == 0 {
				name = lookupLongName(binary.LittleEndian.Uint32(rec[4:8]))
			} else {
				raw := rec[0:8]
				n := 0
				for n < len(raw) && raw[n] != 0 {
					n++
				}
				name = string(raw[:n])
			}
			if name != "" {
				names = append(names, name)
			}
		}

		i += uint32(1 + numAux)
	}
	return names
}
