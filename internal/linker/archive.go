package linker

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const arMagic = "!<arch>\n"

const (
	coffMachineAMD64 = 0x8664
	coffMachineI386  = 0x14c
)

// ArMember is one member of a Unix ar archive, with the 60-byte header
// already parsed and the trailing name padding trimmed.
type ArMember struct {
	Name string
	Data []byte
}

// ReadArchive splits a Unix ar archive into its members. Member boundaries
// are 2-byte aligned; members named "/", "//", or empty (the symbol and
// string tables some archivers emit) are skipped entirely rather than
// returned, since the linker has no use for them.
func ReadArchive(data []byte) ([]ArMember, error) {
	if len(data) < len(arMagic) || string(data[:len(arMagic)]) != arMagic {
		return nil, fmt.Errorf("linker: not an ar archive")
	}
	var members []ArMember
	off := len(arMagic)
	for off+60 <= len(data) {
		hdr := data[off : off+60]
		name := strings.TrimRight(string(hdr[0:16]), " ")
		sizeStr := strings.TrimSpace(string(hdr[48:58]))
		size, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("linker: ar archive: bad member size %q", sizeStr)
		}
		if hdr[58] != '`' || hdr[59] != '\n' {
			return nil, fmt.Errorf("linker: ar archive: bad member magic at offset %d", off)
		}
		off += 60
		if off+int(size) > len(data) {
			return nil, fmt.Errorf("linker: ar archive: truncated member %q", name)
		}
		body := data[off : off+int(size)]
		if name != "/" && name != "//" && name != "" {
			members = append(members, ArMember{Name: name, Data: append([]byte(nil), body...)})
		}
		off += int(size)
		if off%2 != 0 {
			off++
		}
	}
	return members, nil
}

// isCOFFObject validates a candidate archive member by its machine field,
// the same check the linker applies to a standalone static-library file
// that isn't wrapped in an ar container.
func isCOFFObject(data []byte) bool {
	if len(data) < 20 {
		return false
	}
	machine := uint16(data[0]) | uint16(data[1])<<8
	return machine == coffMachineAMD64 || machine == coffMachineI386
}

// staticLibSymbols loads the set of externally visible names a static
// library can satisfy during resolve. It validates every archive member
// (or the file itself, for a bare single-object library) against the COFF
// machine field but does not merge any code or data from matched members:
// the linker treats a static library purely as a source of additional
// resolvable names, never as a section contributor, because the object
// model the rest of this linker works with is its own objfile container,
// not raw COFF sections.
func staticLibSymbols(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("linker: read static library %s: %w", path, err)
	}

	names := make(map[string]bool)
	if len(data) >= len(arMagic) && string(data[:len(arMagic)]) == arMagic {
		members, err := ReadArchive(data)
		if err != nil {
			return nil, fmt.Errorf("linker: %s: %w", path, err)
		}
		for _, m := range members {
			if isCOFFObject(m.Data) {
				for _, n := range coffExternalNames(m.Data) {
					names[n] = true
				}
			}
		}
		return names, nil
	}

	if isCOFFObject(data) {
		for _, n := range coffExternalNames(data) {
			names[n] = true
		}
	}
	return names, nil
}
