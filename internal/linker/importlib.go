package linker

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// BuildImportLibrary produces a Unix ar archive of short import members, one
// per export, so downstream linkers can resolve calls into this DLL without
// ever seeing its code. The archive has no first/second linker member
// symbol index, and every member is a minimal descriptor (see
// buildImportMember) rather than a COFF object, so staticLibSymbols, which
// only reads members that carry a COFF machine field, takes no names from
// an archive built here.
func (l *Linker) BuildImportLibrary() ([]byte, error) {
	if len(l.exports) == 0 {
		return nil, fmt.Errorf("linker: no exports to place in an import library")
	}

	dllName := l.cfg.OutputFile
	var buf bytes.Buffer
	buf.WriteString(arMagic)

	for _, exp := range l.exports {
		member := buildImportMember(exp.Name, dllName, exp.Ordinal)
		writeArHeader(&buf, exp.Name, len(member))
		buf.Write(member)
		if len(member)%2 != 0 {
			buf.WriteByte('\n')
		}
	}

	return buf.Bytes(), nil
}

// buildImportMember packs one short import descriptor: a 4-byte ordinal
// followed by the NUL-terminated export name and the NUL-terminated DLL
// name, so a reader can recover which DLL and ordinal/name to bind at load
// time without parsing real COFF content.
func buildImportMember(name, dll string, ordinal uint32) []byte {
	var b bytes.Buffer
	var ordBuf [4]byte
	binary.LittleEndian.PutUint32(ordBuf[:], ordinal)
	b.Write(ordBuf[:])
	b.WriteString(name)
	b.WriteByte(0)
	b.WriteString(dll)
	b.WriteByte(0)
	return b.Bytes()
}

func writeArHeader(buf *bytes.Buffer, name string, size int) {
	var hdr [60]byte
	for i := range hdr {
		hdr[i] = ' '
	}
	copy(hdr[0:16], name)
	copy(hdr[16:28], "0")
	copy(hdr[28:34], "0")
	copy(hdr[34:40], "0")
	copy(hdr[40:48], "100644")
	copy(hdr[48:58], fmt.Sprintf("%d", size))
	hdr[58] = '`'
	hdr[59] = '\n'
	buf.Write(hdr[:])
}
