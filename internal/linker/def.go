package linker

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Export is one EXPORTS-section entry from a DEF file or the
// ExportSymbols command-line option.
type Export struct {
	Name         string // exported name
	InternalName string // symbol to resolve against; defaults to Name
	Ordinal      uint32 // 0 means auto-assign starting at 1
	NoName       bool   // export by ordinal only, omit from the name table
	Data         bool   // DATA export; not written into the export directory
}

// DefFile is the parsed content of a module-definition file: library
// metadata plus an export list.
type DefFile struct {
	LibraryName string
	Description string
	ImageBase   uint64
	HasImgBase  bool
	HeapSize    uint64
	StackSize   uint64
	Exports     []Export
}

// ParseDef reads a DEF file. Recognized directives: LIBRARY, DESCRIPTION,
// BASE, HEAPSIZE, STACKSIZE, and an EXPORTS section listing one symbol per
// line, optionally followed by "@ordinal", "NONAME", or "DATA".
func ParseDef(path string) (*DefFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("linker: open def file %s: %w", path, err)
	}
	defer f.Close()

	def := &DefFile{}
	inExports := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		upper := strings.ToUpper(line)

		switch {
		case upper == "EXPORTS":
			inExports = true
			continue
		case strings.HasPrefix(upper, "LIBRARY"):
			inExports = false
			def.LibraryName = strings.TrimSpace(line[len("LIBRARY"):])
		case strings.HasPrefix(upper, "DESCRIPTION"):
			inExports = false
			desc := strings.TrimSpace(line[len("DESCRIPTION"):])
			def.Description = strings.Trim(desc, "\"")
		case strings.HasPrefix(upper, "BASE"):
			inExports = false
			v, err := parseDefNumber(strings.TrimSpace(line[len("BASE"):]))
			if err != nil {
				return nil, fmt.Errorf("linker: def file %s: bad BASE value: %w", path, err)
			}
			def.ImageBase = v
			def.HasImgBase = true
		case strings.HasPrefix(upper, "HEAPSIZE"):
			inExports = false
			v, err := parseDefNumber(strings.TrimSpace(line[len("HEAPSIZE"):]))
			if err != nil {
				return nil, fmt.Errorf("linker: def file %s: bad HEAPSIZE value: %w", path, err)
			}
			def.HeapSize = v
		case strings.HasPrefix(upper, "STACKSIZE"):
			inExports = false
			v, err := parseDefNumber(strings.TrimSpace(line[len("STACKSIZE"):]))
			if err != nil {
				return nil, fmt.Errorf("linker: def file %s: bad STACKSIZE value: %w", path, err)
			}
			def.StackSize = v
		case inExports:
			exp, err := parseDefExportLine(line)
			if err != nil {
				return nil, fmt.Errorf("linker: def file %s: %w", path, err)
			}
			def.Exports = append(def.Exports, exp)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return def, nil
}

func parseDefNumber(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}

// parseDefExportLine parses one EXPORTS entry:
//
//	name[=internal] [@ordinal [NONAME]] [DATA]
func parseDefExportLine(line string) (Export, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Export{}, fmt.Errorf("empty export entry")
	}
	exp := Export{Name: fields[0], InternalName: fields[0]}
	if idx := strings.Index(exp.Name, "="); idx >= 0 {
		exp.InternalName = exp.Name[idx+1:]
		exp.Name = exp.Name[:idx]
	}
	for _, f := range fields[1:] {
		switch {
		case strings.HasPrefix(f, "@"):
			n, err := strconv.ParseUint(f[1:], 10, 32)
			if err != nil {
				return Export{}, fmt.Errorf("bad ordinal %q: %w", f, err)
			}
			exp.Ordinal = uint32(n)
		case strings.EqualFold(f, "NONAME"):
			exp.NoName = true
		case strings.EqualFold(f, "DATA"):
			exp.Data = true
		}
	}
	return exp, nil
}
