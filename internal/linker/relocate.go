package linker

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/xyproto/tylink/internal/objfile"
)

// relocate is phase D: stage the import table to learn every imported
// function's IAT slot RVA, then patch every code relocation in place.
func (l *Linker) relocate() error {
	table := buildImportTable(l.imports, l.idataRVA)
	l.importRVA = table.IATRVA

	for i, obj := range l.objects {
		lay := l.layouts[i]
		for _, rel := range obj.CodeRelocs {
			if rel.Symbol == "" {
				continue
			}
			patchOffset := lay.CodeOffset + rel.Offset

			target, err := l.relocTarget(obj, lay, rel)
			if err != nil {
				return err
			}

			if err := patchReloc(l.mergedCode, patchOffset, rel, target, l.codeRVA, l.cfg.ImageBase); err != nil {
				return fmt.Errorf("linker: %s: %w", obj.ModuleName, err)
			}
		}
	}
	return nil
}

func (l *Linker) relocTarget(obj *objfile.File, lay ObjectLayout, rel objfile.Relocation) (uint32, error) {
	switch {
	case rel.Symbol == "__data":
		return uint32(int64(l.dataRVA+lay.DataOffset) + int64(rel.Addend)), nil
	case rel.Symbol == "__idata":
		return uint32(int64(l.idataRVA) + int64(rel.Addend)), nil
	case strings.HasPrefix(rel.Symbol, "__import_"):
		fn := rel.Symbol[len("__import_"):]
		rva, ok := l.importRVA[fn]
		if !ok {
			return 0, fmt.Errorf("cannot resolve import %q", fn)
		}
		return rva, nil
	}

	if g, ok := l.globals[rel.Symbol]; ok {
		return g.RVA, nil
	}
	if rva, ok := l.importRVA[rel.Symbol]; ok {
		return rva, nil
	}
	if sym, ok := obj.FindSymbol(rel.Symbol); ok {
		return l.sectionBaseRVA(sym.Section) + l.sectionLayoutOffset(lay, sym.Section) + sym.Offset, nil
	}
	return 0, fmt.Errorf("cannot resolve symbol %q", rel.Symbol)
}

// patchReloc writes one relocation's computed value into code at
// patchOffset, per the formulas for each relocation type.
func patchReloc(code []byte, patchOffset uint32, rel objfile.Relocation, target, codeRVA uint32, imageBase uint64) error {
	if int(patchOffset) >= len(code) {
		return fmt.Errorf("relocation offset %d out of range (code size %d)", patchOffset, len(code))
	}
	switch rel.Type {
	case objfile.REL32, objfile.RIP32:
		instrRVA := int64(codeRVA) + int64(patchOffset) + 4
		rel32 := int32(int64(target) - instrRVA)
		if int(patchOffset)+4 > len(code) {
			return fmt.Errorf("REL32 relocation at %d overruns code section", patchOffset)
		}
		binary.LittleEndian.PutUint32(code[patchOffset:], uint32(rel32))
	case objfile.ABS32:
		if int(patchOffset)+4 > len(code) {
			return fmt.Errorf("ABS32 relocation at %d overruns code section", patchOffset)
		}
		binary.LittleEndian.PutUint32(code[patchOffset:], uint32(int64(target)+int64(rel.Addend)))
	case objfile.ABS64:
		if int(patchOffset)+8 > len(code) {
			return fmt.Errorf("ABS64 relocation at %d overruns code section", patchOffset)
		}
		v := imageBase + uint64(target) + uint64(rel.Addend)
		binary.LittleEndian.PutUint64(code[patchOffset:], v)
	default:
		return fmt.Errorf("unknown relocation type %v", rel.Type)
	}
	return nil
}
