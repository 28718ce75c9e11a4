package linker

import "github.com/xyproto/tylink/internal/objfile"

// exportDirReserve estimates the byte size the export directory will need
// once built, so idataRVA can be placed after it. The real directory is
// built later in emit, once every export's final RVA is known; this only
// needs to be a safe upper bound on its size.
func (l *Linker) exportDirReserve() uint32 {
	if len(l.exports) == 0 {
		return 0
	}
	n := uint32(len(l.exports))
	// Auto-assigned ordinals never exceed n, so the address table spans at
	// most max(n, highest pinned ordinal) slots.
	slots := n
	for _, e := range l.exports {
		if e.Ordinal > slots {
			slots = e.Ordinal
		}
	}
	size := uint32(40) // export directory table
	size += slots * 4   // address table
	size += n * 4       // name pointer table
	size += n * 2       // ordinal table
	for _, e := range l.exports {
		size += uint32(len(e.Name)) + 1
	}
	return alignUp(size, 16)
}

// layout is phase C: concatenate every object's sections into the merged
// buffers (padding each object's contribution to a 16-byte boundary),
// compute the section RVAs, and fix every global symbol's final RVA.
func (l *Linker) layout() {
	l.layouts = make([]ObjectLayout, len(l.objects))
	for i, obj := range l.objects {
		lay := ObjectLayout{
			CodeOffset:   uint32(len(l.mergedCode)),
			DataOffset:   uint32(len(l.mergedData)),
			RodataOffset: uint32(len(l.mergedRodata)),
		}
		l.mergedCode = append(l.mergedCode, obj.Code...)
		for len(l.mergedCode)%16 != 0 {
			l.mergedCode = append(l.mergedCode, 0xCC)
		}
		l.mergedData = append(l.mergedData, obj.Data...)
		for len(l.mergedData)%16 != 0 {
			l.mergedData = append(l.mergedData, 0)
		}
		l.mergedRodata = append(l.mergedRodata, obj.Rodata...)
		for len(l.mergedRodata)%16 != 0 {
			l.mergedRodata = append(l.mergedRodata, 0)
		}
		l.layouts[i] = lay
	}

	sa := l.cfg.SectionAlignment
	l.codeRVA = 0x1000
	l.dataRVA = alignUp(l.codeRVA+uint32(len(l.mergedCode)), sa)
	l.rodataRVA = alignUp(l.dataRVA+uint32(len(l.mergedData)), sa)
	if l.cfg.GenerateDLL {
		l.edataRVA = alignUp(l.rodataRVA+uint32(len(l.mergedRodata)), sa)
		l.idataRVA = alignUp(l.edataRVA+l.exportDirReserve(), sa)
	} else {
		l.edataRVA = 0
		l.idataRVA = alignUp(l.rodataRVA+uint32(len(l.mergedRodata)), sa)
	}

	for i, obj := range l.objects {
		lay := l.layouts[i]
		for _, sym := range obj.Symbols {
			if sym.Kind == objfile.Undefined {
				continue
			}
			rva := l.sectionBaseRVA(sym.Section) + l.sectionLayoutOffset(lay, sym.Section) + sym.Offset
			if g, ok := l.globals[sym.Name]; ok && g.Module == obj.ModuleName {
				g.RVA = rva
			}
		}
	}

	if l.cfg.Verbose {
		l.log.Info("section layout",
			"text_rva", l.codeRVA, "text_size", len(l.mergedCode),
			"data_rva", l.dataRVA, "data_size", len(l.mergedData),
			"rdata_rva", l.rodataRVA, "rdata_size", len(l.mergedRodata),
			"idata_rva", l.idataRVA)
	}
}

func (l *Linker) sectionBaseRVA(s objfile.Section) uint32 {
	switch s {
	case objfile.SectionCode:
		return l.codeRVA
	case objfile.SectionData:
		return l.dataRVA
	case objfile.SectionRodata:
		return l.rodataRVA
	default:
		return 0
	}
}

func (l *Linker) sectionLayoutOffset(lay ObjectLayout, s objfile.Section) uint32 {
	switch s {
	case objfile.SectionCode:
		return lay.CodeOffset
	case objfile.SectionData:
		return lay.DataOffset
	case objfile.SectionRodata:
		return lay.RodataOffset
	default:
		return 0
	}
}
