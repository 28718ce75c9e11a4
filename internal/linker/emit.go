package linker

import (
	"golang.org/x/sys/windows"

	"github.com/xyproto/tylink/internal/pegen"
)

const (
	charCode     = windows.IMAGE_SCN_CNT_CODE | windows.IMAGE_SCN_MEM_EXECUTE | windows.IMAGE_SCN_MEM_READ
	charData     = windows.IMAGE_SCN_CNT_INITIALIZED_DATA | windows.IMAGE_SCN_MEM_READ | windows.IMAGE_SCN_MEM_WRITE
	charReadonly = windows.IMAGE_SCN_CNT_INITIALIZED_DATA | windows.IMAGE_SCN_MEM_READ
	charIData    = charData
	charEData    = charReadonly
)

// emit is phase E: hand the merged sections and data-directory RVAs to a
// pegen.Builder, which lays out the DOS/COFF/optional headers and writes
// the finished image.
func (l *Linker) emit() ([]byte, error) {
	table := buildImportTable(l.imports, l.idataRVA)
	l.importRVA = table.IATRVA

	var edataBytes []byte
	if l.cfg.GenerateDLL && len(l.exports) > 0 {
		var err error
		edataBytes, err = l.buildExportDirectory()
		if err != nil {
			return nil, err
		}
		relocateExportRVAs(edataBytes, l.edataRVA)
	}

	fa := l.cfg.FileAlignment
	b := &pegen.Builder{
		ImageBase:          l.cfg.ImageBase,
		SectionAlignment:   l.cfg.SectionAlignment,
		FileAlignment:      fa,
		Subsystem:          windows.IMAGE_SUBSYSTEM_WINDOWS_CUI,
		DLLCharacteristics: pegen.DefaultDLLCharacteristics(),
		BaseOfCodeRVA:      l.codeRVA,
		IsDLL:              l.cfg.GenerateDLL,
	}

	b.Sections = append(b.Sections, pegen.Section{
		Name: ".text", VirtualSize: uint32(len(l.mergedCode)), VirtualAddress: l.codeRVA,
		RawSize: alignUp(uint32(len(l.mergedCode)), fa), RawData: l.mergedCode, Characteristics: charCode,
	})
	if len(l.mergedData) > 0 {
		b.Sections = append(b.Sections, pegen.Section{
			Name: ".data", VirtualSize: uint32(len(l.mergedData)), VirtualAddress: l.dataRVA,
			RawSize: alignUp(uint32(len(l.mergedData)), fa), RawData: l.mergedData, Characteristics: charData,
		})
	}
	if len(l.mergedRodata) > 0 {
		b.Sections = append(b.Sections, pegen.Section{
			Name: ".rdata", VirtualSize: uint32(len(l.mergedRodata)), VirtualAddress: l.rodataRVA,
			RawSize: alignUp(uint32(len(l.mergedRodata)), fa), RawData: l.mergedRodata, Characteristics: charReadonly,
		})
	}
	if len(edataBytes) > 0 {
		b.Sections = append(b.Sections, pegen.Section{
			Name: ".edata", VirtualSize: uint32(len(edataBytes)), VirtualAddress: l.edataRVA,
			RawSize: alignUp(uint32(len(edataBytes)), fa), RawData: edataBytes, Characteristics: charEData,
		})
		b.DataDirectory[0] = [2]uint32{l.edataRVA, uint32(len(edataBytes))}
	}
	if len(l.imports) > 0 {
		b.Sections = append(b.Sections, pegen.Section{
			Name: ".idata", VirtualSize: uint32(len(table.Bytes)), VirtualAddress: l.idataRVA,
			RawSize: alignUp(uint32(len(table.Bytes)), fa), RawData: table.Bytes, Characteristics: charIData,
		})
		b.DataDirectory[1] = [2]uint32{l.idataRVA, uint32(len(table.Bytes))}
	}

	if entrySym, ok := l.globals[l.entryName]; ok {
		b.EntryPointRVA = entrySym.RVA
	} else {
		b.EntryPointRVA = l.codeRVA
	}

	return b.Build(), nil
}
