package linker

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/xyproto/tylink/internal/objfile"
)

func retFunc(name string, code []byte) *objfile.File {
	f := objfile.New(name + ".o")
	f.Code = append([]byte(nil), code...)
	f.AddSymbol(objfile.Symbol{
		Name: name, Kind: objfile.Function, Section: objfile.SectionCode,
		Offset: 0, Size: uint32(len(code)), IsExported: true,
	})
	return f
}

func TestPickEntryPointFallsBackToMain(t *testing.T) {
	obj := retFunc("main", []byte{0xC3})
	l := New(DefaultConfig(), []*objfile.File{obj}, nil, nil)
	if err := l.collect(); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if err := l.resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if l.entryName != "main" {
		t.Fatalf("entryName = %q, want main", l.entryName)
	}
}

func TestPickEntryPointPrefersStart(t *testing.T) {
	start := retFunc("_start", []byte{0xC3})
	main := retFunc("main", []byte{0xC3})
	l := New(DefaultConfig(), []*objfile.File{start, main}, nil, nil)
	if err := l.collect(); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if err := l.resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if l.entryName != "_start" {
		t.Fatalf("entryName = %q, want _start", l.entryName)
	}
}

func TestCollectRejectsDuplicateStrongSymbols(t *testing.T) {
	a := retFunc("foo", []byte{0xC3})
	b := retFunc("foo", []byte{0xC3})
	l := New(DefaultConfig(), []*objfile.File{a, b}, nil, nil)
	if err := l.collect(); err == nil {
		t.Fatal("expected duplicate symbol error")
	}
}

func TestCollectWeakSymbolYieldsToStrong(t *testing.T) {
	weak := objfile.New("weak.o")
	weak.AddSymbol(objfile.Symbol{Name: "foo", Kind: objfile.Function, IsExported: true, IsWeak: true})
	strong := objfile.New("strong.o")
	strong.AddSymbol(objfile.Symbol{Name: "foo", Kind: objfile.Function, IsExported: true})

	l := New(DefaultConfig(), []*objfile.File{weak, strong}, nil, nil)
	if err := l.collect(); err != nil {
		t.Fatalf("collect: %v", err)
	}
	g := l.globals["foo"]
	if g == nil || g.Weak {
		t.Fatalf("expected strong symbol to win, got %+v", g)
	}
	if g.Module != "strong.o" {
		t.Fatalf("winning module = %q, want strong.o", g.Module)
	}
}

func TestResolveRejectsUndefinedSymbol(t *testing.T) {
	obj := retFunc("main", []byte{0xE8, 0, 0, 0, 0})
	obj.AddCodeRelocation(objfile.Relocation{Offset: 1, Type: objfile.REL32, Symbol: "missing"})
	l := New(DefaultConfig(), []*objfile.File{obj}, nil, nil)
	if err := l.collect(); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if err := l.resolve(); err == nil {
		t.Fatal("expected undefined symbol error")
	}
}

func TestResolveAllowsSpecialBypassSymbols(t *testing.T) {
	obj := retFunc("main", []byte{0x48, 0x8B, 0x05, 0, 0, 0, 0})
	obj.AddCodeRelocation(objfile.Relocation{Offset: 3, Type: objfile.RIP32, Symbol: "__data"})
	l := New(DefaultConfig(), []*objfile.File{obj}, nil, nil)
	if err := l.collect(); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if err := l.resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
}

func TestLayoutComputesSectionRVAsInOrder(t *testing.T) {
	obj := objfile.New("m.o")
	obj.Code = make([]byte, 32)
	obj.Data = make([]byte, 8)
	obj.Rodata = make([]byte, 8)
	obj.AddSymbol(objfile.Symbol{Name: "main", Kind: objfile.Function, Section: objfile.SectionCode, IsExported: true})

	l := New(DefaultConfig(), []*objfile.File{obj}, nil, nil)
	if err := l.collect(); err != nil {
		t.Fatalf("collect: %v", err)
	}
	l.layout()

	if l.codeRVA != 0x1000 {
		t.Fatalf("codeRVA = %#x, want 0x1000", l.codeRVA)
	}
	if l.dataRVA <= l.codeRVA {
		t.Fatalf("dataRVA %#x must follow codeRVA %#x", l.dataRVA, l.codeRVA)
	}
	if l.rodataRVA <= l.dataRVA {
		t.Fatalf("rodataRVA %#x must follow dataRVA %#x", l.rodataRVA, l.dataRVA)
	}
	if l.idataRVA <= l.rodataRVA {
		t.Fatalf("idataRVA %#x must follow rodataRVA %#x", l.idataRVA, l.rodataRVA)
	}
	if l.edataRVA != 0 {
		t.Fatalf("edataRVA = %#x, want 0 for an EXE", l.edataRVA)
	}
}

func TestLayoutReservesExportDirectoryForDLL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GenerateDLL = true
	obj := objfile.New("m.o")
	obj.Code = make([]byte, 16)
	obj.Rodata = make([]byte, 8)
	obj.AddSymbol(objfile.Symbol{Name: "Exported", Kind: objfile.Function, Section: objfile.SectionCode, IsExported: true})

	l := New(cfg, []*objfile.File{obj}, nil, nil)
	l.exports = []Export{{Name: "Exported", InternalName: "Exported"}}
	if err := l.collect(); err != nil {
		t.Fatalf("collect: %v", err)
	}
	l.layout()

	if l.edataRVA <= l.rodataRVA {
		t.Fatalf("edataRVA %#x must follow rodataRVA %#x", l.edataRVA, l.rodataRVA)
	}
	if l.idataRVA <= l.edataRVA {
		t.Fatalf("idataRVA %#x must follow edataRVA %#x", l.idataRVA, l.edataRVA)
	}
}

func TestPatchRelocREL32ComputesRelativeOffset(t *testing.T) {
	code := make([]byte, 16)
	rel := objfile.Relocation{Offset: 1, Type: objfile.REL32}
	if err := patchReloc(code, 1, rel, 0x2000, 0x1000, 0); err != nil {
		t.Fatalf("patchReloc: %v", err)
	}
	got := int32(binary.LittleEndian.Uint32(code[1:5]))
	want := int32(0x2000 - (0x1000 + 1 + 4))
	if got != want {
		t.Fatalf("patched value = %d, want %d", got, want)
	}
}

func TestPatchRelocABS64AddsImageBase(t *testing.T) {
	code := make([]byte, 16)
	rel := objfile.Relocation{Offset: 0, Type: objfile.ABS64, Addend: 4}
	if err := patchReloc(code, 0, rel, 0x3000, 0x1000, 0x140000000); err != nil {
		t.Fatalf("patchReloc: %v", err)
	}
	got := binary.LittleEndian.Uint64(code[0:8])
	want := uint64(0x140000000 + 0x3000 + 4)
	if got != want {
		t.Fatalf("patched value = %#x, want %#x", got, want)
	}
}

func TestPatchRelocRejectsOutOfRangeOffset(t *testing.T) {
	code := make([]byte, 2)
	rel := objfile.Relocation{Offset: 0, Type: objfile.ABS32}
	if err := patchReloc(code, 0, rel, 0, 0, 0); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestBuildImportTableProducesSortedEvenTerminatedLayout(t *testing.T) {
	imports := map[string]map[string]bool{
		"kernel32.dll": {"ExitProcess": true, "GetStdHandle": true},
	}
	tbl := buildImportTable(imports, 0x4000)
	if len(tbl.DLLs) != 1 || tbl.DLLs[0] != "kernel32.dll" {
		t.Fatalf("DLLs = %v", tbl.DLLs)
	}
	if _, ok := tbl.IATRVA["ExitProcess"]; !ok {
		t.Fatal("expected ExitProcess IAT RVA")
	}
	if _, ok := tbl.IATRVA["GetStdHandle"]; !ok {
		t.Fatal("expected GetStdHandle IAT RVA")
	}
	if len(tbl.Bytes)%2 != 0 {
		t.Fatalf("import table size %d is not even", len(tbl.Bytes))
	}
}

func TestLinkEndToEndProducesPEImage(t *testing.T) {
	// mov eax, 0 ; ret
	code := []byte{0xB8, 0, 0, 0, 0, 0xC3}
	obj := retFunc("main", code)
	l := New(DefaultConfig(), []*objfile.File{obj}, nil, nil)
	res, err := l.Link()
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if len(res.Image) == 0 {
		t.Fatal("expected non-empty image")
	}
	if string(res.Image[0:2]) != "MZ" {
		t.Fatalf("missing MZ signature, got %q", res.Image[0:2])
	}
	lfanew := binary.LittleEndian.Uint32(res.Image[60:64])
	if lfanew != 0x80 {
		t.Fatalf("e_lfanew = %#x, want 0x80", lfanew)
	}
	peSig := res.Image[0x80:0x84]
	if string(peSig) != "PE\x00\x00" {
		t.Fatalf("missing PE signature at 0x80, got %q", peSig)
	}
}

func TestLinkGeneratesMapTextWhenRequested(t *testing.T) {
	code := []byte{0xC3}
	obj := retFunc("main", code)
	cfg := DefaultConfig()
	cfg.GenerateMap = true
	cfg.OutputFile = "prog.exe"
	l := New(cfg, []*objfile.File{obj}, nil, nil)
	res, err := l.Link()
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if !strings.Contains(res.MapText, "Sections:") || !strings.Contains(res.MapText, "Symbols:") {
		t.Fatalf("unexpected map text: %s", res.MapText)
	}
	if !strings.Contains(res.MapText, "main") {
		t.Fatalf("expected map text to mention main, got %s", res.MapText)
	}
}

func TestLinkRejectsEmptyInput(t *testing.T) {
	l := New(DefaultConfig(), nil, nil, nil)
	if _, err := l.Link(); err == nil {
		t.Fatal("expected error for no input objects")
	}
}

func TestParseDefExportsWithOrdinalsAndNoname(t *testing.T) {
	def := &DefFile{}
	exp, err := parseDefExportLine("Foo=_Foo@8 @3 NONAME")
	if err != nil {
		t.Fatalf("parseDefExportLine: %v", err)
	}
	if exp.Name != "Foo" || exp.InternalName != "_Foo@8" || exp.Ordinal != 3 || !exp.NoName {
		t.Fatalf("unexpected export: %+v", exp)
	}
	def.Exports = append(def.Exports, exp)
	if len(def.Exports) != 1 {
		t.Fatal("expected one export")
	}
}
