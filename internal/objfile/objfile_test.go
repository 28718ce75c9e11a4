package objfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildSample() *File {
	f := New("sample.tyl")
	f.AddCode([]byte{0x90, 0x90, 0xC3})
	dataOff := f.AddData([]byte{1, 2, 3, 4})
	rodataOff := f.AddString("hello")
	f.AddSymbol(Symbol{
		Name:       "main",
		Kind:       Function,
		Section:    SectionCode,
		Offset:     0,
		Size:       3,
		IsExported: true,
	})
	f.AddSymbol(Symbol{
		Name:       "counter",
		Kind:       Data,
		Section:    SectionData,
		Offset:     dataOff,
		Size:       4,
		IsHidden:   true,
	})
	f.AddSymbol(Symbol{
		Name:    "greeting",
		Kind:    Const,
		Section: SectionRodata,
		Offset:  rodataOff,
		Size:    6,
		IsWeak:  true,
	})
	f.AddCodeRelocation(Relocation{Offset: 0, Type: REL32, Symbol: "counter", Addend: 0})
	f.AddDataRelocation(Relocation{Offset: 0, Type: ABS64, Symbol: "greeting", Addend: 4})
	f.AddImport("kernel32.dll", "ExitProcess")
	return f
}

func TestRoundTrip(t *testing.T) {
	orig := buildSample()

	dir := t.TempDir()
	path := filepath.Join(dir, "sample.tobj")
	require.NoError(t, orig.Write(path))

	got := New("")
	require.NoError(t, got.Read(path))

	require.Equal(t, orig.ModuleName, got.ModuleName)
	require.Equal(t, orig.Code, got.Code)
	require.Equal(t, orig.Data, got.Data)
	require.Equal(t, orig.Rodata, got.Rodata)
	require.Equal(t, orig.Symbols, got.Symbols)
	require.Equal(t, orig.CodeRelocs, got.CodeRelocs)
	require.Equal(t, orig.DataRelocs, got.DataRelocs)
	require.Equal(t, orig.Imports, got.Imports)
}

func TestFindSymbol(t *testing.T) {
	f := buildSample()
	sym, ok := f.FindSymbol("counter")
	require.True(t, ok)
	require.Equal(t, SectionData, sym.Section)

	_, ok = f.FindSymbol("nonexistent")
	require.False(t, ok)
}

func TestBadMagicRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.tobj")
	require.NoError(t, os.WriteFile(path, make([]byte, headerSize), 0644))

	f := New("")
	err := f.Read(path)
	require.Error(t, err)
}

func TestPaddingToEightBytes(t *testing.T) {
	f := New("pad")
	f.AddData([]byte{1, 2, 3})
	require.Equal(t, 0, len(f.Data)%8)

	f.AddString("hi")
	require.Equal(t, 0, len(f.Rodata)%8)
}
