// Package linker merges relocatable object files into a Windows PE
// executable or DLL: it resolves symbols and imports, applies x64
// relocations, and emits the image through five sequential phases
// (collect, resolve, layout, relocate, emit).
package linker

// Config carries every option the linker recognizes. Zero values are not
// valid defaults for every field; use DefaultConfig to get a usable base
// and override only what the caller needs.
type Config struct {
	ImageBase         uint64
	SectionAlignment  uint32
	FileAlignment     uint32
	EntryPoint        string
	OutputFile        string
	GenerateDLL       bool
	GenerateImportLib bool
	DefFile           string
	GenerateMap       bool
	ExportSymbols     []string
	LibraryPaths      []string
	DefaultLibs       []string
	StaticLibs        []string
	Verbose           bool
}

// DefaultConfig returns the baseline configuration described for the
// linker: a 0x1_4000_0000 image base, 4K section alignment, 512-byte file
// alignment, and kernel32.dll implicitly imported.
func DefaultConfig() Config {
	return Config{
		ImageBase:        0x1_4000_0000,
		SectionAlignment: 0x1000,
		FileAlignment:    0x200,
		DefaultLibs:      []string{"kernel32.dll"},
	}
}
