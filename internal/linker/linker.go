package linker

import (
	"fmt"
	"log/slog"

	"golang.org/x/exp/constraints"

	"github.com/xyproto/tylink/internal/objfile"
)

// GlobalSymbol is one entry of the linker's global symbol map: a name
// visible across object-file boundaries, together with everything the
// later phases need to compute and patch its final address.
type GlobalSymbol struct {
	Name     string
	Kind     objfile.SymbolKind
	Section  objfile.Section
	Offset   uint32 // offset within its owning object's section
	Size     uint32
	RVA      uint32 // filled in during layout
	Module   string
	Weak     bool
	Exported bool
}

// ObjectLayout records where one input object's three sections landed
// inside the merged code/data/rodata buffers.
type ObjectLayout struct {
	CodeOffset   uint32
	DataOffset   uint32
	RodataOffset uint32
}

// Result is the product of a successful Link: the finished image bytes
// and, when requested, the accompanying MAP file text.
type Result struct {
	Image   []byte
	MapText string
}

// Linker merges a set of object files into a PE image. Construct one with
// New, then call Link once; a Linker is not meant to be reused across
// links.
type Linker struct {
	cfg     Config
	def     *DefFile
	log     *slog.Logger
	objects []*objfile.File

	globals   map[string]*GlobalSymbol
	imports   map[string]map[string]bool // DLL -> set of function names
	libSyms   map[string]bool            // names resolvable via a static library
	entryName string

	layouts                              []ObjectLayout
	mergedCode, mergedData, mergedRodata []byte
	codeRVA, dataRVA, rodataRVA           uint32
	edataRVA, idataRVA                    uint32

	importRVA map[string]uint32 // import function name -> IAT slot RVA
	exports   []Export
}

// New prepares a Linker for the given objects and configuration. def may
// be nil when no DEF file was supplied; a BASE given in it replaces
// cfg.ImageBase.
func New(cfg Config, objects []*objfile.File, def *DefFile, log *slog.Logger) *Linker {
	if log == nil {
		log = slog.Default()
	}
	if def != nil && def.HasImgBase {
		cfg.ImageBase = def.ImageBase
	}
	return &Linker{
		cfg:     cfg,
		def:     def,
		log:     log,
		objects: objects,
		globals: make(map[string]*GlobalSymbol),
		imports: make(map[string]map[string]bool),
		libSyms: make(map[string]bool),
	}
}

// alignUp rounds value up to the next multiple of alignment, which must
// be a power of two (or zero, meaning "no alignment").
func alignUp[T constraints.Unsigned](value, alignment T) T {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// Link runs the five phases in order and returns the finished image.
func (l *Linker) Link() (*Result, error) {
	if len(l.objects) == 0 && len(l.cfg.StaticLibs) == 0 {
		return nil, fmt.Errorf("linker: no input object files")
	}
	if l.cfg.Verbose {
		l.log.Info("linking", "objects", len(l.objects), "dll", l.cfg.GenerateDLL)
	}

	for _, path := range l.cfg.StaticLibs {
		names, err := staticLibSymbols(path)
		if err != nil {
			return nil, err
		}
		for n := range names {
			l.libSyms[n] = true
		}
	}

	l.collectExports()

	if err := l.collect(); err != nil {
		return nil, err
	}
	if err := l.resolve(); err != nil {
		return nil, err
	}
	l.layout()
	if err := l.relocate(); err != nil {
		return nil, err
	}
	image, err := l.emit()
	if err != nil {
		return nil, err
	}

	res := &Result{Image: image}
	if l.cfg.GenerateMap {
		res.MapText = l.buildMapText()
	}
	return res, nil
}
