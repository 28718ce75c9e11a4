package linker

import (
	"fmt"
	"strings"

	"github.com/xyproto/tylink/internal/engine"
	"github.com/xyproto/tylink/internal/objfile"
)

// specialRelocSymbol reports whether a relocation's symbol name is one of
// the three bypass cases that never go through normal symbol resolution:
// the data-section anchor, the import-table anchor, or a specific import
// function reference.
func specialRelocSymbol(name string) bool {
	return name == "__data" || name == "__idata" || strings.HasPrefix(name, "__import_")
}

// collect is phase A: gather every object's exported, non-hidden defined
// symbols into the global map, and merge every object's imports into the
// global DLL-to-functions table.
func (l *Linker) collect() error {
	for _, obj := range l.objects {
		for _, sym := range obj.Symbols {
			if sym.Kind == objfile.Undefined || !sym.IsExported || sym.IsHidden {
				continue
			}
			existing, ok := l.globals[sym.Name]
			if ok {
				switch {
				case existing.Weak && !sym.IsWeak:
					// Strong symbol overrides the existing weak one; fall through.
				case !existing.Weak && sym.IsWeak:
					continue
				default:
					return fmt.Errorf("linker: duplicate symbol %q defined in %q and %q",
						sym.Name, existing.Module, obj.ModuleName)
				}
			}
			l.globals[sym.Name] = &GlobalSymbol{
				Name:     sym.Name,
				Kind:     sym.Kind,
				Section:  sym.Section,
				Offset:   sym.Offset,
				Size:     sym.Size,
				Module:   obj.ModuleName,
				Weak:     sym.IsWeak,
				Exported: sym.IsExported,
			}
		}
		for _, imp := range obj.Imports {
			if l.imports[imp.DLL] == nil {
				l.imports[imp.DLL] = make(map[string]bool)
			}
			l.imports[imp.DLL][imp.Function] = true
		}
	}
	for _, dll := range l.cfg.DefaultLibs {
		if l.imports[dll] == nil {
			l.imports[dll] = make(map[string]bool)
		}
	}
	return nil
}

// importProvides reports whether any collected DLL import satisfies name.
func (l *Linker) importProvides(name string) bool {
	for _, funcs := range l.imports {
		if funcs[name] {
			return true
		}
	}
	return false
}

// resolve is phase B: every code relocation must name a global symbol, a
// collected import, or a local symbol in its own object, except for the
// three special bypass names. Once every relocation checks out, pick the
// entry point.
func (l *Linker) resolve() error {
	for _, obj := range l.objects {
		for _, rel := range obj.CodeRelocs {
			if rel.Symbol == "" || specialRelocSymbol(rel.Symbol) {
				continue
			}
			if _, ok := l.globals[rel.Symbol]; ok {
				continue
			}
			if l.importProvides(rel.Symbol) {
				continue
			}
			if _, ok := obj.FindSymbol(rel.Symbol); ok {
				continue
			}
			if l.libSyms[rel.Symbol] {
				continue
			}
			if suggestions := engine.SuggestSimilar(rel.Symbol, l.knownSymbolNames(), 3); len(suggestions) > 0 {
				return fmt.Errorf("linker: undefined symbol %q referenced in %q (did you mean %s?)",
					rel.Symbol, obj.ModuleName, strings.Join(suggestions, ", "))
			}
			return fmt.Errorf("linker: undefined symbol %q referenced in %q", rel.Symbol, obj.ModuleName)
		}
	}
	return l.pickEntryPoint()
}

// knownSymbolNames collects every name the linker could have resolved
// rel.Symbol against, for use as Levenshtein-distance suggestion
// candidates once resolution has already failed.
func (l *Linker) knownSymbolNames() []string {
	names := make([]string, 0, len(l.globals))
	for name := range l.globals {
		names = append(names, name)
	}
	for _, funcs := range l.imports {
		for fn := range funcs {
			names = append(names, fn)
		}
	}
	return names
}

func (l *Linker) pickEntryPoint() error {
	name := l.cfg.EntryPoint
	if name != "" {
		if _, ok := l.globals[name]; !ok {
			return fmt.Errorf("linker: configured entry point %q not found", name)
		}
		l.entryName = name
		return nil
	}

	for _, candidate := range []string{"_start", "main", "__TYL_main"} {
		if _, ok := l.globals[candidate]; ok {
			l.entryName = candidate
			if l.cfg.Verbose {
				l.log.Info("entry point selected", "name", candidate)
			}
			return nil
		}
	}

	for _, obj := range l.objects {
		for _, sym := range obj.Symbols {
			if sym.Kind == objfile.Function && sym.IsExported && !sym.IsHidden {
				if _, ok := l.globals[sym.Name]; ok {
					l.entryName = sym.Name
					if l.cfg.Verbose {
						l.log.Info("entry point selected", "name", sym.Name, "fallback", true)
					}
					return nil
				}
			}
		}
	}

	return fmt.Errorf("linker: no entry point found (tried %q, _start, main, __TYL_main)", l.cfg.EntryPoint)
}

// collectExports gathers the DLL export list from the DEF file (if any)
// and from the ExportSymbols configuration option.
func (l *Linker) collectExports() {
	seen := make(map[string]bool)
	if l.def != nil {
		for _, exp := range l.def.Exports {
			l.exports = append(l.exports, exp)
			seen[exp.Name] = true
		}
	}
	for _, name := range l.cfg.ExportSymbols {
		if seen[name] {
			continue
		}
		l.exports = append(l.exports, Export{Name: name, InternalName: name})
		seen[name] = true
	}
}
