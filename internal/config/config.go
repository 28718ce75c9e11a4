// Package config resolves a linker.Config from three layers, in priority
// order: command-line flags, a --config file (TOML/YAML/JSON via viper),
// and TYLINK_*-prefixed environment variables, falling back to
// linker.DefaultConfig when nothing else is set.
package config

import (
	"fmt"

	"github.com/spf13/viper"
	env "github.com/xyproto/env/v2"

	"github.com/xyproto/tylink/internal/engine"
	"github.com/xyproto/tylink/internal/linker"
)

// Flags carries whatever the CLI layer parsed from os.Args; empty fields
// fall through to the config file, then the environment, then defaults.
type Flags struct {
	ConfigFile   string
	Output       string
	EntryPoint   string
	Arch         string
	OS           string
	DLL          bool
	ImportLib    bool
	DefFile      string
	Map          bool
	Exports      []string
	LibraryPaths []string
	DefaultLibs  []string
	StaticLibs   []string
	Verbose      bool
}

// Load resolves the final linker.Config for a run, rejecting any target
// platform other than x86_64 Windows.
func Load(f Flags) (linker.Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TYLINK")
	v.AutomaticEnv()
	if f.ConfigFile != "" {
		v.SetConfigFile(f.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return linker.Config{}, fmt.Errorf("config: reading %s: %w", f.ConfigFile, err)
		}
	}

	cfg := linker.DefaultConfig()

	archName := firstNonEmpty(f.Arch, v.GetString("arch"), env.Str("TYLINK_ARCH", "amd64"))
	arch, err := engine.ParseArch(archName)
	if err != nil {
		return linker.Config{}, fmt.Errorf("config: %w", err)
	}

	osName := firstNonEmpty(f.OS, v.GetString("os"), env.Str("TYLINK_OS", "windows"))
	target, err := engine.ParseOS(osName)
	if err != nil {
		return linker.Config{}, fmt.Errorf("config: %w", err)
	}

	platform := engine.Platform{Arch: arch, OS: target}
	if arch != engine.ArchX86_64 || target != engine.OSWindows {
		return linker.Config{}, fmt.Errorf("config: this linker only emits x86_64 PE images, got %s (%s)",
			platform, platform.FullString())
	}

	cfg.OutputFile = firstNonEmpty(f.Output, v.GetString("output"), env.Str("TYLINK_OUTPUT", cfg.OutputFile))
	cfg.EntryPoint = firstNonEmpty(f.EntryPoint, v.GetString("entry"), env.Str("TYLINK_ENTRY", cfg.EntryPoint))
	cfg.DefFile = firstNonEmpty(f.DefFile, v.GetString("deffile"), env.Str("TYLINK_DEFFILE", cfg.DefFile))

	cfg.GenerateDLL = firstBool(f.DLL, v.IsSet("dll") && v.GetBool("dll"), env.Bool("TYLINK_DLL"))
	cfg.GenerateImportLib = firstBool(f.ImportLib, v.IsSet("importlib") && v.GetBool("importlib"), env.Bool("TYLINK_IMPORTLIB"))
	cfg.GenerateMap = firstBool(f.Map, v.IsSet("map") && v.GetBool("map"), env.Bool("TYLINK_MAP"))
	cfg.Verbose = firstBool(f.Verbose, v.IsSet("verbose") && v.GetBool("verbose"), env.Bool("TYLINK_VERBOSE"))

	cfg.ExportSymbols = firstNonEmptyList(f.Exports, v.GetStringSlice("exports"))
	cfg.LibraryPaths = firstNonEmptyList(f.LibraryPaths, v.GetStringSlice("libpaths"))
	cfg.StaticLibs = firstNonEmptyList(f.StaticLibs, v.GetStringSlice("staticlibs"))
	if len(f.DefaultLibs) > 0 {
		cfg.DefaultLibs = f.DefaultLibs
	} else if libs := v.GetStringSlice("defaultlibs"); len(libs) > 0 {
		cfg.DefaultLibs = libs
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptyList(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}

func firstBool(values ...bool) bool {
	for _, v := range values {
		if v {
			return true
		}
	}
	return false
}
