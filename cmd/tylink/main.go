// Command tylink links relocatable object files into a Windows PE image
// and runs the standalone AST optimizer pipeline, as two subcommands of
// one cobra-based binary.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xyproto/tylink/internal/ast"
	"github.com/xyproto/tylink/internal/config"
	"github.com/xyproto/tylink/internal/diag"
	"github.com/xyproto/tylink/internal/linker"
	"github.com/xyproto/tylink/internal/logging"
	"github.com/xyproto/tylink/internal/objfile"
	"github.com/xyproto/tylink/internal/optimizer"
)

var (
	cfgFile string
	jsonLog string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tylink",
	Short: "Link object files into PE images, or run the AST optimizer pipeline",
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (TOML, YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&jsonLog, "json-log", "", "also write structured JSON logs to this file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newLinkCmd())
	rootCmd.AddCommand(newOptCmd())
}

// initConfig lets viper pick up TYLINK_* environment variables even for
// flags the caller never binds to it directly; internal/config.Load does
// the actual per-run layered resolution.
func initConfig() {
	viper.SetEnvPrefix("TYLINK")
	viper.AutomaticEnv()
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		_ = viper.ReadInConfig()
	}
}

func newLogger() (*slog.Logger, func(), error) {
	if jsonLog == "" {
		return logging.New(verbose, nil), func() {}, nil
	}
	f, err := os.Create(jsonLog)
	if err != nil {
		return nil, nil, fmt.Errorf("tylink: opening json log %s: %w", jsonLog, err)
	}
	return logging.New(verbose, f), func() { f.Close() }, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLinkCmd() *cobra.Command {
	var (
		output      string
		entry       string
		arch        string
		targetOS    string
		dll         bool
		importLib   bool
		defFile     string
		genMap      bool
		exports     []string
		libPaths    []string
		defaultLibs []string
		staticLibs  []string
	)

	cmd := &cobra.Command{
		Use:   "link [object files...]",
		Short: "Link object files into a Windows PE executable or DLL",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, closeLog, err := newLogger()
			if err != nil {
				return err
			}
			defer closeLog()

			cfg, err := config.Load(config.Flags{
				ConfigFile:   cfgFile,
				Output:       output,
				EntryPoint:   entry,
				Arch:         arch,
				OS:           targetOS,
				DLL:          dll,
				ImportLib:    importLib,
				DefFile:      defFile,
				Map:          genMap,
				Exports:      exports,
				LibraryPaths: libPaths,
				DefaultLibs:  defaultLibs,
				StaticLibs:   staticLibs,
				Verbose:      verbose,
			})
			if err != nil {
				return err
			}

			var diags diag.Diagnostics

			objects := make([]*objfile.File, 0, len(args))
			for _, path := range args {
				obj := objfile.New(path)
				if err := obj.Read(path); err != nil {
					diags.Errorf(path, "%v", err)
					continue
				}
				objects = append(objects, obj)
			}
			if diags.HasErrors() {
				diags.Print(os.Stderr)
				return fmt.Errorf("tylink: failed reading input objects")
			}

			var def *linker.DefFile
			if cfg.DefFile != "" {
				def, err = linker.ParseDef(cfg.DefFile)
				if err != nil {
					return fmt.Errorf("tylink: %w", err)
				}
			}

			l := linker.New(cfg, objects, def, log)
			res, err := l.Link()
			if err != nil {
				diags.Errorf("link", "%v", err)
				diags.Print(os.Stderr)
				return err
			}

			if err := os.WriteFile(cfg.OutputFile, res.Image, 0o644); err != nil {
				return fmt.Errorf("tylink: writing %s: %w", cfg.OutputFile, err)
			}

			if cfg.GenerateMap {
				mapPath := cfg.OutputFile + ".map"
				if err := os.WriteFile(mapPath, []byte(res.MapText), 0o644); err != nil {
					return fmt.Errorf("tylink: writing %s: %w", mapPath, err)
				}
			}

			if cfg.GenerateImportLib {
				lib, err := l.BuildImportLibrary()
				if err != nil {
					return fmt.Errorf("tylink: building import library: %w", err)
				}
				libPath := cfg.OutputFile + ".lib"
				if err := os.WriteFile(libPath, lib, 0o644); err != nil {
					return fmt.Errorf("tylink: writing %s: %w", libPath, err)
				}
			}

			diags.Print(os.Stderr)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output image path")
	cmd.Flags().StringVar(&entry, "entry", "", "entry point symbol")
	cmd.Flags().StringVar(&arch, "arch", "", "target architecture (only amd64 is supported)")
	cmd.Flags().StringVar(&targetOS, "os", "", "target OS (only windows is supported)")
	cmd.Flags().BoolVar(&dll, "dll", false, "generate a DLL instead of an executable")
	cmd.Flags().BoolVar(&importLib, "implib", false, "also generate a .lib import library")
	cmd.Flags().StringVar(&defFile, "deffile", "", "module-definition (.def) file")
	cmd.Flags().BoolVar(&genMap, "map", false, "also generate a .map file")
	cmd.Flags().StringSliceVar(&exports, "export", nil, "additional symbol to export (DLL builds)")
	cmd.Flags().StringSliceVar(&libPaths, "libpath", nil, "additional static library search path")
	cmd.Flags().StringSliceVar(&defaultLibs, "defaultlib", nil, "implicit DLL import (overrides kernel32.dll default)")
	cmd.Flags().StringSliceVar(&staticLibs, "staticlib", nil, "static library (.lib/.a) to resolve symbols against")

	return cmd
}

func newOptCmd() *cobra.Command {
	var (
		input  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "opt",
		Short: "Run the AST optimizer pipeline over a serialized program, printing per-pass stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, closeLog, err := newLogger()
			if err != nil {
				return err
			}
			defer closeLog()

			var data []byte
			if input == "" || input == "-" {
				data, err = io.ReadAll(os.Stdin)
			} else {
				data, err = os.ReadFile(input)
			}
			if err != nil {
				return fmt.Errorf("tylink: reading input: %w", err)
			}

			prog, err := ast.DecodeProgram(data)
			if err != nil {
				return fmt.Errorf("tylink: decoding AST: %w", err)
			}

			result, stats := optimizer.Run(prog, optimizer.DefaultPipeline())

			for _, p := range optimizer.DefaultPipeline() {
				s := stats[p.Name()]
				log.Info("pass complete", "pass", p.Name(), "transformed", s.Transformed, "skipped", s.Skipped)
			}

			out, err := ast.EncodeProgram(result)
			if err != nil {
				return fmt.Errorf("tylink: encoding AST: %w", err)
			}

			if output == "" || output == "-" {
				_, err = os.Stdout.Write(out)
				return err
			}
			return os.WriteFile(output, out, 0o644)
		},
	}

	cmd.Flags().StringVar(&input, "input", "-", "serialized AST file (- for stdin)")
	cmd.Flags().StringVar(&output, "output", "-", "where to write the optimized, serialized AST (- for stdout)")

	return cmd
}
