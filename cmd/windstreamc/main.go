// Command windstreamc is the CLI entrypoint described in spec.md §6,
// replacing std/compiler/main.go's hand-rolled os.Args loop with a cobra
// command tree per SPEC_FULL.md's AMBIENT STACK. All pipeline work happens
// in internal/driver; this file only parses flags and maps them onto a
// driver.Options value.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/windstream-lang/windstreamc/internal/driver"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		compile     bool
		obj         bool
		link        bool
		runVM       bool
		output      string
		linkExtra   []string
		printTokens bool
		printAST    bool
		printAsm    bool
		printByte   bool
		debug       bool
		verbose     bool
		optLevel    string
		noTypecheck bool
		emitMap     bool
		configPath  string
	)

	root := &cobra.Command{
		Use:           "windstreamc [flags] <file | object files...>",
		Short:         "Windstream compiler: lex, parse, type-check, and emit a native Windows x64 executable",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := driver.Options{
				Output:        output,
				LinkInputs:    append(append([]string{}, args...), linkExtra...),
				PrintTokens:   printTokens,
				PrintAST:      printAST,
				PrintAsm:      printAsm,
				PrintBytecode: printByte,
				Debug:         debug,
				Verbose:       verbose,
				OptLevel:      optLevel,
				NoTypecheck:   noTypecheck,
				EmitMap:       emitMap,
				ConfigPath:    configPath,
			}

			switch {
			case link:
				opts.Mode = driver.ModeLink
			case obj:
				opts.Mode = driver.ModeObject
				opts.Input = args[0]
			case runVM:
				opts.Mode = driver.ModeRun
				opts.Input = args[0]
			default:
				opts.Mode = driver.ModeCompile
				opts.Input = args[0]
			}

			code := driver.New(opts).Run(opts)
			if code != 0 {
				return fmt.Errorf("exit %d", code)
			}
			return nil
		},
	}

	flags := root.Flags()
	flags.BoolVarP(&runVM, "run", "r", false, "compile to bytecode and execute in the VM (unsupported: no bytecode VM in this build)")
	flags.BoolVarP(&compile, "compile", "c", false, "compile to a native .exe (default)")
	flags.BoolVarP(&obj, "obj", "S", false, "compile to a .o object file")
	flags.BoolVar(&link, "link", false, "link object files into an executable")
	flags.StringVarP(&output, "output", "o", "", "output path")
	flags.StringArrayVarP(&linkExtra, "link-object", "l", nil, "add an object to the link input")
	flags.BoolVarP(&printTokens, "tokens", "t", false, "print the token stream")
	flags.BoolVarP(&printAST, "ast", "a", false, "print the AST")
	flags.BoolVarP(&printAsm, "asm", "s", false, "log the emitted code size at info level (no assembly listing)")
	flags.BoolVarP(&printByte, "bytecode", "b", false, "print bytecode (unsupported: no bytecode VM in this build)")
	flags.BoolVarP(&debug, "debug", "d", false, "debug logging (no VM execution trace: no bytecode VM in this build)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	flags.StringVarP(&optLevel, "opt", "O", "", "optimization level: 0-3, s, z, fast")
	flags.BoolVar(&noTypecheck, "no-typecheck", false, "skip type checking")
	flags.BoolVar(&emitMap, "map", false, "emit a linker .map file alongside the output")
	flags.StringVar(&configPath, "config", "", "path to windstream.toml (default: search upward from cwd)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "windstreamc:", err)
		return 1
	}
	return 0
}
