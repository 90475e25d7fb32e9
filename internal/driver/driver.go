// Package driver orchestrates the compilation pipeline described in
// spec.md §5 ("lex -> parse -> (collect syntax-macro names) -> expand
// macros -> type-check -> optimize -> monomorphize -> codegen -> assemble
// -> PE-write") and §6 (CLI surface, import splicing). It is the direct
// replacement for std/compiler/main.go's flag-driven driving logic
// (targetBackend globals, runCleanup, the entryFiles loop), re-expressed
// on the AMBIENT STACK's logging/config/debug-dump libraries instead of
// the teacher's bare fmt.Fprintf/os.Exit calls. cmd/windstreamc owns CLI
// flag parsing (cobra) and calls into this package with an Options value.
package driver

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"github.com/windstream-lang/windstreamc/internal/ast"
	"github.com/windstream-lang/windstreamc/internal/check"
	"github.com/windstream-lang/windstreamc/internal/codegen"
	"github.com/windstream-lang/windstreamc/internal/lexer"
	"github.com/windstream-lang/windstreamc/internal/linker"
	"github.com/windstream-lang/windstreamc/internal/mono"
	"github.com/windstream-lang/windstreamc/internal/parser"
	"github.com/windstream-lang/windstreamc/internal/pefile"
	"github.com/windstream-lang/windstreamc/internal/source"
)

// Mode selects what Run produces, mirroring spec.md §6's positional CLI
// flags.
type Mode int

const (
	ModeRun Mode = iota
	ModeCompile
	ModeObject
	ModeLink
)

// Options mirrors the CLI surface of spec.md §6; cmd/windstreamc's cobra
// flags populate one of these and hand it to Run.
type Options struct {
	Mode Mode

	Input      string   // source file (ModeRun/ModeCompile/ModeObject)
	LinkInputs []string // .o files, positional plus -l (ModeLink)
	Output     string   // -o

	PrintTokens bool // -t
	PrintAST    bool // -a
	PrintAsm    bool // -s
	PrintBytecode bool // -b, always a no-op: the bytecode VM is out of scope

	Debug       bool // -d
	Verbose     bool // -v
	OptLevel    string
	NoTypecheck bool // --no-typecheck
	EmitMap     bool // --map

	ConfigPath string // overrides the upward windstream.toml search
}

// Driver holds the logger and source cache shared across one Run call.
type Driver struct {
	log         *logrus.Logger
	cache       *source.Cache
	importPaths []string // extra search directories, from windstream.toml's import_path
}

// New creates a Driver with a logrus logger leveled from opts.Verbose/Debug
// (spec.md AMBIENT STACK "Logging").
func New(opts Options) *Driver {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	if opts.Verbose {
		log.SetLevel(logrus.InfoLevel)
	}
	if opts.Debug {
		log.SetLevel(logrus.DebugLevel)
	}
	return &Driver{log: log, cache: source.NewCache()}
}

// Run executes the pipeline selected by opts.Mode and returns the process
// exit code per spec.md §6 ("0 = success, 1 = any compilation, link,
// type-check, or lex/parse error").
func (d *Driver) Run(opts Options) int {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		d.log.WithError(err).Warn("driver: windstream.toml not loaded")
	}
	opts = applyConfig(opts, cfg)
	d.importPaths = cfg.ImportPath

	switch opts.Mode {
	case ModeLink:
		return d.runLink(opts)
	case ModeRun:
		fmt.Fprintln(os.Stderr, "windstreamc: -r/--run requires the bytecode VM, which is out of scope for this build; use -c to compile a native executable")
		return 1
	default:
		return d.runCompile(opts)
	}
}

// runCompile drives lex -> splice imports -> parse -> type-check ->
// monomorphize -> codegen, then either writes a PE image (ModeCompile) or
// an object file (ModeObject).
func (d *Driver) runCompile(opts Options) int {
	entry := d.log.WithField("stage", "driver").WithField("file", opts.Input)
	entry.Info("compiling")

	prog, err := d.spliceFile(opts.Input, map[string]bool{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if opts.PrintTokens {
		src, _ := d.cache.Load(opts.Input)
		toks, _ := lexer.Tokenize(opts.Input, src)
		spew.Dump(toks)
	}
	if opts.PrintAST {
		spew.Dump(prog)
	}
	if opts.PrintBytecode {
		entry.Warn("-b/--bytecode has no effect: this build has no bytecode VM (spec.md §1 Non-goal)")
	}

	chk := check.New()
	if !opts.NoTypecheck {
		entry.Debug("type checking")
		chk.Check(prog)
		if chk.Diagnostics().HasErrors() {
			w := bufio.NewWriter(os.Stderr)
			chk.Diagnostics().RenderAll(w, d.cache)
			return 1
		}
	}

	entry.Debug("monomorphizing")
	m := mono.New(chk.Registry(), chk)
	insts := m.Run(prog)

	pe := pefile.New()
	gen := codegen.New(pe, chk.Registry(), chk)

	out := opts.Output
	switch opts.Mode {
	case ModeObject:
		if out == "" {
			out = defaultOutput(opts.Input, ".o")
		}
		obj := gen.GenerateObject(prog, insts)
		f, err := os.Create(out)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer f.Close()
		if err := obj.Write(f); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	default: // ModeCompile
		if out == "" {
			out = defaultOutput(opts.Input, ".exe")
		}
		image := gen.Generate(prog, insts)
		if opts.PrintAsm {
			entry.Infof("emitted %d bytes of code", len(image))
		}
		if err := os.WriteFile(out, image, 0o755); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	entry.WithField("output", out).Info("wrote output")
	return 0
}

// runLink drives spec.md §4.11: load every input object, merge, and write
// the resulting PE image (plus an optional .map file).
func (d *Driver) runLink(opts Options) int {
	entry := d.log.WithField("stage", "linker")
	l := linker.New(entry)
	for _, path := range opts.LinkInputs {
		if err := l.LoadObjectFile(path); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	image, mapText, err := l.Link()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	out := opts.Output
	if out == "" {
		out = "output.exe"
	}
	if err := os.WriteFile(out, image, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if opts.EmitMap {
		if err := os.WriteFile(out+".map", []byte(mapText), 0o644); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	entry.WithField("output", out).Info("linked")
	return 0
}

// spliceFile implements spec.md §6's import semantics: path is lexed and
// parsed, then every *ast.ImportStmt among its top-level statements is
// replaced in place by the imported file's own (recursively spliced)
// top-level statements. chain tracks the import path currently being
// expanded so a cycle is reported with the full path rather than looping
// forever; visited (shared across the whole splice, not just the current
// chain) makes a non-cyclic revisit a silent no-op per spec.md §6.
func (d *Driver) spliceFile(path string, chain map[string]bool) (*ast.Program, error) {
	return d.spliceFileVisited(path, chain, map[string]bool{})
}

func (d *Driver) spliceFileVisited(path string, chain, visited map[string]bool) (*ast.Program, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if chain[abs] {
		return nil, fmt.Errorf("windstreamc: import cycle detected at %s", path)
	}

	src, err := d.cache.Load(path)
	if err != nil {
		return nil, fmt.Errorf("windstreamc: %w", err)
	}
	toks, err := lexer.Tokenize(path, src)
	if err != nil {
		return nil, err
	}
	prog, errs := parser.Parse(path, toks)
	if len(errs) > 0 {
		w := bufio.NewWriter(os.Stderr)
		for _, e := range errs {
			e.Diag.Render(w, d.cache)
		}
		w.Flush()
		return nil, fmt.Errorf("windstreamc: %d parse error(s) in %s", len(errs), path)
	}

	chain[abs] = true
	visited[abs] = true
	defer delete(chain, abs)

	spliced := make([]ast.Statement, 0, len(prog.Statements))
	for _, stmt := range prog.Statements {
		imp, ok := stmt.(*ast.ImportStmt)
		if !ok {
			spliced = append(spliced, stmt)
			continue
		}
		target := d.resolveImport(path, imp.Path)
		targetAbs, _ := filepath.Abs(target)
		if visited[targetAbs] && !chain[targetAbs] {
			continue // already spliced elsewhere, non-cyclic revisit
		}
		imported, err := d.spliceFileVisited(target, chain, visited)
		if err != nil {
			return nil, err
		}
		spliced = append(spliced, imported.Statements...)
	}
	prog.Statements = spliced
	return prog, nil
}

// resolveImport resolves an import path relative to the importing file's
// own directory first, then each windstream.toml import_path entry, trying
// the literal path before falling back to a ".ws" suffix, since spec.md §6
// leaves the source extension conventional.
func (d *Driver) resolveImport(fromFile, importPath string) string {
	dirs := append([]string{filepath.Dir(fromFile)}, d.importPaths...)
	for _, dir := range dirs {
		candidate := filepath.Join(dir, importPath)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		if _, err := os.Stat(candidate + ".ws"); err == nil {
			return candidate + ".ws"
		}
	}
	return filepath.Join(dirs[0], importPath) + ".ws"
}

func defaultOutput(input, ext string) string {
	base := input[:len(input)-len(filepath.Ext(input))]
	return base + ext
}
