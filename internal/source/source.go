// Package source caches source files by path and renders diagnostics with
// location spans, following the source cache & diagnostics component of
// the compilation pipeline.
package source

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Pos is a 1-based line/column location within a named file.
type Pos struct {
	File   string
	Line   int
	Column int
}

func (p Pos) String() string {
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// IsValid reports whether p carries a real file name.
func (p Pos) IsValid() bool {
	return p.File != ""
}

// Cache holds the bytes and a line index for every source file read during
// a compilation, keyed by path. It is populated once per file on first
// access and never mutated afterward, so it is safe to share across the
// pipeline's passes.
type Cache struct {
	files map[string]*cachedFile
}

type cachedFile struct {
	path      string
	bytes     []byte
	lineStart []int // byte offset of the start of each line (0-based line index)
}

// NewCache creates an empty source cache.
func NewCache() *Cache {
	return &Cache{files: make(map[string]*cachedFile)}
}

// Load reads path (unless already cached) and returns its raw bytes.
func (c *Cache) Load(path string) ([]byte, error) {
	if f, ok := c.files[path]; ok {
		return f.bytes, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c.Put(path, data)
	return data, nil
}

// Put registers source bytes under path without touching the filesystem;
// used for REPL-fed or spliced (imported) sources.
func (c *Cache) Put(path string, data []byte) {
	f := &cachedFile{path: path, bytes: data}
	f.lineStart = append(f.lineStart, 0)
	for i, b := range data {
		if b == '\n' {
			f.lineStart = append(f.lineStart, i+1)
		}
	}
	c.files[path] = f
}

// Line returns the raw text of the given 1-based line number, without the
// trailing newline. Returns "" if the file or line is unknown.
func (c *Cache) Line(path string, line int) string {
	f, ok := c.files[path]
	if !ok || line < 1 || line > len(f.lineStart) {
		return ""
	}
	start := f.lineStart[line-1]
	end := len(f.bytes)
	if line < len(f.lineStart) {
		end = f.lineStart[line] - 1
	}
	if end < start {
		end = start
	}
	return strings.TrimRight(string(f.bytes[start:end]), "\r")
}

// Level is the severity of a Diagnostic.
type Level int

const (
	Error Level = iota
	Warning
	Note
)

func (l Level) String() string {
	switch l {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Note:
		return "note"
	default:
		return "unknown"
	}
}

// Diagnostic is a single compiler-emitted message tied to a source span.
type Diagnostic struct {
	Level   Level
	Message string
	Pos     Pos
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s: %s", d.Pos, d.Level, d.Message)
}

// Render writes the diagnostic in "file:line:col: level: message" form,
// followed by the offending source line and a caret under the column, to w.
func (d Diagnostic) Render(w *bufio.Writer, cache *Cache) {
	fmt.Fprintf(w, "%s: %s: %s\n", d.Pos, d.Level, d.Message)
	if cache == nil || !d.Pos.IsValid() {
		return
	}
	line := cache.Line(d.Pos.File, d.Pos.Line)
	if line == "" {
		return
	}
	fmt.Fprintf(w, "    %s\n", line)
	col := d.Pos.Column
	if col < 1 {
		col = 1
	}
	fmt.Fprintf(w, "    %s^\n", strings.Repeat(" ", col-1))
}

// Bag accumulates diagnostics across a pass that must not abort on the
// first error (the type checker uses this; the parser instead returns its
// errors as a []*parser.Error).
type Bag struct {
	diags []Diagnostic
}

func (b *Bag) Add(level Level, pos Pos, format string, args ...interface{}) {
	b.diags = append(b.diags, Diagnostic{Level: level, Message: fmt.Sprintf(format, args...), Pos: pos})
}

func (b *Bag) Errorf(pos Pos, format string, args ...interface{}) {
	b.Add(Error, pos, format, args...)
}

func (b *Bag) Warnf(pos Pos, format string, args ...interface{}) {
	b.Add(Warning, pos, format, args...)
}

func (b *Bag) Notef(pos Pos, format string, args ...interface{}) {
	b.Add(Note, pos, format, args...)
}

// HasErrors reports whether any Error-level diagnostic was recorded.
func (b *Bag) HasErrors() bool {
	for _, d := range b.diags {
		if d.Level == Error {
			return true
		}
	}
	return false
}

// All returns every diagnostic recorded so far, in emission order.
func (b *Bag) All() []Diagnostic {
	return b.diags
}

// RenderAll renders every diagnostic in the bag to w.
func (b *Bag) RenderAll(w *bufio.Writer, cache *Cache) {
	for _, d := range b.diags {
		d.Render(w, cache)
	}
	w.Flush()
}
