// Package symtab implements the lexical scope chain described in spec.md
// §4.3: a singly-linked scope stack with typed scope kinds, a symbol table
// per scope, a separate global name->Type registry, and local stack-offset
// allocation. Grounded on the teacher's std/compiler/frontend.go
// Symbol/SymKind/Package.Symbols shape (a flat name->*Symbol map per
// package), generalized here into a proper nested scope stack since this
// spec needs lexical block/function/loop/unsafe scopes (the teacher's
// Go-subset only tracks one scope per package).
package symtab

import (
	"fmt"

	"github.com/windstream-lang/windstreamc/internal/types"
)

// Kind enumerates symbol roles, mirroring the teacher's SymKind plus
// spec.md's additional PARAMETER kind (needed for the checker's
// unused-variable pass, which only warns on VARIABLE/PARAMETER symbols).
type Kind int

const (
	KindFunc Kind = iota
	KindType
	KindVar
	KindParam
	KindConst
	KindTrait
)

// Symbol is a named entity bound in some scope.
type Symbol struct {
	Name     string
	Kind     Kind
	Type     *types.Type
	Offset   int  // stack offset for KindVar/KindParam, allocated via Scope.AllocateLocal
	IsUsed   bool
	Mutable  bool
	DeclLine int
}

// ScopeKind labels the kind of lexical region a Scope represents, letting
// InFunction/InLoop/InUnsafe walk up looking for a specific kind.
type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota
	ScopeModule
	ScopeFunction
	ScopeBlock
	ScopeLoop
	ScopeUnsafe
)

// Scope is one frame of the lexical scope chain.
type Scope struct {
	Kind    ScopeKind
	Parent  *Scope
	symbols map[string]*Symbol
	cursor  int // per-scope stack-offset cursor, decremented by AllocateLocal
}

func newScope(kind ScopeKind, parent *Scope) *Scope {
	return &Scope{Kind: kind, Parent: parent, symbols: map[string]*Symbol{}}
}

// Define inserts sym into the scope, failing if the name is already bound
// *in this scope* (shadowing an outer scope's binding is allowed).
func (s *Scope) Define(sym *Symbol) error {
	if _, exists := s.symbols[sym.Name]; exists {
		return fmt.Errorf("duplicateSymbol: %q is already defined in this scope", sym.Name)
	}
	s.symbols[sym.Name] = sym
	return nil
}

// LookupLocal returns a symbol defined directly in this scope, without
// walking parents.
func (s *Scope) LookupLocal(name string) (*Symbol, bool) {
	sym, ok := s.symbols[name]
	return sym, ok
}

// Lookup walks this scope and its parents until a hit or the chain ends.
func (s *Scope) Lookup(name string) (*Symbol, bool) {
	for sc := s; sc != nil; sc = sc.Parent {
		if sym, ok := sc.symbols[name]; ok {
			return sym, true
		}
	}
	return nil, false
}

// AllocateLocal decrements this scope's stack cursor by size (rounded up to
// 8-byte alignment, matching the x64 word size assumed throughout codegen)
// and returns the new offset, per spec.md §4.3 "allocateLocal(size) ...
// decrements a per-scope cursor and returns the new offset."
func (s *Scope) AllocateLocal(size int) int {
	aligned := (size + 7) / 8 * 8
	if aligned == 0 {
		aligned = 8
	}
	s.cursor -= aligned
	return s.cursor
}

// All returns every symbol defined directly in this scope, used by the type
// checker's unused-variable pass when a scope is popped.
func (s *Scope) All() []*Symbol {
	out := make([]*Symbol, 0, len(s.symbols))
	for _, sym := range s.symbols {
		out = append(out, sym)
	}
	return out
}

// Table owns the scope chain plus the separate global type registry
// (spec.md §4.3: "a separate name -> TypePtr map registered via
// registerType (types live globally, not per scope)").
type Table struct {
	global  *Scope
	current *Scope
	types   map[string]*types.Type
}

// New creates a Table with an empty global scope.
func New() *Table {
	g := newScope(ScopeGlobal, nil)
	return &Table{global: g, current: g, types: map[string]*types.Type{}}
}

func (t *Table) GlobalScope() *Scope  { return t.global }
func (t *Table) CurrentScope() *Scope { return t.current }

// PushScope enters a new child scope of the given kind and returns it; the
// caller must call PopScope when leaving it.
func (t *Table) PushScope(kind ScopeKind) *Scope {
	s := newScope(kind, t.current)
	t.current = s
	return s
}

// PopScope leaves the current scope, returning it so the caller (the type
// checker) can run its unused-variable pass over Scope.All() before
// discarding it.
func (t *Table) PopScope() *Scope {
	popped := t.current
	if popped.Parent != nil {
		t.current = popped.Parent
	}
	return popped
}

// Define inserts sym into the current scope.
func (t *Table) Define(sym *Symbol) error {
	return t.current.Define(sym)
}

// Lookup walks from the current scope outward.
func (t *Table) Lookup(name string) (*Symbol, bool) {
	return t.current.Lookup(name)
}

// LookupLocal looks only in the current scope.
func (t *Table) LookupLocal(name string) (*Symbol, bool) {
	return t.current.LookupLocal(name)
}

// RegisterType installs a named type in the global type map, independent of
// the lexical scope chain.
func (t *Table) RegisterType(name string, typ *types.Type) {
	t.types[name] = typ
}

// LookupType returns a previously registered named type.
func (t *Table) LookupType(name string) (*types.Type, bool) {
	typ, ok := t.types[name]
	return typ, ok
}

// InFunction reports whether the current scope chain passes through a
// function scope before hitting global.
func (t *Table) InFunction() bool { return t.walkForKind(ScopeFunction) }

// InLoop reports whether the current scope chain passes through a loop
// scope, used to validate break/continue placement.
func (t *Table) InLoop() bool { return t.walkForKind(ScopeLoop) }

// InUnsafe reports whether the current scope chain passes through an
// unsafe scope, used to gate `&`/`*` per spec.md §4.5.
func (t *Table) InUnsafe() bool { return t.walkForKind(ScopeUnsafe) }

func (t *Table) walkForKind(kind ScopeKind) bool {
	for s := t.current; s != nil; s = s.Parent {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

// AllocateLocal allocates a stack slot in the current scope.
func (t *Table) AllocateLocal(size int) int {
	return t.current.AllocateLocal(size)
}
