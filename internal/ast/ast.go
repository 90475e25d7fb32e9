// Package ast defines the abstract syntax tree: two disjoint hierarchies,
// Expression and Statement, over concrete node structs, following spec.md
// §3. Per the redesign note in spec.md §9, this replaces the teacher's
// single universal Node+visitor-hierarchy pattern (std/compiler/parser.go
// NodeKind/Node) with Go's native sum-type idiom: interfaces implemented by
// concrete structs, dispatched with a type switch in Walk rather than a
// generated ~90-method visitor interface.
package ast

import "github.com/windstream-lang/windstreamc/internal/source"

// Node is the common Base of every AST node: a source location.
type Node interface {
	Location() source.Pos
}

// Base is embedded by every concrete node and implements Node.
type Base struct {
	Pos source.Pos
}

func (b Base) Location() source.Pos { return b.Pos }

// Expression is implemented by every expression node.
type Expression interface {
	Node
	exprNode()
}

// Statement is implemented by every statement node.
type Statement interface {
	Node
	stmtNode()
}

// Program is the AST root; it owns every node transitively (spec.md §3
// Lifecycles: "AST nodes are owned by the Program root; nothing else owns
// them").
type Program struct {
	Base
	Statements []Statement
}

// TypeExpr is the parsed (not yet resolved) form of a type annotation, as
// produced by the parser's type grammar (spec.md §4.2 "Types"). It is
// resolved to a types.Type by the type checker.
type TypeExpr struct {
	Base
	Name        string      // primitive or named type, "" for compound forms
	PointerTo   *TypeExpr   // *T
	RefTo       *TypeExpr   // &T / &mut T
	RefMutable  bool
	ListOf      *TypeExpr   // [T]
	ArrayOf     *TypeExpr   // [T; N]
	ArraySize   int64
	GenericArgs []*TypeExpr // Name[T1, T2, ...]
	Nullable    bool        // T?
}

func (t *TypeExpr) Location() source.Pos { return t.Pos }

// Attribute is a parsed `#[...]` marker attached to a declaration, e.g.
// repr(C), repr(packed), repr(align(N)), hot, cold, inline, naked, or a
// calling-convention marker (cdecl/stdcall/win64).
type Attribute struct {
	Name string
	Args []string
}

// Param is a function or lambda parameter.
type Param struct {
	Base
	Name string
	Type *TypeExpr // nil when unannotated (lambda params may omit it)
}

// TypeParam is a generic type parameter declaration, e.g. `T` in `fn id[T]`.
type TypeParam struct {
	Name    string
	Bounds  []string // trait names this parameter is bound by
	Default *TypeExpr
}
