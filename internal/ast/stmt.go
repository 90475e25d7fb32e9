package ast

import "github.com/windstream-lang/windstreamc/internal/token"

func (ExprStmt) stmtNode()       {}
func (VarDecl) stmtNode()        {}
func (DestructureDecl) stmtNode() {}
func (CompoundAssignStmt) stmtNode() {}
func (BlockStmt) stmtNode()      {}
func (IfStmt) stmtNode()         {}
func (WhileStmt) stmtNode()      {}
func (ForInStmt) stmtNode()      {}
func (MatchStmt) stmtNode()      {}
func (ReturnStmt) stmtNode()     {}
func (BreakStmt) stmtNode()      {}
func (ContinueStmt) stmtNode()   {}
func (TryElseStmt) stmtNode()    {}
func (FuncDecl) stmtNode()       {}
func (RecordDecl) stmtNode()     {}
func (UnionDecl) stmtNode()      {}
func (EnumDecl) stmtNode()       {}
func (TypeAliasDecl) stmtNode()  {}
func (TraitDecl) stmtNode()      {}
func (ImplDecl) stmtNode()       {}
func (UnsafeStmt) stmtNode()     {}
func (ImportStmt) stmtNode()     {}
func (ExternBlock) stmtNode()    {}
func (MacroDecl) stmtNode()      {}
func (SyntaxMacroDecl) stmtNode() {}
func (LayerDecl) stmtNode()      {}
func (UseDecl) stmtNode()        {}
func (ModuleDecl) stmtNode()     {}
func (DeleteStmt) stmtNode()     {}
func (LockStmt) stmtNode()       {}
func (AsmStmt) stmtNode()        {}
func (ConstDecl) stmtNode()      {}

type ExprStmt struct {
	Base
	X Expression
}

type VarDecl struct {
	Base
	Name    string
	Mutable bool
	Type    *TypeExpr // nil when inferred
	Init    Expression // nil when uninitialized
}

// ConstDecl models `NAME :: value`, recognized at expression-statement
// level per spec.md §4.2.
type ConstDecl struct {
	Base
	Name  string
	Value Expression
}

// DestructurePattern is one binding within a tuple or record destructure.
type DestructurePattern struct {
	Name  string // bound variable name
	Field string // for record shape: the source field name (may differ from Name via `field: name`)
}

type DestructureDecl struct {
	Base
	IsRecordShape bool // false => tuple shape (a, b, c) = rhs
	Mutable       bool
	Patterns      []DestructurePattern
	Value         Expression
}

type CompoundAssignStmt struct {
	Base
	Target Expression
	Op     token.Kind
	Value  Expression
}

type BlockStmt struct {
	Base
	Statements []Statement
}

type ElifBranch struct {
	Cond Expression
	Body *BlockStmt
}

type IfStmt struct {
	Base
	Cond  Expression
	Then  *BlockStmt
	Elifs []ElifBranch
	Else  *BlockStmt // nil when absent
}

type WhileStmt struct {
	Base
	Cond Expression
	Body *BlockStmt
}

type ForInStmt struct {
	Base
	VarName string
	Iter    Expression
	Body    *BlockStmt
}

// Pattern is a match-case pattern: a literal, an identifier binding, or the
// wildcard `_` (represented by Wildcard == true).
type Pattern struct {
	Base
	Wildcard bool
	Ident    string     // binding name, meaningful when not a literal pattern
	Literal  Expression // literal pattern to compare against, nil for bindings/wildcard
}

type MatchCase struct {
	Pattern *Pattern
	Guard   Expression // nil when no `if` guard
	Body    *BlockStmt
}

type MatchStmt struct {
	Base
	Value Expression
	Cases []MatchCase
}

type ReturnStmt struct {
	Base
	Value Expression // nil for bare `return`
}

type BreakStmt struct{ Base }
type ContinueStmt struct{ Base }

type TryElseStmt struct {
	Base
	Try  *BlockStmt
	Name string // bound error/exception name in the else branch, may be ""
	Else *BlockStmt
}

// CallingConvention names the ABI a function uses, relevant to extern
// declarations and FFI trampolines (spec.md §4.10.9).
type CallingConvention int

const (
	ConvDefault CallingConvention = iota // internal win64 convention
	ConvCDecl
	ConvStdCall
	ConvWin64
)

// FuncFlags bundles the boolean declaration flags from spec.md §3.
type FuncFlags struct {
	Pub      bool
	Extern   bool
	Async    bool
	Hot      bool
	Cold     bool
	Variadic bool
	Naked    bool
}

type FuncDecl struct {
	Base
	Name       string
	TypeParams []*TypeParam
	Params     []*Param
	ReturnType *TypeExpr // nil => void
	Body       *BlockStmt // nil for extern/declaration-only functions
	Conv       CallingConvention
	Flags      FuncFlags
	Attrs      []Attribute
}

// BitfieldSpec describes a `field: uN @ offset` bitfield member of a record.
type BitfieldSpec struct {
	FieldName string
	BitWidth  int
	BitOffset int
}

type RecordField struct {
	Name string
	Type *TypeExpr
	Bitfield *BitfieldSpec // nil for ordinary (non-bitfield) fields
}

type RecordDecl struct {
	Base
	Name       string
	TypeParams []*TypeParam
	Fields     []RecordField
	Attrs      []Attribute // repr(C)/packed/align(N) among others
}

type UnionDecl struct {
	Base
	Name       string
	TypeParams []*TypeParam
	Fields     []RecordField
}

type EnumVariant struct {
	Name   string
	Fields []*TypeExpr // associated data types, empty for a unit variant
}

type EnumDecl struct {
	Base
	Name     string
	Variants []EnumVariant
}

type TypeAliasDecl struct {
	Base
	Name string
	Type *TypeExpr
}

type MethodSig struct {
	Name       string
	Params     []*Param
	ReturnType *TypeExpr
	HasDefault bool
	Default    *BlockStmt // body, present iff HasDefault
}

type TraitDecl struct {
	Base
	Name       string
	TypeParams []*TypeParam
	Supers     []string // super-trait names
	Methods    []MethodSig
}

type ImplDecl struct {
	Base
	TraitName string // "" for an inherent impl (no trait)
	ForType   *TypeExpr
	TypeArgs  []*TypeExpr
	Methods   []*FuncDecl
}

type UnsafeStmt struct {
	Base
	Body *BlockStmt
}

type ImportStmt struct {
	Base
	Path string
}

type ExternParam struct {
	Name string
	Type *TypeExpr
}

type ExternFuncDecl struct {
	Name       string
	Params     []ExternParam
	ReturnType *TypeExpr
	Variadic   bool
}

type ExternBlock struct {
	Base
	Conv    CallingConvention
	Library string // DLL/library name
	Funcs   []ExternFuncDecl
}

// MacroDecl, SyntaxMacroDecl, LayerDecl, UseDecl, and ModuleDecl are opaque
// to the core pipeline (spec.md §1 Out of scope): the parser records their
// raw extent so a downstream macro expander or module resolver (outside
// this module) can process them; the core passes (type checker, codegen)
// skip over them structurally.
type MacroDecl struct {
	Base
	Name string
	Raw  string
}

type SyntaxMacroDecl struct {
	Base
	Name string
	Raw  string
}

type LayerDecl struct {
	Base
	Name string
	Raw  string
}

type UseDecl struct {
	Base
	Path string
}

type ModuleDecl struct {
	Base
	Name string
	Body []Statement
}

type DeleteStmt struct {
	Base
	Operand Expression
}

type LockStmt struct {
	Base
	Guard Expression // a mutex/rwlock-valued expression
	Body  *BlockStmt
}

// AsmOperand binds a register or memory operand of an inline-assembly
// statement to a source-level expression.
type AsmOperand struct {
	Constraint string // e.g. "=r", "r", "m"
	Value      Expression
}

type AsmStmt struct {
	Base
	Text    string
	Inputs  []AsmOperand
	Outputs []AsmOperand
	Clobbers []string
}
