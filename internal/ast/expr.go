package ast

import "github.com/windstream-lang/windstreamc/internal/token"

func (IntLit) exprNode()          {}
func (FloatLit) exprNode()        {}
func (BoolLit) exprNode()         {}
func (StringLit) exprNode()       {}
func (NilLit) exprNode()          {}
func (InterpString) exprNode()    {}
func (Ident) exprNode()           {}
func (Binary) exprNode()          {}
func (Unary) exprNode()           {}
func (Ternary) exprNode()         {}
func (Call) exprNode()            {}
func (Member) exprNode()          {}
func (Index) exprNode()           {}
func (ListLit) exprNode()         {}
func (RecordLit) exprNode()       {}
func (MapLit) exprNode()          {}
func (RangeLit) exprNode()        {}
func (Lambda) exprNode()          {}
func (ListComprehension) exprNode() {}
func (AddressOf) exprNode()       {}
func (Deref) exprNode()           {}
func (NewExpr) exprNode()         {}
func (Cast) exprNode()            {}
func (Await) exprNode()           {}
func (Spawn) exprNode()           {}
func (AssignExpr) exprNode()      {}
func (Propagate) exprNode()       {}
func (DSLBlock) exprNode()        {}
func (MakeSync) exprNode()        {}
func (SyncOp) exprNode()          {}

// --- Literals ---

type IntLit struct {
	Base
	Value int64
}

type FloatLit struct {
	Base
	Value float64
}

type BoolLit struct {
	Base
	Value bool
}

// StringLit is a non-interpolated string literal (no `{...}` segments).
type StringLit struct {
	Base
	Value string
}

type NilLit struct{ Base }

// InterpStringPart is either a plain string segment or an embedded
// expression segment of an interpolated string.
type InterpStringPart struct {
	Text string     // meaningful iff Expr == nil
	Expr Expression // meaningful iff non-nil
}

type InterpString struct {
	Base
	Parts []InterpStringPart
}

type Ident struct {
	Base
	Name string
}

// --- Operators ---

type Binary struct {
	Base
	Op    token.Kind
	Left  Expression
	Right Expression
}

type Unary struct {
	Base
	Op      token.Kind
	Operand Expression
}

type Ternary struct {
	Base
	Cond Expression
	Then Expression
	Else Expression
}

// --- Calls ---

// Arg is a single call argument: positional (Name == "") or named.
type Arg struct {
	Name  string
	Value Expression
}

type Call struct {
	Base
	Callee    Expression
	Args      []Arg
	TypeArgs  []*TypeExpr // explicit generic type arguments, e.g. f[int](x)
	HotCallSite bool      // set when the call was annotated/inferred hot, see spec.md §3
}

type Member struct {
	Base
	Receiver Expression
	Name     string
}

type Index struct {
	Base
	Receiver Expression
	Index    Expression
}

// --- Aggregate literals ---

type ListLit struct {
	Base
	Elems []Expression
}

type RecordFieldValue struct {
	Name  string
	Value Expression
}

type RecordLit struct {
	Base
	TypeName string // "" for an anonymous record literal
	Fields   []RecordFieldValue
}

type MapEntry struct {
	Key   Expression
	Value Expression
}

type MapLit struct {
	Base
	Entries []MapEntry
}

type RangeLit struct {
	Base
	Start Expression
	End   Expression
	Step  Expression // nil when no `by step` clause
}

// --- Functional ---

type Lambda struct {
	Base
	Params []*Param
	Body   Expression
}

type ListComprehension struct {
	Base
	Elem    Expression
	VarName string
	Iter    Expression
	Guard   Expression // nil when no `if` filter
}

// --- Unsafe / memory ---

type AddressOf struct {
	Base
	Operand Expression
}

type Deref struct {
	Base
	Operand Expression
}

type NewExpr struct {
	Base
	Type Expression // typically an Ident/Member naming the record type
	Args []Arg
	IsRecordLiteral bool // true for `new Type{args}` vs `new Type(args)`
}

type Cast struct {
	Base
	Operand Expression
	Type    *TypeExpr
}

// --- Concurrency ---

type Await struct {
	Base
	Operand Expression
}

type Spawn struct {
	Base
	Call Expression // must be a *Call
}

// --- Assignment / control expressions ---

type AssignExpr struct {
	Base
	Target Expression
	Op     token.Kind // ASSIGN, PLUS_ASSIGN, MINUS_ASSIGN, STAR_ASSIGN, SLASH_ASSIGN, PERCENT_ASSIGN
	Value  Expression
}

type Propagate struct {
	Base
	Operand Expression
}

// --- DSL / raw blocks ---

type DSLBlock struct {
	Base
	Name string // e.g. "sql", "html", "regex"
	Raw  string
}

// --- Synchronization primitives ---

// SyncKind enumerates the synchronization primitive constructors.
type SyncKind int

const (
	SyncChan SyncKind = iota
	SyncMutex
	SyncRWLock
	SyncCond
	SyncSemaphore
)

type MakeSync struct {
	Base
	Kind     SyncKind
	ElemType *TypeExpr // for make_chan(T, N) and typed mutex/rwlock
	Capacity Expression // channel buffer size / semaphore initial count, nil if absent
}

// SyncOpKind enumerates operations performed on a sync primitive value.
type SyncOpKind int

const (
	OpLock SyncOpKind = iota
	OpUnlock
	OpRead
	OpWrite
	OpWait
	OpSignal
	OpBroadcast
	OpAcquire
	OpRelease
)

type SyncOp struct {
	Base
	Op       SyncOpKind
	Receiver Expression
	Args     []Expression
}
