// Package types implements the process-wide type registry described in
// spec.md §4.4: canonical instances of every primitive, named-type and
// trait maps, generic instantiation, and type-parameter substitution.
// Grounded on the teacher's std/compiler/ir.go TypeKind/TypeInfo shape,
// generalized from the teacher's flat Go-subset kind set to the full
// structural+nominal kind set spec.md §3 "Type representation" names.
package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind enumerates every type-system variant named in spec.md §3.
type Kind int

const (
	Void Kind = iota
	Bool
	Int // sized integer; Width distinguishes i8/i16/i32/i64/u8/u16/u32/u64
	Float
	String
	List
	Map
	Record
	Union
	Function
	Pointer
	Reference
	Any
	Never
	Unknown
	ErrorResult // the Ok(v)/Err(v) tagged-union result type
	TypeParam
	Generic
	Trait
	TraitObject
	FixedArray
	Channel
	Mutex
	RWLock
	Cond
	Semaphore
)

// Type is the canonical, interned representation of a Windstream type.
// Instances for primitives are shared singletons from a Registry; compound
// types (pointers, lists, generics, ...) are heap-allocated per distinct
// shape but compare via Equals, not pointer identity, since two separately
// parsed occurrences of `*int` must compare equal.
type Type struct {
	Kind Kind

	Name string // primitive spelling ("i64", "f64", ...) or named-type/trait/type-param name

	Width    int  // bit width for Int (8/16/32/64) and Float (32/64)
	Unsigned bool // for Int

	Elem *Type // Pointer/Reference/List/FixedArray/Channel element type
	Key  *Type // Map key type

	Mutable  bool // Reference: &mut T; also used for mutable bindings generally
	Nullable bool // T?

	ArrayLen int64 // FixedArray length

	Fields []Field // Record/Union fields, in declaration order

	Params  []*Type // Function parameter types
	Results *Type   // Function return type (Void if none)

	GenericBase *Type   // for Generic: the uninstantiated base (Record/Trait/Function)
	GenericArgs []*Type // for Generic: the concrete/partial type arguments

	Bounds []string // for TypeParam: the trait names it must satisfy
}

// Field describes one record/union member.
type Field struct {
	Name string
	Type *Type
}

func (t *Type) String() string {
	switch t.Kind {
	case Void:
		return "void"
	case Bool:
		return "bool"
	case Int:
		if t.Unsigned {
			return fmt.Sprintf("u%d", t.Width)
		}
		return fmt.Sprintf("i%d", t.Width)
	case Float:
		return fmt.Sprintf("f%d", t.Width)
	case String:
		return "string"
	case Any:
		return "any"
	case Never:
		return "never"
	case Unknown:
		return "unknown"
	case ErrorResult:
		return fmt.Sprintf("Result[%s]", t.Elem)
	case Pointer:
		return "*" + t.Elem.String()
	case Reference:
		if t.Mutable {
			return "&mut " + t.Elem.String()
		}
		return "&" + t.Elem.String()
	case List:
		return "[" + t.Elem.String() + "]"
	case FixedArray:
		return fmt.Sprintf("[%s; %d]", t.Elem, t.ArrayLen)
	case Map:
		return fmt.Sprintf("map[%s]%s", t.Key, t.Elem)
	case Channel:
		return "chan[" + t.Elem.String() + "]"
	case Mutex, RWLock, Cond, Semaphore:
		return t.Name
	case TypeParam:
		return t.Name
	case Record, Union, Trait:
		return t.Name
	case TraitObject:
		return "dyn " + t.Name
	case Function:
		parts := make([]string, len(t.Params))
		for i, p := range t.Params {
			parts[i] = p.String()
		}
		return fmt.Sprintf("fn(%s) -> %s", strings.Join(parts, ", "), t.Results)
	case Generic:
		parts := make([]string, len(t.GenericArgs))
		for i, a := range t.GenericArgs {
			parts[i] = a.String()
		}
		return fmt.Sprintf("%s[%s]", t.GenericBase, strings.Join(parts, ", "))
	}
	return "?"
}

// Equals reports structural equality, not identity: two independently built
// `*int` instances must compare equal so the checker can unify them.
func (t *Type) Equals(o *Type) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil {
		return false
	}
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case Int:
		return t.Width == o.Width && t.Unsigned == o.Unsigned
	case Float:
		return t.Width == o.Width
	case Pointer, List, Channel:
		return t.Elem.Equals(o.Elem)
	case FixedArray:
		return t.ArrayLen == o.ArrayLen && t.Elem.Equals(o.Elem)
	case Reference:
		return t.Mutable == o.Mutable && t.Elem.Equals(o.Elem)
	case Map:
		return t.Key.Equals(o.Key) && t.Elem.Equals(o.Elem)
	case Record, Union, Trait, Mutex, RWLock, Cond, Semaphore, TypeParam, TraitObject:
		return t.Name == o.Name
	case Function:
		if len(t.Params) != len(o.Params) {
			return false
		}
		for i := range t.Params {
			if !t.Params[i].Equals(o.Params[i]) {
				return false
			}
		}
		return t.Results.Equals(o.Results)
	case Generic:
		if !t.GenericBase.Equals(o.GenericBase) || len(t.GenericArgs) != len(o.GenericArgs) {
			return false
		}
		for i := range t.GenericArgs {
			if !t.GenericArgs[i].Equals(o.GenericArgs[i]) {
				return false
			}
		}
		return true
	case ErrorResult:
		return t.Elem.Equals(o.Elem)
	default:
		return true // Void/Bool/String/Any/Never/Unknown carry no payload
	}
}

// Clone performs a deep structural copy: compound fields are cloned
// recursively so substitution (see SubstituteTypeParams) never mutates a
// shared canonical instance.
func (t *Type) Clone() *Type {
	if t == nil {
		return nil
	}
	c := *t
	if t.Elem != nil {
		c.Elem = t.Elem.Clone()
	}
	if t.Key != nil {
		c.Key = t.Key.Clone()
	}
	if t.Results != nil {
		c.Results = t.Results.Clone()
	}
	if t.Params != nil {
		c.Params = make([]*Type, len(t.Params))
		for i, p := range t.Params {
			c.Params[i] = p.Clone()
		}
	}
	if t.Fields != nil {
		c.Fields = make([]Field, len(t.Fields))
		for i, f := range t.Fields {
			c.Fields[i] = Field{Name: f.Name, Type: f.Type.Clone()}
		}
	}
	if t.GenericBase != nil {
		c.GenericBase = t.GenericBase.Clone()
	}
	if t.GenericArgs != nil {
		c.GenericArgs = make([]*Type, len(t.GenericArgs))
		for i, a := range t.GenericArgs {
			c.GenericArgs[i] = a.Clone()
		}
	}
	return &c
}

func (t *Type) IsInteger() bool  { return t.Kind == Int }
func (t *Type) IsFloat() bool    { return t.Kind == Float }
func (t *Type) IsNumeric() bool  { return t.Kind == Int || t.Kind == Float }
func (t *Type) IsPointer() bool  { return t.Kind == Pointer }
func (t *Type) IsReference() bool { return t.Kind == Reference }

// Size reports the in-memory size in bytes, following the Windows x64
// calling-convention/layout assumptions of spec.md §5: everything that isn't
// an inline fixed-size aggregate is a single 8-byte word (pointer, slice
// header collapsed to a pointer+len pair is out of scope for this pass —
// lists are always heap references here).
func (t *Type) Size() int {
	switch t.Kind {
	case Void:
		return 0
	case Bool:
		return 1
	case Int, Float:
		return t.Width / 8
	case FixedArray:
		return int(t.ArrayLen) * t.Elem.Size()
	case Record, Union:
		size := 0
		for _, f := range t.Fields {
			a := f.Type.Alignment()
			if a > 0 {
				size = (size + a - 1) / a * a
			}
			size += f.Type.Size()
		}
		if size == 0 {
			size = 1
		}
		align := t.Alignment()
		return (size + align - 1) / align * align
	default:
		return 8 // pointer-sized: String, List, Map, Pointer, Reference, Function, Channel, sync handles, etc.
	}
}

// Alignment reports the natural alignment in bytes.
func (t *Type) Alignment() int {
	switch t.Kind {
	case Void:
		return 1
	case Bool:
		return 1
	case Int, Float:
		return t.Width / 8
	case FixedArray:
		return t.Elem.Alignment()
	case Record, Union:
		max := 1
		for _, f := range t.Fields {
			if a := f.Type.Alignment(); a > max {
				max = a
			}
		}
		return max
	default:
		return 8
	}
}

// --- Registry ---

// Registry is the one process-wide home for canonical primitive instances
// and the named-type/trait maps, per spec.md §4.4 "One process-wide
// registry holds canonical instances of every primitive and a map of named
// types and traits."
type Registry struct {
	primitives map[string]*Type
	named      map[string]*Type
	traits     map[string]*TraitDef
	impls      map[string][]*TraitImpl // trait name -> implementations
}

// TraitDef is a registered trait declaration: its method signatures and
// super-traits, used by CheckTraitBounds and impl-completeness validation.
type TraitDef struct {
	Name    string
	Supers  []string
	Methods []MethodSig
}

// MethodSig is a trait method signature, with HasDefault marking a
// default-body method that an impl may omit.
type MethodSig struct {
	Name       string
	Params     []*Type
	Result     *Type
	HasDefault bool
}

// TraitImpl records that ForType implements TraitName. The checker
// registers each provided method name with an empty label, and nothing fills
// the labels in later: the code generator names impl methods
// Type_Trait_method on its own.
type TraitImpl struct {
	TraitName string
	ForType   *Type
	Methods   map[string]string // method name -> label (left empty)
}

// NewRegistry builds a Registry pre-seeded with every primitive type
// spec.md names: void, bool, signed/unsigned 8/16/32/64-bit integers,
// 32/64-bit floats, string, any, never, unknown.
func NewRegistry() *Registry {
	r := &Registry{
		primitives: map[string]*Type{},
		named:      map[string]*Type{},
		traits:     map[string]*TraitDef{},
		impls:      map[string][]*TraitImpl{},
	}
	r.addPrim("void", &Type{Kind: Void})
	r.addPrim("bool", &Type{Kind: Bool})
	r.addPrim("any", &Type{Kind: Any})
	r.addPrim("never", &Type{Kind: Never})
	r.addPrim("unknown", &Type{Kind: Unknown})
	r.addPrim("string", &Type{Kind: String})
	for _, w := range []int{8, 16, 32, 64} {
		r.addPrim(fmt.Sprintf("i%d", w), &Type{Kind: Int, Width: w})
		r.addPrim(fmt.Sprintf("u%d", w), &Type{Kind: Int, Width: w, Unsigned: true})
	}
	// "int" is the default word-sized signed integer alias.
	r.primitives["int"] = r.primitives["i64"]
	r.addPrim("f32", &Type{Kind: Float, Width: 32})
	r.addPrim("f64", &Type{Kind: Float, Width: 64})
	r.primitives["float"] = r.primitives["f64"]
	return r
}

func (r *Registry) addPrim(name string, t *Type) {
	t.Name = name
	r.primitives[name] = t
}

// Lookup returns a known primitive or named type by bare name.
func (r *Registry) Lookup(name string) (*Type, bool) {
	if t, ok := r.primitives[name]; ok {
		return t, true
	}
	t, ok := r.named[name]
	return t, ok
}

// MustLookup returns a primitive that every Registry is seeded with
// (void/bool/any/never/unknown/string/i*/u*/f32/f64/int/float). It is a
// convenience for call sites that only ever ask for one of these guaranteed
// names; it panics on anything else, which would indicate a programming
// error in this package, not a user-facing condition.
func (r *Registry) MustLookup(name string) *Type {
	t, ok := r.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("types: MustLookup(%q): not a seeded primitive", name))
	}
	return t
}

// RegisterNamed installs a record/union/trait/type-alias target under name,
// mirroring the symbol table's separate `registerType` map (spec.md §4.3:
// "types live globally, not per scope").
func (r *Registry) RegisterNamed(name string, t *Type) {
	r.named[name] = t
}

// RegisterTrait installs a trait's method-signature set for bound checking
// and impl-completeness validation.
func (r *Registry) RegisterTrait(def *TraitDef) {
	r.traits[def.Name] = def
	t := &Type{Kind: Trait, Name: def.Name}
	r.named[def.Name] = t
}

func (r *Registry) Trait(name string) (*TraitDef, bool) {
	d, ok := r.traits[name]
	return d, ok
}

// RegisterImpl records that impl.ForType implements impl.TraitName, after
// the caller has validated every required method is present.
func (r *Registry) RegisterImpl(impl *TraitImpl) {
	r.impls[impl.TraitName] = append(r.impls[impl.TraitName], impl)
}

// Implements reports whether concrete type t has a registered impl of
// traitName.
func (r *Registry) Implements(t *Type, traitName string) bool {
	for _, impl := range r.impls[traitName] {
		if impl.ForType.Equals(t) {
			return true
		}
	}
	return false
}

// CheckTraitBounds reports whether t implements every named bound, per
// spec.md §4.4 "checkTraitBounds(T, [bound_name]) returns true iff every
// bound is implemented by T".
func (r *Registry) CheckTraitBounds(t *Type, bounds []string) bool {
	for _, b := range bounds {
		if !r.Implements(t, b) {
			return false
		}
	}
	return true
}

// ValidateImplCompleteness reports the names of any required (non-default,
// and not satisfied by a super-trait default) methods missing from provided,
// per spec.md §4.4 "validates that every non-default method from the trait
// *and* all super-traits is supplied; missing methods are diagnostics at the
// impl site."
func (r *Registry) ValidateImplCompleteness(traitName string, provided map[string]bool) []string {
	var missing []string
	seen := map[string]bool{}
	var walk func(name string)
	walk = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		def, ok := r.traits[name]
		if !ok {
			return
		}
		for _, m := range def.Methods {
			if !m.HasDefault && !provided[m.Name] {
				missing = append(missing, m.Name)
			}
		}
		for _, s := range def.Supers {
			walk(s)
		}
	}
	walk(traitName)
	return missing
}

// --- Generic instantiation & substitution ---

// GenericType constructs the (not-yet-resolved) generic application
// base[args...], per spec.md §4.4 "genericType(base, args)".
func GenericType(base *Type, args []*Type) *Type {
	return &Type{Kind: Generic, GenericBase: base, GenericArgs: args}
}

// InstantiateGeneric resolves base[args...] into a concrete Record/Function
// type by substituting type parameters positionally (record fields) or by
// name (function signatures), per spec.md §4.4.
func (r *Registry) InstantiateGeneric(base *Type, args []*Type, typeParamNames []string) *Type {
	subs := map[string]*Type{}
	for i, name := range typeParamNames {
		if i < len(args) {
			subs[name] = args[i]
		}
	}
	return SubstituteTypeParams(base, subs)
}

// SubstituteTypeParams recursively rewrites TypeParam leaves found inside
// lists, maps, pointers, references, fixed arrays, function signatures, and
// generic applications, per spec.md §4.4.
func SubstituteTypeParams(t *Type, subs map[string]*Type) *Type {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case TypeParam:
		if sub, ok := subs[t.Name]; ok {
			return sub
		}
		return t
	case Pointer, Reference, List, Channel, FixedArray:
		c := t.Clone()
		c.Elem = SubstituteTypeParams(t.Elem, subs)
		return c
	case Map:
		c := t.Clone()
		c.Key = SubstituteTypeParams(t.Key, subs)
		c.Elem = SubstituteTypeParams(t.Elem, subs)
		return c
	case Function:
		c := t.Clone()
		for i, p := range t.Params {
			c.Params[i] = SubstituteTypeParams(p, subs)
		}
		c.Results = SubstituteTypeParams(t.Results, subs)
		return c
	case Record, Union:
		c := t.Clone()
		for i, f := range t.Fields {
			c.Fields[i] = Field{Name: f.Name, Type: SubstituteTypeParams(f.Type, subs)}
		}
		return c
	case Generic:
		c := t.Clone()
		c.GenericBase = SubstituteTypeParams(t.GenericBase, subs)
		for i, a := range t.GenericArgs {
			c.GenericArgs[i] = SubstituteTypeParams(a, subs)
		}
		return c
	default:
		return t
	}
}

// FromString parses a compact type string — primitives, `*T`, `&T`,
// `&mut T`, `[T]`, `Name[...]`, `T?` — and returns the canonical type, per
// spec.md §4.4. It is deliberately simpler than the full parser grammar:
// callers that already hold an *ast.TypeExpr should resolve it directly
// instead (see internal/check), this exists for tooling/debug paths (e.g.
// `-t`/`-a` dumps and mangled-name round-tripping) that only have a string.
func (r *Registry) FromString(s string) (*Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("emptyTypeString: cannot parse an empty type")
	}
	nullable := false
	if strings.HasSuffix(s, "?") {
		nullable = true
		s = s[:len(s)-1]
	}
	t, err := r.parseTypeString(s)
	if err != nil {
		return nil, err
	}
	if nullable {
		t = t.Clone()
		t.Nullable = true
	}
	return t, nil
}

func (r *Registry) parseTypeString(s string) (*Type, error) {
	switch {
	case strings.HasPrefix(s, "*"):
		elem, err := r.parseTypeString(s[1:])
		if err != nil {
			return nil, err
		}
		return &Type{Kind: Pointer, Elem: elem}, nil
	case strings.HasPrefix(s, "&mut "):
		elem, err := r.parseTypeString(s[5:])
		if err != nil {
			return nil, err
		}
		return &Type{Kind: Reference, Mutable: true, Elem: elem}, nil
	case strings.HasPrefix(s, "&"):
		elem, err := r.parseTypeString(s[1:])
		if err != nil {
			return nil, err
		}
		return &Type{Kind: Reference, Elem: elem}, nil
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		inner := s[1 : len(s)-1]
		if i := strings.LastIndex(inner, ";"); i >= 0 {
			elem, err := r.parseTypeString(strings.TrimSpace(inner[:i]))
			if err != nil {
				return nil, err
			}
			n, err := strconv.ParseInt(strings.TrimSpace(inner[i+1:]), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalidArrayLength: %w", err)
			}
			return &Type{Kind: FixedArray, Elem: elem, ArrayLen: n}, nil
		}
		elem, err := r.parseTypeString(inner)
		if err != nil {
			return nil, err
		}
		return &Type{Kind: List, Elem: elem}, nil
	}
	if i := strings.Index(s, "["); i >= 0 && strings.HasSuffix(s, "]") {
		name := s[:i]
		argsStr := s[i+1 : len(s)-1]
		base, ok := r.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknownType: %q is not a known type", name)
		}
		var args []*Type
		for _, part := range splitTopLevelComma(argsStr) {
			a, err := r.parseTypeString(strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}
			args = append(args, a)
		}
		return GenericType(base, args), nil
	}
	if t, ok := r.Lookup(s); ok {
		return t, nil
	}
	return nil, fmt.Errorf("unknownType: %q is not a known type", s)
}

func splitTopLevelComma(s string) []string {
	var parts []string
	depth := 0
	last := 0
	for i, c := range s {
		switch c {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, s[last:])
	return parts
}
