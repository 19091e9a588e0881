package candid

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Candid type model. Types form a closed sum over the Type interface with
// one case per wire type, so the codec's conversion functions are
// exhaustiveness-checked type switches.

// Type is a Candid type descriptor usable for both encoding and decoding.
type Type interface {
	isType()
	String() string
}

// PrimKind identifies a primitive type.
type PrimKind int

const (
	Null PrimKind = iota
	Bool
	Nat
	Int
	Nat8
	Nat16
	Nat32
	Nat64
	Int8
	Int16
	Int32
	Int64
	Float32
	Float64
	Text
	Reserved
	Empty
	PrincipalKind
)

// Wire opcodes for primitive types (signed LEB128 in the type table).
const (
	opcNull      = -1
	opcBool      = -2
	opcNat       = -3
	opcInt       = -4
	opcNat8      = -5
	opcNat16     = -6
	opcNat32     = -7
	opcNat64     = -8
	opcInt8      = -9
	opcInt16     = -10
	opcInt32     = -11
	opcInt64     = -12
	opcFloat32   = -13
	opcFloat64   = -14
	opcText      = -15
	opcReserved  = -16
	opcEmpty     = -17
	opcOpt       = -18
	opcVec       = -19
	opcRecord    = -20
	opcVariant   = -21
	opcFunc      = -22
	opcService   = -23
	opcPrincipal = -24
)

// PrimType is a primitive type.
type PrimType struct {
	Kind PrimKind
}

func (PrimType) isType() {}

func (t PrimType) String() string {
	switch t.Kind {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Nat:
		return "nat"
	case Int:
		return "int"
	case Nat8:
		return "nat8"
	case Nat16:
		return "nat16"
	case Nat32:
		return "nat32"
	case Nat64:
		return "nat64"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Text:
		return "text"
	case Reserved:
		return "reserved"
	case Empty:
		return "empty"
	case PrincipalKind:
		return "principal"
	default:
		return fmt.Sprintf("prim(%d)", int(t.Kind))
	}
}

func (t PrimType) opcode() int64 {
	if t.Kind == PrincipalKind {
		return opcPrincipal
	}
	// PrimKind ordering mirrors the opcode block above.
	return int64(opcNull - int(t.Kind))
}

func primFromOpcode(opc int64) (PrimType, bool) {
	if opc <= opcNull && opc >= opcEmpty {
		return PrimType{Kind: Null + PrimKind(opcNull-opc)}, true
	}
	if opc == opcPrincipal {
		return PrimType{Kind: PrincipalKind}, true
	}
	return PrimType{}, false
}

// OptType is an optional value.
type OptType struct {
	Elem Type
}

func (OptType) isType() {}

func (t OptType) String() string { return "opt " + t.Elem.String() }

// VecType is a homogeneous vector.
type VecType struct {
	Elem Type
}

func (VecType) isType() {}

func (t VecType) String() string { return "vec " + t.Elem.String() }

// IsBlob reports whether the vector is a byte blob (vec nat8).
func (t VecType) IsBlob() bool {
	p, ok := t.Elem.(PrimType)
	return ok && p.Kind == Nat8
}

// Label identifies a record field or variant case: a human-readable name
// when the interface carries one, otherwise only the 32-bit name hash.
type Label struct {
	Name  string
	ID    uint32
	Named bool
}

// NameLabel builds a named label with its hash.
func NameLabel(name string) Label {
	return Label{Name: name, ID: HashName(name), Named: true}
}

// IDLabel builds a numeric-only label.
func IDLabel(id uint32) Label {
	return Label{ID: id}
}

// Key renders the label as a JSON object key.
func (l Label) Key() string {
	if l.Named {
		return l.Name
	}
	return strconv.FormatUint(uint64(l.ID), 10)
}

// HashName computes the Candid field-name hash:
// hash(name) = sum of name[i] * 223^(len-1-i) mod 2^32.
func HashName(name string) uint32 {
	var h uint32
	for i := 0; i < len(name); i++ {
		h = h*223 + uint32(name[i])
	}
	return h
}

// Field is a record field or variant case declaration.
type Field struct {
	Type  Type
	Label Label
}

// RecordType is a record; fields are kept sorted by label ID, the order the
// wire format mandates.
type RecordType struct {
	Fields []Field
}

func (RecordType) isType() {}

func (t RecordType) String() string {
	parts := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		parts[i] = f.Label.Key() + " : " + f.Type.String()
	}
	return "record { " + strings.Join(parts, "; ") + " }"
}

// VariantType is a tagged union; cases are kept sorted by label ID.
type VariantType struct {
	Cases []Field
}

func (VariantType) isType() {}

func (t VariantType) String() string {
	parts := make([]string, len(t.Cases))
	for i, f := range t.Cases {
		parts[i] = f.Label.Key() + " : " + f.Type.String()
	}
	return "variant { " + strings.Join(parts, "; ") + " }"
}

// CaseByName returns the case with the given name and its ordinal.
func (t VariantType) CaseByName(name string) (Field, uint32, bool) {
	id := HashName(name)
	for i, c := range t.Cases {
		if c.Label.ID == id {
			return c, uint32(i), true
		}
	}
	return Field{}, 0, false
}

// FuncRefType is a reference to a method on some service.
type FuncRefType struct {
	Args        []Type
	Rets        []Type
	Annotations []string
}

func (FuncRefType) isType() {}

func (t FuncRefType) String() string { return "func" }

// ServiceRefType is a reference to a service.
type ServiceRefType struct {
	Methods []Method
}

func (ServiceRefType) isType() {}

func (t ServiceRefType) String() string { return "service" }

// RefType is a use of a named type declaration. It is resolved lazily
// against its definitions table, which is what makes recursive types work.
type RefType struct {
	Name string
	defs *Definitions
}

func (RefType) isType() {}

func (t RefType) String() string { return t.Name }

// Resolve follows the reference one step.
func (t RefType) Resolve() (Type, error) {
	if t.defs == nil {
		return nil, fmt.Errorf("unbound type reference %q", t.Name)
	}
	resolved, ok := t.defs.Types[t.Name]
	if !ok {
		return nil, fmt.Errorf("unbound type reference %q", t.Name)
	}
	return resolved, nil
}

// unwrap resolves chains of named references down to a structural type.
func unwrap(t Type) (Type, error) {
	for i := 0; i < 64; i++ {
		ref, ok := t.(RefType)
		if !ok {
			return t, nil
		}
		resolved, err := ref.Resolve()
		if err != nil {
			return nil, err
		}
		t = resolved
	}
	return nil, fmt.Errorf("type reference chain too deep")
}

// MethodKind distinguishes the three call kinds.
type MethodKind int

const (
	KindUpdate MethodKind = iota
	KindQuery
	KindCompositeQuery
)

func (k MethodKind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindCompositeQuery:
		return "composite_query"
	default:
		return "update"
	}
}

// Method describes one callable method of a service.
type Method struct {
	Name string
	Kind MethodKind
	Args []Type
	Rets []Type
}

// Service is a parsed, type-checked interface description.
type Service struct {
	Methods []Method
}

// Method looks up a method by name.
func (s *Service) Method(name string) (Method, bool) {
	for _, m := range s.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return Method{}, false
}

// Definitions holds the named type declarations a service was parsed with.
type Definitions struct {
	Types map[string]Type
	Order []string
}

// sortFields orders fields by label ID, the canonical wire order.
func sortFields(fields []Field) {
	sort.SliceStable(fields, func(i, j int) bool {
		return fields[i].Label.ID < fields[j].Label.ID
	})
}
