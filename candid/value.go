package candid

import (
	"math/big"

	"github.com/canscript/canscript/principal"
)

// Runtime value model: a closed sum with one case per wire value variant.
// Everything the codec decodes or encodes passes through these types.

// Value is a dynamically-typed Candid value.
type Value interface {
	isValue()
}

// NullValue is null, and the payload of payload-less variant cases.
type NullValue struct{}

func (NullValue) isValue() {}

// BoolValue is a boolean.
type BoolValue struct {
	V bool
}

func (BoolValue) isValue() {}

// NatValue is an arbitrary-precision natural.
type NatValue struct {
	V *big.Int
}

func (NatValue) isValue() {}

// IntValue is an arbitrary-precision integer.
type IntValue struct {
	V *big.Int
}

func (IntValue) isValue() {}

// Fixed-width naturals and integers.

type Nat8Value struct{ V uint8 }

func (Nat8Value) isValue() {}

type Nat16Value struct{ V uint16 }

func (Nat16Value) isValue() {}

type Nat32Value struct{ V uint32 }

func (Nat32Value) isValue() {}

type Nat64Value struct{ V uint64 }

func (Nat64Value) isValue() {}

type Int8Value struct{ V int8 }

func (Int8Value) isValue() {}

type Int16Value struct{ V int16 }

func (Int16Value) isValue() {}

type Int32Value struct{ V int32 }

func (Int32Value) isValue() {}

type Int64Value struct{ V int64 }

func (Int64Value) isValue() {}

type Float32Value struct{ V float32 }

func (Float32Value) isValue() {}

type Float64Value struct{ V float64 }

func (Float64Value) isValue() {}

// TextValue is a UTF-8 string.
type TextValue struct {
	V string
}

func (TextValue) isValue() {}

// PrincipalValue is a principal reference.
type PrincipalValue struct {
	P principal.Principal
}

func (PrincipalValue) isValue() {}

// OptValue is an optional: V == nil means none.
type OptValue struct {
	V Value
}

func (OptValue) isValue() {}

// VecValue is a vector of values.
type VecValue struct {
	Elems []Value
}

func (VecValue) isValue() {}

// BlobValue is a vec nat8 kept as raw bytes.
type BlobValue struct {
	Bytes []byte
}

func (BlobValue) isValue() {}

// FieldValue is one labeled field of a record.
type FieldValue struct {
	V     Value
	Label Label
}

// RecordValue is a record. Labels are unique within the record and kept in
// wire order (ascending label ID).
type RecordValue struct {
	Fields []FieldValue
}

func (RecordValue) isValue() {}

// Field returns the field with the given label ID.
func (r RecordValue) Field(id uint32) (FieldValue, bool) {
	for _, f := range r.Fields {
		if f.Label.ID == id {
			return f, true
		}
	}
	return FieldValue{}, false
}

// VariantValue is a tagged union with exactly one active case. Index is the
// case's ordinal position in the type's declared case list and is required
// to re-encode the value.
type VariantValue struct {
	V     Value
	Label Label
	Index uint32
}

func (VariantValue) isValue() {}

// ServiceRefValue is an opaque reference to a service.
type ServiceRefValue struct {
	P principal.Principal
}

func (ServiceRefValue) isValue() {}

// FuncRefValue is an opaque reference to a method on a service.
type FuncRefValue struct {
	P      principal.Principal
	Method string
}

func (FuncRefValue) isValue() {}
