package candid

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/canscript/canscript/internal/leb128"
	"github.com/canscript/canscript/errors"
)

// Binary wire-format encoding ("DIDL"): magic, type table, argument type
// list, then the argument values packed back to back.

var magic = []byte("DIDL")

// Function annotation bytes in the type table.
const (
	annQuery          = 1
	annOneway         = 2
	annCompositeQuery = 3
)

// EncodeArgs packs values against their declared types into wire bytes.
func EncodeArgs(types []Type, values []Value) ([]byte, error) {
	if len(types) != len(values) {
		return nil, errors.ArityMismatch(errors.PhaseEncode, len(types), len(values))
	}

	table := newTypeTable()
	indexes := make([]int64, len(types))
	for i, t := range types {
		idx, err := table.add(t)
		if err != nil {
			return nil, err
		}
		indexes[i] = idx
	}

	var out bytes.Buffer
	out.Write(magic)
	leb128.AppendUint(&out, uint64(len(table.entries)))
	for _, e := range table.entries {
		out.Write(e)
	}
	leb128.AppendUint(&out, uint64(len(indexes)))
	for _, idx := range indexes {
		leb128.AppendInt(&out, idx)
	}
	for i, t := range types {
		if err := encodeValue(&out, t, values[i]); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}

// typeTable assigns wire indexes to composite types. Named types are
// memoized by name, which is what terminates recursive definitions.
type typeTable struct {
	entries [][]byte
	named   map[string]int64
}

func newTypeTable() *typeTable {
	return &typeTable{named: map[string]int64{}}
}

// add returns the signed index for t: a negative opcode for primitives, a
// non-negative table index for composites.
func (tt *typeTable) add(t Type) (int64, error) {
	switch ty := t.(type) {
	case PrimType:
		return ty.opcode(), nil

	case RefType:
		if idx, ok := tt.named[ty.Name]; ok {
			return idx, nil
		}
		resolved, err := unwrap(ty)
		if err != nil {
			return 0, errors.New(errors.PhaseEncode, errors.KindCandidParse).
				Cause(err).
				Detail("resolving type %q", ty.Name).
				Build()
		}
		if prim, isPrim := resolved.(PrimType); isPrim {
			return prim.opcode(), nil
		}
		// Reserve the slot before descending so recursive references
		// resolve to it.
		idx := int64(len(tt.entries))
		tt.entries = append(tt.entries, nil)
		tt.named[ty.Name] = idx
		body, err := tt.composeBody(resolved)
		if err != nil {
			return 0, err
		}
		tt.entries[idx] = body
		return idx, nil

	default:
		body, err := tt.composeBody(t)
		if err != nil {
			return 0, err
		}
		idx := int64(len(tt.entries))
		tt.entries = append(tt.entries, body)
		return idx, nil
	}
}

func (tt *typeTable) composeBody(t Type) ([]byte, error) {
	var b bytes.Buffer
	switch ty := t.(type) {
	case OptType:
		idx, err := tt.add(ty.Elem)
		if err != nil {
			return nil, err
		}
		leb128.AppendInt(&b, opcOpt)
		leb128.AppendInt(&b, idx)

	case VecType:
		idx, err := tt.add(ty.Elem)
		if err != nil {
			return nil, err
		}
		leb128.AppendInt(&b, opcVec)
		leb128.AppendInt(&b, idx)

	case RecordType:
		if err := tt.composeFields(&b, opcRecord, ty.Fields); err != nil {
			return nil, err
		}

	case VariantType:
		if err := tt.composeFields(&b, opcVariant, ty.Cases); err != nil {
			return nil, err
		}

	case FuncRefType:
		argIdx := make([]int64, len(ty.Args))
		for i, a := range ty.Args {
			idx, err := tt.add(a)
			if err != nil {
				return nil, err
			}
			argIdx[i] = idx
		}
		retIdx := make([]int64, len(ty.Rets))
		for i, r := range ty.Rets {
			idx, err := tt.add(r)
			if err != nil {
				return nil, err
			}
			retIdx[i] = idx
		}
		leb128.AppendInt(&b, opcFunc)
		leb128.AppendUint(&b, uint64(len(argIdx)))
		for _, idx := range argIdx {
			leb128.AppendInt(&b, idx)
		}
		leb128.AppendUint(&b, uint64(len(retIdx)))
		for _, idx := range retIdx {
			leb128.AppendInt(&b, idx)
		}
		var anns []byte
		for _, a := range ty.Annotations {
			switch a {
			case "query":
				anns = append(anns, annQuery)
			case "oneway":
				anns = append(anns, annOneway)
			case "composite_query":
				anns = append(anns, annCompositeQuery)
			}
		}
		leb128.AppendUint(&b, uint64(len(anns)))
		b.Write(anns)

	case ServiceRefType:
		methodIdx := make([]int64, len(ty.Methods))
		for i, m := range ty.Methods {
			idx, err := tt.add(FuncRefType{
				Args:        m.Args,
				Rets:        m.Rets,
				Annotations: annotationsOf(m.Kind),
			})
			if err != nil {
				return nil, err
			}
			methodIdx[i] = idx
		}
		leb128.AppendInt(&b, opcService)
		leb128.AppendUint(&b, uint64(len(ty.Methods)))
		for i, m := range ty.Methods {
			leb128.AppendUint(&b, uint64(len(m.Name)))
			b.WriteString(m.Name)
			leb128.AppendInt(&b, methodIdx[i])
		}

	default:
		return nil, errors.Unsupported(errors.PhaseEncode, "type "+t.String())
	}
	return b.Bytes(), nil
}

func (tt *typeTable) composeFields(b *bytes.Buffer, opcode int64, fields []Field) error {
	idx := make([]int64, len(fields))
	for i, f := range fields {
		fi, err := tt.add(f.Type)
		if err != nil {
			return err
		}
		idx[i] = fi
	}
	leb128.AppendInt(b, opcode)
	leb128.AppendUint(b, uint64(len(fields)))
	for i, f := range fields {
		leb128.AppendUint(b, uint64(f.Label.ID))
		leb128.AppendInt(b, idx[i])
	}
	return nil
}

// encodeValue writes one value per its declared type. The transcoder has
// already shaped the value, so a mismatch here is an internal error rather
// than caller input to be coerced.
func encodeValue(b *bytes.Buffer, t Type, v Value) error {
	resolved, err := unwrap(t)
	if err != nil {
		return errors.New(errors.PhaseEncode, errors.KindCandidParse).Cause(err).Build()
	}

	switch ty := resolved.(type) {
	case PrimType:
		return encodePrim(b, ty, v)

	case OptType:
		opt, ok := v.(OptValue)
		if !ok {
			if _, isNull := v.(NullValue); isNull {
				b.WriteByte(0x00)
				return nil
			}
			return mismatch(ty, v)
		}
		if opt.V == nil {
			b.WriteByte(0x00)
			return nil
		}
		b.WriteByte(0x01)
		return encodeValue(b, ty.Elem, opt.V)

	case VecType:
		if blob, ok := v.(BlobValue); ok {
			if !ty.IsBlob() {
				return mismatch(ty, v)
			}
			leb128.AppendUint(b, uint64(len(blob.Bytes)))
			b.Write(blob.Bytes)
			return nil
		}
		vec, ok := v.(VecValue)
		if !ok {
			return mismatch(ty, v)
		}
		leb128.AppendUint(b, uint64(len(vec.Elems)))
		for _, e := range vec.Elems {
			if err := encodeValue(b, ty.Elem, e); err != nil {
				return err
			}
		}
		return nil

	case RecordType:
		rec, ok := v.(RecordValue)
		if !ok {
			return mismatch(ty, v)
		}
		for _, f := range ty.Fields {
			fv, found := rec.Field(f.Label.ID)
			if !found {
				return errors.FieldMissing(errors.PhaseEncode, nil, f.Label.Key())
			}
			if err := encodeValue(b, f.Type, fv.V); err != nil {
				return err
			}
		}
		return nil

	case VariantType:
		vr, ok := v.(VariantValue)
		if !ok {
			return mismatch(ty, v)
		}
		idx := vr.Index
		if idx >= uint32(len(ty.Cases)) || ty.Cases[idx].Label.ID != vr.Label.ID {
			// The ordinal does not line up with this type; fall back to
			// locating the case by label.
			found := false
			for i, c := range ty.Cases {
				if c.Label.ID == vr.Label.ID {
					idx = uint32(i)
					found = true
					break
				}
			}
			if !found {
				return errors.UnknownVariant(errors.PhaseEncode, nil, vr.Label.Key())
			}
		}
		leb128.AppendUint(b, uint64(idx))
		return encodeValue(b, ty.Cases[idx].Type, vr.V)

	case FuncRefType:
		fn, ok := v.(FuncRefValue)
		if !ok {
			return mismatch(ty, v)
		}
		b.WriteByte(0x01)
		b.WriteByte(0x01)
		leb128.AppendUint(b, uint64(len(fn.P.Raw)))
		b.Write(fn.P.Raw)
		leb128.AppendUint(b, uint64(len(fn.Method)))
		b.WriteString(fn.Method)
		return nil

	case ServiceRefType:
		sv, ok := v.(ServiceRefValue)
		if !ok {
			return mismatch(ty, v)
		}
		b.WriteByte(0x01)
		leb128.AppendUint(b, uint64(len(sv.P.Raw)))
		b.Write(sv.P.Raw)
		return nil

	default:
		return errors.Unsupported(errors.PhaseEncode, "type "+resolved.String())
	}
}

func encodePrim(b *bytes.Buffer, t PrimType, v Value) error {
	switch t.Kind {
	case Null, Reserved:
		// No bytes on the wire.
		return nil
	case Empty:
		return errors.Unsupported(errors.PhaseEncode, "encoding a value of type empty")
	case Bool:
		bv, ok := v.(BoolValue)
		if !ok {
			return mismatch(t, v)
		}
		if bv.V {
			b.WriteByte(0x01)
		} else {
			b.WriteByte(0x00)
		}
		return nil
	case Nat:
		nv, ok := v.(NatValue)
		if !ok {
			return mismatch(t, v)
		}
		return leb128.AppendUnsigned(b, nv.V)
	case Int:
		iv, ok := v.(IntValue)
		if !ok {
			return mismatch(t, v)
		}
		leb128.AppendSigned(b, iv.V)
		return nil
	case Nat8:
		nv, ok := v.(Nat8Value)
		if !ok {
			return mismatch(t, v)
		}
		b.WriteByte(nv.V)
		return nil
	case Nat16:
		nv, ok := v.(Nat16Value)
		if !ok {
			return mismatch(t, v)
		}
		return binary.Write(b, binary.LittleEndian, nv.V)
	case Nat32:
		nv, ok := v.(Nat32Value)
		if !ok {
			return mismatch(t, v)
		}
		return binary.Write(b, binary.LittleEndian, nv.V)
	case Nat64:
		nv, ok := v.(Nat64Value)
		if !ok {
			return mismatch(t, v)
		}
		return binary.Write(b, binary.LittleEndian, nv.V)
	case Int8:
		iv, ok := v.(Int8Value)
		if !ok {
			return mismatch(t, v)
		}
		return binary.Write(b, binary.LittleEndian, iv.V)
	case Int16:
		iv, ok := v.(Int16Value)
		if !ok {
			return mismatch(t, v)
		}
		return binary.Write(b, binary.LittleEndian, iv.V)
	case Int32:
		iv, ok := v.(Int32Value)
		if !ok {
			return mismatch(t, v)
		}
		return binary.Write(b, binary.LittleEndian, iv.V)
	case Int64:
		iv, ok := v.(Int64Value)
		if !ok {
			return mismatch(t, v)
		}
		return binary.Write(b, binary.LittleEndian, iv.V)
	case Float32:
		fv, ok := v.(Float32Value)
		if !ok {
			return mismatch(t, v)
		}
		return binary.Write(b, binary.LittleEndian, math.Float32bits(fv.V))
	case Float64:
		fv, ok := v.(Float64Value)
		if !ok {
			return mismatch(t, v)
		}
		return binary.Write(b, binary.LittleEndian, math.Float64bits(fv.V))
	case Text:
		tv, ok := v.(TextValue)
		if !ok {
			return mismatch(t, v)
		}
		leb128.AppendUint(b, uint64(len(tv.V)))
		b.WriteString(tv.V)
		return nil
	case PrincipalKind:
		pv, ok := v.(PrincipalValue)
		if !ok {
			return mismatch(t, v)
		}
		b.WriteByte(0x01)
		leb128.AppendUint(b, uint64(len(pv.P.Raw)))
		b.Write(pv.P.Raw)
		return nil
	default:
		return errors.Unsupported(errors.PhaseEncode, "type "+t.String())
	}
}

func mismatch(t Type, v Value) error {
	return errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
		WireType(t.String()).
		Value(v).
		Detail("value does not match declared type").
		Build()
}
