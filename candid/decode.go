package candid

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/canscript/canscript/internal/leb128"
	"github.com/canscript/canscript/errors"
	"github.com/canscript/canscript/principal"
)

// Wire-format decoding. The binary carries no field names, only 32-bit
// label hashes, so decoding is untyped first: it recovers structure and
// values with numeric labels. ApplyNames then reconciles the result against
// a parsed interface to restore names where the hashes match.

// Safety limits against hostile responses.
const (
	maxDecodeDepth = 512
	maxVecLength   = 1 << 21 // 2M elements
	maxTextBytes   = 1 << 24 // 16 MB
)

// Decode decodes wire bytes into values using the embedded type table.
func Decode(data []byte) ([]Value, error) {
	if len(data) < len(magic) || !bytes.Equal(data[:len(magic)], magic) {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Detail("missing DIDL magic header").
			Build()
	}
	d := &decoder{r: bytes.NewReader(data[len(magic):])}
	if err := d.readTypeTable(); err != nil {
		return nil, err
	}

	argc, err := leb128.ReadUint(d.r)
	if err != nil {
		return nil, d.fail("argument count", err)
	}
	if argc > maxVecLength {
		return nil, d.fail("argument count", fmt.Errorf("%d arguments", argc))
	}
	indexes := make([]int64, argc)
	for i := range indexes {
		idx, err := leb128.ReadInt(d.r)
		if err != nil {
			return nil, d.fail("argument type index", err)
		}
		indexes[i] = idx
	}

	values := make([]Value, argc)
	for i, idx := range indexes {
		v, err := d.decodeValue(idx, 0)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// wireEntry is one parsed composite entry of the embedded type table.
type wireEntry struct {
	opcode   int64
	child    int64    // opt, vec
	labels   []uint32 // record, variant
	children []int64  // record, variant
}

type decoder struct {
	r     *bytes.Reader
	table []wireEntry
}

func (d *decoder) fail(what string, cause error) error {
	return errors.New(errors.PhaseDecode, errors.KindInvalidData).
		Cause(cause).
		Detail("reading %s", what).
		Build()
}

func (d *decoder) readTypeTable() error {
	count, err := leb128.ReadUint(d.r)
	if err != nil {
		return d.fail("type table size", err)
	}
	if count > maxVecLength {
		return d.fail("type table size", fmt.Errorf("%d entries", count))
	}
	d.table = make([]wireEntry, count)
	for i := range d.table {
		if err := d.readTypeEntry(i); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) readTypeEntry(i int) error {
	opc, err := leb128.ReadInt(d.r)
	if err != nil {
		return d.fail("type entry opcode", err)
	}
	e := wireEntry{opcode: opc}

	switch opc {
	case opcOpt, opcVec:
		e.child, err = leb128.ReadInt(d.r)
		if err != nil {
			return d.fail("element type index", err)
		}

	case opcRecord, opcVariant:
		n, err := leb128.ReadUint(d.r)
		if err != nil {
			return d.fail("field count", err)
		}
		if n > maxVecLength {
			return d.fail("field count", fmt.Errorf("%d fields", n))
		}
		e.labels = make([]uint32, n)
		e.children = make([]int64, n)
		for j := uint64(0); j < n; j++ {
			id, err := leb128.ReadUint(d.r)
			if err != nil {
				return d.fail("field label", err)
			}
			if id > math.MaxUint32 {
				return d.fail("field label", fmt.Errorf("label %d exceeds 32 bits", id))
			}
			child, err := leb128.ReadInt(d.r)
			if err != nil {
				return d.fail("field type index", err)
			}
			e.labels[j] = uint32(id)
			e.children[j] = child
		}

	case opcFunc:
		for seq := 0; seq < 2; seq++ {
			n, err := leb128.ReadUint(d.r)
			if err != nil {
				return d.fail("function signature", err)
			}
			for j := uint64(0); j < n; j++ {
				if _, err := leb128.ReadInt(d.r); err != nil {
					return d.fail("function signature", err)
				}
			}
		}
		n, err := leb128.ReadUint(d.r)
		if err != nil {
			return d.fail("function annotations", err)
		}
		for j := uint64(0); j < n; j++ {
			if _, err := d.r.ReadByte(); err != nil {
				return d.fail("function annotations", err)
			}
		}

	case opcService:
		n, err := leb128.ReadUint(d.r)
		if err != nil {
			return d.fail("service method count", err)
		}
		if n > maxVecLength {
			return d.fail("service method count", fmt.Errorf("%d methods", n))
		}
		for j := uint64(0); j < n; j++ {
			nameLen, err := leb128.ReadUint(d.r)
			if err != nil {
				return d.fail("service method name", err)
			}
			if nameLen > maxTextBytes {
				return d.fail("service method name", fmt.Errorf("%d bytes", nameLen))
			}
			if _, err := d.r.Seek(int64(nameLen), io.SeekCurrent); err != nil {
				return d.fail("service method name", err)
			}
			if _, err := leb128.ReadInt(d.r); err != nil {
				return d.fail("service method type", err)
			}
		}

	default:
		return errors.New(errors.PhaseDecode, errors.KindUnsupported).
			Detail("type table entry %d has unsupported opcode %d", i, opc).
			Build()
	}

	d.table[i] = e
	return nil
}

func (d *decoder) entry(idx int64) (wireEntry, error) {
	if idx < 0 || idx >= int64(len(d.table)) {
		return wireEntry{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Detail("type index %d out of range (table has %d entries)", idx, len(d.table)).
			Build()
	}
	return d.table[idx], nil
}

func (d *decoder) decodeValue(idx int64, depth int) (Value, error) {
	if depth > maxDecodeDepth {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Detail("value nesting exceeds %d levels", maxDecodeDepth).
			Build()
	}

	if idx < 0 {
		return d.decodePrim(idx)
	}

	e, err := d.entry(idx)
	if err != nil {
		return nil, err
	}

	switch e.opcode {
	case opcOpt:
		flag, err := d.r.ReadByte()
		if err != nil {
			return nil, d.fail("option flag", err)
		}
		switch flag {
		case 0x00:
			return OptValue{}, nil
		case 0x01:
			inner, err := d.decodeValue(e.child, depth+1)
			if err != nil {
				return nil, err
			}
			return OptValue{V: inner}, nil
		default:
			return nil, d.fail("option flag", fmt.Errorf("flag byte %#x", flag))
		}

	case opcVec:
		n, err := leb128.ReadUint(d.r)
		if err != nil {
			return nil, d.fail("vector length", err)
		}
		if n > maxVecLength {
			return nil, d.fail("vector length", fmt.Errorf("%d elements", n))
		}
		if e.child == opcNat8 {
			raw := make([]byte, n)
			if _, err := readFull(d.r, raw); err != nil {
				return nil, d.fail("blob bytes", err)
			}
			return BlobValue{Bytes: raw}, nil
		}
		elems := make([]Value, n)
		for i := range elems {
			v, err := d.decodeValue(e.child, depth+1)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return VecValue{Elems: elems}, nil

	case opcRecord:
		fields := make([]FieldValue, len(e.labels))
		for i := range e.labels {
			v, err := d.decodeValue(e.children[i], depth+1)
			if err != nil {
				return nil, err
			}
			fields[i] = FieldValue{Label: IDLabel(e.labels[i]), V: v}
		}
		return RecordValue{Fields: fields}, nil

	case opcVariant:
		caseIdx, err := leb128.ReadUint(d.r)
		if err != nil {
			return nil, d.fail("variant tag", err)
		}
		if caseIdx >= uint64(len(e.labels)) {
			return nil, d.fail("variant tag", fmt.Errorf("case %d of %d", caseIdx, len(e.labels)))
		}
		payload, err := d.decodeValue(e.children[caseIdx], depth+1)
		if err != nil {
			return nil, err
		}
		return VariantValue{
			Label: IDLabel(e.labels[caseIdx]),
			V:     payload,
			Index: uint32(caseIdx),
		}, nil

	case opcFunc:
		if err := d.expectReferenceFlag("function reference"); err != nil {
			return nil, err
		}
		p, err := d.decodePrincipalBody()
		if err != nil {
			return nil, err
		}
		nameLen, err := leb128.ReadUint(d.r)
		if err != nil {
			return nil, d.fail("function method name", err)
		}
		if nameLen > maxTextBytes {
			return nil, d.fail("function method name", fmt.Errorf("%d bytes", nameLen))
		}
		name := make([]byte, nameLen)
		if _, err := readFull(d.r, name); err != nil {
			return nil, d.fail("function method name", err)
		}
		return FuncRefValue{P: p, Method: string(name)}, nil

	case opcService:
		p, err := d.decodePrincipalBody()
		if err != nil {
			return nil, err
		}
		return ServiceRefValue{P: p}, nil

	default:
		return nil, errors.New(errors.PhaseDecode, errors.KindUnsupported).
			Detail("decoding opcode %d", e.opcode).
			Build()
	}
}

func (d *decoder) decodePrim(opc int64) (Value, error) {
	prim, ok := primFromOpcode(opc)
	if !ok {
		return nil, errors.New(errors.PhaseDecode, errors.KindUnsupported).
			Detail("primitive opcode %d", opc).
			Build()
	}

	switch prim.Kind {
	case Null, Reserved:
		return NullValue{}, nil
	case Empty:
		return nil, errors.Unsupported(errors.PhaseDecode, "decoding a value of type empty")
	case Bool:
		b, err := d.r.ReadByte()
		if err != nil {
			return nil, d.fail("bool", err)
		}
		switch b {
		case 0x00:
			return BoolValue{V: false}, nil
		case 0x01:
			return BoolValue{V: true}, nil
		default:
			return nil, d.fail("bool", fmt.Errorf("byte %#x", b))
		}
	case Nat:
		n, err := leb128.ReadUnsigned(d.r)
		if err != nil {
			return nil, d.fail("nat", err)
		}
		return NatValue{V: n}, nil
	case Int:
		n, err := leb128.ReadSigned(d.r)
		if err != nil {
			return nil, d.fail("int", err)
		}
		return IntValue{V: n}, nil
	case Nat8:
		b, err := d.r.ReadByte()
		if err != nil {
			return nil, d.fail("nat8", err)
		}
		return Nat8Value{V: b}, nil
	case Nat16:
		var v uint16
		if err := binary.Read(d.r, binary.LittleEndian, &v); err != nil {
			return nil, d.fail("nat16", err)
		}
		return Nat16Value{V: v}, nil
	case Nat32:
		var v uint32
		if err := binary.Read(d.r, binary.LittleEndian, &v); err != nil {
			return nil, d.fail("nat32", err)
		}
		return Nat32Value{V: v}, nil
	case Nat64:
		var v uint64
		if err := binary.Read(d.r, binary.LittleEndian, &v); err != nil {
			return nil, d.fail("nat64", err)
		}
		return Nat64Value{V: v}, nil
	case Int8:
		var v int8
		if err := binary.Read(d.r, binary.LittleEndian, &v); err != nil {
			return nil, d.fail("int8", err)
		}
		return Int8Value{V: v}, nil
	case Int16:
		var v int16
		if err := binary.Read(d.r, binary.LittleEndian, &v); err != nil {
			return nil, d.fail("int16", err)
		}
		return Int16Value{V: v}, nil
	case Int32:
		var v int32
		if err := binary.Read(d.r, binary.LittleEndian, &v); err != nil {
			return nil, d.fail("int32", err)
		}
		return Int32Value{V: v}, nil
	case Int64:
		var v int64
		if err := binary.Read(d.r, binary.LittleEndian, &v); err != nil {
			return nil, d.fail("int64", err)
		}
		return Int64Value{V: v}, nil
	case Float32:
		var bits uint32
		if err := binary.Read(d.r, binary.LittleEndian, &bits); err != nil {
			return nil, d.fail("float32", err)
		}
		return Float32Value{V: math.Float32frombits(bits)}, nil
	case Float64:
		var bits uint64
		if err := binary.Read(d.r, binary.LittleEndian, &bits); err != nil {
			return nil, d.fail("float64", err)
		}
		return Float64Value{V: math.Float64frombits(bits)}, nil
	case Text:
		n, err := leb128.ReadUint(d.r)
		if err != nil {
			return nil, d.fail("text length", err)
		}
		if n > maxTextBytes {
			return nil, d.fail("text length", fmt.Errorf("%d bytes", n))
		}
		raw := make([]byte, n)
		if _, err := readFull(d.r, raw); err != nil {
			return nil, d.fail("text bytes", err)
		}
		return TextValue{V: string(raw)}, nil
	case PrincipalKind:
		if err := d.expectReferenceFlag("principal"); err != nil {
			return nil, err
		}
		p, err := d.decodePrincipalBody()
		if err != nil {
			return nil, err
		}
		return PrincipalValue{P: p}, nil
	default:
		return nil, errors.Unsupported(errors.PhaseDecode, "primitive "+prim.String())
	}
}

func (d *decoder) expectReferenceFlag(what string) error {
	flag, err := d.r.ReadByte()
	if err != nil {
		return d.fail(what, err)
	}
	if flag != 0x01 {
		return d.fail(what, fmt.Errorf("opaque references are not supported (flag %#x)", flag))
	}
	return nil
}

func (d *decoder) decodePrincipalBody() (principal.Principal, error) {
	if err := d.expectReferenceFlag("principal reference"); err != nil {
		return principal.Principal{}, err
	}
	n, err := leb128.ReadUint(d.r)
	if err != nil {
		return principal.Principal{}, d.fail("principal length", err)
	}
	if n > principal.MaxRawLength {
		return principal.Principal{}, d.fail("principal length", fmt.Errorf("%d bytes", n))
	}
	raw := make([]byte, n)
	if _, err := readFull(d.r, raw); err != nil {
		return principal.Principal{}, d.fail("principal bytes", err)
	}
	return principal.Principal{Raw: raw}, nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n, err := r.Read(buf)
	if err == nil && n < len(buf) {
		return n, fmt.Errorf("unexpected end of input")
	}
	return n, err
}

// ApplyNames reconciles a decoded value with its declared type, restoring
// record field and variant case names whose hashes match. Reconciliation is
// best effort: on any structural mismatch the value is returned unchanged,
// which is the untyped fallback path.
func ApplyNames(v Value, t Type) Value {
	resolved, err := unwrap(t)
	if err != nil {
		return v
	}

	switch ty := resolved.(type) {
	case OptType:
		opt, ok := v.(OptValue)
		if !ok || opt.V == nil {
			return v
		}
		return OptValue{V: ApplyNames(opt.V, ty.Elem)}

	case VecType:
		vec, ok := v.(VecValue)
		if !ok {
			return v
		}
		elems := make([]Value, len(vec.Elems))
		for i, e := range vec.Elems {
			elems[i] = ApplyNames(e, ty.Elem)
		}
		return VecValue{Elems: elems}

	case RecordType:
		rec, ok := v.(RecordValue)
		if !ok {
			return v
		}
		fields := make([]FieldValue, len(rec.Fields))
		for i, f := range rec.Fields {
			fields[i] = f
			for _, tf := range ty.Fields {
				if tf.Label.ID == f.Label.ID {
					fields[i].Label = tf.Label
					fields[i].V = ApplyNames(f.V, tf.Type)
					break
				}
			}
		}
		return RecordValue{Fields: fields}

	case VariantType:
		vr, ok := v.(VariantValue)
		if !ok {
			return v
		}
		for i, c := range ty.Cases {
			if c.Label.ID == vr.Label.ID {
				return VariantValue{
					Label: c.Label,
					V:     ApplyNames(vr.V, c.Type),
					Index: uint32(i),
				}
			}
		}
		return v

	default:
		return v
	}
}

// DecodeWithTypes decodes wire bytes and reconciles names against the
// declared return types. Surplus declared types are ignored; surplus
// decoded values keep their numeric labels.
func DecodeWithTypes(data []byte, types []Type) ([]Value, error) {
	values, err := Decode(data)
	if err != nil {
		return nil, err
	}
	for i := range values {
		if i < len(types) {
			values[i] = ApplyNames(values[i], types[i])
		}
	}
	return values, nil
}

// Zero returns a decoded zero value for types that allow one; used when a
// response carries fewer values than the interface declares.
func Zero(t Type) (Value, bool) {
	resolved, err := unwrap(t)
	if err != nil {
		return nil, false
	}
	switch ty := resolved.(type) {
	case OptType:
		return OptValue{}, true
	case PrimType:
		if ty.Kind == Null || ty.Kind == Reserved {
			return NullValue{}, true
		}
	}
	return nil, false
}
