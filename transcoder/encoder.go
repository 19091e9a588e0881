package transcoder

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/canscript/canscript/candid"
	"github.com/canscript/canscript/errors"
	"github.com/canscript/canscript/principal"
)

// BlobPrefix tags base64 blob strings in the JSON representation.
const BlobPrefix = "base64:"

// EncodeArgs resolves a method's declared argument types and packs JSON
// arguments into wire bytes. With zero declared arguments jsonArgs is
// ignored; with one it is the single value, unwrapped; with more it must be
// a JSON array of exactly that many elements.
func EncodeArgs(svc *candid.Service, method string, jsonArgs json.RawMessage) ([]byte, error) {
	m, ok := svc.Method(method)
	if !ok {
		return nil, errors.NotFound(errors.PhaseEncode, "method", method)
	}
	values, err := ArgsToValues(m.Args, jsonArgs)
	if err != nil {
		return nil, err
	}
	return candid.EncodeArgs(m.Args, values)
}

// ArgsToValues converts JSON arguments into wire values per the declared
// argument types.
func ArgsToValues(argTypes []candid.Type, jsonArgs json.RawMessage) ([]candid.Value, error) {
	switch len(argTypes) {
	case 0:
		return nil, nil
	case 1:
		v, err := FromJSON(argTypes[0], jsonArgs)
		if err != nil {
			return nil, err
		}
		return []candid.Value{v}, nil
	default:
		raw, err := parseJSON(jsonArgs)
		if err != nil {
			return nil, err
		}
		arr, ok := raw.([]any)
		if !ok {
			return nil, errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
				JSONType(jsonTypeName(raw)).
				Detail("a %d-argument method needs a JSON array of arguments", len(argTypes)).
				Build()
		}
		if len(arr) != len(argTypes) {
			return nil, errors.ArityMismatch(errors.PhaseEncode, len(argTypes), len(arr))
		}
		values := make([]candid.Value, len(argTypes))
		for i, t := range argTypes {
			v, err := convert(t, arr[i], []string{fmt.Sprintf("args[%d]", i)})
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return values, nil
	}
}

// FromJSON converts one JSON value into a wire value of the declared type.
func FromJSON(t candid.Type, raw json.RawMessage) (candid.Value, error) {
	v, err := parseJSON(raw)
	if err != nil {
		return nil, err
	}
	return convert(t, v, nil)
}

// parseJSON decodes raw JSON into the dynamic Go shape, keeping numbers as
// json.Number so no precision is lost before the declared type is known.
func parseJSON(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.New(errors.PhaseEncode, errors.KindInvalidData).
			Cause(err).
			Detail("arguments are not valid JSON").
			Build()
	}
	return v, nil
}

func convert(t candid.Type, v any, path []string) (candid.Value, error) {
	resolved, err := resolve(t, path)
	if err != nil {
		return nil, err
	}

	switch ty := resolved.(type) {
	case candid.PrimType:
		return convertPrim(ty, v, path)

	case candid.OptType:
		if v == nil {
			return candid.OptValue{}, nil
		}
		inner, err := convert(ty.Elem, v, path)
		if err != nil {
			return nil, err
		}
		return candid.OptValue{V: inner}, nil

	case candid.VecType:
		return convertVec(ty, v, path)

	case candid.RecordType:
		return convertRecord(ty, v, path)

	case candid.VariantType:
		return convertVariant(ty, v, path)

	case candid.FuncRefType:
		return nil, errors.Unsupported(errors.PhaseEncode, "func type in JSON arguments")

	case candid.ServiceRefType:
		return nil, errors.Unsupported(errors.PhaseEncode, "service type in JSON arguments")

	default:
		return nil, errors.Unsupported(errors.PhaseEncode, "type "+resolved.String())
	}
}

func resolve(t candid.Type, path []string) (candid.Type, error) {
	for i := 0; i < 64; i++ {
		ref, ok := t.(candid.RefType)
		if !ok {
			return t, nil
		}
		resolved, err := ref.Resolve()
		if err != nil {
			return nil, errors.New(errors.PhaseEncode, errors.KindCandidParse).
				Path(path...).
				Cause(err).
				Build()
		}
		t = resolved
	}
	return nil, errors.New(errors.PhaseEncode, errors.KindCandidParse).
		Path(path...).
		Detail("type reference chain too deep").
		Build()
}

func convertPrim(t candid.PrimType, v any, path []string) (candid.Value, error) {
	switch t.Kind {
	case candid.Null, candid.Reserved, candid.Empty:
		return candid.NullValue{}, nil

	case candid.Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, typeMismatch(path, v, t)
		}
		return candid.BoolValue{V: b}, nil

	case candid.Text:
		s, ok := v.(string)
		if !ok {
			return nil, typeMismatch(path, v, t)
		}
		return candid.TextValue{V: s}, nil

	case candid.Nat:
		n, err := bigFrom(v, path, t)
		if err != nil {
			return nil, err
		}
		if n.Sign() < 0 {
			return nil, errors.Overflow(errors.PhaseEncode, path, n.String(), "nat")
		}
		return candid.NatValue{V: n}, nil

	case candid.Int:
		n, err := bigFrom(v, path, t)
		if err != nil {
			return nil, err
		}
		return candid.IntValue{V: n}, nil

	case candid.Nat8:
		n, err := uintFrom(v, 8, path, t)
		if err != nil {
			return nil, err
		}
		return candid.Nat8Value{V: uint8(n)}, nil
	case candid.Nat16:
		n, err := uintFrom(v, 16, path, t)
		if err != nil {
			return nil, err
		}
		return candid.Nat16Value{V: uint16(n)}, nil
	case candid.Nat32:
		n, err := uintFrom(v, 32, path, t)
		if err != nil {
			return nil, err
		}
		return candid.Nat32Value{V: uint32(n)}, nil
	case candid.Nat64:
		n, err := uintFrom(v, 64, path, t)
		if err != nil {
			return nil, err
		}
		return candid.Nat64Value{V: n}, nil

	case candid.Int8:
		n, err := intFrom(v, 8, path, t)
		if err != nil {
			return nil, err
		}
		return candid.Int8Value{V: int8(n)}, nil
	case candid.Int16:
		n, err := intFrom(v, 16, path, t)
		if err != nil {
			return nil, err
		}
		return candid.Int16Value{V: int16(n)}, nil
	case candid.Int32:
		n, err := intFrom(v, 32, path, t)
		if err != nil {
			return nil, err
		}
		return candid.Int32Value{V: int32(n)}, nil
	case candid.Int64:
		n, err := intFrom(v, 64, path, t)
		if err != nil {
			return nil, err
		}
		return candid.Int64Value{V: n}, nil

	case candid.Float32:
		f, err := floatFrom(v, path, t)
		if err != nil {
			return nil, err
		}
		return candid.Float32Value{V: float32(f)}, nil
	case candid.Float64:
		f, err := floatFrom(v, path, t)
		if err != nil {
			return nil, err
		}
		return candid.Float64Value{V: f}, nil

	case candid.PrincipalKind:
		s, ok := v.(string)
		if !ok {
			return nil, typeMismatch(path, v, t)
		}
		p, err := principal.FromText(s)
		if err != nil {
			return nil, err
		}
		return candid.PrincipalValue{P: p}, nil

	default:
		return nil, errors.Unsupported(errors.PhaseEncode, "type "+t.String())
	}
}

// bigFrom accepts a JSON number or a numeric string, so values beyond the
// 53-bit-safe range survive the trip through JSON intact.
func bigFrom(v any, path []string, t candid.Type) (*big.Int, error) {
	var text string
	switch n := v.(type) {
	case json.Number:
		text = n.String()
	case string:
		text = strings.TrimSpace(n)
	default:
		return nil, typeMismatch(path, v, t)
	}
	parsed, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return nil, errors.New(errors.PhaseEncode, errors.KindInvalidData).
			Path(path...).
			WireType(t.String()).
			Detail("%q is not a decimal integer", text).
			Build()
	}
	return parsed, nil
}

func uintFrom(v any, bits int, path []string, t candid.Type) (uint64, error) {
	var text string
	switch n := v.(type) {
	case json.Number:
		text = n.String()
	case string:
		// Only the 64-bit width takes strings; smaller widths are always
		// JSON-number safe.
		if bits != 64 {
			return 0, typeMismatch(path, v, t)
		}
		text = strings.TrimSpace(n)
	default:
		return 0, typeMismatch(path, v, t)
	}
	parsed, err := strconv.ParseUint(text, 10, bits)
	if err != nil {
		return 0, errors.Overflow(errors.PhaseEncode, path, text, t.String())
	}
	return parsed, nil
}

func intFrom(v any, bits int, path []string, t candid.Type) (int64, error) {
	var text string
	switch n := v.(type) {
	case json.Number:
		text = n.String()
	case string:
		if bits != 64 {
			return 0, typeMismatch(path, v, t)
		}
		text = strings.TrimSpace(n)
	default:
		return 0, typeMismatch(path, v, t)
	}
	parsed, err := strconv.ParseInt(text, 10, bits)
	if err != nil {
		return 0, errors.Overflow(errors.PhaseEncode, path, text, t.String())
	}
	return parsed, nil
}

func floatFrom(v any, path []string, t candid.Type) (float64, error) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, typeMismatch(path, v, t)
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return 0, errors.New(errors.PhaseEncode, errors.KindInvalidData).
			Path(path...).
			Cause(err).
			Build()
	}
	return f, nil
}

func convertVec(t candid.VecType, v any, path []string) (candid.Value, error) {
	// Blobs additionally accept the tagged base64 string form that the
	// decoder emits, so decoded output re-encodes cleanly.
	if s, ok := v.(string); ok && t.IsBlob() {
		if !strings.HasPrefix(s, BlobPrefix) {
			return nil, errors.New(errors.PhaseEncode, errors.KindInvalidData).
				Path(path...).
				Detail("blob strings need the %q prefix", BlobPrefix).
				Build()
		}
		data, err := base64.StdEncoding.DecodeString(s[len(BlobPrefix):])
		if err != nil {
			return nil, errors.New(errors.PhaseEncode, errors.KindInvalidData).
				Path(path...).
				Cause(err).
				Detail("invalid base64 blob").
				Build()
		}
		return candid.BlobValue{Bytes: data}, nil
	}

	arr, ok := v.([]any)
	if !ok {
		return nil, typeMismatch(path, v, t)
	}

	if t.IsBlob() {
		data := make([]byte, len(arr))
		for i, e := range arr {
			n, err := uintFrom(e, 8, append(path, strconv.Itoa(i)), candid.PrimType{Kind: candid.Nat8})
			if err != nil {
				return nil, err
			}
			data[i] = byte(n)
		}
		return candid.BlobValue{Bytes: data}, nil
	}

	elems := make([]candid.Value, len(arr))
	for i, e := range arr {
		ev, err := convert(t.Elem, e, append(path, strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		elems[i] = ev
	}
	return candid.VecValue{Elems: elems}, nil
}

func convertRecord(t candid.RecordType, v any, path []string) (candid.Value, error) {
	switch src := v.(type) {
	case map[string]any:
		fields := make([]candid.FieldValue, 0, len(t.Fields))
		for _, f := range t.Fields {
			raw, present := src[f.Label.Key()]
			if !present {
				if isOptional(f.Type) {
					fields = append(fields, candid.FieldValue{Label: f.Label, V: candid.OptValue{}})
					continue
				}
				return nil, errors.FieldMissing(errors.PhaseEncode, path, f.Label.Key())
			}
			fv, err := convert(f.Type, raw, append(path, f.Label.Key()))
			if err != nil {
				return nil, err
			}
			fields = append(fields, candid.FieldValue{Label: f.Label, V: fv})
		}
		return candid.RecordValue{Fields: fields}, nil

	case []any:
		if len(src) != len(t.Fields) {
			return nil, errors.ArityMismatch(errors.PhaseEncode, len(t.Fields), len(src))
		}
		fields := make([]candid.FieldValue, len(t.Fields))
		for i, f := range t.Fields {
			fv, err := convert(f.Type, src[i], append(path, f.Label.Key()))
			if err != nil {
				return nil, err
			}
			fields[i] = candid.FieldValue{Label: f.Label, V: fv}
		}
		return candid.RecordValue{Fields: fields}, nil

	default:
		return nil, typeMismatch(path, v, t)
	}
}

func isOptional(t candid.Type) bool {
	resolved, err := resolve(t, nil)
	if err != nil {
		return false
	}
	_, ok := resolved.(candid.OptType)
	return ok
}

func convertVariant(t candid.VariantType, v any, path []string) (candid.Value, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, typeMismatch(path, v, t)
	}
	if len(obj) != 1 {
		return nil, errors.New(errors.PhaseEncode, errors.KindInvalidData).
			Path(path...).
			Detail("a variant needs exactly one case key, got %d", len(obj)).
			Build()
	}

	var name string
	var payload any
	for k, pv := range obj {
		name, payload = k, pv
	}

	c, ordinal, found := t.CaseByName(name)
	if !found {
		return nil, errors.UnknownVariant(errors.PhaseEncode, path, name)
	}

	// Payload-less cases ignore whatever value was supplied.
	if isPayloadless(c.Type) {
		return candid.VariantValue{Label: c.Label, V: candid.NullValue{}, Index: ordinal}, nil
	}

	pv, err := convert(c.Type, payload, append(path, name))
	if err != nil {
		return nil, err
	}
	return candid.VariantValue{Label: c.Label, V: pv, Index: ordinal}, nil
}

func isPayloadless(t candid.Type) bool {
	resolved, err := resolve(t, nil)
	if err != nil {
		return false
	}
	prim, ok := resolved.(candid.PrimType)
	return ok && (prim.Kind == candid.Null || prim.Kind == candid.Reserved || prim.Kind == candid.Empty)
}

func typeMismatch(path []string, v any, t candid.Type) error {
	return errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
		Path(path...).
		JSONType(jsonTypeName(v)).
		WireType(t.String()).
		Build()
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
