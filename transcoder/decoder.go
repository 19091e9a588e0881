package transcoder

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"strconv"

	"github.com/canscript/canscript/candid"
	"github.com/canscript/canscript/errors"
)

// ToJSON renders one wire value as JSON.
func ToJSON(v candid.Value) (json.RawMessage, error) {
	tree, err := jsonTree(v)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(tree)
	if err != nil {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Cause(err).
			Detail("rendering decoded value as JSON").
			Build()
	}
	return data, nil
}

// ResultToJSON renders a decoded result set: zero values as null, a single
// value unwrapped, several values as an array.
func ResultToJSON(values []candid.Value) (json.RawMessage, error) {
	switch len(values) {
	case 0:
		return json.RawMessage("null"), nil
	case 1:
		return ToJSON(values[0])
	default:
		parts := make([]any, len(values))
		for i, v := range values {
			tree, err := jsonTree(v)
			if err != nil {
				return nil, err
			}
			parts[i] = tree
		}
		data, err := json.Marshal(parts)
		if err != nil {
			return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Cause(err).
				Detail("rendering decoded result set as JSON").
				Build()
		}
		return data, nil
	}
}

// jsonTree builds the dynamic Go shape json.Marshal understands. The switch
// is exhaustive over the wire value sum.
func jsonTree(v candid.Value) (any, error) {
	switch val := v.(type) {
	case candid.NullValue:
		return nil, nil
	case candid.BoolValue:
		return val.V, nil
	case candid.TextValue:
		return val.V, nil

	// Arbitrary precision and 64-bit values render as decimal strings;
	// a JSON number would round silently past 2^53 in most consumers.
	case candid.NatValue:
		return val.V.String(), nil
	case candid.IntValue:
		return val.V.String(), nil
	case candid.Nat64Value:
		return strconv.FormatUint(val.V, 10), nil
	case candid.Int64Value:
		return strconv.FormatInt(val.V, 10), nil

	case candid.Nat8Value:
		return uint64(val.V), nil
	case candid.Nat16Value:
		return uint64(val.V), nil
	case candid.Nat32Value:
		return uint64(val.V), nil
	case candid.Int8Value:
		return int64(val.V), nil
	case candid.Int16Value:
		return int64(val.V), nil
	case candid.Int32Value:
		return int64(val.V), nil

	case candid.Float32Value:
		return finiteOrString(float64(val.V)), nil
	case candid.Float64Value:
		return finiteOrString(val.V), nil

	case candid.PrincipalValue:
		return val.P.Text(), nil

	case candid.OptValue:
		if val.V == nil {
			return nil, nil
		}
		return jsonTree(val.V)

	case candid.VecValue:
		elems := make([]any, len(val.Elems))
		for i, e := range val.Elems {
			tree, err := jsonTree(e)
			if err != nil {
				return nil, err
			}
			elems[i] = tree
		}
		return elems, nil

	case candid.BlobValue:
		return BlobPrefix + base64.StdEncoding.EncodeToString(val.Bytes), nil

	case candid.RecordValue:
		obj := make(map[string]any, len(val.Fields))
		for _, f := range val.Fields {
			tree, err := jsonTree(f.V)
			if err != nil {
				return nil, err
			}
			obj[f.Label.Key()] = tree
		}
		return obj, nil

	case candid.VariantValue:
		tree, err := jsonTree(val.V)
		if err != nil {
			return nil, err
		}
		return map[string]any{val.Label.Key(): tree}, nil

	case candid.ServiceRefValue:
		return val.P.Text(), nil

	case candid.FuncRefValue:
		return map[string]any{
			"principal": val.P.Text(),
			"method":    val.Method,
		}, nil

	default:
		return nil, errors.Unsupported(errors.PhaseDecode, "wire value")
	}
}

// finiteOrString keeps json.Marshal from failing on non-finite floats.
func finiteOrString(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	default:
		return f
	}
}

