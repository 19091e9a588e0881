package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/canscript/canscript/errors"
)

const maxMarshalDepth = 128

// luaFromJSON builds the Lua value for decoded JSON data.
func luaFromJSON(L *lua.LState, v any) lua.LValue {
	switch t := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(t)
	case float64:
		return lua.LNumber(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return lua.LString(t.String())
		}
		return lua.LNumber(f)
	case string:
		return lua.LString(t)
	case []any:
		tbl := L.NewTable()
		for _, e := range t {
			tbl.Append(luaFromJSON(L, e))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, e := range t {
			tbl.RawSetString(k, luaFromJSON(L, e))
		}
		return tbl
	default:
		return lua.LNil
	}
}

// luaToJSON converts a Lua value into JSON-marshalable Go data. Tables
// with consecutive integer keys from 1 become arrays, other tables
// become objects. Functions, userdata and cyclic tables cannot be
// represented.
func luaToJSON(v lua.LValue) (any, error) {
	return luaToJSONValue(v, map[*lua.LTable]bool{}, 0)
}

func luaToJSONValue(v lua.LValue, seen map[*lua.LTable]bool, depth int) (any, error) {
	if depth > maxMarshalDepth {
		return nil, fmt.Errorf("value nests deeper than %d levels", maxMarshalDepth)
	}

	switch t := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(t), nil
	case lua.LNumber:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("number %v has no JSON form", f)
		}
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f), nil
		}
		return f, nil
	case lua.LString:
		return string(t), nil
	case *lua.LTable:
		if seen[t] {
			return nil, fmt.Errorf("table is cyclic")
		}
		seen[t] = true
		defer delete(seen, t)
		return tableToJSON(t, seen, depth)
	default:
		return nil, fmt.Errorf("%s values have no JSON form", v.Type().String())
	}
}

func tableToJSON(t *lua.LTable, seen map[*lua.LTable]bool, depth int) (any, error) {
	n := t.MaxN()
	total := 0
	t.ForEach(func(lua.LValue, lua.LValue) { total++ })

	// A table whose keys are exactly 1..n is an array. The empty table
	// is an object, matching how scripts usually mean {}.
	if n > 0 && n == total {
		arr := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			e, err := luaToJSONValue(t.RawGetInt(i), seen, depth+1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, e)
		}
		return arr, nil
	}

	obj := make(map[string]any, total)
	var convErr error
	t.ForEach(func(k, v lua.LValue) {
		if convErr != nil {
			return
		}
		var key string
		switch kt := k.(type) {
		case lua.LString:
			key = string(kt)
		case lua.LNumber:
			key = strconv.FormatFloat(float64(kt), 'g', -1, 64)
		default:
			convErr = fmt.Errorf("table key of type %s has no JSON form", k.Type().String())
			return
		}
		e, err := luaToJSONValue(v, seen, depth+1)
		if err != nil {
			convErr = err
			return
		}
		obj[key] = e
	})
	if convErr != nil {
		return nil, convErr
	}
	return obj, nil
}

// decodeArg unmarshals a JSON argument for a lifecycle call. Empty input
// counts as null.
func decodeArg(L *lua.LState, raw json.RawMessage, kind errors.Kind, what string) (lua.LValue, error) {
	if len(raw) == 0 {
		return lua.LNil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errors.Marshal(kind, what, err)
	}
	return luaFromJSON(L, v), nil
}

// encodeResult marshals one script return value back to JSON.
func encodeResult(v lua.LValue, kind errors.Kind, what string) (json.RawMessage, error) {
	goVal, err := luaToJSON(v)
	if err != nil {
		return nil, errors.Marshal(kind, what, err)
	}
	data, err := json.Marshal(goVal)
	if err != nil {
		return nil, errors.Marshal(kind, what, err)
	}
	return data, nil
}
