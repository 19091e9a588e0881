package engine

import (
	"encoding/json"

	lua "github.com/yuin/gopher-lua"
)

// registerJSONLib installs the json namespace inside the sandbox:
// json.encode(value) -> string | nil, err and
// json.decode(text) -> value | nil, err. Both report failures as a
// second return value rather than raising.
func registerJSONLib(L *lua.LState) {
	mod := L.NewTable()
	L.SetField(mod, "encode", L.NewFunction(jsonEncode))
	L.SetField(mod, "decode", L.NewFunction(jsonDecode))
	L.SetGlobal("json", mod)
}

func jsonEncode(L *lua.LState) int {
	v := L.CheckAny(1)
	goVal, err := luaToJSON(v)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	data, err := json.Marshal(goVal)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LString(data))
	return 1
}

func jsonDecode(L *lua.LState) int {
	text := L.CheckString(1)
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(luaFromJSON(L, v))
	return 1
}
