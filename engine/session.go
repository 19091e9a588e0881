package engine

import (
	"context"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/canscript/canscript/errors"
)

// Fields of the os table that carry no capability and stay available to
// scripts.
var keptOSFields = []string{"time", "clock", "date", "difftime"}

// Globals the sandbox strips after the base libraries load. Calling any
// of them from a script fails at run time as a call on nil.
var strippedGlobals = []string{"dofile", "loadfile", "require", "io", "debug", "package"}

// session is one single-use interpreter. It is created, loaded, invoked
// once and closed; nothing is shared between sessions.
type session struct {
	state  *lua.LState
	budget time.Duration
	cancel context.CancelFunc
}

func newSession(budget time.Duration) (*session, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage}, // must load first
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.OsLibName, lua.OpenOs},
	} {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, errors.Script("loading interpreter libraries", err)
		}
	}

	s := &session{state: L, budget: budget}
	s.sandbox()
	registerJSONLib(L)

	if budget > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), budget)
		s.cancel = cancel
		L.SetContext(ctx)
	}
	return s, nil
}

// sandbox strips filesystem, process, debugging and module loading from
// the global namespace. The os table survives with its capability-free
// clock fields so scripts can still read wall time.
func (s *session) sandbox() {
	L := s.state

	osTable := L.GetGlobal("os")
	if t, ok := osTable.(*lua.LTable); ok {
		kept := L.NewTable()
		for _, f := range keptOSFields {
			kept.RawSetString(f, t.RawGetString(f))
		}
		L.SetGlobal("os", kept)
	}

	for _, name := range strippedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
}

// load executes the script's top-level chunk so its functions exist.
func (s *session) load(source string) error {
	if err := s.state.DoString(source); err != nil {
		return s.scriptError(err)
	}
	return nil
}

// callGlobal invokes one global function with the given arguments and
// returns nret results.
func (s *session) callGlobal(name string, nret int, args ...lua.LValue) ([]lua.LValue, error) {
	fn := s.state.GetGlobal(name)
	if fn.Type() != lua.LTFunction {
		return nil, errors.Script("script does not define function '"+name+"'", nil)
	}
	if err := s.state.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, args...); err != nil {
		return nil, s.scriptError(err)
	}
	rets := make([]lua.LValue, nret)
	for i := nret - 1; i >= 0; i-- {
		rets[i] = s.state.Get(-1)
		s.state.Pop(1)
	}
	return rets, nil
}

// scriptError distinguishes budget exhaustion from ordinary script
// failures.
func (s *session) scriptError(err error) error {
	if ctx := s.state.Context(); ctx != nil && ctx.Err() != nil {
		return errors.Timeout(s.budget.Milliseconds())
	}
	return errors.Script("script execution failed", err)
}

func (s *session) close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.state.Close()
}
