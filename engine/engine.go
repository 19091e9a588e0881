package engine

import (
	"encoding/json"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/canscript/canscript/errors"
)

// Transition is the result of an init or update call: the next state
// and the effects the script requested.
type Transition struct {
	State   json.RawMessage `json:"state"`
	Effects json.RawMessage `json:"effects"`
}

// Init runs the script's init function with a JSON argument and returns
// the initial state and effects.
func Init(source string, arg json.RawMessage, budget time.Duration) (*Transition, error) {
	s, err := newSession(budget)
	if err != nil {
		return nil, err
	}
	defer s.close()

	if err := s.load(source); err != nil {
		return nil, err
	}
	argLV, err := decodeArg(s.state, arg, errors.KindInvalidArg, "arg JSON")
	if err != nil {
		return nil, err
	}
	rets, err := s.callGlobal("init", 2, argLV)
	if err != nil {
		return nil, err
	}
	return transitionOf(rets)
}

// View runs the script's view function on a state and returns the UI
// tree it describes. The tree is opaque here and passed through as
// JSON.
func View(source string, state json.RawMessage, budget time.Duration) (json.RawMessage, error) {
	s, err := newSession(budget)
	if err != nil {
		return nil, err
	}
	defer s.close()

	if err := s.load(source); err != nil {
		return nil, err
	}
	stateLV, err := decodeArg(s.state, state, errors.KindInvalidState, "state JSON")
	if err != nil {
		return nil, err
	}
	rets, err := s.callGlobal("view", 1, stateLV)
	if err != nil {
		return nil, err
	}
	return encodeResult(rets[0], errors.KindInvalidUI, "ui")
}

// Update runs the script's update function with a message and the
// current state, returning the next state and effects.
func Update(source string, msg, state json.RawMessage, budget time.Duration) (*Transition, error) {
	s, err := newSession(budget)
	if err != nil {
		return nil, err
	}
	defer s.close()

	if err := s.load(source); err != nil {
		return nil, err
	}
	msgLV, err := decodeArg(s.state, msg, errors.KindInvalidArg, "msg JSON")
	if err != nil {
		return nil, err
	}
	stateLV, err := decodeArg(s.state, state, errors.KindInvalidState, "state JSON")
	if err != nil {
		return nil, err
	}
	rets, err := s.callGlobal("update", 2, msgLV, stateLV)
	if err != nil {
		return nil, err
	}
	return transitionOf(rets)
}

// Eval executes a script once and returns the value of its final
// return statement, if any.
func Eval(source string, budget time.Duration) (json.RawMessage, error) {
	s, err := newSession(budget)
	if err != nil {
		return nil, err
	}
	defer s.close()

	fn, err := s.state.LoadString(source)
	if err != nil {
		return nil, errors.Script("script did not compile", err)
	}
	s.state.Push(fn)
	if err := s.state.PCall(0, 1, nil); err != nil {
		return nil, s.scriptError(err)
	}
	ret := s.state.Get(-1)
	s.state.Pop(1)

	Logger().Debug("script evaluated", zap.String("result_type", ret.Type().String()))
	return encodeResult(ret, errors.KindInvalidData, "result")
}

func transitionOf(rets []lua.LValue) (*Transition, error) {
	state, err := encodeResult(rets[0], errors.KindInvalidState, "state")
	if err != nil {
		return nil, err
	}
	effects, err := encodeResult(rets[1], errors.KindInvalidEffects, "effects")
	if err != nil {
		return nil, err
	}
	return &Transition{State: state, Effects: effects}, nil
}
