package canscript

import (
	"encoding/json"

	"github.com/canscript/canscript/errors"
)

// Result is the uniform envelope every root operation returns, encoded
// as JSON.
type Result struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
}

func success(v any) string {
	var raw json.RawMessage
	switch t := v.(type) {
	case json.RawMessage:
		raw = t
	case nil:
		raw = json.RawMessage("null")
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return failure(err)
		}
		raw = data
	}
	out, err := json.Marshal(Result{OK: true, Result: raw})
	if err != nil {
		return failure(err)
	}
	return string(out)
}

func failure(err error) string {
	out, merr := json.Marshal(Result{
		OK:    false,
		Error: err.Error(),
		Code:  errors.CodeOf(err),
	})
	if merr != nil {
		// The envelope itself is static, only the message could fail,
		// and strings always marshal.
		return `{"ok":false,"error":"internal error","code":"Internal"}`
	}
	return string(out)
}
