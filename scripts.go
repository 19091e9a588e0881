package canscript

import (
	"time"

	"github.com/canscript/canscript/engine"
)

func budgetOf(millis int64) time.Duration {
	if millis <= 0 {
		return 0
	}
	return time.Duration(millis) * time.Millisecond
}

// InitScript runs a script's init function with a JSON argument under a
// millisecond budget and returns {state, effects}.
func InitScript(source, argJSON string, budgetMillis int64) string {
	tr, err := engine.Init(source, []byte(argJSON), budgetOf(budgetMillis))
	if err != nil {
		return failure(err)
	}
	return success(tr)
}

// ViewScript runs a script's view function on a state and returns the
// UI tree it describes.
func ViewScript(source, stateJSON string, budgetMillis int64) string {
	ui, err := engine.View(source, []byte(stateJSON), budgetOf(budgetMillis))
	if err != nil {
		return failure(err)
	}
	return success(ui)
}

// UpdateScript runs a script's update function with a message and the
// current state, returning {state, effects}.
func UpdateScript(source, msgJSON, stateJSON string, budgetMillis int64) string {
	tr, err := engine.Update(source, []byte(msgJSON), []byte(stateJSON), budgetOf(budgetMillis))
	if err != nil {
		return failure(err)
	}
	return success(tr)
}

// EvalScript executes a script once and returns its final value.
func EvalScript(source string, budgetMillis int64) string {
	out, err := engine.Eval(source, budgetOf(budgetMillis))
	if err != nil {
		return failure(err)
	}
	return success(out)
}

// LintScript parses a script and returns its syntax errors, if any.
func LintScript(source string) string {
	issues := engine.Lint(source)
	if issues == nil {
		issues = []engine.LintIssue{}
	}
	return success(map[string]any{"issues": issues})
}

// ValidateScript runs the heuristic validator over a script.
func ValidateScript(source string) string {
	issues := engine.Validate(source)
	if issues == nil {
		issues = []engine.ValidationIssue{}
	}
	return success(map[string]any{"issues": issues})
}
