package engine

import (
	"strings"

	"github.com/yuin/gopher-lua/parse"
)

// LintIssue is one syntax error found while compiling a script.
type LintIssue struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

// Lint parses the script without executing it and without the sandbox,
// returning zero or one syntax errors. Meant for fast upload-time
// feedback.
func Lint(source string) []LintIssue {
	_, err := parse.Parse(strings.NewReader(source), "script")
	if err == nil {
		return nil
	}
	if perr, ok := err.(*parse.Error); ok {
		return []LintIssue{{
			Line:    perr.Pos.Line,
			Column:  perr.Pos.Column,
			Message: perr.Error(),
		}}
	}
	return []LintIssue{{Message: err.Error()}}
}
