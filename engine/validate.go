package engine

import (
	"fmt"
	"regexp"
)

// Severity ranks validation findings.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationIssue is one finding of the heuristic validator.
type ValidationIssue struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

var (
	capabilityPattern = regexp.MustCompile(`\b(os\.execute|os\.remove|os\.rename|os\.getenv|os\.exit|io\.[a-z]+|debug\.[a-z]+|package\.[a-z]+|require|dofile|loadfile)\b`)
	lifecyclePattern  = regexp.MustCompile(`(?m)(?:function\s+(init|view|update)\s*\(|(init|view|update)\s*=\s*function)`)
	busyLoopPattern   = regexp.MustCompile(`(?m)while\s+true\s+do\s*end`)
)

// Validate runs heuristic syntax and security checks over a script. It
// never executes the script; findings are advisory, not proof.
func Validate(source string) []ValidationIssue {
	var issues []ValidationIssue

	for _, lint := range Lint(source) {
		issues = append(issues, ValidationIssue{
			Severity: SeverityError,
			Message:  lint.Message,
		})
	}

	for _, m := range capabilityPattern.FindAllStringSubmatch(source, -1) {
		issues = append(issues, ValidationIssue{
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("script references %q, which is unavailable in the sandbox and will fail at run time", m[1]),
		})
	}

	if !lifecyclePattern.MatchString(source) {
		issues = append(issues, ValidationIssue{
			Severity: SeverityWarning,
			Message:  "script defines none of init, view or update",
		})
	}

	if busyLoopPattern.MatchString(source) {
		issues = append(issues, ValidationIssue{
			Severity: SeverityWarning,
			Message:  "empty 'while true do end' loop will run until the time budget aborts it",
		})
	}

	return issues
}
