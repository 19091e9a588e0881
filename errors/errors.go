package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseParse     Phase = "parse"     // interface-description parsing
	PhaseTypecheck Phase = "typecheck" // interface-description type checking
	PhaseEncode    Phase = "encode"    // JSON to wire
	PhaseDecode    Phase = "decode"    // wire to JSON
	PhaseNet       Phase = "net"       // transport, agent, consensus
	PhaseScript    Phase = "script"    // sandboxed script execution
	PhaseMarshal   Phase = "marshal"   // host JSON <-> interpreter values
	PhaseKey       Phase = "key"       // key material handling
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidPrincipal Kind = "invalid_principal"
	KindCandidParse      Kind = "candid_parse"
	KindArityMismatch    Kind = "arity_mismatch"
	KindFieldMissing     Kind = "field_missing"
	KindUnknownVariant   Kind = "unknown_variant"
	KindTypeMismatch     Kind = "type_mismatch"
	KindUnsupported      Kind = "unsupported"
	KindOverflow         Kind = "overflow"
	KindInvalidData      Kind = "invalid_data"
	KindNotFound         Kind = "not_found"
	KindNet              Kind = "net"
	KindRejected         Kind = "rejected"
	KindCertification    Kind = "certification"
	KindLuaRuntime       Kind = "lua_runtime"
	KindTimeout          Kind = "timeout"
	KindInvalidArg       Kind = "invalid_arg"
	KindInvalidState     Kind = "invalid_state"
	KindInvalidEffects   Kind = "invalid_effects"
	KindInvalidUI        Kind = "invalid_ui"
)

// Error is the structured error type used throughout the repository
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	JSONType string
	WireType string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.JSONType != "" || e.WireType != "" {
		b.WriteString(": ")
		if e.JSONType != "" && e.WireType != "" {
			b.WriteString("JSON ")
			b.WriteString(e.JSONType)
			b.WriteString(", wire type ")
			b.WriteString(e.WireType)
		} else if e.JSONType != "" {
			b.WriteString("JSON ")
			b.WriteString(e.JSONType)
		} else {
			b.WriteString("wire type ")
			b.WriteString(e.WireType)
		}
	}

	if e.Detail != "" {
		if e.JSONType != "" || e.WireType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Code returns the error class name used at the foreign-call boundary.
// Callers on the far side of the boundary switch on these strings.
func (e *Error) Code() string {
	switch e.Kind {
	case KindInvalidPrincipal:
		return "InvalidCanisterId"
	case KindCandidParse, KindArityMismatch, KindFieldMissing,
		KindUnknownVariant, KindTypeMismatch, KindUnsupported, KindOverflow:
		return "CandidParse"
	case KindNet, KindRejected, KindCertification:
		return "Net"
	case KindLuaRuntime, KindTimeout:
		return "LuaRuntimeError"
	case KindInvalidArg, KindInvalidState, KindInvalidEffects, KindInvalidUI:
		return "Marshal"
	default:
		return "Internal"
	}
}

// CodeOf returns the boundary error class for any error value.
func CodeOf(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Code()
	}
	return "Internal"
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// JSONType sets the offending JSON value's type name
func (b *Builder) JSONType(t string) *Builder {
	b.err.JSONType = t
	return b
}

// WireType sets the declared wire type name
func (b *Builder) WireType(t string) *Builder {
	b.err.WireType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// ParseFailed creates an interface-description parse error
func ParseFailed(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindCandidParse,
		Detail: detail,
		Cause:  cause,
	}
}

// TypeMismatch creates a JSON/wire type mismatch error
func TypeMismatch(phase Phase, path []string, jsonType, wireType string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Path:     path,
		JSONType: jsonType,
		WireType: wireType,
	}
}

// ArityMismatch creates an argument-count error naming expected vs actual
func ArityMismatch(phase Phase, expected, actual int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindArityMismatch,
		Detail: fmt.Sprintf("expected %d argument(s), got %d", expected, actual),
	}
}

// FieldMissing creates a missing record field error
func FieldMissing(phase Phase, path []string, fieldName string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFieldMissing,
		Path:   path,
		Detail: fmt.Sprintf("missing field %q", fieldName),
	}
}

// UnknownVariant creates an unknown variant case error
func UnknownVariant(phase Phase, path []string, caseName string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnknownVariant,
		Path:   path,
		Detail: fmt.Sprintf("unknown variant case %q", caseName),
	}
}

// Unsupported creates an unsupported-type error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what + " is not supported",
	}
}

// Overflow creates a numeric overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindOverflow,
		Path:     path,
		Value:    value,
		WireType: targetType,
		Detail:   fmt.Sprintf("value %v does not fit in %s", value, targetType),
	}
}

// NotFound creates a lookup failure error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidPrincipal creates a malformed-principal error
func InvalidPrincipal(text string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidPrincipal,
		Detail: fmt.Sprintf("invalid principal %q", text),
		Cause:  cause,
	}
}

// Net wraps a transport or agent failure
func Net(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseNet,
		Kind:   KindNet,
		Detail: detail,
		Cause:  cause,
	}
}

// Rejected creates a call-rejection error carrying the replica's code and message
func Rejected(code uint64, message string) *Error {
	return &Error{
		Phase:  PhaseNet,
		Kind:   KindRejected,
		Detail: fmt.Sprintf("call rejected (code %d): %s", code, message),
	}
}

// Certification creates a certificate verification error
func Certification(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseNet,
		Kind:   KindCertification,
		Detail: detail,
		Cause:  cause,
	}
}

// Script wraps an interpreter runtime error
func Script(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseScript,
		Kind:   KindLuaRuntime,
		Detail: detail,
		Cause:  cause,
	}
}

// Timeout creates an execution-budget error
func Timeout(budgetMillis int64) *Error {
	return &Error{
		Phase:  PhaseScript,
		Kind:   KindTimeout,
		Detail: fmt.Sprintf("script exceeded execution timeout of %dms", budgetMillis),
	}
}

// Marshal creates an invalid state/effects/ui/arg error for the lifecycle bridge
func Marshal(kind Kind, what string, cause error) *Error {
	return &Error{
		Phase:  PhaseMarshal,
		Kind:   kind,
		Detail: "invalid " + what,
		Cause:  cause,
	}
}

// Key wraps a key-material failure
func Key(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseKey,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}
