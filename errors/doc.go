// Package errors provides structured error types shared by the Candid
// bridge and the script engine.
//
// Every error carries a Phase (where in processing it happened) and a Kind
// (what went wrong), plus optional path and type context. The combination
// maps onto the coarse error classes exposed at the foreign-call boundary
// (InvalidCanisterId, CandidParse, Net, LuaRuntimeError, Marshal) via
// Error.Code, so hosts can distinguish "my call failed" from "my call
// succeeded but the answer was unreadable" from "the script crashed".
//
// Errors are built either with the fluent Builder:
//
//	errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
//	    Path("args[0]", "owner").
//	    JSONType("string").
//	    WireType("nat64").
//	    Build()
//
// or with one of the convenience constructors (ArityMismatch, UnknownVariant,
// Net, Timeout, ...).
package errors
