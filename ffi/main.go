// Command ffi builds the C foreign-call boundary as a shared library:
//
//	go build -buildmode=c-shared -o libcanscript.so ./ffi
//
// Every export takes and returns C strings with JSON payloads; every
// returned string is heap-allocated and owned by the caller, who must
// release it through canscript_free exactly once.
package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"unsafe"

	canscript "github.com/canscript/canscript"
)

// goString copies a C string, treating NULL as empty.
func goString(p *C.char) string {
	if p == nil {
		return ""
	}
	return C.GoString(p)
}

// cString hands a result to the caller. Ownership transfers: the caller
// frees it via canscript_free.
func cString(s string) *C.char {
	return C.CString(s)
}

//export canscript_generate_keypair
func canscript_generate_keypair(algorithm, mnemonic *C.char) *C.char {
	return cString(canscript.GenerateKeypair(goString(algorithm), goString(mnemonic)))
}

//export canscript_derive_principal
func canscript_derive_principal(publicKeyDER *C.char) *C.char {
	return cString(canscript.DerivePrincipal(goString(publicKeyDER)))
}

//export canscript_sign_message
func canscript_sign_message(algorithm, privateKey, message *C.char) *C.char {
	return cString(canscript.SignMessage(goString(algorithm), goString(privateKey), goString(message)))
}

//export canscript_fetch_interface
func canscript_fetch_interface(canisterID, host *C.char) *C.char {
	return cString(canscript.FetchInterface(goString(canisterID), goString(host)))
}

//export canscript_parse_interface
func canscript_parse_interface(source *C.char) *C.char {
	return cString(canscript.ParseInterface(goString(source)))
}

//export canscript_call
func canscript_call(requestJSON *C.char) *C.char {
	return cString(canscript.Call(goString(requestJSON)))
}

//export canscript_eval_script
func canscript_eval_script(source *C.char, budgetMillis C.longlong) *C.char {
	return cString(canscript.EvalScript(goString(source), int64(budgetMillis)))
}

//export canscript_lint_script
func canscript_lint_script(source *C.char) *C.char {
	return cString(canscript.LintScript(goString(source)))
}

//export canscript_validate_script
func canscript_validate_script(source *C.char) *C.char {
	return cString(canscript.ValidateScript(goString(source)))
}

//export canscript_init_script
func canscript_init_script(source, argJSON *C.char, budgetMillis C.longlong) *C.char {
	return cString(canscript.InitScript(goString(source), goString(argJSON), int64(budgetMillis)))
}

//export canscript_view_script
func canscript_view_script(source, stateJSON *C.char, budgetMillis C.longlong) *C.char {
	return cString(canscript.ViewScript(goString(source), goString(stateJSON), int64(budgetMillis)))
}

//export canscript_update_script
func canscript_update_script(source, msgJSON, stateJSON *C.char, budgetMillis C.longlong) *C.char {
	return cString(canscript.UpdateScript(goString(source), goString(msgJSON), goString(stateJSON), int64(budgetMillis)))
}

// canscript_free releases a string returned by any other export.
// Freeing twice, or freeing a pointer that did not come from this
// library, is undefined behavior.
//
//export canscript_free
func canscript_free(p *C.char) {
	C.free(unsafe.Pointer(p))
}

func main() {}
