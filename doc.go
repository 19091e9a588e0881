// Package canscript bridges JSON-speaking hosts to a replicated canister
// network and to a sandboxed Lua script runtime.
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	canscript/           Root package with the string-in/string-out operations
//	├── bridge/          Interface-directed remote calls (JSON in, JSON out)
//	├── candid/          Interface-description parsing and the binary wire codec
//	├── transcoder/      JSON <-> wire value conversion, type-directed
//	├── agent/           CBOR envelopes, query/update dispatch, certified reads
//	├── certification/   Hash tree verification and BLS signature checks
//	├── identity/        Ed25519 and secp256k1 signing identities
//	├── principal/       Textual and binary principal handling
//	├── engine/          Sandboxed Lua lifecycle runtime (init/view/update)
//	├── errors/          Structured error types with boundary error codes
//	└── ffi/             C foreign-call boundary over the root operations
//
// Every root operation takes and returns strings: inputs are JSON or
// plain text, outputs are a JSON result envelope of the form
// {"ok":true,"result":...} or {"ok":false,"error":"...","code":"..."}.
// This keeps the foreign-call surface uniform for non-Go hosts.
package canscript
