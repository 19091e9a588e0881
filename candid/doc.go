// Package candid implements the Candid interface-description language and
// its binary wire format.
//
// The package has three layers:
//
//   - A type model: a closed sum over the Type interface with one case per
//     wire type (primitives, opt, vec, record, variant, func and service
//     references). Named declarations resolve lazily through RefType, which
//     is what makes recursive types work.
//   - A parser for the textual grammar: Parse turns a .did document into a
//     type-checked Service listing each method's kind (query, update or
//     composite query) and argument/return types.
//   - The wire codec: EncodeArgs packs values against declared types into
//     "DIDL" bytes; Decode recovers values from wire bytes using the
//     embedded type table. The binary format carries only 32-bit label
//     hashes, never names, so Decode yields numeric labels; ApplyNames and
//     DecodeWithTypes reconcile a decoded value with a parsed interface to
//     restore field and case names where the hashes match.
//
// Values are their own closed sum over the Value interface (see value.go),
// mirroring the wire variants exactly so both codec directions are
// exhaustiveness-checked type switches.
package candid
