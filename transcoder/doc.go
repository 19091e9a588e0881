// Package transcoder converts between JSON and Candid wire values, directed
// by declared Candid types.
//
// The JSON-to-wire direction is strict: each JSON value must fit the
// declared type (records by field name or positionally, variants as a
// single-key object, options flattening null). The wire-to-JSON direction
// is loss-averse: big naturals/integers and 64-bit fixed-width values render
// as decimal strings rather than JSON numbers so consumers with 53-bit-safe
// number types never silently round them, and blobs render with a "base64:"
// prefix so binary payloads stay distinguishable from plain text.
package transcoder
