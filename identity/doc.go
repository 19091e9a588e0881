// Package identity holds the signing identities used to authenticate
// network requests. An identity pairs a key with the self-authenticating
// principal derived from its DER-encoded public key.
//
// Two schemes are supported: Ed25519 and secp256k1. Secp256k1 keys can
// additionally be derived from a BIP-39 recovery phrase along the
// hardened path m/44'/223'/0'/0/0.
package identity
