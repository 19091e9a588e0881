package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"

	"github.com/canscript/canscript/errors"
	"github.com/canscript/canscript/principal"
)

// Ed25519 is an Ed25519 signing identity.
type Ed25519 struct {
	priv ed25519.PrivateKey
	der  []byte
}

// NewEd25519 generates a fresh Ed25519 identity.
func NewEd25519() (*Ed25519, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Key("generating ed25519 key", err)
	}
	return ed25519FromPrivate(priv)
}

// Ed25519FromSeed rebuilds an identity from a 32-byte seed.
func Ed25519FromSeed(seed []byte) (*Ed25519, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.Key("ed25519 seed must be 32 bytes", nil)
	}
	return ed25519FromPrivate(ed25519.NewKeyFromSeed(seed))
}

func ed25519FromPrivate(priv ed25519.PrivateKey) (*Ed25519, error) {
	der, err := x509.MarshalPKIXPublicKey(priv.Public())
	if err != nil {
		return nil, errors.Key("encoding ed25519 public key", err)
	}
	return &Ed25519{priv: priv, der: der}, nil
}

func (id *Ed25519) Sender() principal.Principal {
	return principal.SelfAuthenticating(id.der)
}

func (id *Ed25519) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(id.priv, msg), nil
}

func (id *Ed25519) PublicKeyDER() []byte { return id.der }

// Seed returns the 32-byte private seed, for export.
func (id *Ed25519) Seed() []byte {
	return id.priv.Seed()
}
