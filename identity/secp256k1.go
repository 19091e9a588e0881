package identity

import (
	"crypto/sha256"
	"encoding/asn1"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/canscript/canscript/errors"
	"github.com/canscript/canscript/principal"
)

var (
	oidECPublicKey = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidSecp256k1   = asn1.ObjectIdentifier{1, 3, 132, 0, 10}
)

// Secp256k1 is a secp256k1 ECDSA signing identity. Signatures are the raw
// 64-byte r||s form over the SHA-256 digest of the payload.
type Secp256k1 struct {
	priv *secp256k1.PrivateKey
	der  []byte
}

// NewSecp256k1 generates a fresh secp256k1 identity.
func NewSecp256k1() (*Secp256k1, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, errors.Key("generating secp256k1 key", err)
	}
	return secp256k1FromPrivate(priv)
}

// Secp256k1FromBytes rebuilds an identity from a 32-byte private scalar.
func Secp256k1FromBytes(b []byte) (*Secp256k1, error) {
	if len(b) != 32 {
		return nil, errors.Key("secp256k1 private key must be 32 bytes", nil)
	}
	return secp256k1FromPrivate(secp256k1.PrivKeyFromBytes(b))
}

func secp256k1FromPrivate(priv *secp256k1.PrivateKey) (*Secp256k1, error) {
	der, err := marshalSecp256k1SPKI(priv.PubKey())
	if err != nil {
		return nil, err
	}
	return &Secp256k1{priv: priv, der: der}, nil
}

func (id *Secp256k1) Sender() principal.Principal {
	return principal.SelfAuthenticating(id.der)
}

func (id *Secp256k1) Sign(msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	compact := ecdsa.SignCompact(id.priv, digest[:], true)
	// Drop the recovery byte, keeping the 64-byte r||s pair.
	return compact[1:], nil
}

func (id *Secp256k1) PublicKeyDER() []byte { return id.der }

// PrivateKeyBytes returns the 32-byte private scalar, for export.
func (id *Secp256k1) PrivateKeyBytes() []byte {
	return id.priv.Serialize()
}

type algorithmIdentifier struct {
	Algorithm asn1.ObjectIdentifier
	Curve     asn1.ObjectIdentifier
}

type subjectPublicKeyInfo struct {
	Algorithm algorithmIdentifier
	PublicKey asn1.BitString
}

func marshalSecp256k1SPKI(pub *secp256k1.PublicKey) ([]byte, error) {
	point := pub.SerializeUncompressed()
	der, err := asn1.Marshal(subjectPublicKeyInfo{
		Algorithm: algorithmIdentifier{Algorithm: oidECPublicKey, Curve: oidSecp256k1},
		PublicKey: asn1.BitString{Bytes: point, BitLength: len(point) * 8},
	})
	if err != nil {
		return nil, errors.Key("encoding secp256k1 public key", err)
	}
	return der, nil
}
