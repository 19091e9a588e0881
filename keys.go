package canscript

import (
	"encoding/base64"

	"github.com/canscript/canscript/errors"
	"github.com/canscript/canscript/identity"
	"github.com/canscript/canscript/principal"
)

// Signature algorithms of the key operations.
const (
	AlgorithmEd25519   = "ed25519"
	AlgorithmSecp256k1 = "secp256k1"
)

// Keypair is the result payload of GenerateKeypair.
type Keypair struct {
	Algorithm    string `json:"algorithm"`
	PublicKeyDER string `json:"public_key_der"`
	PrivateKey   string `json:"private_key"`
	Principal    string `json:"principal"`
	Mnemonic     string `json:"mnemonic,omitempty"`
}

// GenerateKeypair creates a signing keypair for the given algorithm.
// With an empty mnemonic a fresh recovery phrase is generated; either
// way the returned keypair is the deterministic derivation of the
// phrase, so the phrase alone recovers it.
func GenerateKeypair(algorithm, mnemonic string) string {
	phrase := mnemonic
	if phrase == "" {
		generated, err := identity.NewMnemonic()
		if err != nil {
			return failure(err)
		}
		phrase = generated
	}

	var (
		id  signingIdentity
		err error
	)
	switch algorithm {
	case AlgorithmEd25519:
		id, err = ed25519Keypair(phrase)
	case AlgorithmSecp256k1:
		id, err = secp256k1Keypair(phrase)
	default:
		err = errors.Key("unknown signature algorithm "+algorithm, nil)
	}
	if err != nil {
		return failure(err)
	}

	return success(Keypair{
		Algorithm:    algorithm,
		PublicKeyDER: base64.StdEncoding.EncodeToString(id.PublicKeyDER()),
		PrivateKey:   base64.StdEncoding.EncodeToString(id.privateKey),
		Principal:    id.Sender().Text(),
		Mnemonic:     phrase,
	})
}

type signingIdentity struct {
	identity.Identity
	privateKey []byte
}

func ed25519Keypair(mnemonic string) (signingIdentity, error) {
	id, err := identity.Ed25519FromMnemonic(mnemonic)
	if err != nil {
		return signingIdentity{}, err
	}
	return signingIdentity{Identity: id, privateKey: id.Seed()}, nil
}

func secp256k1Keypair(mnemonic string) (signingIdentity, error) {
	id, err := identity.FromMnemonic(mnemonic)
	if err != nil {
		return signingIdentity{}, err
	}
	return signingIdentity{Identity: id, privateKey: id.PrivateKeyBytes()}, nil
}

// DerivePrincipal computes the self-authenticating principal of a
// base64 DER public key.
func DerivePrincipal(publicKeyDER string) string {
	der, err := base64.StdEncoding.DecodeString(publicKeyDER)
	if err != nil {
		return failure(errors.Key("public key is not valid base64", err))
	}
	if len(der) == 0 {
		return failure(errors.Key("public key is empty", nil))
	}
	return success(principal.SelfAuthenticating(der).Text())
}

// SignMessage signs a base64 message with a base64 raw private key and
// returns the base64 signature.
func SignMessage(algorithm, privateKey, message string) string {
	key, err := base64.StdEncoding.DecodeString(privateKey)
	if err != nil {
		return failure(errors.Key("private key is not valid base64", err))
	}
	msg, err := base64.StdEncoding.DecodeString(message)
	if err != nil {
		return failure(errors.Key("message is not valid base64", err))
	}

	id, err := identityFromRawKey(algorithm, key)
	if err != nil {
		return failure(err)
	}
	sig, err := id.Sign(msg)
	if err != nil {
		return failure(err)
	}
	return success(map[string]string{
		"signature": base64.StdEncoding.EncodeToString(sig),
		"principal": id.Sender().Text(),
	})
}

func identityFromRawKey(algorithm string, key []byte) (identity.Identity, error) {
	switch algorithm {
	case AlgorithmEd25519, "":
		return identity.Ed25519FromSeed(key)
	case AlgorithmSecp256k1:
		return identity.Secp256k1FromBytes(key)
	default:
		return nil, errors.Key("unknown signature algorithm "+algorithm, nil)
	}
}
