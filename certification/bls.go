package certification

import (
	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"

	"github.com/canscript/canscript/errors"
)

// Ciphersuite of the replica signatures: G1 signatures, G2 public keys.
const signatureDST = "BLS_SIG_BLS12381G1_XMD:SHA-256_SSWU_RO_NULL_"

const (
	signatureLength = 48
	publicKeyLength = 96
)

// UnwrapPublicKeyDER extracts the raw 96-byte BLS public key from its
// DER SubjectPublicKeyInfo wrapper. The key is the trailing bit string,
// so the wrapper does not need to be parsed structurally.
func UnwrapPublicKeyDER(der []byte) ([]byte, error) {
	if len(der) < publicKeyLength {
		return nil, errors.Certification("public key DER too short", nil)
	}
	return der[len(der)-publicKeyLength:], nil
}

func verifyBLS(publicKey, signature, msg []byte) error {
	if len(signature) != signatureLength {
		return errors.Certification("signature must be 48 bytes", nil)
	}
	if len(publicKey) != publicKeyLength {
		return errors.Certification("public key must be 96 bytes", nil)
	}

	var pk bls12381.G2Affine
	if _, err := pk.SetBytes(publicKey); err != nil {
		return errors.Certification("invalid BLS public key", err)
	}
	var sig bls12381.G1Affine
	if _, err := sig.SetBytes(signature); err != nil {
		return errors.Certification("invalid BLS signature", err)
	}

	hm, err := bls12381.HashToG1(msg, []byte(signatureDST))
	if err != nil {
		return errors.Certification("hashing message to G1", err)
	}

	// e(sig, -g2) * e(H(m), pk) == 1  <=>  e(sig, g2) == e(H(m), pk)
	_, _, _, g2 := bls12381.Generators()
	var negG2 bls12381.G2Affine
	negG2.Neg(&g2)

	ok, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{sig, hm},
		[]bls12381.G2Affine{negG2, pk},
	)
	if err != nil {
		return errors.Certification("pairing check failed", err)
	}
	if !ok {
		return errors.Certification("signature does not verify", nil)
	}
	return nil
}
