package identity

import (
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/canscript/canscript/errors"
)

// Coin type 223 is the registered SLIP-44 entry for this network.
var derivationPath = []uint32{
	bip32.FirstHardenedChild + 44,
	bip32.FirstHardenedChild + 223,
	bip32.FirstHardenedChild + 0,
	0,
	0,
}

// NewMnemonic generates a fresh 12-word recovery phrase.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", errors.Key("generating entropy", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", errors.Key("generating recovery phrase", err)
	}
	return mnemonic, nil
}

// Ed25519FromMnemonic derives an Ed25519 identity from a recovery
// phrase: the BIP-39 seed's first 32 bytes become the private seed.
func Ed25519FromMnemonic(mnemonic string) (*Ed25519, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, errors.Key("invalid recovery phrase", err)
	}
	return Ed25519FromSeed(seed[:32])
}

// FromMnemonic derives the secp256k1 identity for a recovery phrase along
// m/44'/223'/0'/0/0. The same phrase always yields the same identity.
func FromMnemonic(mnemonic string) (*Secp256k1, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, errors.Key("invalid recovery phrase", err)
	}
	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, errors.Key("deriving master key", err)
	}
	for _, step := range derivationPath {
		key, err = key.NewChildKey(step)
		if err != nil {
			return nil, errors.Key("deriving child key", err)
		}
	}
	return Secp256k1FromBytes(key.Key)
}
