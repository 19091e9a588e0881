package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

const testPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestAnonymousSender(t *testing.T) {
	var id Anonymous
	if got := id.Sender().Text(); got != "2vxsx-fae" {
		t.Fatalf("Sender() = %q, want 2vxsx-fae", got)
	}
	sig, err := id.Sign([]byte("payload"))
	if err != nil || sig != nil {
		t.Fatalf("Sign() = %v, %v; want nil, nil", sig, err)
	}
	if id.PublicKeyDER() != nil {
		t.Fatal("anonymous identity must have no public key")
	}
}

func TestEd25519(t *testing.T) {
	id, err := NewEd25519()
	if err != nil {
		t.Fatalf("NewEd25519() error: %v", err)
	}

	msg := []byte("\x0Aic-request0123456789abcdef0123456789abcdef")
	sig, err := id.Sign(msg)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if len(sig) != ed25519.SignatureSize {
		t.Fatalf("signature length = %d, want %d", len(sig), ed25519.SignatureSize)
	}

	pub, err := x509.ParsePKIXPublicKey(id.PublicKeyDER())
	if err != nil {
		t.Fatalf("ParsePKIXPublicKey() error: %v", err)
	}
	if !ed25519.Verify(pub.(ed25519.PublicKey), msg, sig) {
		t.Fatal("signature does not verify")
	}

	// Senders are self-authenticating: 28-byte SHA-224 digest plus tag.
	raw := id.Sender().Raw
	if len(raw) != 29 || raw[28] != 0x02 {
		t.Fatalf("sender raw = %x", raw)
	}

	// A rebuilt identity from the same seed is the same identity.
	again, err := Ed25519FromSeed(id.Seed())
	if err != nil {
		t.Fatalf("Ed25519FromSeed() error: %v", err)
	}
	if !id.Sender().Equal(again.Sender()) {
		t.Fatal("seed round trip changed the sender")
	}
}

func TestSecp256k1(t *testing.T) {
	id, err := NewSecp256k1()
	if err != nil {
		t.Fatalf("NewSecp256k1() error: %v", err)
	}

	msg := []byte("payload")
	sig, err := id.Sign(msg)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if len(sig) != 64 {
		t.Fatalf("signature length = %d, want 64", len(sig))
	}

	var r, s secp256k1.ModNScalar
	if r.SetByteSlice(sig[:32]) || s.SetByteSlice(sig[32:]) {
		t.Fatal("signature halves overflow the group order")
	}
	digest := sha256.Sum256(msg)
	priv, err := Secp256k1FromBytes(id.PrivateKeyBytes())
	if err != nil {
		t.Fatalf("Secp256k1FromBytes() error: %v", err)
	}
	pub := secp256k1.PrivKeyFromBytes(priv.PrivateKeyBytes()).PubKey()
	if !ecdsa.NewSignature(&r, &s).Verify(digest[:], pub) {
		t.Fatal("signature does not verify")
	}

	if !id.Sender().Equal(priv.Sender()) {
		t.Fatal("private key round trip changed the sender")
	}
}

func TestFromMnemonic(t *testing.T) {
	a, err := FromMnemonic(testPhrase)
	if err != nil {
		t.Fatalf("FromMnemonic() error: %v", err)
	}
	b, err := FromMnemonic(testPhrase)
	if err != nil {
		t.Fatalf("FromMnemonic() error: %v", err)
	}
	if !a.Sender().Equal(b.Sender()) {
		t.Fatal("same phrase produced different identities")
	}
	if !bytes.Equal(a.PrivateKeyBytes(), b.PrivateKeyBytes()) {
		t.Fatal("same phrase produced different keys")
	}

	if _, err := FromMnemonic("definitely not a valid recovery phrase"); err == nil {
		t.Fatal("want error for an invalid phrase")
	}
}

func TestNewMnemonicRoundTrip(t *testing.T) {
	phrase, err := NewMnemonic()
	if err != nil {
		t.Fatalf("NewMnemonic() error: %v", err)
	}
	id, err := FromMnemonic(phrase)
	if err != nil {
		t.Fatalf("FromMnemonic(generated) error: %v", err)
	}
	if id.Sender().IsAnonymous() {
		t.Fatal("derived identity must not be anonymous")
	}
}
