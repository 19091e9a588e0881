package certification

import (
	"bytes"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/canscript/canscript/errors"
	"github.com/canscript/canscript/internal/leb128"
	"github.com/canscript/canscript/principal"
)

// Certificate is a replica-signed view of the state tree.
type Certificate struct {
	Tree       cbor.RawMessage `cbor:"tree"`
	Signature  []byte          `cbor:"signature"`
	Delegation *Delegation     `cbor:"delegation,omitempty"`
}

// Delegation chains a subnet's key to the root key: the root subnet
// certifies the public key of the subnet that signed the outer
// certificate.
type Delegation struct {
	SubnetID    []byte `cbor:"subnet_id"`
	Certificate []byte `cbor:"certificate"`
}

// Verify checks a CBOR-encoded certificate against the network root key
// and returns its state tree. The canister scopes the delegation check:
// a delegated subnet must list the canister in its ranges.
func Verify(rawCert []byte, rootKeyDER []byte, canister principal.Principal) (Node, error) {
	return verify(rawCert, rootKeyDER, canister, true)
}

func verify(rawCert, rootKeyDER []byte, canister principal.Principal, allowDelegation bool) (Node, error) {
	var cert Certificate
	if err := cbor.Unmarshal(rawCert, &cert); err != nil {
		return nil, errors.Certification("decoding certificate", err)
	}

	tree, err := ParseTree(cert.Tree)
	if err != nil {
		return nil, err
	}

	keyDER := rootKeyDER
	if cert.Delegation != nil {
		if !allowDelegation {
			return nil, errors.Certification("delegation certificates must not nest", nil)
		}
		keyDER, err = verifyDelegation(cert.Delegation, rootKeyDER, canister)
		if err != nil {
			return nil, err
		}
	}
	key, err := UnwrapPublicKeyDER(keyDER)
	if err != nil {
		return nil, err
	}

	digest := tree.Digest()
	msg := make([]byte, 0, 1+len("ic-state-root")+32)
	msg = append(msg, byte(len("ic-state-root")))
	msg = append(msg, "ic-state-root"...)
	msg = append(msg, digest[:]...)

	if err := verifyBLS(key, cert.Signature, msg); err != nil {
		return nil, err
	}
	return tree, nil
}

func verifyDelegation(d *Delegation, rootKeyDER []byte, canister principal.Principal) ([]byte, error) {
	tree, err := verify(d.Certificate, rootKeyDER, canister, false)
	if err != nil {
		return nil, err
	}

	ranges, status := Lookup(tree, []byte("subnet"), d.SubnetID, []byte("canister_ranges"))
	if status != LookupFound {
		return nil, errors.Certification("delegation has no canister ranges", nil)
	}
	inRange, err := rangesContain(ranges, canister)
	if err != nil {
		return nil, err
	}
	if !inRange {
		return nil, errors.Certification("canister outside the delegated subnet's ranges", nil)
	}

	key, status := Lookup(tree, []byte("subnet"), d.SubnetID, []byte("public_key"))
	if status != LookupFound {
		return nil, errors.Certification("delegation has no subnet public key", nil)
	}
	return key, nil
}

func rangesContain(rawRanges []byte, canister principal.Principal) (bool, error) {
	var ranges [][][]byte
	if err := cbor.Unmarshal(rawRanges, &ranges); err != nil {
		return false, errors.Certification("decoding canister ranges", err)
	}
	for _, r := range ranges {
		if len(r) != 2 {
			return false, errors.Certification("canister range is not a pair", nil)
		}
		if bytes.Compare(canister.Raw, r[0]) >= 0 && bytes.Compare(canister.Raw, r[1]) <= 0 {
			return true, nil
		}
	}
	return false, nil
}

// Time reads the certificate timestamp from a verified state tree.
func Time(tree Node) (time.Time, error) {
	leaf, status := Lookup(tree, []byte("time"))
	if status != LookupFound {
		return time.Time{}, errors.Certification("state tree has no time", nil)
	}
	nanos, err := leb128.ReadUint(bytes.NewReader(leaf))
	if err != nil {
		return time.Time{}, errors.Certification("decoding certificate time", err)
	}
	return time.Unix(0, int64(nanos)), nil
}
