package principal

import (
	"crypto/sha256"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/canscript/canscript/errors"
)

// MaxRawLength is the maximum length of a principal's raw form in bytes.
const MaxRawLength = 29

// Suffix bytes distinguishing the principal classes.
const (
	suffixSelfAuthenticating = 0x02
	suffixAnonymous          = 0x04
)

var textEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Principal is the canonical identity of a caller or canister.
// The zero value is the management canister (empty raw form).
type Principal struct {
	Raw []byte
}

// Management returns the management canister principal ("aaaaa-aa").
func Management() Principal {
	return Principal{Raw: []byte{}}
}

// Anonymous returns the anonymous caller principal ("2vxsx-fae").
func Anonymous() Principal {
	return Principal{Raw: []byte{suffixAnonymous}}
}

// SelfAuthenticating derives a principal from a DER-encoded public key.
func SelfAuthenticating(derPublicKey []byte) Principal {
	digest := sha256.Sum224(derPublicKey)
	raw := make([]byte, 0, len(digest)+1)
	raw = append(raw, digest[:]...)
	raw = append(raw, suffixSelfAuthenticating)
	return Principal{Raw: raw}
}

// FromRaw wraps raw principal bytes, validating the length bound.
func FromRaw(raw []byte) (Principal, error) {
	if len(raw) > MaxRawLength {
		return Principal{}, errors.New(errors.PhaseParse, errors.KindInvalidPrincipal).
			Detail("raw principal is %d bytes, max %d", len(raw), MaxRawLength).
			Build()
	}
	return Principal{Raw: raw}, nil
}

// FromText parses the dashed textual form of a principal.
// The text embeds a CRC32 checksum over the raw bytes; a checksum mismatch
// is rejected so a single-character typo cannot address the wrong canister.
func FromText(text string) (Principal, error) {
	ungrouped := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(text)), "-", "")
	decoded, err := textEncoding.DecodeString(strings.ToUpper(ungrouped))
	if err != nil {
		return Principal{}, errors.InvalidPrincipal(text, err)
	}
	if len(decoded) < 4 {
		return Principal{}, errors.InvalidPrincipal(text, fmt.Errorf("too short: %d bytes", len(decoded)))
	}

	checksum := binary.BigEndian.Uint32(decoded[:4])
	raw := decoded[4:]
	if len(raw) > MaxRawLength {
		return Principal{}, errors.InvalidPrincipal(text, fmt.Errorf("raw form is %d bytes, max %d", len(raw), MaxRawLength))
	}
	if crc32.ChecksumIEEE(raw) != checksum {
		return Principal{}, errors.InvalidPrincipal(text, fmt.Errorf("checksum mismatch"))
	}

	// Re-encoding must reproduce the input; this rejects non-canonical
	// grouping and stray padding.
	p := Principal{Raw: raw}
	if p.Text() != strings.ToLower(strings.TrimSpace(text)) {
		return Principal{}, errors.InvalidPrincipal(text, fmt.Errorf("non-canonical text form"))
	}
	return p, nil
}

// Text renders the principal in its dashed textual form.
func (p Principal) Text() string {
	buf := make([]byte, 4+len(p.Raw))
	binary.BigEndian.PutUint32(buf[:4], crc32.ChecksumIEEE(p.Raw))
	copy(buf[4:], p.Raw)

	encoded := strings.ToLower(textEncoding.EncodeToString(buf))

	var b strings.Builder
	for i, r := range encoded {
		if i > 0 && i%5 == 0 {
			b.WriteByte('-')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// String implements fmt.Stringer.
func (p Principal) String() string {
	return p.Text()
}

// Equal reports whether two principals have the same raw form.
func (p Principal) Equal(other Principal) bool {
	if len(p.Raw) != len(other.Raw) {
		return false
	}
	for i := range p.Raw {
		if p.Raw[i] != other.Raw[i] {
			return false
		}
	}
	return true
}

// IsAnonymous reports whether p is the anonymous principal.
func (p Principal) IsAnonymous() bool {
	return len(p.Raw) == 1 && p.Raw[0] == suffixAnonymous
}
