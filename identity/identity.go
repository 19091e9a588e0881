package identity

import (
	"github.com/canscript/canscript/principal"
)

// Identity signs request payloads and names the principal the network
// attributes them to.
type Identity interface {
	// Sender is the principal making the request.
	Sender() principal.Principal

	// Sign signs the given payload. The payload already carries its
	// domain-separation prefix.
	Sign(msg []byte) ([]byte, error)

	// PublicKeyDER is the DER-encoded SubjectPublicKeyInfo, or nil for
	// the anonymous identity.
	PublicKeyDER() []byte
}

// Anonymous is the unauthenticated identity. Requests it sends carry no
// signature and are attributed to the anonymous principal.
type Anonymous struct{}

func (Anonymous) Sender() principal.Principal { return principal.Anonymous() }

func (Anonymous) Sign(msg []byte) ([]byte, error) { return nil, nil }

func (Anonymous) PublicKeyDER() []byte { return nil }
