package webhook

import (
	"crypto/hmac"
)

// Verifier checks notification signatures against a shared secret. It holds
// no mutable state and is safe for concurrent use.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for secret. An empty secret is accepted;
// such a verifier rejects every notification.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Configured reports whether a shared secret is present.
func (v *Verifier) Configured() bool {
	return v != nil && len(v.secret) > 0
}

// Verify reports whether signatureHeader carries a valid mac for the
// notification identified by requestID and resourceID. Every failure,
// including malformed input, yields false.
func (v *Verifier) Verify(signatureHeader, requestID, resourceID string) bool {
	if !v.Configured() || signatureHeader == "" || requestID == "" || resourceID == "" {
		return false
	}

	sig := ParseSignature(signatureHeader)
	if sig.Timestamp == "" || sig.V1 == "" {
		return false
	}

	expected := Sign(v.secret, Manifest(resourceID, requestID, sig.Timestamp))
	return hmac.Equal([]byte(expected), []byte(sig.V1))
}
