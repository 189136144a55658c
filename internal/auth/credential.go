// Package auth provides nonce issuance and request signing for
// authenticated venue traffic.
package auth

import (
	"fmt"
)

// Credential holds a venue API key pair. The secret is unexported so it
// cannot leak through logging or serialization; signing happens through
// the Sign method.
type Credential struct {
	keyID  string
	secret []byte
}

// NewCredential validates and constructs a credential. Empty key or
// secret is a construction-time error, not a runtime condition.
func NewCredential(keyID, secret string) (Credential, error) {
	if keyID == "" {
		return Credential{}, fmt.Errorf("credential: key id cannot be empty")
	}
	if secret == "" {
		return Credential{}, fmt.Errorf("credential: secret cannot be empty")
	}
	return Credential{keyID: keyID, secret: []byte(secret)}, nil
}

// KeyID returns the public key identifier.
func (c Credential) KeyID() string {
	return c.keyID
}

// Sign computes the signature over message with this credential's secret.
func (c Credential) Sign(message []byte) string {
	return Sign(c.secret, message)
}

// String implements fmt.Stringer and redacts the secret.
func (c Credential) String() string {
	return fmt.Sprintf("Credential{keyID: %s, secret: [redacted]}", c.keyID)
}
