package auth

import (
	"errors"
	"strconv"
)

// Wire contract for the authentication handshake. Field names and
// layouts must match the venue's documented scheme exactly.
const (
	EventAuth = "auth"

	StatusOK       = "ok"
	StatusRejected = "rejected"

	// CodeNonceStale is returned by the venue when authNonce does not
	// exceed its last-seen nonce for the key.
	CodeNonceStale = 10114
)

// Sentinel errors for handshake outcomes.
var (
	// ErrAuthRejected is returned when the venue declines the
	// credentials or signature.
	ErrAuthRejected = errors.New("auth rejected by venue")

	// ErrNonceStale is returned when the venue reports the nonce as
	// too small. Recoverable with a single bump-and-retry.
	ErrNonceStale = errors.New("auth nonce too small")
)

// Request is the outbound authentication frame.
type Request struct {
	Event       string `json:"event"`
	APIKey      string `json:"apiKey"`
	AuthNonce   string `json:"authNonce"`
	AuthSig     string `json:"authSig"`
	AuthPayload string `json:"authPayload"`
}

// Response is the venue's acknowledgement or rejection.
type Response struct {
	Event   string `json:"event"`
	Status  string `json:"status"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// NewRequest builds a signed authentication frame for the given nonce.
func NewRequest(cred Credential, nonce int64) Request {
	payload := AuthPayload(nonce, cred.KeyID())
	return Request{
		Event:       EventAuth,
		APIKey:      cred.KeyID(),
		AuthNonce:   strconv.FormatInt(nonce, 10),
		AuthSig:     cred.Sign([]byte(payload)),
		AuthPayload: payload,
	}
}

// Accepted reports whether the venue acknowledged the handshake.
func (r Response) Accepted() bool {
	return r.Event == EventAuth && r.Status == StatusOK
}

// NonceStale reports whether the rejection was for a stale nonce.
func (r Response) NonceStale() bool {
	return r.Status == StatusRejected && r.Code == CodeNonceStale
}

// Err maps a rejection to its sentinel error, or nil if accepted.
func (r Response) Err() error {
	if r.Accepted() {
		return nil
	}
	if r.NonceStale() {
		return ErrNonceStale
	}
	return ErrAuthRejected
}
