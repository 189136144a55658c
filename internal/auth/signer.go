package auth

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strconv"
)

// Sign computes the hex-encoded HMAC-SHA384 of message under secret.
// Deterministic: identical inputs always produce identical output.
func Sign(secret, message []byte) string {
	mac := hmac.New(sha512.New384, secret)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// AuthPayload builds the canonical message for the authentication
// handshake. The byte layout is part of the wire contract with the
// venue; any change here invalidates every signature.
func AuthPayload(nonce int64, keyID string) string {
	return strconv.FormatInt(nonce, 10) + keyID
}
