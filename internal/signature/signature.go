// Package signature verifies GitHub webhook HMAC signatures.
package signature

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"
)

// Verify checks a GitHub webhook signature header against the raw payload.
//
// An empty secret means verification is not configured for the repository
// and the delivery passes. With a secret configured, a missing header fails
// closed. The header selects the digest via its prefix: "sha256=..."
// (X-Hub-Signature-256) or the legacy "sha1=..." (X-Hub-Signature). Unknown
// prefixes and malformed hex fail. Comparison is constant-time.
func Verify(payload []byte, header, secret string) bool {
	if secret == "" {
		return true
	}
	if header == "" {
		return false
	}

	var newHash func() hash.Hash
	var hexSig string
	switch {
	case strings.HasPrefix(header, "sha256="):
		newHash = sha256.New
		hexSig = strings.TrimPrefix(header, "sha256=")
	case strings.HasPrefix(header, "sha1="):
		newHash = sha1.New
		hexSig = strings.TrimPrefix(header, "sha1=")
	default:
		return false
	}

	want, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}

	mac := hmac.New(newHash, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), want)
}
