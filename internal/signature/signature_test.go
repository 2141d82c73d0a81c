package signature

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func sign256(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func sign1(payload []byte, secret string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(payload)
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerify(t *testing.T) {
	payload := []byte(`{"action":"opened"}`)
	secret := "s3cret"

	tests := []struct {
		name   string
		header string
		secret string
		want   bool
	}{
		{"valid sha256", sign256(payload, secret), secret, true},
		{"valid sha1", sign1(payload, secret), secret, true},
		{"wrong secret", sign256(payload, "other"), secret, false},
		{"missing header fails closed", "", secret, false},
		{"no secret passes", sign256(payload, secret), "", true},
		{"no secret no header passes", "", "", true},
		{"unknown prefix", "md5=abcdef", secret, false},
		{"no prefix", hex.EncodeToString([]byte("raw")), secret, false},
		{"malformed hex", "sha256=zzzz", secret, false},
		{"truncated signature", sign256(payload, secret)[:20], secret, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Verify(payload, tt.header, tt.secret); got != tt.want {
				t.Fatalf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifyTamperedPayload(t *testing.T) {
	secret := "s3cret"
	sig := sign256([]byte(`{"a":1}`), secret)
	if Verify([]byte(`{"a":2}`), sig, secret) {
		t.Fatal("tampered payload must fail verification")
	}
}
