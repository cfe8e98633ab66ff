package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// SignaturePrefix precedes the hex digest in the signature header.
const SignaturePrefix = "sha1="

// VerifySignature reports whether signatureHeader carries the HMAC-SHA1 of
// payload under secret.
//
// The header must start with "sha1=" (prefix matched case-insensitively).
// The digest is compared against the lowercase hex encoding exactly, in
// constant time. An empty header or secret never verifies.
func VerifySignature(payload []byte, signatureHeader string, secret []byte) bool {
	if signatureHeader == "" || len(secret) == 0 {
		return false
	}
	if len(signatureHeader) < len(SignaturePrefix) ||
		!strings.EqualFold(signatureHeader[:len(SignaturePrefix)], SignaturePrefix) {
		return false
	}

	provided := signatureHeader[len(SignaturePrefix):]
	expected := computeDigest(payload, secret)

	return hmac.Equal([]byte(expected), []byte(provided))
}

// ComputeSignature returns the header value a sender would attach to payload.
func ComputeSignature(payload, secret []byte) string {
	return SignaturePrefix + computeDigest(payload, secret)
}

func computeDigest(payload, secret []byte) string {
	mac := hmac.New(sha1.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// HMACVerifier binds a shared secret for use by the milestone engine.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier copies secret so later mutation of the caller's slice has no effect.
func NewHMACVerifier(secret []byte) *HMACVerifier {
	return &HMACVerifier{secret: append([]byte(nil), secret...)}
}

// Verify implements milestone.Verifier.
func (v *HMACVerifier) Verify(payload []byte, signatureHeader string) bool {
	return VerifySignature(payload, signatureHeader, v.secret)
}
