package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"voucher-trade-engine/internal/core/domain"
)

// HMACSigner implements ports.Signer. Signatures are HMAC-SHA256 digests
// in lowercase hex, shared by the verifier endpoint and the match webhook.
type HMACSigner struct{}

// NewHMACSigner creates a new HMACSigner.
func NewHMACSigner() *HMACSigner {
	return &HMACSigner{}
}

// Sign signs a raw payload, e.g. a webhook body.
func (s *HMACSigner) Sign(secret string, payload []byte) string {
	return hex.EncodeToString(digest(secret, payload))
}

// Verify reports whether signature is the digest of payload. Anything that
// does not decode to a SHA-256 sized digest is rejected before comparing.
func (s *HMACSigner) Verify(secret string, payload []byte, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) != sha256.Size {
		return false
	}
	return hmac.Equal(got, digest(secret, payload))
}

// SignRequest signs the canonical form of a verifier call.
func (s *HMACSigner) SignRequest(secret string, req domain.SignedRequest) string {
	return s.Sign(secret, req.Canonical())
}

// VerifyRequest checks a verifier call against its X-Signature value.
func (s *HMACSigner) VerifyRequest(secret string, req domain.SignedRequest, signature string) bool {
	return s.Verify(secret, req.Canonical(), signature)
}

func digest(secret string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}
