package service

import (
	"strings"
	"testing"

	"voucher-trade-engine/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func verifierRequest() domain.SignedRequest {
	return domain.SignedRequest{
		Method:    "POST",
		Path:      "/internal/v1/vouchers/8b0c/verify",
		Timestamp: 1708092000,
		Nonce:     "abc123",
		Body:      []byte(`{"note":"receipt checked"}`),
	}
}

func TestHMACSigner_SignAndVerify(t *testing.T) {
	signer := NewHMACSigner()
	payload := []byte(`{"event_type":"wishlist_match"}`)

	signature := signer.Sign("hook-secret", payload)

	assert.Regexp(t, `^[0-9a-f]{64}$`, signature)
	assert.True(t, signer.Verify("hook-secret", payload, signature))
	assert.Equal(t, signature, signer.Sign("hook-secret", payload))
}

func TestHMACSigner_VerifyRejects(t *testing.T) {
	signer := NewHMACSigner()
	payload := []byte("original payload")
	signature := signer.Sign("correct-key", payload)

	tests := []struct {
		name      string
		secret    string
		payload   []byte
		signature string
	}{
		{"wrong key", "wrong-key", payload, signature},
		{"tampered payload", "correct-key", []byte("tampered payload"), signature},
		{"not hex", "correct-key", payload, "invalidsignature"},
		{"truncated digest", "correct-key", payload, signature[:32]},
		{"empty", "correct-key", payload, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, signer.Verify(tt.secret, tt.payload, tt.signature))
		})
	}
}

func TestHMACSigner_VerifyAcceptsUppercaseHex(t *testing.T) {
	signer := NewHMACSigner()
	payload := []byte("data")

	signature := strings.ToUpper(signer.Sign("key", payload))
	assert.True(t, signer.Verify("key", payload, signature))
}

func TestHMACSigner_RequestSignatureCoversEveryField(t *testing.T) {
	signer := NewHMACSigner()
	req := verifierRequest()
	signature := signer.SignRequest("verifier-secret", req)

	assert.Equal(t, signer.Sign("verifier-secret", req.Canonical()), signature)
	assert.True(t, signer.VerifyRequest("verifier-secret", req, signature))

	mutations := map[string]func(*domain.SignedRequest){
		"method":    func(r *domain.SignedRequest) { r.Method = "GET" },
		"path":      func(r *domain.SignedRequest) { r.Path = "/internal/v1/vouchers/ffff/verify" },
		"timestamp": func(r *domain.SignedRequest) { r.Timestamp++ },
		"nonce":     func(r *domain.SignedRequest) { r.Nonce = "abc124" },
		"body":      func(r *domain.SignedRequest) { r.Body = []byte(`{}`) },
	}
	for field, mutate := range mutations {
		t.Run(field, func(t *testing.T) {
			changed := verifierRequest()
			mutate(&changed)
			assert.False(t, signer.VerifyRequest("verifier-secret", changed, signature))
		})
	}
}
