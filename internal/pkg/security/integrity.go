package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrIntegrityMismatch reports that an invoice's priced fields no longer
// match the digest stored at creation. This signals tampering or corruption,
// not a retryable condition.
var ErrIntegrityMismatch = errors.New("invoice integrity hash mismatch")

// ErrBadSignature reports a webhook signature that failed verification.
var ErrBadSignature = errors.New("webhook signature verification failed")

// CanonicalJSON encodes a flat payload as a JSON object with
// lexicographically sorted keys, so the same logical payload always hashes
// to the same bytes regardless of map iteration order.
func CanonicalJSON(payload map[string]interface{}) ([]byte, error) {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(payload[k])
		if err != nil {
			return nil, err
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// ComputeInvoiceIntegrity digests the four priced fields of an invoice. The
// result is stored on the invoice at creation and re-checked at settlement.
func ComputeInvoiceIntegrity(organizationID uint, planType string, amountCents int64, currency string) string {
	canonical, _ := CanonicalJSON(map[string]interface{}{
		"organization_id": organizationID,
		"plan_type":       planType,
		"amount_cents":    amountCents,
		"currency":        strings.ToUpper(currency),
	})
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// ValidateInvoiceIntegrity recomputes the digest from current invoice fields
// and compares it to the stored hash.
func ValidateInvoiceIntegrity(storedHash string, organizationID uint, planType string, amountCents int64, currency string) error {
	if strings.TrimSpace(storedHash) == "" {
		return fmt.Errorf("%w: no stored hash", ErrIntegrityMismatch)
	}
	computed := ComputeInvoiceIntegrity(organizationID, planType, amountCents, currency)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) != 1 {
		return ErrIntegrityMismatch
	}
	return nil
}

// SignWebhookPayload computes the hex HMAC-SHA256 a provider with a shared
// secret is expected to send for a payload.
func SignWebhookPayload(payload map[string]interface{}, secret string) (string, error) {
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifyWebhookSignature checks an inbound payload signature. With no secret
// configured verification is a deliberate no-op success, for environments
// where the provider offers none. The length check runs before the
// constant-time comparison so a wrong-length signature cannot probe length
// via timing.
func VerifyWebhookSignature(payload map[string]interface{}, signature, secret string) error {
	if strings.TrimSpace(secret) == "" {
		return nil
	}
	expected, err := SignWebhookPayload(payload, secret)
	if err != nil {
		return err
	}
	got := strings.ToLower(strings.TrimSpace(signature))
	if len(got) != len(expected) {
		return ErrBadSignature
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
		return ErrBadSignature
	}
	return nil
}
