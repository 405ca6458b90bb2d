package gateway

import (
	"context"
	"fmt"

	"github.com/alienkawsar/verilnk-sub004/internal/pkg/security"
	"github.com/google/uuid"
)

// MockAdapter is the in-process provider used for deterministic tests and
// admin-triggered synthetic provisioning. It never leaves the process: the
// redirect target is our own mock callback endpoint. With a callback secret
// configured the redirect URL carries an HMAC over the attempt id, and the
// callback endpoint rejects requests that lack a valid one.
type MockAdapter struct {
	publicBaseURL  string
	callbackSecret string
}

func NewMockAdapter(cfg Config) *MockAdapter {
	return &MockAdapter{
		publicBaseURL:  cfg.PublicBaseURL,
		callbackSecret: cfg.MockCallbackSecret,
	}
}

func (a *MockAdapter) Name() string { return ProviderMock }

func (a *MockAdapter) InitiateCheckout(_ context.Context, in CheckoutInput) (*CheckoutArtifact, error) {
	externalID := "mock_" + uuid.NewString()
	redirect := fmt.Sprintf("%s/billing/mock/callback?attempt_id=%d", a.publicBaseURL, in.AttemptID)
	if a.callbackSecret != "" {
		sig, err := SignMockCallback(in.AttemptID, a.callbackSecret)
		if err != nil {
			return nil, fmt.Errorf("mock callback signing failed: %w", err)
		}
		redirect += "&signature=" + sig
	}
	return &CheckoutArtifact{
		RedirectURL: redirect,
		ExternalID:  externalID,
	}, nil
}

func mockCallbackPayload(attemptID uint) map[string]interface{} {
	return map[string]interface{}{"attempt_id": attemptID}
}

// SignMockCallback computes the callback signature for an attempt.
func SignMockCallback(attemptID uint, secret string) (string, error) {
	return security.SignWebhookPayload(mockCallbackPayload(attemptID), secret)
}

// VerifyMockCallback checks an inbound mock callback signature. An empty
// secret disables verification.
func VerifyMockCallback(attemptID uint, signature, secret string) error {
	return security.VerifyWebhookSignature(mockCallbackPayload(attemptID), signature, secret)
}
