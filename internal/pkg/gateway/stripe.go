package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v76"
	checkoutsession "github.com/stripe/stripe-go/v76/checkout/session"
)

// metadataAttemptKey is the session metadata key carrying the payment
// attempt id through Stripe and back on webhook events.
const metadataAttemptKey = "attempt_id"

// StripeAdapter initiates Stripe hosted checkout sessions in payment mode.
type StripeAdapter struct {
	secretKey     string
	publicBaseURL string
}

// NewStripeAdapter creates the Stripe adapter. The secret key is installed
// on the Stripe SDK at first use by the adapter.
func NewStripeAdapter(cfg Config) *StripeAdapter {
	return &StripeAdapter{
		secretKey:     cfg.Stripe.SecretKey,
		publicBaseURL: cfg.PublicBaseURL,
	}
}

func (a *StripeAdapter) Name() string { return ProviderStripe }

// InitiateCheckout creates a one-time-payment checkout session whose
// success/cancel URLs and metadata carry the attempt id, so webhook events
// can be correlated back to the pending attempt.
func (a *StripeAdapter) InitiateCheckout(ctx context.Context, in CheckoutInput) (*CheckoutArtifact, error) {
	if strings.TrimSpace(a.secretKey) == "" {
		return nil, errors.New("stripe secret key is not configured")
	}
	stripe.Key = a.secretKey

	attemptID := strconv.FormatUint(uint64(in.AttemptID), 10)
	productName := fmt.Sprintf("VeriLnk %s plan (%s)", in.PlanType, in.BillingTerm)

	params := &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
		Mode:   stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(in.Currency)),
					UnitAmount: stripe.Int64(in.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(productName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(a.publicBaseURL + "/billing/checkout/success?attempt_id=" + attemptID),
		CancelURL:  stripe.String(a.publicBaseURL + "/billing/checkout/cancel?attempt_id=" + attemptID),
		Metadata: map[string]string{
			metadataAttemptKey: attemptID,
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{
				metadataAttemptKey: attemptID,
			},
		},
	}
	if in.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(in.CustomerEmail)
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session creation failed: %w", err)
	}
	if sess.URL == "" {
		return nil, errors.New("stripe checkout session has no redirect URL")
	}
	return &CheckoutArtifact{RedirectURL: sess.URL, ExternalID: sess.ID}, nil
}

// AttemptIDFromMetadata extracts the correlating attempt id from provider
// metadata, zero when absent or malformed.
func AttemptIDFromMetadata(metadata map[string]string) uint {
	raw, ok := metadata[metadataAttemptKey]
	if !ok {
		return 0
	}
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}
