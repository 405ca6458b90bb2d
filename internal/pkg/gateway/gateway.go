package gateway

import "context"

// Provider identifiers. These match the gateway strings stored on payment
// attempts and billing accounts.
const (
	ProviderStripe     = "stripe"
	ProviderSSLCommerz = "sslcommerz"
	ProviderMock       = "mock"
)

// CheckoutInput carries everything an adapter needs to turn a pending
// attempt into a provider redirect artifact.
type CheckoutInput struct {
	AttemptID      uint
	InvoiceID      uint
	OrganizationID uint
	PlanType       string
	BillingTerm    string
	AmountCents    int64
	Currency       string
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
}

// CheckoutArtifact is the provider-specific result of checkout initiation.
type CheckoutArtifact struct {
	RedirectURL string
	ExternalID  string
}

// Adapter is the common contract every payment provider implements.
// InitiateCheckout is the only operation that blocks on external I/O during
// checkout; a transport failure must surface as an error so the caller can
// fail the pending pair cleanly.
type Adapter interface {
	Name() string
	InitiateCheckout(ctx context.Context, in CheckoutInput) (*CheckoutArtifact, error)
}
