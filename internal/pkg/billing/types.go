package billing

import (
	"github.com/alienkawsar/verilnk-sub004/app/models"
	"github.com/alienkawsar/verilnk-sub004/internal/pkg/pricing"
)

// CheckoutRequest is the normalized input to checkout initiation.
type CheckoutRequest struct {
	OrganizationID uint
	Plan           pricing.Plan
	BillingTerm    pricing.Term
	// AmountCents is an assertion for self-serve plans and the negotiated
	// price for enterprise.
	AmountCents *int64
	// IdempotencyKey scopes duplicate-request detection to this account.
	IdempotencyKey string
	// DurationDays overrides the term's default subscription length.
	DurationDays *int
	// Provider forces a gateway; empty means the configured provider.
	Provider string
	// ActorRole is forwarded to the compliance gate for enterprise checkout.
	ActorRole string
	// Purpose defaults to the checkout purpose matching the plan.
	Purpose models.InvoicePurpose
	// Note is carried into invoice metadata for admin-created invoices.
	Note string
}

// CheckoutResult is returned from checkout initiation. Idempotent marks a
// replay of a previously created pair; no new rows were written.
type CheckoutResult struct {
	Invoice     *models.Invoice
	Attempt     *models.PaymentAttempt
	RedirectURL string
	Idempotent  bool
}

// ExpectedCharge is the provider's own record of what was charged, used at
// settlement to reject a provider confirming a different charge than was
// requested. Nil fields skip that cross-check.
type ExpectedCharge struct {
	AmountCents *int64
	Currency    *string
}

// SettlementResult is returned from the reconciliation engine. Idempotent
// marks a delivery that found the attempt already resolved; Replayed
// additionally marks a duplicate success delivery.
type SettlementResult struct {
	Attempt      *models.PaymentAttempt
	Invoice      *models.Invoice
	Subscription *models.Subscription
	Idempotent   bool
	Replayed     bool
}
