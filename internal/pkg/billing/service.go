package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/alienkawsar/verilnk-sub004/app/models"
	"github.com/alienkawsar/verilnk-sub004/internal/pkg/gateway"
	"github.com/alienkawsar/verilnk-sub004/internal/pkg/pricing"
	"github.com/alienkawsar/verilnk-sub004/internal/pkg/security"
	"gorm.io/gorm"
)

// Service is the billing core: checkout initiation, settlement
// reconciliation and the resulting subscription transitions. All provider
// configuration is injected at construction; nothing here reads the
// environment.
type Service struct {
	repo       Repository
	cfg        gateway.Config
	adapters   map[string]gateway.Adapter
	orgs       OrganizationService
	trials     TrialService
	audit      AuditLogger
	compliance ComplianceGate
}

// NewService wires the billing core from its collaborators.
func NewService(repo Repository, cfg gateway.Config, orgs OrganizationService, trials TrialService, audit AuditLogger, compliance ComplianceGate) *Service {
	if audit == nil {
		audit = StdAuditLogger{}
	}
	if compliance == nil {
		compliance = AllowAllComplianceGate{}
	}
	return &Service{
		repo:       repo,
		cfg:        cfg,
		adapters:   cfg.Adapters(),
		orgs:       orgs,
		trials:     trials,
		audit:      audit,
		compliance: compliance,
	}
}

// NewServiceFromDB builds a service with GORM-backed collaborators.
func NewServiceFromDB(db *gorm.DB, cfg gateway.Config) *Service {
	return NewService(NewRepository(db), cfg, NewOrganizationService(db), NewTrialService(db), nil, nil)
}

// SSLCommerz exposes the hosted-payment-page adapter for callback
// validation calls.
func (s *Service) SSLCommerz() *gateway.SSLCommerzAdapter {
	a, _ := s.adapters[gateway.ProviderSSLCommerz].(*gateway.SSLCommerzAdapter)
	return a
}

// StripeWebhookSecret returns the configured Stripe webhook signing secret.
func (s *Service) StripeWebhookSecret() string {
	return s.cfg.Stripe.WebhookSecret
}

// MockCallbackSecret returns the shared secret for signed mock callbacks.
// Empty means the mock callback accepts unsigned requests.
func (s *Service) MockCallbackSecret() string {
	return s.cfg.MockCallbackSecret
}

// AttemptStatus reports the current state of a payment attempt. Browser
// returns use it because they can arrive before or after the settling
// webhook for the same attempt.
func (s *Service) AttemptStatus(attemptID uint) (string, error) {
	attempt, err := s.repo.GetAttempt(attemptID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", E(CodeNotFound, "payment attempt not found")
		}
		return "", Wrap(CodeInternal, "attempt lookup failed", err)
	}
	return attempt.Status, nil
}

// FrontendBaseURL is where browser-facing gateway callbacks redirect to.
func (s *Service) FrontendBaseURL() string {
	return s.cfg.FrontendBaseURL
}

// Checkout turns a plan selection into a pending (invoice, attempt) pair and
// a provider redirect. Identical idempotency key plus identical logical
// request replays the prior pair; the same key with a different request is a
// hard conflict.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	org, err := s.orgs.GetOrganization(ctx, req.OrganizationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Ef(CodeNotFound, "organization %d not found", req.OrganizationID)
		}
		return nil, Wrap(CodeInternal, "organization lookup failed", err)
	}

	plan := pricing.NormalizePlan(string(req.Plan))
	if plan == pricing.PlanEnterprise {
		if err := s.compliance.AssertCompliance(ctx, ComplianceRequest{
			EnterpriseID: org.ID,
			Action:       "billing.checkout",
			ActorRole:    req.ActorRole,
		}); err != nil {
			var denial *ComplianceDenial
			if errors.As(err, &denial) {
				return nil, Wrap(CodeComplianceDenied, denial.Reason, denial)
			}
			return nil, Wrap(CodeComplianceDenied, "compliance check failed", err)
		}
	}

	quote, err := pricing.Resolve(pricing.Input{
		Plan:                 plan,
		Term:                 req.BillingTerm,
		CallerAmountCents:    req.AmountCents,
		DurationOverrideDays: req.DurationDays,
	})
	if err != nil {
		return nil, mapPricingError(err)
	}

	provider := strings.TrimSpace(req.Provider)
	if provider == "" {
		provider = s.cfg.Provider
	}
	if _, ok := s.adapters[provider]; !ok {
		return nil, Ef(CodeGatewayFailure, "no adapter for provider %q", provider)
	}

	account, err := s.repo.GetOrCreateBillingAccount(org.ID, org.Email, org.Name)
	if err != nil {
		return nil, Wrap(CodeInternal, "billing account resolution failed", err)
	}

	requestHash := computeRequestHash(org.ID, quote, provider)

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		existing, err := s.repo.FindAttemptByIdempotencyKey(account.ID, key)
		switch {
		case err == nil:
			if existing.RequestHash == nil || *existing.RequestHash != requestHash {
				return nil, E(CodeIdempotencyKeyReuse, "idempotency key was already used for a different request")
			}
			invoice, err := s.repo.GetInvoice(existing.InvoiceID)
			if err != nil {
				return nil, Wrap(CodeInternal, "invoice lookup for idempotent replay failed", err)
			}
			redirect := ""
			if meta, merr := invoice.Metadata(); merr == nil {
				redirect = meta.CheckoutURL
			}
			return &CheckoutResult{Invoice: invoice, Attempt: existing, RedirectURL: redirect, Idempotent: true}, nil
		case errors.Is(err, ErrNotFound):
			// First use of this key; fall through to creation.
		default:
			return nil, Wrap(CodeInternal, "idempotency lookup failed", err)
		}
	}

	purpose := req.Purpose
	if purpose == "" {
		purpose = models.InvoicePurposeCheckout
		if plan == pricing.PlanEnterprise {
			purpose = models.InvoicePurposeEnterpriseCheckout
		}
	}

	meta := &models.InvoiceMetadata{
		Purpose:        purpose,
		PlanType:       string(quote.Plan),
		BillingTerm:    string(quote.Term),
		DurationDays:   quote.DurationDays,
		OrganizationID: org.ID,
		Provider:       provider,
		Note:           req.Note,
	}
	invoice := &models.Invoice{
		BillingAccountID: account.ID,
		AmountCents:      quote.AmountCents,
		Currency:         quote.Currency,
		Status:           models.InvoiceStatusOpen,
		IntegrityHash:    security.ComputeInvoiceIntegrity(org.ID, string(quote.Plan), quote.AmountCents, quote.Currency),
	}
	if err := invoice.SetMetadata(meta); err != nil {
		return nil, Wrap(CodeInternal, "invoice metadata encoding failed", err)
	}

	attempt := &models.PaymentAttempt{
		BillingAccountID: account.ID,
		AmountCents:      quote.AmountCents,
		Currency:         quote.Currency,
		Status:           models.AttemptStatusPending,
		Gateway:          provider,
		RequestHash:      &requestHash,
	}
	if key != "" {
		attempt.IdempotencyKey = &key
	}

	if err := s.repo.CreatePendingPair(invoice, attempt); err != nil {
		return nil, Wrap(CodeInternal, "pending pair creation failed", err)
	}

	artifact, err := s.adapters[provider].InitiateCheckout(ctx, gateway.CheckoutInput{
		AttemptID:      attempt.ID,
		InvoiceID:      invoice.ID,
		OrganizationID: org.ID,
		PlanType:       string(quote.Plan),
		BillingTerm:    string(quote.Term),
		AmountCents:    quote.AmountCents,
		Currency:       quote.Currency,
		CustomerName:   account.BillingName,
		CustomerEmail:  account.BillingEmail,
		CustomerPhone:  org.Phone,
	})
	if err != nil {
		// A dead gateway must not strand an open pair with no redirect target.
		if _, ferr := s.MarkFailed(ctx, attempt.ID, fmt.Sprintf("gateway initiation failed: %v", err), ""); ferr != nil {
			log.Printf("billing: failed to void attempt %d after gateway error: %v", attempt.ID, ferr)
		}
		return nil, Wrap(CodeGatewayFailure, "checkout initiation failed", err)
	}

	attempt.ProviderPaymentID = artifact.ExternalID
	meta.CheckoutURL = artifact.RedirectURL
	meta.ProviderSessionID = artifact.ExternalID
	if err := invoice.SetMetadata(meta); err != nil {
		return nil, Wrap(CodeInternal, "invoice metadata encoding failed", err)
	}
	// Column-scoped and guarded on the pair still being unsettled: a
	// callback landing between initiation and this write must win.
	if err := s.repo.AttachCheckoutArtifacts(attempt.ID, invoice.ID, artifact.ExternalID, invoice.MetadataJSON); err != nil {
		return nil, Wrap(CodeInternal, "checkout artifact update failed", err)
	}

	return &CheckoutResult{Invoice: invoice, Attempt: attempt, RedirectURL: artifact.RedirectURL}, nil
}

// computeRequestHash fingerprints the logical checkout request for
// idempotency-key conflict detection.
func computeRequestHash(organizationID uint, quote *pricing.Quote, provider string) string {
	canonical, _ := security.CanonicalJSON(map[string]interface{}{
		"organization_id": organizationID,
		"plan_type":       string(quote.Plan),
		"amount_cents":    quote.AmountCents,
		"currency":        quote.Currency,
		"billing_term":    string(quote.Term),
		"provider":        provider,
		"duration_days":   quote.DurationDays,
	})
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

func mapPricingError(err error) error {
	switch {
	case errors.Is(err, pricing.ErrInvalidPlan):
		return Wrap(CodeInvalidPlan, "plan cannot be checked out", err)
	case errors.Is(err, pricing.ErrAmountMismatch):
		return Wrap(CodeAmountMismatch, "supplied amount does not match the plan price", err)
	case errors.Is(err, pricing.ErrAmountRequired):
		return Wrap(CodeAmountRequired, "a positive amount is required for this plan", err)
	default:
		return Wrap(CodeInternal, "pricing resolution failed", err)
	}
}
