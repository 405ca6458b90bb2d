package billing

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/alienkawsar/verilnk-sub004/app/models"
	"github.com/alienkawsar/verilnk-sub004/internal/pkg/pricing"
	"github.com/alienkawsar/verilnk-sub004/internal/pkg/security"
	"github.com/google/uuid"
)

// ManualInvoiceRequest creates an invoice outside any hosted checkout, for
// offline/bank-transfer billing arranged by an operator.
type ManualInvoiceRequest struct {
	ActorID        uint
	OrganizationID uint
	Plan           pricing.Plan
	BillingTerm    pricing.Term
	AmountCents    *int64
	DurationDays   *int
	Note           string
}

// CreateManualInvoice creates an OPEN invoice and PENDING attempt on the
// offline gateway. Settlement happens later via ApplyOfflinePayment.
func (s *Service) CreateManualInvoice(ctx context.Context, req ManualInvoiceRequest) (*CheckoutResult, error) {
	org, err := s.orgs.GetOrganization(ctx, req.OrganizationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Ef(CodeNotFound, "organization %d not found", req.OrganizationID)
		}
		return nil, Wrap(CodeInternal, "organization lookup failed", err)
	}

	quote, err := pricing.Resolve(pricing.Input{
		Plan:                 req.Plan,
		Term:                 req.BillingTerm,
		CallerAmountCents:    req.AmountCents,
		DurationOverrideDays: req.DurationDays,
	})
	if err != nil {
		return nil, mapPricingError(err)
	}

	account, err := s.repo.GetOrCreateBillingAccount(org.ID, org.Email, org.Name)
	if err != nil {
		return nil, Wrap(CodeInternal, "billing account resolution failed", err)
	}

	meta := &models.InvoiceMetadata{
		Purpose:        models.InvoicePurposeManual,
		PlanType:       string(quote.Plan),
		BillingTerm:    string(quote.Term),
		DurationDays:   quote.DurationDays,
		OrganizationID: org.ID,
		Provider:       models.GatewayOffline,
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
		Gateway:          models.GatewayOffline,
	}
	if err := s.repo.CreatePendingPair(invoice, attempt); err != nil {
		return nil, Wrap(CodeInternal, "pending pair creation failed", err)
	}

	s.auditAsync(ctx, AuditEntry{
		ActorID:  req.ActorID,
		Action:   "billing.manual_invoice.create",
		Entity:   "invoice",
		TargetID: invoice.ID,
		Details:  fmt.Sprintf("plan=%s amount=%d %s", quote.Plan, quote.AmountCents, quote.Currency),
		Snapshot: invoice,
	})
	return &CheckoutResult{Invoice: invoice, Attempt: attempt}, nil
}

// ApplyOfflinePayment settles a manual invoice's pending attempt as paid.
func (s *Service) ApplyOfflinePayment(ctx context.Context, actorID, invoiceID uint, reference string) (*SettlementResult, error) {
	attempt, err := s.repo.FindPendingAttemptByInvoice(invoiceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Ef(CodeNotFound, "invoice %d has no pending attempt", invoiceID)
		}
		return nil, Wrap(CodeInternal, "attempt lookup failed", err)
	}

	if reference == "" {
		reference = "offline_" + uuid.NewString()
	}
	res, err := s.ActivateSuccess(ctx, attempt.ID, reference, nil)
	if err != nil {
		return nil, err
	}

	s.auditAsync(ctx, AuditEntry{
		ActorID:  actorID,
		Action:   "billing.offline_payment.apply",
		Entity:   "invoice",
		TargetID: invoiceID,
		Details:  "reference=" + reference,
		Snapshot: res.Invoice,
	})
	return res, nil
}

// CancelSubscriptionAdmin cancels a subscription on behalf of an operator.
func (s *Service) CancelSubscriptionAdmin(ctx context.Context, actorID, subscriptionID uint) (*models.Subscription, error) {
	sub, err := s.CancelSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	s.auditAsync(ctx, AuditEntry{
		ActorID:  actorID,
		Action:   "billing.subscription.cancel",
		Entity:   "subscription",
		TargetID: subscriptionID,
		Snapshot: sub,
	})
	return sub, nil
}

// FlagRefund marks a settled attempt as refund-flagged for operator
// follow-up. It does not reverse any charge.
func (s *Service) FlagRefund(ctx context.Context, actorID, attemptID uint, reason string) (*models.PaymentAttempt, error) {
	attempt, err := s.repo.GetAttempt(attemptID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Ef(CodeNotFound, "payment attempt %d not found", attemptID)
		}
		return nil, Wrap(CodeInternal, "attempt lookup failed", err)
	}
	if attempt.Status != models.AttemptStatusSuccess {
		return nil, Ef(CodeConflict, "attempt %d is not settled, nothing to refund", attemptID)
	}

	attempt.RefundFlagged = true
	if err := s.repo.SaveAttempt(attempt); err != nil {
		return nil, Wrap(CodeInternal, "attempt update failed", err)
	}

	s.auditAsync(ctx, AuditEntry{
		ActorID:  actorID,
		Action:   "billing.refund.flag",
		Entity:   "payment_attempt",
		TargetID: attemptID,
		Details:  reason,
		Snapshot: attempt,
	})
	return attempt, nil
}

// ExtendTrialAdmin extends a trial by the given number of days.
func (s *Service) ExtendTrialAdmin(ctx context.Context, actorID, trialID uint, days int) (*models.TrialSession, error) {
	if days <= 0 {
		return nil, E(CodeConflict, "trial extension must be a positive number of days")
	}
	trial, err := s.trials.ExtendTrial(ctx, trialID, days)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Ef(CodeNotFound, "trial %d not found", trialID)
		}
		return nil, Wrap(CodeInternal, "trial extension failed", err)
	}

	s.auditAsync(ctx, AuditEntry{
		ActorID:  actorID,
		Action:   "billing.trial.extend",
		Entity:   "trial_session",
		TargetID: trialID,
		Details:  fmt.Sprintf("days=%d", days),
		Snapshot: trial,
	})
	return trial, nil
}

// auditAsync logs fire-and-forget: an audit failure never rolls back the
// billing mutation it describes.
func (s *Service) auditAsync(ctx context.Context, entry AuditEntry) {
	if err := s.audit.LogAction(ctx, entry); err != nil {
		log.Printf("billing: audit log append failed for %s on %s/%d: %v", entry.Action, entry.Entity, entry.TargetID, err)
	}
}
