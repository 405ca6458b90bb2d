package billing

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/alienkawsar/verilnk-sub004/app/models"
	"github.com/alienkawsar/verilnk-sub004/internal/pkg/pricing"
	"github.com/alienkawsar/verilnk-sub004/internal/pkg/security"
)

// ActivateSuccess settles a payment attempt as paid. It is safe under
// duplicate and concurrent deliveries: the attempt row is locked and its
// status re-read inside one transaction, so exactly one delivery creates the
// subscription and every other returns the same settled state marked
// idempotent.
func (s *Service) ActivateSuccess(ctx context.Context, attemptID uint, gatewayPaymentID string, expected *ExpectedCharge) (*SettlementResult, error) {
	var (
		res       *SettlementResult
		settleErr error
		meta      models.InvoiceMetadata
	)

	err := s.repo.Transaction(func(r Repository) error {
		attempt, err := r.GetAttemptForUpdate(attemptID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return Ef(CodeNotFound, "payment attempt %d not found", attemptID)
			}
			return Wrap(CodeInternal, "attempt lookup failed", err)
		}

		// Duplicate webhook delivery for an already-settled attempt.
		if attempt.Status == models.AttemptStatusSuccess {
			invoice, err := r.GetInvoice(attempt.InvoiceID)
			if err != nil {
				return Wrap(CodeInternal, "invoice lookup failed", err)
			}
			sub, err := r.FindSubscriptionByAttempt(attempt.ID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return Wrap(CodeInternal, "subscription lookup failed", err)
			}
			res = &SettlementResult{Attempt: attempt, Invoice: invoice, Subscription: sub, Idempotent: true, Replayed: true}
			return nil
		}
		// Already resolved by a prior failure/cancel callback.
		if attempt.Terminal() {
			invoice, err := r.GetInvoice(attempt.InvoiceID)
			if err != nil {
				return Wrap(CodeInternal, "invoice lookup failed", err)
			}
			res = &SettlementResult{Attempt: attempt, Invoice: invoice, Idempotent: true}
			return nil
		}

		invoice, err := r.GetInvoice(attempt.InvoiceID)
		if err != nil {
			return Wrap(CodeInternal, "invoice lookup failed", err)
		}

		// Internal consistency breach between the pair: terminal for this
		// attempt, never retried.
		if attempt.AmountCents != invoice.AmountCents || !strings.EqualFold(attempt.Currency, invoice.Currency) {
			if err := failPairLocked(r, attempt, invoice, "attempt/invoice amount drift detected at settlement", false); err != nil {
				return err
			}
			settleErr = E(CodeAmountValidationFailed, "attempt and invoice disagree on amount or currency")
			return nil
		}

		// The provider confirmed a different charge than was requested.
		// Nothing is written; the attempt stays pending.
		if expected != nil {
			if expected.AmountCents != nil && *expected.AmountCents != attempt.AmountCents {
				return Ef(CodeProviderAmountMismatch, "provider confirmed %d, attempt expects %d", *expected.AmountCents, attempt.AmountCents)
			}
			if expected.Currency != nil && !strings.EqualFold(*expected.Currency, attempt.Currency) {
				return Ef(CodeProviderCurrencyMismatch, "provider confirmed %q, attempt expects %q", *expected.Currency, attempt.Currency)
			}
		}

		// Metadata and integrity hash guard against out-of-band tampering of
		// the stored invoice between creation and settlement.
		if err := json.Unmarshal([]byte(invoice.MetadataJSON), &meta); err != nil {
			if ferr := failPairLocked(r, attempt, invoice, "invoice metadata is undecodable", false); ferr != nil {
				return ferr
			}
			settleErr = Wrap(CodeIntegrityViolation, "invoice metadata is undecodable", err)
			return nil
		}
		if err := security.ValidateInvoiceIntegrity(invoice.IntegrityHash, meta.OrganizationID, meta.PlanType, invoice.AmountCents, invoice.Currency); err != nil {
			if ferr := failPairLocked(r, attempt, invoice, "invoice integrity validation failed", false); ferr != nil {
				return ferr
			}
			settleErr = Wrap(CodeIntegrityViolation, "invoice integrity validation failed", err)
			return nil
		}
		if strings.TrimSpace(meta.PlanType) == "" {
			if err := failPairLocked(r, attempt, invoice, "invoice has no plan type", false); err != nil {
				return err
			}
			settleErr = E(CodePlanTypeMissing, "invoice reached settlement without a plan type")
			return nil
		}

		duration := meta.DurationDays
		if duration <= 0 {
			duration = 30
			if pricing.Term(meta.BillingTerm) == pricing.TermAnnual {
				duration = 365
			}
		}

		now := time.Now()
		attempt.Status = models.AttemptStatusSuccess
		if strings.TrimSpace(gatewayPaymentID) != "" {
			attempt.ProviderPaymentID = gatewayPaymentID
		}
		invoice.Status = models.InvoiceStatusPaid
		invoice.PaidAt = &now

		sub := &models.Subscription{
			BillingAccountID:   attempt.BillingAccountID,
			InvoiceID:          invoice.ID,
			PaymentAttemptID:   attempt.ID,
			PlanType:           meta.PlanType,
			Status:             models.SubscriptionStatusActive,
			AmountCents:        invoice.AmountCents,
			Currency:           invoice.Currency,
			BillingTerm:        meta.BillingTerm,
			DurationDays:       duration,
			CurrentPeriodStart: now,
			CurrentPeriodEnd:   now.Add(time.Duration(duration) * 24 * time.Hour),
		}

		if err := r.SaveAttempt(attempt); err != nil {
			return Wrap(CodeInternal, "attempt settlement write failed", err)
		}
		if err := r.SaveInvoice(invoice); err != nil {
			return Wrap(CodeInternal, "invoice settlement write failed", err)
		}
		if err := r.CreateSubscription(sub); err != nil {
			return Wrap(CodeInternal, "subscription creation failed", err)
		}

		res = &SettlementResult{Attempt: attempt, Invoice: invoice, Subscription: sub}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if settleErr != nil {
		return nil, settleErr
	}
	if res.Idempotent {
		return res, nil
	}

	s.finalizeSettlement(ctx, res, &meta)
	return res, nil
}

// finalizeSettlement runs the order-sensitive consequences immediately after
// the settlement commit: cancel the previously active subscription, convert
// any active trial, record the settling gateway and push the plan into the
// organization record. Failures here are logged, never propagated; the
// settlement itself has already committed.
func (s *Service) finalizeSettlement(ctx context.Context, res *SettlementResult, meta *models.InvoiceMetadata) {
	sub := res.Subscription

	prior, err := s.repo.FindActiveSubscriptionExcluding(sub.BillingAccountID, sub.ID)
	if err == nil {
		now := time.Now()
		prior.Status = models.SubscriptionStatusCanceled
		prior.CanceledAt = &now
		if err := s.repo.SaveSubscription(prior); err != nil {
			log.Printf("billing: failed to cancel prior subscription %d: %v", prior.ID, err)
		}
	} else if !errors.Is(err, ErrNotFound) {
		log.Printf("billing: prior subscription lookup failed for account %d: %v", sub.BillingAccountID, err)
	}

	if trial, err := s.trials.GetActiveTrial(ctx, meta.OrganizationID); err == nil && trial != nil {
		if err := s.trials.ConvertTrial(ctx, trial.ID); err != nil {
			log.Printf("billing: failed to convert trial %d: %v", trial.ID, err)
		}
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		log.Printf("billing: trial lookup failed for organization %d: %v", meta.OrganizationID, err)
	}

	if account, err := s.repo.GetBillingAccount(sub.BillingAccountID); err == nil {
		account.LastGateway = res.Attempt.Gateway
		if err := s.repo.SaveBillingAccount(account); err != nil {
			log.Printf("billing: failed to record gateway on account %d: %v", account.ID, err)
		}
	}

	if err := s.orgs.UpdateOrganizationPlan(ctx, meta.OrganizationID, PlanUpdate{
		PlanType:     sub.PlanType,
		PlanStatus:   models.OrgPlanStatusActive,
		DurationDays: sub.DurationDays,
	}); err != nil {
		log.Printf("billing: failed to push plan to organization %d: %v", meta.OrganizationID, err)
	}
}

// MarkFailed resolves a pending attempt as failed or canceled and voids the
// linked invoice. Already-resolved attempts return unchanged, marked
// idempotent, so providers retrying terminal outcomes see success.
func (s *Service) MarkFailed(ctx context.Context, attemptID uint, reason, providerStatus string) (*SettlementResult, error) {
	_ = ctx
	var res *SettlementResult
	err := s.repo.Transaction(func(r Repository) error {
		attempt, err := r.GetAttemptForUpdate(attemptID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return Ef(CodeNotFound, "payment attempt %d not found", attemptID)
			}
			return Wrap(CodeInternal, "attempt lookup failed", err)
		}

		invoice, err := r.GetInvoice(attempt.InvoiceID)
		if err != nil {
			return Wrap(CodeInternal, "invoice lookup failed", err)
		}

		if attempt.Terminal() {
			res = &SettlementResult{Attempt: attempt, Invoice: invoice, Idempotent: true}
			return nil
		}

		if err := failPairLocked(r, attempt, invoice, reason, isCancelStatus(providerStatus)); err != nil {
			return err
		}
		res = &SettlementResult{Attempt: attempt, Invoice: invoice}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// failPairLocked transitions a locked pending attempt and its invoice to
// their terminal failure states.
func failPairLocked(r Repository, attempt *models.PaymentAttempt, invoice *models.Invoice, reason string, canceled bool) error {
	attempt.Status = models.AttemptStatusFailed
	if canceled {
		attempt.Status = models.AttemptStatusCanceled
	}
	attempt.ErrorMessage = reason
	invoice.Status = models.InvoiceStatusVoid

	if err := r.SaveAttempt(attempt); err != nil {
		return Wrap(CodeInternal, "attempt failure write failed", err)
	}
	if err := r.SaveInvoice(invoice); err != nil {
		return Wrap(CodeInternal, "invoice void write failed", err)
	}
	return nil
}

func isCancelStatus(providerStatus string) bool {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "expired", "canceled", "cancelled", "cancel":
		return true
	default:
		return false
	}
}
