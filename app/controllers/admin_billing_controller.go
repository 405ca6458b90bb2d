package controllers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/alienkawsar/verilnk-sub004/internal/pkg/billing"
	"github.com/alienkawsar/verilnk-sub004/internal/pkg/pricing"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// actorID identifies the operator behind an admin mutation for the audit
// trail. It comes from the authenticating proxy, not from the request body.
func actorID(c *fiber.Ctx) uint {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Get("X-Actor-ID")), 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

type manualInvoicePayload struct {
	OrganizationID uint   `json:"organization_id" validate:"required"`
	Plan           string `json:"plan" validate:"required"`
	BillingTerm    string `json:"billing_term"`
	AmountCents    *int64 `json:"amount_cents"`
	DurationDays   *int   `json:"duration_days" validate:"omitempty,gt=0"`
	Note           string `json:"note" validate:"max=500"`
}

func (p *manualInvoicePayload) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// HandleAdminCreateManualInvoice creates an invoice for offline settlement,
// typically a negotiated enterprise contract paid by bank transfer.
func HandleAdminCreateManualInvoice(c *fiber.Ctx) error {
	svc, err := getBillingService(c)
	if err != nil {
		return err
	}

	var payload manualInvoicePayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body", "message": "Request body could not be parsed"})
	}
	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	res, err := svc.CreateManualInvoice(ctx, billing.ManualInvoiceRequest{
		ActorID:        actorID(c),
		OrganizationID: payload.OrganizationID,
		Plan:           pricing.NormalizePlan(payload.Plan),
		BillingTerm:    pricing.NormalizeTerm(payload.BillingTerm),
		AmountCents:    payload.AmountCents,
		DurationDays:   payload.DurationDays,
		Note:           payload.Note,
	})
	if err != nil {
		return billingErrorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"invoice_id":   res.Invoice.ID,
		"attempt_id":   res.Attempt.ID,
		"amount_cents": res.Invoice.AmountCents,
		"currency":     res.Invoice.Currency,
		"status":       res.Invoice.Status,
	})
}

// HandleAdminApplyOfflinePayment settles a manual invoice after the money
// arrived out of band.
func HandleAdminApplyOfflinePayment(c *fiber.Ctx) error {
	svc, err := getBillingService(c)
	if err != nil {
		return err
	}

	invoiceID, err := c.ParamsInt("invoice_id")
	if err != nil || invoiceID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_invoice", "message": "invoice_id must be a positive integer"})
	}

	var payload struct {
		Reference string `json:"reference"`
	}
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body", "message": "Request body could not be parsed"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	res, err := svc.ApplyOfflinePayment(ctx, actorID(c), uint(invoiceID), strings.TrimSpace(payload.Reference))
	if err != nil {
		return billingErrorResponse(c, err)
	}

	out := fiber.Map{
		"ok":             true,
		"attempt_status": res.Attempt.Status,
		"invoice_status": res.Invoice.Status,
		"idempotent":     res.Idempotent,
	}
	if res.Subscription != nil {
		out["subscription_id"] = res.Subscription.ID
	}
	return c.JSON(out)
}

// HandleAdminCancelSubscription cancels a subscription on an operator's
// behalf and downgrades the organization's plan.
func HandleAdminCancelSubscription(c *fiber.Ctx) error {
	svc, err := getBillingService(c)
	if err != nil {
		return err
	}

	subscriptionID, err := c.ParamsInt("subscription_id")
	if err != nil || subscriptionID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_subscription", "message": "subscription_id must be a positive integer"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	sub, err := svc.CancelSubscriptionAdmin(ctx, actorID(c), uint(subscriptionID))
	if err != nil {
		return billingErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"subscription_id": sub.ID,
		"status":          sub.Status,
		"canceled_at":     sub.CanceledAt,
	})
}

// HandleAdminFlagRefund marks a settled attempt for out-of-band refund
// handling. It never reverses the settlement itself.
func HandleAdminFlagRefund(c *fiber.Ctx) error {
	svc, err := getBillingService(c)
	if err != nil {
		return err
	}

	attemptID, err := c.ParamsInt("attempt_id")
	if err != nil || attemptID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_attempt", "message": "attempt_id must be a positive integer"})
	}

	var payload struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body", "message": "Request body could not be parsed"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	attempt, err := svc.FlagRefund(ctx, actorID(c), uint(attemptID), strings.TrimSpace(payload.Reason))
	if err != nil {
		return billingErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"attempt_id":     attempt.ID,
		"status":         attempt.Status,
		"refund_flagged": attempt.RefundFlagged,
	})
}

// HandleAdminExtendTrial adds days to an active trial.
func HandleAdminExtendTrial(c *fiber.Ctx) error {
	svc, err := getBillingService(c)
	if err != nil {
		return err
	}

	trialID, err := c.ParamsInt("trial_id")
	if err != nil || trialID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_trial", "message": "trial_id must be a positive integer"})
	}

	var payload struct {
		Days int `json:"days"`
	}
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body", "message": "Request body could not be parsed"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	trial, err := svc.ExtendTrialAdmin(ctx, actorID(c), uint(trialID), payload.Days)
	if err != nil {
		return billingErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"trial_id":   trial.ID,
		"status":     trial.Status,
		"expires_at": trial.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
