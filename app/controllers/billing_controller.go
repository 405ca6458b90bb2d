package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alienkawsar/verilnk-sub004/app/models"
	"github.com/alienkawsar/verilnk-sub004/internal/pkg/billing"
	"github.com/alienkawsar/verilnk-sub004/internal/pkg/gateway"
	"github.com/alienkawsar/verilnk-sub004/internal/pkg/pricing"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// billingService is installed once at startup by SetBillingService; handlers
// never construct their own service or read the environment.
var billingService *billing.Service

// SetBillingService installs the shared billing service for all handlers.
func SetBillingService(svc *billing.Service) {
	billingService = svc
}

func getBillingService(c *fiber.Ctx) (*billing.Service, error) {
	if billingService == nil {
		return nil, c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service_unavailable", "message": "Billing service is not initialized"})
	}
	return billingService, nil
}

type checkoutPayload struct {
	OrganizationID uint   `json:"organization_id" validate:"required"`
	Plan           string `json:"plan" validate:"required"`
	BillingTerm    string `json:"billing_term"`
	AmountCents    *int64 `json:"amount_cents"`
	IdempotencyKey string `json:"idempotency_key" validate:"max=128"`
	DurationDays   *int   `json:"duration_days" validate:"omitempty,gt=0"`
	Provider       string `json:"provider" validate:"omitempty,oneof=stripe sslcommerz mock"`
	Note           string `json:"note" validate:"max=500"`
}

func (p *checkoutPayload) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// HandleBillingCheckout starts a checkout: it prices the plan, creates the
// pending invoice/attempt pair and returns the provider redirect.
func HandleBillingCheckout(c *fiber.Ctx) error {
	svc, err := getBillingService(c)
	if err != nil {
		return err
	}

	var payload checkoutPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body", "message": "Request body could not be parsed"})
	}
	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 30*time.Second)
	defer cancel()

	res, err := svc.Checkout(ctx, billing.CheckoutRequest{
		OrganizationID: payload.OrganizationID,
		Plan:           pricing.NormalizePlan(payload.Plan),
		BillingTerm:    pricing.NormalizeTerm(payload.BillingTerm),
		AmountCents:    payload.AmountCents,
		IdempotencyKey: strings.TrimSpace(payload.IdempotencyKey),
		DurationDays:   payload.DurationDays,
		Provider:       payload.Provider,
		ActorRole:      strings.TrimSpace(c.Get("X-Actor-Role")),
		Note:           payload.Note,
	})
	if err != nil {
		return billingErrorResponse(c, err)
	}

	status := fiber.StatusCreated
	if res.Idempotent {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{
		"invoice_id":   res.Invoice.ID,
		"attempt_id":   res.Attempt.ID,
		"amount_cents": res.Invoice.AmountCents,
		"currency":     res.Invoice.Currency,
		"redirect_url": res.RedirectURL,
		"idempotent":   res.Idempotent,
	})
}

// HandleStripeWebhook settles attempts from Stripe checkout session events.
// Signature verification happens before anything else; events that do not
// correlate to a local attempt are acknowledged and dropped so Stripe stops
// redelivering them.
func HandleStripeWebhook(c *fiber.Ctx) error {
	svc, err := getBillingService(c)
	if err != nil {
		return err
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))

	event, err := webhook.ConstructEvent(rawBody, signature, svc.StripeWebhookSecret())
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	switch string(event.Type) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed", "checkout.session.expired":
	default:
		return c.JSON(fiber.Map{"ok": true, "ignored": true})
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	attemptID := gateway.AttemptIDFromMetadata(sess.Metadata)
	if attemptID == 0 {
		log.Printf("billing: stripe event %s (%s) carries no attempt correlation, dropping", event.ID, event.Type)
		return c.JSON(fiber.Map{"ok": true, "ignored": true})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var res *billing.SettlementResult
	switch string(event.Type) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			// Completed sessions awaiting async payment settle on the
			// async_payment_succeeded delivery.
			return c.JSON(fiber.Map{"ok": true, "pending": true})
		}
		expected := &billing.ExpectedCharge{}
		if sess.AmountTotal > 0 {
			amount := sess.AmountTotal
			expected.AmountCents = &amount
		}
		if sess.Currency != "" {
			currency := strings.ToUpper(string(sess.Currency))
			expected.Currency = &currency
		}
		reference := sess.ID
		if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
			reference = sess.PaymentIntent.ID
		}
		res, err = svc.ActivateSuccess(ctx, attemptID, reference, expected)
	case "checkout.session.async_payment_failed":
		res, err = svc.MarkFailed(ctx, attemptID, "stripe reported async payment failure", "failed")
	case "checkout.session.expired":
		res, err = svc.MarkFailed(ctx, attemptID, "stripe checkout session expired", "expired")
	}
	return stripeSettlementReply(c, event.ID, attemptID, res, err)
}

// stripeSettlementReply acknowledges an event whose attempt id matches no
// local row instead of erroring: a non-2xx would make Stripe redeliver an
// event we can never correlate.
func stripeSettlementReply(c *fiber.Ctx, eventID string, attemptID uint, res *billing.SettlementResult, err error) error {
	if err != nil {
		if billing.CodeOf(err) == billing.CodeNotFound {
			log.Printf("billing: stripe event %s references unknown attempt %d, dropping", eventID, attemptID)
			return c.JSON(fiber.Map{"ok": true, "ignored": true})
		}
		return billingErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"ok":         true,
		"status":     res.Attempt.Status,
		"idempotent": res.Idempotent,
	})
}

// HandleStripeCheckoutSuccess is the browser return from Stripe's hosted
// checkout page. Settlement is webhook-driven, so this only reflects the
// attempt's current state back to the frontend; an attempt the webhook has
// not settled yet shows as processing.
func HandleStripeCheckoutSuccess(c *fiber.Ctx) error {
	svc, err := getBillingService(c)
	if err != nil {
		return err
	}

	attemptID := parseAttemptID(c.Query("attempt_id"))
	if attemptID == 0 {
		return billingRedirect(c, svc, "error", 0, "missing attempt reference")
	}

	status, err := svc.AttemptStatus(attemptID)
	if err != nil {
		log.Printf("billing: stripe return could not resolve attempt %d: %v", attemptID, err)
		return billingRedirect(c, svc, "error", attemptID, "unknown payment attempt")
	}
	if status == models.AttemptStatusPending {
		status = "processing"
	}
	return billingRedirect(c, svc, status, attemptID, "")
}

// HandleStripeCheckoutCancel is hit when the customer backs out of the
// Stripe checkout page. Cancellation is just another terminal transition;
// a later expired webhook for the same session becomes an idempotent no-op.
func HandleStripeCheckoutCancel(c *fiber.Ctx) error {
	svc, err := getBillingService(c)
	if err != nil {
		return err
	}

	attemptID := parseAttemptID(c.Query("attempt_id"))
	if attemptID == 0 {
		return billingRedirect(c, svc, "error", 0, "missing attempt reference")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	res, err := svc.MarkFailed(ctx, attemptID, "customer canceled stripe checkout", "canceled")
	if err != nil {
		log.Printf("billing: stripe cancel return could not resolve attempt %d: %v", attemptID, err)
		return billingRedirect(c, svc, "error", attemptID, "payment state could not be updated")
	}
	return billingRedirect(c, svc, res.Attempt.Status, attemptID, "")
}

// HandleSSLCommerzSuccess is the browser return from the hosted payment
// page. The posted form is untrusted; settlement only proceeds after the
// provider's validation endpoint independently confirms the transaction.
// The response is always a redirect, this is a user-facing URL.
func HandleSSLCommerzSuccess(c *fiber.Ctx) error {
	svc, err := getBillingService(c)
	if err != nil {
		return err
	}

	tranID := strings.TrimSpace(c.FormValue("tran_id", c.Query("tran_id")))
	valID := strings.TrimSpace(c.FormValue("val_id", c.Query("val_id")))
	attemptID := parseAttemptID(tranID)
	if attemptID == 0 || valID == "" {
		return billingRedirect(c, svc, "error", 0, "missing transaction reference")
	}

	adapter := svc.SSLCommerz()
	if adapter == nil {
		return billingRedirect(c, svc, "error", attemptID, "sslcommerz is not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	validation, err := adapter.ValidatePayment(ctx, valID)
	if err != nil {
		log.Printf("billing: sslcommerz validation call failed for attempt %d: %v", attemptID, err)
		return billingRedirect(c, svc, "error", attemptID, "payment validation unavailable")
	}
	if !validation.Validated() || strings.TrimSpace(validation.TranID) != tranID {
		if _, err := svc.MarkFailed(ctx, attemptID, "sslcommerz validation rejected the transaction", validation.Status); err != nil {
			log.Printf("billing: failed to mark attempt %d failed after rejected validation: %v", attemptID, err)
		}
		return billingRedirect(c, svc, "failed", attemptID, "payment could not be validated")
	}

	expected := &billing.ExpectedCharge{}
	if cents, ok := gateway.ParseValidationAmount(validation.Amount); ok {
		expected.AmountCents = &cents
	}
	if cur := strings.TrimSpace(validation.Currency); cur != "" {
		currency := strings.ToUpper(cur)
		expected.Currency = &currency
	}

	if _, err := svc.ActivateSuccess(ctx, attemptID, validation.ValID, expected); err != nil {
		log.Printf("billing: sslcommerz settlement failed for attempt %d: %v", attemptID, err)
		return billingRedirect(c, svc, "failed", attemptID, "payment settlement failed")
	}
	return billingRedirect(c, svc, "success", attemptID, "")
}

// HandleSSLCommerzFail marks the attempt failed and sends the user back.
func HandleSSLCommerzFail(c *fiber.Ctx) error {
	return sslcommerzTerminal(c, "sslcommerz reported payment failure", "failed")
}

// HandleSSLCommerzCancel marks the attempt canceled and sends the user back.
func HandleSSLCommerzCancel(c *fiber.Ctx) error {
	return sslcommerzTerminal(c, "customer canceled at the payment page", "cancelled")
}

func sslcommerzTerminal(c *fiber.Ctx, reason, providerStatus string) error {
	svc, err := getBillingService(c)
	if err != nil {
		return err
	}

	attemptID := parseAttemptID(strings.TrimSpace(c.FormValue("tran_id", c.Query("tran_id"))))
	if attemptID == 0 {
		return billingRedirect(c, svc, "error", 0, "missing transaction reference")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	res, err := svc.MarkFailed(ctx, attemptID, reason, providerStatus)
	if err != nil {
		log.Printf("billing: sslcommerz %s callback could not resolve attempt %d: %v", providerStatus, attemptID, err)
		return billingRedirect(c, svc, "error", attemptID, "payment state could not be updated")
	}
	return billingRedirect(c, svc, res.Attempt.Status, attemptID, "")
}

type mockCheckoutPayload struct {
	checkoutPayload
	Simulate string `json:"simulate" validate:"omitempty,oneof=paid failed expired"`
}

func (p *mockCheckoutPayload) Validate() error {
	validate := validator.New()
	return validate.Struct(p)
}

// HandleMockCheckout creates a pending pair through the mock gateway and,
// when a simulate outcome is supplied, settles it in the same call. Used for
// deterministic tests and admin-triggered synthetic provisioning.
func HandleMockCheckout(c *fiber.Ctx) error {
	svc, err := getBillingService(c)
	if err != nil {
		return err
	}

	var payload mockCheckoutPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body", "message": "Request body could not be parsed"})
	}
	payload.Provider = gateway.ProviderMock
	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 30*time.Second)
	defer cancel()

	res, err := svc.Checkout(ctx, billing.CheckoutRequest{
		OrganizationID: payload.OrganizationID,
		Plan:           pricing.NormalizePlan(payload.Plan),
		BillingTerm:    pricing.NormalizeTerm(payload.BillingTerm),
		AmountCents:    payload.AmountCents,
		IdempotencyKey: strings.TrimSpace(payload.IdempotencyKey),
		DurationDays:   payload.DurationDays,
		Provider:       gateway.ProviderMock,
		ActorRole:      strings.TrimSpace(c.Get("X-Actor-Role")),
		Note:           payload.Note,
	})
	if err != nil {
		return billingErrorResponse(c, err)
	}

	out := fiber.Map{
		"invoice_id":   res.Invoice.ID,
		"attempt_id":   res.Attempt.ID,
		"amount_cents": res.Invoice.AmountCents,
		"currency":     res.Invoice.Currency,
		"redirect_url": res.RedirectURL,
		"idempotent":   res.Idempotent,
	}
	if payload.Simulate == "" {
		status := fiber.StatusCreated
		if res.Idempotent {
			status = fiber.StatusOK
		}
		return c.Status(status).JSON(out)
	}

	settled, err := settleMockAttempt(ctx, svc, res.Attempt.ID, payload.Simulate)
	if err != nil {
		return billingErrorResponse(c, err)
	}
	out["status"] = settled.Attempt.Status
	if settled.Subscription != nil {
		out["subscription_id"] = settled.Subscription.ID
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

func settleMockAttempt(ctx context.Context, svc *billing.Service, attemptID uint, simulate string) (*billing.SettlementResult, error) {
	switch simulate {
	case "paid":
		return svc.ActivateSuccess(ctx, attemptID, "mock_"+strconv.FormatUint(uint64(attemptID), 10), nil)
	case "failed":
		return svc.MarkFailed(ctx, attemptID, "mock gateway simulated failure", "failed")
	case "expired":
		return svc.MarkFailed(ctx, attemptID, "mock gateway simulated expiry", "expired")
	}
	return nil, billing.E(billing.CodeInternal, "unknown simulate outcome")
}

// HandleMockCallback settles attempts created through the mock gateway. It
// exists for local development and integration tests; the simulate parameter
// picks the provider outcome.
func HandleMockCallback(c *fiber.Ctx) error {
	svc, err := getBillingService(c)
	if err != nil {
		return err
	}

	attemptID := parseAttemptID(c.Query("attempt_id"))
	if attemptID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_attempt", "message": "attempt_id is required"})
	}
	if err := gateway.VerifyMockCallback(attemptID, c.Query("signature"), svc.MockCallbackSecret()); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature", "message": "callback signature verification failed"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	simulate := c.Query("simulate", "paid")
	switch simulate {
	case "paid", "failed", "expired":
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_simulate", "message": "simulate must be paid, failed or expired"})
	}

	res, err := settleMockAttempt(ctx, svc, attemptID, simulate)
	if err != nil {
		return billingErrorResponse(c, err)
	}

	out := fiber.Map{
		"ok":         true,
		"status":     res.Attempt.Status,
		"idempotent": res.Idempotent,
	}
	if res.Subscription != nil {
		out["subscription_id"] = res.Subscription.ID
	}
	return c.JSON(out)
}

// HandleBillingSubscription returns the organization's active subscription.
func HandleBillingSubscription(c *fiber.Ctx) error {
	svc, err := getBillingService(c)
	if err != nil {
		return err
	}

	orgID, err := c.ParamsInt("org_id")
	if err != nil || orgID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_organization", "message": "org_id must be a positive integer"})
	}

	sub, err := svc.ActiveSubscription(uint(orgID))
	if err != nil {
		return billingErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"subscription_id":  sub.ID,
		"plan_type":        sub.PlanType,
		"billing_term":     sub.BillingTerm,
		"status":           sub.Status,
		"amount_cents":     sub.AmountCents,
		"currency":         sub.Currency,
		"current_start":    sub.CurrentPeriodStart.UTC().Format(time.RFC3339),
		"current_end":      sub.CurrentPeriodEnd.UTC().Format(time.RFC3339),
		"payment_attempt":  sub.PaymentAttemptID,
		"billing_account":  sub.BillingAccountID,
		"duration_in_days": sub.DurationDays,
	})
}

// billingRedirect sends the browser back to the frontend billing result page.
func billingRedirect(c *fiber.Ctx, svc *billing.Service, outcome string, attemptID uint, reason string) error {
	q := url.Values{}
	q.Set("outcome", outcome)
	if attemptID > 0 {
		q.Set("attempt_id", strconv.FormatUint(uint64(attemptID), 10))
	}
	if reason != "" {
		q.Set("reason", reason)
	}
	base := strings.TrimRight(svc.FrontendBaseURL(), "/")
	return c.Redirect(base+"/billing/result?"+q.Encode(), fiber.StatusSeeOther)
}

func parseAttemptID(raw string) uint {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

// billingErrorResponse maps billing error codes onto HTTP statuses.
func billingErrorResponse(c *fiber.Ctx, err error) error {
	var denial *billing.ComplianceDenial
	if errors.As(err, &denial) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":         string(billing.CodeComplianceDenied),
			"message":       denial.Reason,
			"code":          denial.Code,
			"enterprise_id": denial.EnterpriseID,
			"action":        denial.Action,
			"reason":        denial.Reason,
		})
	}

	code := billing.CodeOf(err)
	status := fiber.StatusInternalServerError
	switch code {
	case billing.CodeNotFound:
		status = fiber.StatusNotFound
	case billing.CodeInvalidPlan, billing.CodeAmountRequired, billing.CodeAmountMismatch:
		status = fiber.StatusUnprocessableEntity
	case billing.CodeIdempotencyKeyReuse, billing.CodeConflict:
		status = fiber.StatusConflict
	case billing.CodeComplianceDenied:
		status = fiber.StatusForbidden
	case billing.CodeGatewayFailure:
		status = fiber.StatusBadGateway
	case billing.CodeAmountValidationFailed, billing.CodeProviderAmountMismatch,
		billing.CodeProviderCurrencyMismatch, billing.CodeIntegrityViolation,
		billing.CodePlanTypeMissing:
		status = fiber.StatusUnprocessableEntity
	}

	message := "billing operation failed"
	var be *billing.Error
	if errors.As(err, &be) {
		message = be.Message
	}
	if status == fiber.StatusInternalServerError {
		log.Printf("billing: handler error: %v", err)
		message = "internal error"
	}
	return c.Status(status).JSON(fiber.Map{"error": string(code), "message": message})
}
