package billing

import (
	"context"
	"testing"
	"time"

	"github.com/alienkawsar/verilnk-sub004/app/models"
	"github.com/alienkawsar/verilnk-sub004/internal/pkg/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualInvoiceAndOfflinePayment(t *testing.T) {
	svc, repo, _, _, fa := testService(t)
	amount := int64(750000)

	co, err := svc.CreateManualInvoice(context.Background(), ManualInvoiceRequest{
		ActorID:        9,
		OrganizationID: 1,
		Plan:           pricing.PlanEnterprise,
		BillingTerm:    pricing.TermAnnual,
		AmountCents:    &amount,
		Note:           "negotiated contract Q3",
	})
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusOpen, co.Invoice.Status)
	assert.Equal(t, models.GatewayOffline, co.Attempt.Gateway)

	meta, err := co.Invoice.Metadata()
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePurposeManual, meta.Purpose)
	assert.Equal(t, "negotiated contract Q3", meta.Note)

	res, err := svc.ApplyOfflinePayment(context.Background(), 9, co.Invoice.ID, "wire-20260829")
	require.NoError(t, err)
	assert.Equal(t, models.AttemptStatusSuccess, res.Attempt.Status)
	assert.Equal(t, models.InvoiceStatusPaid, res.Invoice.Status)
	require.NotNil(t, res.Subscription)
	assert.Equal(t, "enterprise", res.Subscription.PlanType)
	assert.Equal(t, int64(750000), res.Subscription.AmountCents)

	assert.Equal(t, 1, repo.activeSubCount(co.Attempt.BillingAccountID))

	// Both operations audited.
	fa.mu.Lock()
	actions := make([]string, 0, len(fa.entries))
	for _, e := range fa.entries {
		actions = append(actions, e.Action)
	}
	fa.mu.Unlock()
	assert.Contains(t, actions, "billing.manual_invoice.create")
	assert.Contains(t, actions, "billing.offline_payment.apply")
}

func TestAuditFailureDoesNotBlockMutation(t *testing.T) {
	svc, _, _, _, fa := testService(t)
	fa.fail = true
	amount := int64(100000)

	co, err := svc.CreateManualInvoice(context.Background(), ManualInvoiceRequest{
		ActorID:        9,
		OrganizationID: 1,
		Plan:           pricing.PlanEnterprise,
		BillingTerm:    pricing.TermMonthly,
		AmountCents:    &amount,
	})
	require.NoError(t, err, "a broken audit pipeline must not fail the billing mutation")
	assert.Equal(t, models.InvoiceStatusOpen, co.Invoice.Status)
}

func TestCancelSubscriptionAdmin(t *testing.T) {
	svc, repo, fo, _, _ := testService(t)
	co := checkout(t, svc, pricing.PlanBasic, pricing.TermMonthly)
	res, err := svc.ActivateSuccess(context.Background(), co.Attempt.ID, "pay_1", nil)
	require.NoError(t, err)

	sub, err := svc.CancelSubscriptionAdmin(context.Background(), 9, res.Subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, sub.Status)
	assert.Equal(t, 0, repo.activeSubCount(co.Attempt.BillingAccountID))

	org, err := fo.GetOrganization(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.OrgPlanStatusInactive, org.PlanStatus)

	// Cancel is idempotent.
	again, err := svc.CancelSubscriptionAdmin(context.Background(), 9, res.Subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, again.Status)
}

func TestFlagRefund(t *testing.T) {
	svc, _, _, _, _ := testService(t)
	co := checkout(t, svc, pricing.PlanBasic, pricing.TermMonthly)

	// Unsettled attempts cannot be refund-flagged.
	_, err := svc.FlagRefund(context.Background(), 9, co.Attempt.ID, "customer dispute")
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeConflict))

	_, err = svc.ActivateSuccess(context.Background(), co.Attempt.ID, "pay_1", nil)
	require.NoError(t, err)

	attempt, err := svc.FlagRefund(context.Background(), 9, co.Attempt.ID, "customer dispute")
	require.NoError(t, err)
	assert.True(t, attempt.RefundFlagged)
	assert.Equal(t, models.AttemptStatusSuccess, attempt.Status)
}

func TestExtendTrialAdmin(t *testing.T) {
	svc, _, _, ft, _ := testService(t)
	trial, err := ft.StartTrial(context.Background(), 1, "basic", 14)
	require.NoError(t, err)
	before := trial.ExpiresAt

	extended, err := svc.ExtendTrialAdmin(context.Background(), 9, trial.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, before.Add(7*24*time.Hour), extended.ExpiresAt)

	_, err = svc.ExtendTrialAdmin(context.Background(), 9, trial.ID, 0)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeConflict))
}
