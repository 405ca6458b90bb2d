package billing

import (
	"context"
	"testing"

	"github.com/alienkawsar/verilnk-sub004/app/models"
	"github.com/alienkawsar/verilnk-sub004/internal/pkg/gateway"
	"github.com/alienkawsar/verilnk-sub004/internal/pkg/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService(t *testing.T, orgs ...models.Organization) (*Service, *memRepo, *fakeOrgs, *fakeTrials, *fakeAudit) {
	t.Helper()
	if len(orgs) == 0 {
		orgs = []models.Organization{{ID: 1, Name: "Acme Directory", Email: "billing@acme.test", Phone: "+8801700000000"}}
	}
	repo := newMemRepo()
	fo := newFakeOrgs(orgs...)
	ft := newFakeTrials()
	fa := &fakeAudit{}
	cfg := gateway.Config{Provider: gateway.ProviderMock, PublicBaseURL: "https://verilnk.test"}
	svc := NewService(repo, cfg, fo, ft, fa, nil)
	return svc, repo, fo, ft, fa
}

func TestCheckoutCreatesPendingPair(t *testing.T) {
	svc, repo, _, _, _ := testService(t)

	res, err := svc.Checkout(context.Background(), CheckoutRequest{
		OrganizationID: 1,
		Plan:           pricing.PlanBasic,
		BillingTerm:    pricing.TermMonthly,
	})
	require.NoError(t, err)
	assert.False(t, res.Idempotent)
	assert.Equal(t, int64(4900), res.Invoice.AmountCents)
	assert.Equal(t, "USD", res.Invoice.Currency)
	assert.Equal(t, models.InvoiceStatusOpen, res.Invoice.Status)
	assert.Equal(t, models.AttemptStatusPending, res.Attempt.Status)
	assert.Equal(t, res.Invoice.AmountCents, res.Attempt.AmountCents)
	assert.NotEmpty(t, res.RedirectURL)
	assert.NotEmpty(t, res.Invoice.IntegrityHash)

	meta, err := res.Invoice.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "basic", meta.PlanType)
	assert.Equal(t, 30, meta.DurationDays)
	assert.Equal(t, res.RedirectURL, meta.CheckoutURL)
	assert.Equal(t, 1, repo.attemptCount())
}

func TestCheckoutIdempotentReplay(t *testing.T) {
	svc, repo, _, _, _ := testService(t)

	req := CheckoutRequest{
		OrganizationID: 1,
		Plan:           pricing.PlanPro,
		BillingTerm:    pricing.TermAnnual,
		IdempotencyKey: "key-123",
	}

	first, err := svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Checkout(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, second.Idempotent)
	assert.Equal(t, first.Attempt.ID, second.Attempt.ID)
	assert.Equal(t, first.Invoice.ID, second.Invoice.ID)
	assert.Equal(t, 1, repo.attemptCount(), "replay must not create a second pair")
}

func TestCheckoutIdempotencyKeyReuse(t *testing.T) {
	svc, repo, _, _, _ := testService(t)

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		OrganizationID: 1,
		Plan:           pricing.PlanPro,
		BillingTerm:    pricing.TermAnnual,
		IdempotencyKey: "key-123",
	})
	require.NoError(t, err)

	_, err = svc.Checkout(context.Background(), CheckoutRequest{
		OrganizationID: 1,
		Plan:           pricing.PlanBasic,
		BillingTerm:    pricing.TermMonthly,
		IdempotencyKey: "key-123",
	})
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeIdempotencyKeyReuse))
	assert.Equal(t, 1, repo.attemptCount(), "conflict must not create state")
}

func TestCheckoutPricingErrors(t *testing.T) {
	svc, _, _, _, _ := testService(t)
	amount := int64(12345)

	tests := []struct {
		name string
		req  CheckoutRequest
		code Code
	}{
		{name: "free plan", req: CheckoutRequest{OrganizationID: 1, Plan: pricing.PlanFree}, code: CodeInvalidPlan},
		{name: "self-serve amount mismatch", req: CheckoutRequest{OrganizationID: 1, Plan: pricing.PlanPro, BillingTerm: pricing.TermAnnual, AmountCents: &amount}, code: CodeAmountMismatch},
		{name: "enterprise without amount", req: CheckoutRequest{OrganizationID: 1, Plan: pricing.PlanEnterprise}, code: CodeAmountRequired},
		{name: "unknown organization", req: CheckoutRequest{OrganizationID: 99, Plan: pricing.PlanBasic}, code: CodeNotFound},
	}
	for _, tt := range tests {
		_, err := svc.Checkout(context.Background(), tt.req)
		require.Error(t, err, tt.name)
		assert.True(t, IsCode(err, tt.code), "%s: got %v", tt.name, err)
	}
}

func TestCheckoutComplianceDenied(t *testing.T) {
	repo := newMemRepo()
	fo := newFakeOrgs(models.Organization{ID: 5, Name: "BigCorp", Email: "fin@bigcorp.test"})
	cfg := gateway.Config{Provider: gateway.ProviderMock, PublicBaseURL: "https://verilnk.test"}
	svc := NewService(repo, cfg, fo, newFakeTrials(), &fakeAudit{}, denyGate{})

	amount := int64(500000)
	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		OrganizationID: 5,
		Plan:           pricing.PlanEnterprise,
		BillingTerm:    pricing.TermAnnual,
		AmountCents:    &amount,
		ActorRole:      "owner",
	})
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeComplianceDenied))

	var denial *ComplianceDenial
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, uint(5), denial.EnterpriseID)
	assert.Equal(t, "billing.checkout", denial.Action)
	assert.Equal(t, 0, repo.attemptCount())
}

func TestCheckoutSyncsBillingContact(t *testing.T) {
	svc, repo, fo, _, _ := testService(t)

	_, err := svc.Checkout(context.Background(), CheckoutRequest{OrganizationID: 1, Plan: pricing.PlanBasic, BillingTerm: pricing.TermMonthly})
	require.NoError(t, err)

	fo.mu.Lock()
	o := fo.orgs[1]
	o.Email = "finance@acme.test"
	fo.orgs[1] = o
	fo.mu.Unlock()

	_, err = svc.Checkout(context.Background(), CheckoutRequest{OrganizationID: 1, Plan: pricing.PlanBasic, BillingTerm: pricing.TermMonthly})
	require.NoError(t, err)

	account, err := repo.GetBillingAccountByOrganization(1)
	require.NoError(t, err)
	assert.Equal(t, "finance@acme.test", account.BillingEmail)
}

func TestAttemptStatusTracksSettlement(t *testing.T) {
	svc, _, _, _, _ := testService(t)

	co, err := svc.Checkout(context.Background(), CheckoutRequest{OrganizationID: 1, Plan: pricing.PlanBasic, BillingTerm: pricing.TermMonthly})
	require.NoError(t, err)

	status, err := svc.AttemptStatus(co.Attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptStatusPending, status)

	_, err = svc.ActivateSuccess(context.Background(), co.Attempt.ID, "pay_abc", nil)
	require.NoError(t, err)

	status, err = svc.AttemptStatus(co.Attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptStatusSuccess, status)

	_, err = svc.AttemptStatus(9999)
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestCheckoutArtifactsDoNotOverwriteSettledPair(t *testing.T) {
	svc, repo, _, _, _ := testService(t)

	co, err := svc.Checkout(context.Background(), CheckoutRequest{OrganizationID: 1, Plan: pricing.PlanBasic, BillingTerm: pricing.TermMonthly})
	require.NoError(t, err)

	_, err = svc.ActivateSuccess(context.Background(), co.Attempt.ID, "pay_real", nil)
	require.NoError(t, err)

	// A stale post-initiation write arriving after settlement must not win.
	require.NoError(t, repo.AttachCheckoutArtifacts(co.Attempt.ID, co.Invoice.ID, "stale_ref", `{"stale":true}`))

	attempt, err := repo.GetAttempt(co.Attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptStatusSuccess, attempt.Status)
	assert.Equal(t, "pay_real", attempt.ProviderPaymentID)

	invoice, err := repo.GetInvoice(co.Invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, invoice.Status)
	assert.NotEqual(t, `{"stale":true}`, invoice.MetadataJSON)
}
