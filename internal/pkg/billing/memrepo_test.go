package billing

import (
	"context"
	"sync"
	"time"

	"github.com/alienkawsar/verilnk-sub004/app/models"
)

// memRepo is an in-memory Repository used by the service tests. Transaction
// serializes callers on one mutex, which mirrors the row-lock semantics the
// GORM repository gets from SELECT ... FOR UPDATE.
type memState struct {
	mu       sync.Mutex
	accounts map[uint]models.BillingAccount
	invoices map[uint]models.Invoice
	attempts map[uint]models.PaymentAttempt
	subs     map[uint]models.Subscription
	nextID   uint
}

type memRepo struct {
	st     *memState
	locked bool
}

func newMemRepo() *memRepo {
	return &memRepo{st: &memState{
		accounts: map[uint]models.BillingAccount{},
		invoices: map[uint]models.Invoice{},
		attempts: map[uint]models.PaymentAttempt{},
		subs:     map[uint]models.Subscription{},
	}}
}

func (r *memRepo) lock() func() {
	if r.locked {
		return func() {}
	}
	r.st.mu.Lock()
	return r.st.mu.Unlock
}

func (r *memRepo) id() uint {
	r.st.nextID++
	return r.st.nextID
}

func (r *memRepo) GetOrCreateBillingAccount(organizationID uint, email, name string) (*models.BillingAccount, error) {
	defer r.lock()()
	for _, a := range r.st.accounts {
		if a.OrganizationID == organizationID {
			if email != "" {
				a.BillingEmail = email
			}
			if name != "" {
				a.BillingName = name
			}
			r.st.accounts[a.ID] = a
			return &a, nil
		}
	}
	a := models.BillingAccount{ID: r.id(), OrganizationID: organizationID, BillingEmail: email, BillingName: name}
	r.st.accounts[a.ID] = a
	return &a, nil
}

func (r *memRepo) GetBillingAccount(id uint) (*models.BillingAccount, error) {
	defer r.lock()()
	a, ok := r.st.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (r *memRepo) GetBillingAccountByOrganization(organizationID uint) (*models.BillingAccount, error) {
	defer r.lock()()
	for _, a := range r.st.accounts {
		if a.OrganizationID == organizationID {
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepo) SaveBillingAccount(account *models.BillingAccount) error {
	defer r.lock()()
	r.st.accounts[account.ID] = *account
	return nil
}

func (r *memRepo) CreatePendingPair(invoice *models.Invoice, attempt *models.PaymentAttempt) error {
	defer r.lock()()
	invoice.ID = r.id()
	r.st.invoices[invoice.ID] = *invoice
	attempt.ID = r.id()
	attempt.InvoiceID = invoice.ID
	r.st.attempts[attempt.ID] = *attempt
	return nil
}

func (r *memRepo) FindAttemptByIdempotencyKey(accountID uint, key string) (*models.PaymentAttempt, error) {
	defer r.lock()()
	for _, a := range r.st.attempts {
		if a.BillingAccountID == accountID && a.IdempotencyKey != nil && *a.IdempotencyKey == key {
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepo) GetAttempt(id uint) (*models.PaymentAttempt, error) {
	defer r.lock()()
	a, ok := r.st.attempts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (r *memRepo) FindPendingAttemptByInvoice(invoiceID uint) (*models.PaymentAttempt, error) {
	defer r.lock()()
	var best *models.PaymentAttempt
	for _, a := range r.st.attempts {
		if a.InvoiceID == invoiceID && a.Status == models.AttemptStatusPending {
			copy := a
			if best == nil || copy.ID > best.ID {
				best = &copy
			}
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (r *memRepo) GetAttemptForUpdate(id uint) (*models.PaymentAttempt, error) {
	return r.GetAttempt(id)
}

func (r *memRepo) SaveAttempt(attempt *models.PaymentAttempt) error {
	defer r.lock()()
	r.st.attempts[attempt.ID] = *attempt
	return nil
}

func (r *memRepo) AttachCheckoutArtifacts(attemptID, invoiceID uint, providerPaymentID, metadataJSON string) error {
	defer r.lock()()
	if attempt, ok := r.st.attempts[attemptID]; ok && attempt.Status == models.AttemptStatusPending {
		attempt.ProviderPaymentID = providerPaymentID
		r.st.attempts[attemptID] = attempt
	}
	if invoice, ok := r.st.invoices[invoiceID]; ok && invoice.Status == models.InvoiceStatusOpen {
		invoice.MetadataJSON = metadataJSON
		r.st.invoices[invoiceID] = invoice
	}
	return nil
}

func (r *memRepo) GetInvoice(id uint) (*models.Invoice, error) {
	defer r.lock()()
	inv, ok := r.st.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &inv, nil
}

func (r *memRepo) SaveInvoice(invoice *models.Invoice) error {
	defer r.lock()()
	r.st.invoices[invoice.ID] = *invoice
	return nil
}

func (r *memRepo) CreateSubscription(sub *models.Subscription) error {
	defer r.lock()()
	sub.ID = r.id()
	r.st.subs[sub.ID] = *sub
	return nil
}

func (r *memRepo) GetSubscription(id uint) (*models.Subscription, error) {
	defer r.lock()()
	s, ok := r.st.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r *memRepo) FindActiveSubscription(accountID uint) (*models.Subscription, error) {
	defer r.lock()()
	var best *models.Subscription
	for _, s := range r.st.subs {
		if s.BillingAccountID == accountID && s.Status == models.SubscriptionStatusActive {
			copy := s
			if best == nil || copy.ID > best.ID {
				best = &copy
			}
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (r *memRepo) FindActiveSubscriptionExcluding(accountID, excludeID uint) (*models.Subscription, error) {
	defer r.lock()()
	var best *models.Subscription
	for _, s := range r.st.subs {
		if s.BillingAccountID == accountID && s.Status == models.SubscriptionStatusActive && s.ID != excludeID {
			copy := s
			if best == nil || copy.ID > best.ID {
				best = &copy
			}
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (r *memRepo) FindSubscriptionByAttempt(attemptID uint) (*models.Subscription, error) {
	defer r.lock()()
	for _, s := range r.st.subs {
		if s.PaymentAttemptID == attemptID {
			copy := s
			return &copy, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepo) SaveSubscription(sub *models.Subscription) error {
	defer r.lock()()
	r.st.subs[sub.ID] = *sub
	return nil
}

func (r *memRepo) Transaction(fn func(Repository) error) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return fn(&memRepo{st: r.st, locked: true})
}

func (r *memRepo) activeSubCount(accountID uint) int {
	defer r.lock()()
	n := 0
	for _, s := range r.st.subs {
		if s.BillingAccountID == accountID && s.Status == models.SubscriptionStatusActive {
			n++
		}
	}
	return n
}

func (r *memRepo) attemptCount() int {
	defer r.lock()()
	return len(r.st.attempts)
}

// fakeOrgs is an in-memory OrganizationService recording plan pushes.
type fakeOrgs struct {
	mu      sync.Mutex
	orgs    map[uint]models.Organization
	updates []PlanUpdate
}

func newFakeOrgs(orgs ...models.Organization) *fakeOrgs {
	f := &fakeOrgs{orgs: map[uint]models.Organization{}}
	for _, o := range orgs {
		f.orgs[o.ID] = o
	}
	return f
}

func (f *fakeOrgs) GetOrganization(_ context.Context, id uint) (*models.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (f *fakeOrgs) UpdateOrganizationPlan(_ context.Context, id uint, update PlanUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orgs[id]
	if !ok {
		return ErrNotFound
	}
	o.PlanType = update.PlanType
	o.PlanStatus = update.PlanStatus
	o.DurationDays = update.DurationDays
	f.orgs[id] = o
	f.updates = append(f.updates, update)
	return nil
}

// fakeTrials keys trials by organization id.
type fakeTrials struct {
	mu     sync.Mutex
	trials map[uint]*models.TrialSession
	nextID uint
}

func newFakeTrials() *fakeTrials {
	return &fakeTrials{trials: map[uint]*models.TrialSession{}}
}

func (f *fakeTrials) GetActiveTrial(_ context.Context, organizationID uint) (*models.TrialSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.trials[organizationID]
	if !ok || t.Status != models.TrialStatusActive {
		return nil, ErrNotFound
	}
	return t, nil
}

func (f *fakeTrials) StartTrial(_ context.Context, organizationID uint, planType string, days int) (*models.TrialSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	now := time.Now()
	t := &models.TrialSession{
		ID:        f.nextID,
		PlanType:  planType,
		Status:    models.TrialStatusActive,
		StartedAt: now,
		ExpiresAt: now.Add(time.Duration(days) * 24 * time.Hour),
	}
	f.trials[organizationID] = t
	return t, nil
}

func (f *fakeTrials) ConvertTrial(_ context.Context, trialID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.trials {
		if t.ID == trialID {
			now := time.Now()
			t.Status = models.TrialStatusConverted
			t.ConvertedAt = &now
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeTrials) ExtendTrial(_ context.Context, trialID uint, days int) (*models.TrialSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.trials {
		if t.ID == trialID {
			t.ExpiresAt = t.ExpiresAt.Add(time.Duration(days) * 24 * time.Hour)
			return t, nil
		}
	}
	return nil, ErrNotFound
}

// fakeAudit records entries and can simulate a broken audit pipeline.
type fakeAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
	fail    bool
}

func (f *fakeAudit) LogAction(_ context.Context, entry AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return ErrNotFound
	}
	f.entries = append(f.entries, entry)
	return nil
}

// denyGate rejects every compliance request with a structured denial.
type denyGate struct{}

func (denyGate) AssertCompliance(_ context.Context, req ComplianceRequest) error {
	return &ComplianceDenial{
		Code:         "POLICY_BLOCKED",
		EnterpriseID: req.EnterpriseID,
		Action:       req.Action,
		Reason:       "enterprise billing is frozen by policy",
	}
}
