package billing

import (
	"errors"

	"github.com/alienkawsar/verilnk-sub004/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is the repository-level miss, normalized from the driver.
var ErrNotFound = errors.New("billing record not found")

// Repository provides DB operations used by the billing services. The
// settlement paths run against a Repository obtained inside Transaction so
// the status re-read and the dependent writes commit atomically.
type Repository interface {
	GetOrCreateBillingAccount(organizationID uint, email, name string) (*models.BillingAccount, error)
	GetBillingAccount(id uint) (*models.BillingAccount, error)
	GetBillingAccountByOrganization(organizationID uint) (*models.BillingAccount, error)
	SaveBillingAccount(account *models.BillingAccount) error

	CreatePendingPair(invoice *models.Invoice, attempt *models.PaymentAttempt) error
	FindAttemptByIdempotencyKey(accountID uint, key string) (*models.PaymentAttempt, error)
	GetAttempt(id uint) (*models.PaymentAttempt, error)
	FindPendingAttemptByInvoice(invoiceID uint) (*models.PaymentAttempt, error)
	// GetAttemptForUpdate takes a row lock when called inside Transaction,
	// serializing concurrent settlement deliveries for the same attempt.
	GetAttemptForUpdate(id uint) (*models.PaymentAttempt, error)
	SaveAttempt(attempt *models.PaymentAttempt) error
	// AttachCheckoutArtifacts records the provider reference and checkout
	// metadata after gateway initiation. The writes are guarded on the pair
	// still being unsettled, so a settlement that raced the initiation is
	// never overwritten by the stale pending row.
	AttachCheckoutArtifacts(attemptID, invoiceID uint, providerPaymentID, metadataJSON string) error

	GetInvoice(id uint) (*models.Invoice, error)
	SaveInvoice(invoice *models.Invoice) error

	CreateSubscription(sub *models.Subscription) error
	GetSubscription(id uint) (*models.Subscription, error)
	FindActiveSubscription(accountID uint) (*models.Subscription, error)
	FindActiveSubscriptionExcluding(accountID, excludeID uint) (*models.Subscription, error)
	FindSubscriptionByAttempt(attemptID uint) (*models.Subscription, error)
	SaveSubscription(sub *models.Subscription) error

	Transaction(fn func(Repository) error) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func normalizeErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *gormRepository) GetOrCreateBillingAccount(organizationID uint, email, name string) (*models.BillingAccount, error) {
	var account models.BillingAccount
	err := r.db.Where("organization_id = ?", organizationID).First(&account).Error
	if err == nil {
		// Keep cached contact fields in sync with the organization record.
		if (email != "" && account.BillingEmail != email) || (name != "" && account.BillingName != name) {
			if email != "" {
				account.BillingEmail = email
			}
			if name != "" {
				account.BillingName = name
			}
			if err := r.db.Save(&account).Error; err != nil {
				return nil, err
			}
		}
		return &account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	account = models.BillingAccount{
		OrganizationID: organizationID,
		BillingEmail:   email,
		BillingName:    name,
	}
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}},
		DoNothing: true,
	}).Create(&account).Error; err != nil {
		return nil, err
	}
	// Re-read so a concurrent creator's row wins consistently.
	if err := r.db.Where("organization_id = ?", organizationID).First(&account).Error; err != nil {
		return nil, normalizeErr(err)
	}
	return &account, nil
}

func (r *gormRepository) GetBillingAccount(id uint) (*models.BillingAccount, error) {
	var account models.BillingAccount
	if err := r.db.First(&account, id).Error; err != nil {
		return nil, normalizeErr(err)
	}
	return &account, nil
}

func (r *gormRepository) GetBillingAccountByOrganization(organizationID uint) (*models.BillingAccount, error) {
	var account models.BillingAccount
	if err := r.db.Where("organization_id = ?", organizationID).First(&account).Error; err != nil {
		return nil, normalizeErr(err)
	}
	return &account, nil
}

func (r *gormRepository) SaveBillingAccount(account *models.BillingAccount) error {
	return r.db.Save(account).Error
}

func (r *gormRepository) CreatePendingPair(invoice *models.Invoice, attempt *models.PaymentAttempt) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(invoice).Error; err != nil {
			return err
		}
		attempt.InvoiceID = invoice.ID
		return tx.Create(attempt).Error
	})
}

func (r *gormRepository) FindAttemptByIdempotencyKey(accountID uint, key string) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := r.db.Where("billing_account_id = ? AND idempotency_key = ?", accountID, key).First(&attempt).Error
	if err != nil {
		return nil, normalizeErr(err)
	}
	return &attempt, nil
}

func (r *gormRepository) GetAttempt(id uint) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	if err := r.db.First(&attempt, id).Error; err != nil {
		return nil, normalizeErr(err)
	}
	return &attempt, nil
}

func (r *gormRepository) FindPendingAttemptByInvoice(invoiceID uint) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := r.db.Where("invoice_id = ? AND status = ?", invoiceID, models.AttemptStatusPending).
		Order("id DESC").First(&attempt).Error
	if err != nil {
		return nil, normalizeErr(err)
	}
	return &attempt, nil
}

func (r *gormRepository) GetAttemptForUpdate(id uint) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&attempt, id).Error; err != nil {
		return nil, normalizeErr(err)
	}
	return &attempt, nil
}

func (r *gormRepository) SaveAttempt(attempt *models.PaymentAttempt) error {
	return r.db.Save(attempt).Error
}

func (r *gormRepository) AttachCheckoutArtifacts(attemptID, invoiceID uint, providerPaymentID, metadataJSON string) error {
	if err := r.db.Model(&models.PaymentAttempt{}).
		Where("id = ? AND status = ?", attemptID, models.AttemptStatusPending).
		Update("provider_payment_id", providerPaymentID).Error; err != nil {
		return err
	}
	return r.db.Model(&models.Invoice{}).
		Where("id = ? AND status = ?", invoiceID, models.InvoiceStatusOpen).
		Update("metadata_json", metadataJSON).Error
}

func (r *gormRepository) GetInvoice(id uint) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.First(&invoice, id).Error; err != nil {
		return nil, normalizeErr(err)
	}
	return &invoice, nil
}

func (r *gormRepository) SaveInvoice(invoice *models.Invoice) error {
	return r.db.Save(invoice).Error
}

func (r *gormRepository) CreateSubscription(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *gormRepository) GetSubscription(id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.First(&sub, id).Error; err != nil {
		return nil, normalizeErr(err)
	}
	return &sub, nil
}

func (r *gormRepository) FindActiveSubscription(accountID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("billing_account_id = ? AND status = ?", accountID, models.SubscriptionStatusActive).
		Order("id DESC").First(&sub).Error
	if err != nil {
		return nil, normalizeErr(err)
	}
	return &sub, nil
}

func (r *gormRepository) FindActiveSubscriptionExcluding(accountID, excludeID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("billing_account_id = ? AND status = ? AND id <> ?", accountID, models.SubscriptionStatusActive, excludeID).
		Order("id DESC").First(&sub).Error
	if err != nil {
		return nil, normalizeErr(err)
	}
	return &sub, nil
}

func (r *gormRepository) FindSubscriptionByAttempt(attemptID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("payment_attempt_id = ?", attemptID).First(&sub).Error
	if err != nil {
		return nil, normalizeErr(err)
	}
	return &sub, nil
}

func (r *gormRepository) SaveSubscription(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) Transaction(fn func(Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}
