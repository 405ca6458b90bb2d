package models

import "time"

const (
	InvoiceStatusOpen = "open"
	InvoiceStatusPaid = "paid"
	InvoiceStatusVoid = "void"
)

// Invoice records what is owed for one checkout or admin billing action.
// Amounts are integer minor currency units. Once paid, amount/currency/
// metadata are immutable; void is terminal. Only the reconciliation engine
// transitions status after creation.
type Invoice struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	BillingAccountID uint       `gorm:"not null;index" json:"billing_account_id"`
	AmountCents      int64      `gorm:"not null" json:"amount_cents"`
	Currency         string     `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Status           string     `gorm:"type:varchar(16);not null;default:'open';index" json:"status"`
	MetadataJSON     string     `gorm:"type:longtext;not null" json:"metadata_json"`
	IntegrityHash    string     `gorm:"type:varchar(64);not null" json:"integrity_hash"`
	PaidAt           *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
