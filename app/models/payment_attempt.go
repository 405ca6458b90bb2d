package models

import "time"

const (
	AttemptStatusPending  = "pending"
	AttemptStatusSuccess  = "success"
	AttemptStatusFailed   = "failed"
	AttemptStatusCanceled = "canceled"
)

// PaymentAttempt is one provider-facing try to collect payment against an
// invoice. Amount and currency mirror the linked invoice until settlement.
// Once the status leaves pending the row is terminal; idempotent replays
// return it unchanged. The idempotency key is unique per billing account and
// the request hash fingerprints the logical request the key was first used
// for.
type PaymentAttempt struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	BillingAccountID  uint      `gorm:"not null;index;uniqueIndex:ux_payment_attempts_account_key,priority:1" json:"billing_account_id"`
	InvoiceID         uint      `gorm:"not null;index" json:"invoice_id"`
	AmountCents       int64     `gorm:"not null" json:"amount_cents"`
	Currency          string    `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Status            string    `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	Gateway           string    `gorm:"type:varchar(20);not null" json:"gateway"`
	ProviderPaymentID string    `gorm:"type:varchar(191);default:''" json:"provider_payment_id"`
	IdempotencyKey    *string   `gorm:"type:varchar(191);uniqueIndex:ux_payment_attempts_account_key,priority:2" json:"idempotency_key,omitempty"`
	RequestHash       *string   `gorm:"type:varchar(64)" json:"request_hash,omitempty"`
	ErrorMessage      string    `gorm:"type:text" json:"error_message"`
	RefundFlagged     bool      `gorm:"default:false" json:"refund_flagged"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Terminal reports whether the attempt can no longer transition.
func (a *PaymentAttempt) Terminal() bool {
	return a.Status != AttemptStatusPending
}
