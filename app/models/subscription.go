package models

import "time"

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusCanceled = "canceled"
)

// Subscription is created only on successful settlement. At most one row per
// billing account is active at any instant; activating a new one cancels the
// prior active row inside the same settlement. InvoiceID and
// PaymentAttemptID record provenance so duplicate webhook deliveries can
// resolve to the same subscription.
type Subscription struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	BillingAccountID   uint       `gorm:"not null;index:idx_subscriptions_account_status,priority:1" json:"billing_account_id"`
	InvoiceID          uint       `gorm:"not null;index" json:"invoice_id"`
	PaymentAttemptID   uint       `gorm:"not null;uniqueIndex:ux_subscriptions_attempt" json:"payment_attempt_id"`
	PlanType           string     `gorm:"type:varchar(50);not null" json:"plan_type"`
	Status             string     `gorm:"type:varchar(16);not null;default:'active';index:idx_subscriptions_account_status,priority:2" json:"status"`
	AmountCents        int64      `gorm:"not null" json:"amount_cents"`
	Currency           string     `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	BillingTerm        string     `gorm:"type:varchar(16);not null;default:'monthly'" json:"billing_term"`
	DurationDays       int        `gorm:"not null" json:"duration_days"`
	CurrentPeriodStart time.Time  `gorm:"type:timestamp;not null" json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `gorm:"type:timestamp;not null" json:"current_period_end"`
	CanceledAt         *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
