package models

import "time"

const (
	TrialStatusActive    = "active"
	TrialStatusExpired   = "expired"
	TrialStatusConverted = "converted"
)

// TrialSession tracks a free trial on a billing account. An active trial is
// marked converted, never deleted, when a paid subscription activates for
// the same account, so the trial history stays auditable.
type TrialSession struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	BillingAccountID uint       `gorm:"not null;index:idx_trial_sessions_account_status,priority:1" json:"billing_account_id"`
	PlanType         string     `gorm:"type:varchar(50);not null" json:"plan_type"`
	Status           string     `gorm:"type:varchar(16);not null;default:'active';index:idx_trial_sessions_account_status,priority:2" json:"status"`
	StartedAt        time.Time  `gorm:"type:timestamp;not null" json:"started_at"`
	ExpiresAt        time.Time  `gorm:"type:timestamp;not null" json:"expires_at"`
	ConvertedAt      *time.Time `gorm:"type:timestamp;default:null" json:"converted_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
