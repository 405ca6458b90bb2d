package models

import "time"

// Payment gateway identifiers used across billing models.
const (
	GatewayStripe     = "stripe"
	GatewaySSLCommerz = "sslcommerz"
	GatewayMock       = "mock"
	GatewayOffline    = "offline"
)

// BillingAccount is the per-organization billing identity. It is created
// lazily on first checkout and never deleted; contact fields are cached
// copies of the organization record, refreshed on each checkout.
type BillingAccount struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;uniqueIndex:ux_billing_accounts_org" json:"organization_id"`
	BillingEmail   string    `gorm:"type:varchar(200);default:''" json:"billing_email"`
	BillingName    string    `gorm:"type:varchar(200);default:''" json:"billing_name"`
	LastGateway    string    `gorm:"type:varchar(20);default:''" json:"last_gateway"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
