package models

import (
	"time"

	"gorm.io/gorm"
)

// Organization plan status values pushed by the subscription lifecycle.
const (
	OrgPlanStatusActive   = "active"
	OrgPlanStatusInactive = "inactive"
)

// Organization is the directory entity that owns a billing account. The
// billing core only reads contact fields and writes plan/status through the
// organization service; everything else about organizations lives outside
// this module.
type Organization struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"type:varchar(200);not null" json:"name"`
	Email        string         `gorm:"type:varchar(200);default:''" json:"email"`
	Address      string         `gorm:"type:varchar(500);default:''" json:"address"`
	Phone        string         `gorm:"type:varchar(50);default:''" json:"phone"`
	PlanType     string         `gorm:"type:varchar(50);not null;default:'free';index" json:"plan_type"`
	PlanStatus   string         `gorm:"type:varchar(32);not null;default:'inactive'" json:"plan_status"`
	DurationDays int            `gorm:"default:0" json:"duration_days"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}
