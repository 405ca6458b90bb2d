package billing

import (
	"context"
	"errors"
	"time"

	"github.com/alienkawsar/verilnk-sub004/app/models"
	"gorm.io/gorm"
)

type gormTrialService struct {
	db *gorm.DB
}

// NewTrialService returns the GORM-backed trial collaborator.
func NewTrialService(db *gorm.DB) TrialService {
	return &gormTrialService{db: db}
}

// GetActiveTrial resolves the organization's billing account and returns its
// active trial. Expiry is evaluated on read: a stale active row past its
// expiry is marked expired first.
func (s *gormTrialService) GetActiveTrial(_ context.Context, organizationID uint) (*models.TrialSession, error) {
	var account models.BillingAccount
	if err := s.db.Where("organization_id = ?", organizationID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var trial models.TrialSession
	err := s.db.Where("billing_account_id = ? AND status = ?", account.ID, models.TrialStatusActive).
		Order("id DESC").First(&trial).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if time.Now().After(trial.ExpiresAt) {
		trial.Status = models.TrialStatusExpired
		if err := s.db.Save(&trial).Error; err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return &trial, nil
}

func (s *gormTrialService) StartTrial(_ context.Context, organizationID uint, planType string, days int) (*models.TrialSession, error) {
	var account models.BillingAccount
	if err := s.db.Where("organization_id = ?", organizationID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	now := time.Now()
	trial := &models.TrialSession{
		BillingAccountID: account.ID,
		PlanType:         planType,
		Status:           models.TrialStatusActive,
		StartedAt:        now,
		ExpiresAt:        now.Add(time.Duration(days) * 24 * time.Hour),
	}
	if err := s.db.Create(trial).Error; err != nil {
		return nil, err
	}
	return trial, nil
}

// ConvertTrial marks an active trial converted. The row is never deleted so
// the trial history stays auditable.
func (s *gormTrialService) ConvertTrial(_ context.Context, trialID uint) error {
	var trial models.TrialSession
	if err := s.db.First(&trial, trialID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if trial.Status != models.TrialStatusActive {
		return nil
	}
	now := time.Now()
	trial.Status = models.TrialStatusConverted
	trial.ConvertedAt = &now
	return s.db.Save(&trial).Error
}

func (s *gormTrialService) ExtendTrial(_ context.Context, trialID uint, days int) (*models.TrialSession, error) {
	var trial models.TrialSession
	if err := s.db.First(&trial, trialID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	trial.ExpiresAt = trial.ExpiresAt.Add(time.Duration(days) * 24 * time.Hour)
	if trial.Status == models.TrialStatusExpired && time.Now().Before(trial.ExpiresAt) {
		trial.Status = models.TrialStatusActive
	}
	if err := s.db.Save(&trial).Error; err != nil {
		return nil, err
	}
	return &trial, nil
}
