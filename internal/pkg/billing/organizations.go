package billing

import (
	"context"
	"errors"

	"github.com/alienkawsar/verilnk-sub004/app/models"
	"gorm.io/gorm"
)

type gormOrganizationService struct {
	db *gorm.DB
}

// NewOrganizationService returns the GORM-backed organization collaborator.
// Hosts that keep organizations in another system inject their own
// implementation.
func NewOrganizationService(db *gorm.DB) OrganizationService {
	return &gormOrganizationService{db: db}
}

func (s *gormOrganizationService) GetOrganization(_ context.Context, id uint) (*models.Organization, error) {
	var org models.Organization
	if err := s.db.First(&org, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (s *gormOrganizationService) UpdateOrganizationPlan(_ context.Context, id uint, update PlanUpdate) error {
	updates := map[string]interface{}{
		"plan_type":   update.PlanType,
		"plan_status": update.PlanStatus,
	}
	if update.DurationDays > 0 {
		updates["duration_days"] = update.DurationDays
	}
	return s.db.Model(&models.Organization{}).Where("id = ?", id).Updates(updates).Error
}
