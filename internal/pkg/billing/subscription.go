package billing

import (
	"context"
	"errors"
	"time"

	"github.com/alienkawsar/verilnk-sub004/app/models"
)

// CancelSubscription marks a subscription canceled and, when it was the
// account's active one, downgrades the organization's plan status. Used by
// the admin surface; settlement cancels prior subscriptions through
// finalizeSettlement instead.
func (s *Service) CancelSubscription(ctx context.Context, subscriptionID uint) (*models.Subscription, error) {
	sub, err := s.repo.GetSubscription(subscriptionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Ef(CodeNotFound, "subscription %d not found", subscriptionID)
		}
		return nil, Wrap(CodeInternal, "subscription lookup failed", err)
	}
	if sub.Status == models.SubscriptionStatusCanceled {
		return sub, nil
	}

	now := time.Now()
	sub.Status = models.SubscriptionStatusCanceled
	sub.CanceledAt = &now
	if err := s.repo.SaveSubscription(sub); err != nil {
		return nil, Wrap(CodeInternal, "subscription cancel write failed", err)
	}

	account, err := s.repo.GetBillingAccount(sub.BillingAccountID)
	if err == nil {
		if err := s.orgs.UpdateOrganizationPlan(ctx, account.OrganizationID, PlanUpdate{
			PlanType:   sub.PlanType,
			PlanStatus: models.OrgPlanStatusInactive,
		}); err != nil {
			// The cancel itself stands; plan push is reconciled on the next
			// settlement.
			return sub, nil
		}
	}
	return sub, nil
}

// ActiveSubscription returns the account's single active subscription, or a
// coded not-found error.
func (s *Service) ActiveSubscription(organizationID uint) (*models.Subscription, error) {
	account, err := s.repo.GetBillingAccountByOrganization(organizationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Ef(CodeNotFound, "organization %d has no billing account", organizationID)
		}
		return nil, Wrap(CodeInternal, "billing account lookup failed", err)
	}
	sub, err := s.repo.FindActiveSubscription(account.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Ef(CodeNotFound, "organization %d has no active subscription", organizationID)
		}
		return nil, Wrap(CodeInternal, "subscription lookup failed", err)
	}
	return sub, nil
}
