package billing

import (
	"context"
	"log"

	"github.com/alienkawsar/verilnk-sub004/app/models"
)

// PlanUpdate is pushed into the organization record when a subscription
// activates or is canceled.
type PlanUpdate struct {
	PlanType     string
	PlanStatus   string
	DurationDays int
}

// OrganizationService is the external collaborator owning organization
// records. The billing core reads contact fields and pushes plan state; it
// never mutates organizations directly.
type OrganizationService interface {
	GetOrganization(ctx context.Context, id uint) (*models.Organization, error)
	UpdateOrganizationPlan(ctx context.Context, id uint, update PlanUpdate) error
}

// AuditEntry describes one admin-triggered billing mutation.
type AuditEntry struct {
	ActorID  uint
	Action   string
	Entity   string
	TargetID uint
	Details  string
	Snapshot interface{}
}

// AuditLogger records admin billing mutations. Calls are fire-and-forget: a
// logging failure must never roll back the billing mutation it describes.
type AuditLogger interface {
	LogAction(ctx context.Context, entry AuditEntry) error
}

// TrialService is the external collaborator owning trial lifecycle.
type TrialService interface {
	GetActiveTrial(ctx context.Context, organizationID uint) (*models.TrialSession, error)
	StartTrial(ctx context.Context, organizationID uint, planType string, days int) (*models.TrialSession, error)
	ConvertTrial(ctx context.Context, trialID uint) error
	ExtendTrial(ctx context.Context, trialID uint, days int) (*models.TrialSession, error)
}

// ComplianceRequest is checked before enterprise-plan checkout.
type ComplianceRequest struct {
	EnterpriseID uint
	Action       string
	ActorRole    string
}

// ComplianceDenial carries the structured reason surfaced to the caller.
type ComplianceDenial struct {
	Code         string `json:"code"`
	EnterpriseID uint   `json:"enterprise_id"`
	Action       string `json:"action"`
	Reason       string `json:"reason"`
}

func (d *ComplianceDenial) Error() string {
	return "compliance denied: " + d.Reason
}

// ComplianceGate is consulted before checkout for enterprise organizations
// only. A denial is returned as a *ComplianceDenial.
type ComplianceGate interface {
	AssertCompliance(ctx context.Context, req ComplianceRequest) error
}

// StdAuditLogger writes audit entries to the process log. Hosts with a real
// audit pipeline inject their own implementation.
type StdAuditLogger struct{}

func (StdAuditLogger) LogAction(_ context.Context, entry AuditEntry) error {
	log.Printf("[AUDIT] actor=%d action=%s entity=%s target=%d details=%s",
		entry.ActorID, entry.Action, entry.Entity, entry.TargetID, entry.Details)
	return nil
}

// AllowAllComplianceGate approves every request. It is the default for
// deployments without an enterprise compliance policy engine.
type AllowAllComplianceGate struct{}

func (AllowAllComplianceGate) AssertCompliance(context.Context, ComplianceRequest) error {
	return nil
}
