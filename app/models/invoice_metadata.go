package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// InvoicePurpose distinguishes why an invoice exists. Settlement decodes the
// metadata through Validate before trusting it, so each purpose carries
// exactly the fields it needs.
type InvoicePurpose string

const (
	InvoicePurposeCheckout           InvoicePurpose = "checkout"
	InvoicePurposeEnterpriseCheckout InvoicePurpose = "enterprise_checkout"
	InvoicePurposeManual             InvoicePurpose = "manual"
)

// InvoiceMetadata is stored serialized in Invoice.MetadataJSON. It carries
// enough to reconstruct checkout intent at settlement time without any
// other lookup: plan, term, duration, owning organization, provider and the
// provider redirect artifact.
type InvoiceMetadata struct {
	Purpose           InvoicePurpose `json:"purpose"`
	PlanType          string         `json:"plan_type"`
	BillingTerm       string         `json:"billing_term"`
	DurationDays      int            `json:"duration_days"`
	OrganizationID    uint           `json:"organization_id"`
	Provider          string         `json:"provider"`
	CheckoutURL       string         `json:"checkout_url,omitempty"`
	ProviderSessionID string         `json:"provider_session_id,omitempty"`
	Note              string         `json:"note,omitempty"`
}

// Validate rejects metadata that settlement cannot act on.
func (m *InvoiceMetadata) Validate() error {
	switch m.Purpose {
	case InvoicePurposeCheckout, InvoicePurposeEnterpriseCheckout, InvoicePurposeManual:
	default:
		return fmt.Errorf("unknown invoice purpose %q", m.Purpose)
	}
	if m.OrganizationID == 0 {
		return errors.New("invoice metadata is missing the organization id")
	}
	if m.PlanType == "" {
		return errors.New("invoice metadata is missing the plan type")
	}
	if m.DurationDays <= 0 {
		return errors.New("invoice metadata has a non-positive duration")
	}
	return nil
}

// SetMetadata serializes metadata onto the invoice.
func (i *Invoice) SetMetadata(m *InvoiceMetadata) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	i.MetadataJSON = string(raw)
	return nil
}

// Metadata decodes and validates the stored metadata. Settlement treats a
// decode or validation failure as a hard error, never as "no metadata".
func (i *Invoice) Metadata() (*InvoiceMetadata, error) {
	var m InvoiceMetadata
	if err := json.Unmarshal([]byte(i.MetadataJSON), &m); err != nil {
		return nil, fmt.Errorf("invoice %d has undecodable metadata: %w", i.ID, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invoice %d has invalid metadata: %w", i.ID, err)
	}
	return &m, nil
}
