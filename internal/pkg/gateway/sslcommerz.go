package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	sslcommerzSandboxBaseURL = "https://sandbox.sslcommerz.com"
	sslcommerzLiveBaseURL    = "https://securepay.sslcommerz.com"

	sslcommerzInitPath     = "/gwprocess/v4/api.php"
	sslcommerzValidatePath = "/validator/api/validationserverAPI.php"
)

// SSLCommerzAdapter initiates hosted payment pages and validates settled
// transactions against the provider's independent validation endpoint.
type SSLCommerzAdapter struct {
	StoreID       string
	StorePassword string
	BaseURL       string
	PublicBaseURL string

	HTTPClient *http.Client
}

// NewSSLCommerzAdapter creates the adapter with a bounded request timeout so
// a hung gateway fails initiation cleanly instead of stranding a pending
// invoice/attempt pair.
func NewSSLCommerzAdapter(cfg Config) *SSLCommerzAdapter {
	base := sslcommerzLiveBaseURL
	if cfg.SSLCommerz.Sandbox {
		base = sslcommerzSandboxBaseURL
	}
	return &SSLCommerzAdapter{
		StoreID:       cfg.SSLCommerz.StoreID,
		StorePassword: cfg.SSLCommerz.StorePassword,
		BaseURL:       base,
		PublicBaseURL: cfg.PublicBaseURL,
		HTTPClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

func (a *SSLCommerzAdapter) Name() string { return ProviderSSLCommerz }

type sslcommerzInitResponse struct {
	Status         string `json:"status"`
	FailedReason   string `json:"failedreason"`
	SessionKey     string `json:"sessionkey"`
	GatewayPageURL string `json:"GatewayPageURL"`
}

// SSLCommerzValidation is the provider's record of a settled transaction as
// returned by the validation endpoint.
type SSLCommerzValidation struct {
	Status   string `json:"status"`
	TranID   string `json:"tran_id"`
	ValID    string `json:"val_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// Validated reports whether the provider considers the transaction settled.
func (v *SSLCommerzValidation) Validated() bool {
	switch strings.ToUpper(strings.TrimSpace(v.Status)) {
	case "VALID", "VALIDATED":
		return true
	default:
		return false
	}
}

// InitiateCheckout posts the form-encoded session initialization request.
// The transaction id is the attempt id, which is how success/fail/cancel
// callbacks correlate back to the attempt. A response without a gateway page
// URL is a hard failure.
func (a *SSLCommerzAdapter) InitiateCheckout(ctx context.Context, in CheckoutInput) (*CheckoutArtifact, error) {
	if strings.TrimSpace(a.StoreID) == "" || strings.TrimSpace(a.StorePassword) == "" {
		return nil, errors.New("sslcommerz store credentials are not configured")
	}

	tranID := strconv.FormatUint(uint64(in.AttemptID), 10)
	form := url.Values{}
	form.Set("store_id", a.StoreID)
	form.Set("store_passwd", a.StorePassword)
	form.Set("total_amount", fmt.Sprintf("%.2f", float64(in.AmountCents)/100))
	form.Set("currency", strings.ToUpper(in.Currency))
	form.Set("tran_id", tranID)
	form.Set("success_url", a.PublicBaseURL+"/billing/sslcommerz/success")
	form.Set("fail_url", a.PublicBaseURL+"/billing/sslcommerz/fail")
	form.Set("cancel_url", a.PublicBaseURL+"/billing/sslcommerz/cancel")
	form.Set("product_name", fmt.Sprintf("VeriLnk %s plan", in.PlanType))
	form.Set("product_category", "subscription")
	form.Set("product_profile", "non-physical-goods")
	form.Set("shipping_method", "NO")
	form.Set("cus_name", orDefault(in.CustomerName, "VeriLnk customer"))
	form.Set("cus_email", orDefault(in.CustomerEmail, "unknown@verilnk.local"))
	form.Set("cus_phone", orDefault(in.CustomerPhone, "N/A"))
	form.Set("cus_add1", "N/A")
	form.Set("cus_city", "N/A")
	form.Set("cus_country", "Bangladesh")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+sslcommerzInitPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sslcommerz session init failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sslcommerz session init failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out sslcommerzInitResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("sslcommerz session init returned malformed JSON: %w", err)
	}
	if strings.TrimSpace(out.GatewayPageURL) == "" {
		reason := strings.TrimSpace(out.FailedReason)
		if reason == "" {
			reason = "no GatewayPageURL in response"
		}
		return nil, fmt.Errorf("sslcommerz session init rejected: %s", reason)
	}

	return &CheckoutArtifact{RedirectURL: out.GatewayPageURL, ExternalID: out.SessionKey}, nil
}

// ValidatePayment fetches the provider's own record for a val_id. Settlement
// uses it to confirm the callback before activating anything.
func (a *SSLCommerzAdapter) ValidatePayment(ctx context.Context, valID string) (*SSLCommerzValidation, error) {
	if strings.TrimSpace(valID) == "" {
		return nil, errors.New("val_id is required")
	}

	q := url.Values{}
	q.Set("val_id", strings.TrimSpace(valID))
	q.Set("store_id", a.StoreID)
	q.Set("store_passwd", a.StorePassword)
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+sslcommerzValidatePath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sslcommerz validation call failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sslcommerz validation call failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out SSLCommerzValidation
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("sslcommerz validation returned malformed JSON: %w", err)
	}
	return &out, nil
}

// ParseValidationAmount converts the provider's decimal amount string to
// minor units. The bool result is false when the amount is absent or not
// parseable; callers then skip the cross-check rather than reject.
func ParseValidationAmount(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	cents := int64(f*100 + 0.5)
	return cents, true
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
