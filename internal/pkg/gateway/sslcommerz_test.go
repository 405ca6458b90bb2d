package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testConfig(publicBase string) Config {
	return Config{
		Provider:      ProviderSSLCommerz,
		PublicBaseURL: publicBase,
		SSLCommerz: SSLCommerzConfig{
			StoreID:       "teststore",
			StorePassword: "testpass",
			Sandbox:       true,
		},
	}
}

func TestSSLCommerzInitiateCheckout(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != sslcommerzInitPath {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"SUCCESS","sessionkey":"SK123","GatewayPageURL":"https://sandbox.sslcommerz.com/pay/SK123"}`))
	}))
	defer srv.Close()

	a := NewSSLCommerzAdapter(testConfig("https://verilnk.example"))
	a.BaseURL = srv.URL

	artifact, err := a.InitiateCheckout(context.Background(), CheckoutInput{
		AttemptID:   17,
		PlanType:    "pro",
		BillingTerm: "annual",
		AmountCents: 106920,
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if artifact.RedirectURL != "https://sandbox.sslcommerz.com/pay/SK123" {
		t.Fatalf("redirect = %q", artifact.RedirectURL)
	}
	if artifact.ExternalID != "SK123" {
		t.Fatalf("external id = %q", artifact.ExternalID)
	}

	if gotForm["tran_id"] != "17" {
		t.Fatalf("tran_id = %q, want attempt id", gotForm["tran_id"])
	}
	if gotForm["total_amount"] != "1069.20" {
		t.Fatalf("total_amount = %q, want two-decimal format", gotForm["total_amount"])
	}
	if gotForm["store_id"] != "teststore" || gotForm["store_passwd"] != "testpass" {
		t.Fatalf("store credentials missing from form: %v", gotForm)
	}
	if !strings.HasSuffix(gotForm["success_url"], "/billing/sslcommerz/success") {
		t.Fatalf("success_url = %q", gotForm["success_url"])
	}
}

func TestSSLCommerzInitiateCheckoutMissingPageURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"FAILED","failedreason":"store credential mismatch"}`))
	}))
	defer srv.Close()

	a := NewSSLCommerzAdapter(testConfig("https://verilnk.example"))
	a.BaseURL = srv.URL

	_, err := a.InitiateCheckout(context.Background(), CheckoutInput{AttemptID: 1, AmountCents: 4900, Currency: "USD"})
	if err == nil {
		t.Fatal("expected hard failure when no GatewayPageURL is returned")
	}
	if !strings.Contains(err.Error(), "store credential mismatch") {
		t.Fatalf("error should carry the provider reason, got %v", err)
	}
}

func TestSSLCommerzValidatePayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != sslcommerzValidatePath {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("val_id") != "VAL42" {
			t.Fatalf("val_id = %q", r.URL.Query().Get("val_id"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"VALID","tran_id":"17","val_id":"VAL42","amount":"1069.20","currency":"USD"}`))
	}))
	defer srv.Close()

	a := NewSSLCommerzAdapter(testConfig("https://verilnk.example"))
	a.BaseURL = srv.URL

	v, err := a.ValidatePayment(context.Background(), "VAL42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Validated() {
		t.Fatalf("expected VALID status to validate, got %q", v.Status)
	}
	if v.TranID != "17" {
		t.Fatalf("tran_id = %q", v.TranID)
	}
}

func TestParseValidationAmount(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{in: "1069.20", want: 106920, wantOK: true},
		{in: "49.00", want: 4900, wantOK: true},
		{in: "49", want: 4900, wantOK: true},
		{in: "", wantOK: false},
		{in: "not-a-number", wantOK: false},
	}
	for _, tt := range tests {
		got, ok := ParseValidationAmount(tt.in)
		if ok != tt.wantOK {
			t.Fatalf("ParseValidationAmount(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
		}
		if ok && got != tt.want {
			t.Fatalf("ParseValidationAmount(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
