package gateway

import (
	"fmt"
	"strings"

	"github.com/alienkawsar/verilnk-sub004/internal/pkg/env"
)

// StripeConfig holds the Stripe credential set.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// SSLCommerzConfig holds the hosted-payment-page credential set.
type SSLCommerzConfig struct {
	StoreID       string
	StorePassword string
	Sandbox       bool
}

// Config is the process-wide payment configuration, constructed once at
// startup and injected into the billing service. Settlement logic never
// reads the environment directly, so tests can run several providers in the
// same process.
type Config struct {
	// Provider is the gateway used for real (non-mock) checkout paths.
	Provider string
	// PublicBaseURL is the externally reachable base used to build
	// success/cancel/callback URLs handed to providers.
	PublicBaseURL string
	// FrontendBaseURL is where browser-facing callbacks redirect to.
	FrontendBaseURL string
	// MockCallbackSecret, when set, makes the mock adapter sign its
	// callback URLs and the callback endpoint reject unsigned requests.
	MockCallbackSecret string

	Stripe     StripeConfig
	SSLCommerz SSLCommerzConfig
}

// ConfigFromEnv reads and validates payment configuration. Missing
// credentials for the configured provider or an unrecognized sandbox token
// fail fast here rather than at first checkout.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Provider:           strings.ToLower(strings.TrimSpace(env.GetEnv("PAYMENT_PROVIDER", ProviderMock))),
		PublicBaseURL:      strings.TrimRight(strings.TrimSpace(env.GetEnv("PUBLIC_BASE_URL", "")), "/"),
		FrontendBaseURL:    strings.TrimRight(strings.TrimSpace(env.GetEnv("FRONTEND_BASE_URL", "")), "/"),
		MockCallbackSecret: strings.TrimSpace(env.GetEnv("MOCK_CALLBACK_SECRET", "")),
		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		},
		SSLCommerz: SSLCommerzConfig{
			StoreID:       strings.TrimSpace(env.GetEnv("SSLCOMMERZ_STORE_ID", "")),
			StorePassword: strings.TrimSpace(env.GetEnv("SSLCOMMERZ_STORE_PASSWORD", "")),
		},
	}

	sandbox, err := parseBoolToken(env.GetEnv("SSLCOMMERZ_SANDBOX", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("SSLCOMMERZ_SANDBOX: %w", err)
	}
	cfg.SSLCommerz.Sandbox = sandbox

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configured provider is recognized and its
// required credentials are present.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderMock:
		return nil
	case ProviderStripe:
		if c.Stripe.SecretKey == "" {
			return fmt.Errorf("payment provider %q requires STRIPE_SECRET_KEY", c.Provider)
		}
	case ProviderSSLCommerz:
		if c.SSLCommerz.StoreID == "" || c.SSLCommerz.StorePassword == "" {
			return fmt.Errorf("payment provider %q requires SSLCOMMERZ_STORE_ID and SSLCOMMERZ_STORE_PASSWORD", c.Provider)
		}
	default:
		return fmt.Errorf("unknown payment provider %q", c.Provider)
	}
	if c.PublicBaseURL == "" {
		return fmt.Errorf("payment provider %q requires PUBLIC_BASE_URL for callback targets", c.Provider)
	}
	return nil
}

// parseBoolToken accepts only an explicit set of boolean spellings so a
// typo in a sandbox flag cannot silently select the live gateway.
func parseBoolToken(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("unrecognized boolean token %q", raw)
	}
}

// Adapters constructs the adapter set for this configuration, keyed by
// provider name. All three adapters are always available; Provider only
// decides which one the non-mock checkout paths use.
func (c Config) Adapters() map[string]Adapter {
	return map[string]Adapter{
		ProviderStripe:     NewStripeAdapter(c),
		ProviderSSLCommerz: NewSSLCommerzAdapter(c),
		ProviderMock:       NewMockAdapter(c),
	}
}
