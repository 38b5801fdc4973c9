package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client wraps Stripe's API client plus env-specific metadata.
type Client struct {
	api           *stripe.Client
	environment   string
	signingSecret string
	// tolerance is how old a signed webhook timestamp may be before the
	// delivery is treated as a replay.
	tolerance time.Duration
}

// NewClient initializes Stripe once with the configured secrets and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	signingSecret := strings.TrimSpace(cfg.WebhookSecret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}

	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	tolerance := cfg.WebhookTolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{
			"stripe_env":        env,
			"restricted_key":    strings.HasPrefix(apiKey, "rk_"),
			"webhook_tolerance": tolerance.String(),
		})
		logg.Info(ctx, "stripe client initialized")
	}

	return &Client{
		api:           stripe.NewClient(apiKey),
		environment:   env,
		signingSecret: signingSecret,
		tolerance:     tolerance,
	}, nil
}

// NewWebhookVerifier returns a client that can only verify webhook payloads.
func NewWebhookVerifier(signingSecret string) (*Client, error) {
	secret := strings.TrimSpace(signingSecret)
	if secret == "" {
		return nil, errSecretRequired
	}
	return &Client{environment: testEnv, signingSecret: secret, tolerance: webhook.DefaultTolerance}, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// CreateCheckoutSession creates a hosted checkout session. The call is made
// exactly once; callers must not retry on timeout without an idempotency key.
func (c *Client) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error) {
	if c == nil || c.api == nil {
		return nil, errAPIKeyRequired
	}
	return c.api.V1CheckoutSessions.Create(ctx, params)
}

// ConstructEvent verifies the Stripe-Signature header against the signing
// secret and decodes the event. Nothing in payload is trusted before this
// returns without error. Signatures older than the tolerance are rejected.
func (c *Client) ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	if c == nil || c.signingSecret == "" {
		return stripe.Event{}, errSecretRequired
	}
	return webhook.ConstructEventWithOptions(payload, signatureHeader, c.signingSecret, webhook.ConstructEventOptions{
		Tolerance:                c.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
