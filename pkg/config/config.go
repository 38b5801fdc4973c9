package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	FeatureFlags  FeatureFlagsConfig
	Checkout      CheckoutConfig
	Stripe        StripeConfig
	Notifications NotificationsConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Kafka         KafkaConfig
	Cache         CacheConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Notifications.validate(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FULFILLMENT_APP_ENV" required:"true"`
	Port         string `envconfig:"FULFILLMENT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"FULFILLMENT_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"FULFILLMENT_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"FULFILLMENT_LOG_WARN_STACK" default:"false"`

	CORSOrigins     []string      `envconfig:"FULFILLMENT_CORS_ORIGINS" default:"http://localhost:3000"`
	ShutdownTimeout time.Duration `envconfig:"FULFILLMENT_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"FULFILLMENT_DB_DSN"`
	Driver string `envconfig:"FULFILLMENT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FULFILLMENT_DB_HOST"`
	LegacyPort     int    `envconfig:"FULFILLMENT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FULFILLMENT_DB_USER"`
	LegacyPassword string `envconfig:"FULFILLMENT_DB_PASSWORD"`
	LegacyName     string `envconfig:"FULFILLMENT_DB_NAME"`
	LegacySSLMode  string `envconfig:"FULFILLMENT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FULFILLMENT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FULFILLMENT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FULFILLMENT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FULFILLMENT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"FULFILLMENT_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FULFILLMENT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FULFILLMENT_REDIS_ADDR"`
	Password     string        `envconfig:"FULFILLMENT_REDIS_PASSWORD"`
	DB           int           `envconfig:"FULFILLMENT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FULFILLMENT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FULFILLMENT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FULFILLMENT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FULFILLMENT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FULFILLMENT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FULFILLMENT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FULFILLMENT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FULFILLMENT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FULFILLMENT_AUTO_MIGRATE" default:"false"`
}

// CheckoutConfig holds the timing knobs of the order lifecycle.
type CheckoutConfig struct {
	OrderNumberPrefix     string        `envconfig:"FULFILLMENT_ORDER_NUMBER_PREFIX" default:"ORD"`
	Currency              string        `envconfig:"FULFILLMENT_CURRENCY" default:"USD"`
	OrderExpirationWindow time.Duration `envconfig:"FULFILLMENT_ORDER_EXPIRATION_WINDOW" default:"60m"`
	PaymentSessionTTL     time.Duration `envconfig:"FULFILLMENT_PAYMENT_SESSION_TTL" default:"35m"`
	SweepInterval         time.Duration `envconfig:"FULFILLMENT_SWEEP_INTERVAL" default:"5m"`
	SweepBatchSize        int           `envconfig:"FULFILLMENT_SWEEP_BATCH_SIZE" default:"200"`
	ProviderTimeout       time.Duration `envconfig:"FULFILLMENT_PAYMENT_PROVIDER_TIMEOUT" default:"10s"`
	WebhookIdempotencyTTL time.Duration `envconfig:"FULFILLMENT_WEBHOOK_IDEMPOTENCY_TTL" default:"168h"`
	ClaimMaxAttempts      int64         `envconfig:"FULFILLMENT_CLAIM_MAX_ATTEMPTS" default:"5"`
	ClaimWindow           time.Duration `envconfig:"FULFILLMENT_CLAIM_WINDOW" default:"15m"`

	ShippingFlatCents          int   `envconfig:"FULFILLMENT_SHIPPING_FLAT_CENTS" default:"0"`
	FreeShippingThresholdCents int   `envconfig:"FULFILLMENT_FREE_SHIPPING_THRESHOLD_CENTS" default:"0"`
	TaxRateBasisPoints         int64 `envconfig:"FULFILLMENT_TAX_RATE_BPS" default:"0"`
}

// Stripe accepts checkout session expirations between 30 minutes and 24 hours.
const (
	MinPaymentSessionTTL = 30 * time.Minute
	MaxPaymentSessionTTL = 24 * time.Hour
)

// validate enforces that an unpaid order outlives its payment session, so the
// sweeper never cancels an order whose payment may still complete.
func (c CheckoutConfig) validate() error {
	if c.PaymentSessionTTL < MinPaymentSessionTTL || c.PaymentSessionTTL > MaxPaymentSessionTTL {
		return fmt.Errorf("%s must be between %s and %s", EnvPaymentSessionTTL, MinPaymentSessionTTL, MaxPaymentSessionTTL)
	}
	if c.OrderExpirationWindow <= c.PaymentSessionTTL {
		return fmt.Errorf("%s (%s) must be greater than %s (%s)",
			EnvOrderExpirationWindow, c.OrderExpirationWindow, EnvPaymentSessionTTL, c.PaymentSessionTTL)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("%s must be positive", EnvSweepInterval)
	}
	if c.SweepBatchSize <= 0 {
		return fmt.Errorf("sweep batch size must be positive")
	}
	if c.ShippingFlatCents < 0 || c.FreeShippingThresholdCents < 0 || c.TaxRateBasisPoints < 0 {
		return fmt.Errorf("shipping and tax settings cannot be negative")
	}
	return nil
}

type StripeConfig struct {
	APIKey        string `envconfig:"FULFILLMENT_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"FULFILLMENT_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"FULFILLMENT_STRIPE_ENV" default:"test"`
	SuccessURL    string `envconfig:"FULFILLMENT_STRIPE_SUCCESS_URL" default:"http://localhost:3000/checkout/success"`
	CancelURL     string `envconfig:"FULFILLMENT_STRIPE_CANCEL_URL" default:"http://localhost:3000/checkout/cancel"`

	WebhookTolerance time.Duration `envconfig:"FULFILLMENT_STRIPE_WEBHOOK_TOLERANCE" default:"5m"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

const (
	NotificationsTransportLog    = "log"
	NotificationsTransportPubSub = "pubsub"
	NotificationsTransportKafka  = "kafka"
)

type NotificationsConfig struct {
	Transport string `envconfig:"FULFILLMENT_NOTIFICATIONS_TRANSPORT" default:"log"`
}

func (n NotificationsConfig) validate(cfg Config) error {
	switch strings.ToLower(strings.TrimSpace(n.Transport)) {
	case NotificationsTransportLog:
		return nil
	case NotificationsTransportPubSub:
		if cfg.GCP.ProjectID == "" {
			return fmt.Errorf("%s is required for pubsub notifications", EnvGCPProjectID)
		}
		return nil
	case NotificationsTransportKafka:
		if len(cfg.Kafka.Brokers) == 0 {
			return fmt.Errorf("%s is required for kafka notifications", EnvKafkaBrokers)
		}
		return nil
	default:
		return fmt.Errorf("unsupported %s %q", EnvNotificationsTransport, n.Transport)
	}
}

type GCPConfig struct {
	ProjectID       string `envconfig:"FULFILLMENT_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"FULFILLMENT_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"FULFILLMENT_PUBSUB_ORDERS_TOPIC" default:"fulfillment-order-events"`
}

type KafkaConfig struct {
	Brokers []string `envconfig:"FULFILLMENT_KAFKA_BROKERS"`
	Topic   string   `envconfig:"FULFILLMENT_KAFKA_ORDERS_TOPIC" default:"order-events"`
}

type CacheConfig struct {
	OrderTTL time.Duration `envconfig:"FULFILLMENT_CACHE_ORDER_TTL" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
