package config

// EnvPrefix is the envconfig prefix shared by every service binary.
const EnvPrefix = "FULFILLMENT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "FULFILLMENT_APP_ENV"
	EnvPort      = "FULFILLMENT_APP_PORT"
	EnvLogLevel  = "FULFILLMENT_LOG_LEVEL"
	EnvLogFormat = "FULFILLMENT_LOG_FORMAT"

	EnvDBDSN  = "FULFILLMENT_DB_DSN"
	EnvDBHost = "FULFILLMENT_DB_HOST"
	EnvDBUser = "FULFILLMENT_DB_USER"
	EnvDBName = "FULFILLMENT_DB_NAME"

	EnvRedisURL = "FULFILLMENT_REDIS_URL"

	EnvJWTSecret  = "FULFILLMENT_JWT_SECRET"
	EnvJWTIssuer  = "FULFILLMENT_JWT_ISSUER"
	EnvJWTExpMins = "FULFILLMENT_JWT_EXPIRATION_MINUTES"

	EnvStripeAPIKey        = "FULFILLMENT_STRIPE_API_KEY"
	EnvStripeWebhookSecret = "FULFILLMENT_STRIPE_WEBHOOK_SECRET"

	EnvNotificationsTransport = "FULFILLMENT_NOTIFICATIONS_TRANSPORT"
	EnvGCPProjectID           = "FULFILLMENT_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic      = "FULFILLMENT_PUBSUB_ORDERS_TOPIC"
	EnvKafkaBrokers           = "FULFILLMENT_KAFKA_BROKERS"

	EnvOrderExpirationWindow = "FULFILLMENT_ORDER_EXPIRATION_WINDOW"
	EnvPaymentSessionTTL     = "FULFILLMENT_PAYMENT_SESSION_TTL"
	EnvSweepInterval         = "FULFILLMENT_SWEEP_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
