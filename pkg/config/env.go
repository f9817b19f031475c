package config

const (
	EnvPrefix = "FULFILLMENT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DefaultSQLiteDSN = "file:fulfillment.db?cache=shared&_foreign_keys=on"
)

const (
	EnvAppEnv   = "FULFILLMENT_APP_ENV"
	EnvPort     = "FULFILLMENT_APP_PORT"
	EnvLogLevel = "FULFILLMENT_LOG_LEVEL"

	EnvDBDSN  = "FULFILLMENT_DB_DSN"
	EnvDBHost = "FULFILLMENT_DB_HOST"
	EnvDBUser = "FULFILLMENT_DB_USER"
	EnvDBName = "FULFILLMENT_DB_NAME"

	EnvRedisURL  = "FULFILLMENT_REDIS_URL"
	EnvUseSQLite = "FULFILLMENT_USE_SQLITE"

	EnvOrderLockTTL      = "FULFILLMENT_ALLOCATION_ORDER_LOCK_TTL"
	EnvOvercommitTenants = "FULFILLMENT_ALLOCATION_OVERCOMMIT_TENANTS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
