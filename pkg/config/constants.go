package config

// EnvPrefix scopes every environment variable read by Load.
const EnvPrefix = ""

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Database drivers db.New knows how to open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Environment variable names referenced outside envconfig tags.
const (
	EnvAppEnv                = "POSGRID_APP_ENV"
	EnvPort                  = "POSGRID_APP_PORT"
	EnvDBDSN                 = "POSGRID_DB_DSN"
	EnvDBHost                = "POSGRID_DB_HOST"
	EnvDBUser                = "POSGRID_DB_USER"
	EnvDBName                = "POSGRID_DB_NAME"
	EnvRedisURL              = "POSGRID_REDIS_URL"
	EnvJWTAccessSecret       = "POSGRID_JWT_ACCESS_SECRET"
	EnvJWTRefreshSecret      = "POSGRID_JWT_REFRESH_SECRET"
	EnvJWTIssuer             = "POSGRID_JWT_ISSUER"
	EnvJWTAccessExpMins      = "POSGRID_JWT_ACCESS_EXPIRATION_MINUTES"
	EnvJWTRefreshExpDays     = "POSGRID_JWT_REFRESH_EXPIRATION_DAYS"
	EnvGCPProjectID          = "POSGRID_GCP_PROJECT_ID"
	EnvPubSubAuthTopic       = "POSGRID_PUBSUB_AUTH_TOPIC"
	EnvPubSubNotificationSub = "POSGRID_PUBSUB_NOTIFICATION_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
