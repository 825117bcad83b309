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
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	Session       SessionConfig
	IdentityCache IdentityCacheConfig
	PasswordReset PasswordResetConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Mail          MailConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	// The dev flag wins over the driver setting so a single env var
	// flips a local checkout onto sqlite.
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	}
	if strings.EqualFold(cfg.DB.Driver, DriverSQLite) {
		if cfg.DB.DSN == "" {
			return nil, fmt.Errorf("%s is required when the sqlite driver is enabled", EnvDBDSN)
		}
	} else if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.JWT.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"POSGRID_APP_ENV" required:"true"`
	Port         string `envconfig:"POSGRID_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"POSGRID_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"POSGRID_LOG_WARN_STACK" default:"false"`
	PublicURL    string `envconfig:"POSGRID_PUBLIC_URL" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"POSGRID_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"POSGRID_DB_DSN"`
	Driver string `envconfig:"POSGRID_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"POSGRID_DB_HOST"`
	LegacyPort     int    `envconfig:"POSGRID_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"POSGRID_DB_USER"`
	LegacyPassword string `envconfig:"POSGRID_DB_PASSWORD"`
	LegacyName     string `envconfig:"POSGRID_DB_NAME"`
	LegacySSLMode  string `envconfig:"POSGRID_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"POSGRID_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"POSGRID_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"POSGRID_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"POSGRID_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"POSGRID_REDIS_URL" required:"true"`
	Address      string        `envconfig:"POSGRID_REDIS_ADDR"`
	Password     string        `envconfig:"POSGRID_REDIS_PASSWORD"`
	DB           int           `envconfig:"POSGRID_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"POSGRID_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"POSGRID_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"POSGRID_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"POSGRID_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"POSGRID_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig carries distinct secrets per token type so a leaked refresh
// secret cannot forge access tokens and vice versa.
type JWTConfig struct {
	AccessSecret            string `envconfig:"POSGRID_JWT_ACCESS_SECRET" required:"true"`
	RefreshSecret           string `envconfig:"POSGRID_JWT_REFRESH_SECRET" required:"true"`
	Issuer                  string `envconfig:"POSGRID_JWT_ISSUER" required:"true"`
	Audience                string `envconfig:"POSGRID_JWT_AUDIENCE" default:"posgrid-api"`
	AccessExpirationMinutes int    `envconfig:"POSGRID_JWT_ACCESS_EXPIRATION_MINUTES" default:"60"`
	RefreshExpirationDays   int    `envconfig:"POSGRID_JWT_REFRESH_EXPIRATION_DAYS" default:"7"`
}

func (j JWTConfig) validate() error {
	if j.AccessSecret == j.RefreshSecret {
		return fmt.Errorf("access and refresh jwt secrets must differ")
	}
	return nil
}

// AccessTokenTTL returns the access token lifetime.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.AccessExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.AccessExpirationMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh token lifetime.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshExpirationDays <= 0 {
		return 0
	}
	return time.Duration(j.RefreshExpirationDays) * 24 * time.Hour
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"POSGRID_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"POSGRID_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"POSGRID_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"POSGRID_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"POSGRID_ARGON_KEY_LEN" default:"32"`
}

type SessionConfig struct {
	TTLHours      int           `envconfig:"POSGRID_SESSION_TTL_HOURS" default:"24"`
	SweepInterval time.Duration `envconfig:"POSGRID_SESSION_SWEEP_INTERVAL" default:"5m"`
	Backend       string        `envconfig:"POSGRID_SESSION_BACKEND" default:"memory"`
}

// TTL returns the fixed session lifetime.
func (s SessionConfig) TTL() time.Duration {
	if s.TTLHours <= 0 {
		return 0
	}
	return time.Duration(s.TTLHours) * time.Hour
}

type IdentityCacheConfig struct {
	TTL        time.Duration `envconfig:"POSGRID_IDENTITY_CACHE_TTL" default:"5m"`
	MaxEntries int           `envconfig:"POSGRID_IDENTITY_CACHE_MAX_ENTRIES" default:"1000"`
}

type PasswordResetConfig struct {
	TokenTTL        time.Duration `envconfig:"POSGRID_RESET_TOKEN_TTL" default:"15m"`
	ResendWindow    time.Duration `envconfig:"POSGRID_RESET_RESEND_WINDOW" default:"5m"`
	CleanupInterval time.Duration `envconfig:"POSGRID_RESET_CLEANUP_INTERVAL" default:"1h"`
	ResetURLBase    string        `envconfig:"POSGRID_RESET_URL_BASE" default:"https://app.posgrid.io/reset-password"`
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"POSGRID_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit int           `envconfig:"POSGRID_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"POSGRID_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	ResetWindow     time.Duration `envconfig:"POSGRID_AUTH_RATE_LIMIT_RESET_WINDOW" default:"5m"`
	ResetEmailLimit int           `envconfig:"POSGRID_AUTH_RATE_LIMIT_RESET_EMAIL_LIMIT" default:"3"`
	ResetIPLimit    int           `envconfig:"POSGRID_AUTH_RATE_LIMIT_RESET_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"POSGRID_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"POSGRID_AUTO_MIGRATE" default:"false"`
}

type MailConfig struct {
	APIBaseURL  string `envconfig:"POSGRID_MAIL_API_BASE_URL" default:"https://api.sendgrid.com"`
	APIKey      string `envconfig:"POSGRID_MAIL_API_KEY"`
	DefaultFrom string `envconfig:"POSGRID_MAIL_FROM_EMAIL" default:"no-reply@posgrid.io"`
	FromName    string `envconfig:"POSGRID_MAIL_FROM_NAME" default:"PosGrid"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"POSGRID_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"POSGRID_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"POSGRID_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	AuthTopic                string `envconfig:"POSGRID_PUBSUB_AUTH_TOPIC" default:"posgrid-auth-events"`
	NotificationSubscription string `envconfig:"POSGRID_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"POSGRID_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"POSGRID_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"POSGRID_OUTBOX_MAX_ATTEMPTS" default:"10"`
	IdempotencyTTL time.Duration `envconfig:"POSGRID_OUTBOX_IDEMPOTENCY_TTL" default:"720h"`
	Retention      time.Duration `envconfig:"POSGRID_OUTBOX_RETENTION" default:"168h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"POSGRID_CRON_INTERVAL" default:"5m"`
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
