package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "MINALESH"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "MINALESH_DB_DSN"
	EnvDBHost = "MINALESH_DB_HOST"
	EnvDBUser = "MINALESH_DB_USER"
	EnvDBName = "MINALESH_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Checkout     CheckoutConfig
	Stripe       StripeConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MINALESH_APP_ENV" required:"true"`
	Port         string `envconfig:"MINALESH_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MINALESH_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MINALESH_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MINALESH_DB_DSN"`
	Driver string `envconfig:"MINALESH_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MINALESH_DB_HOST"`
	LegacyPort     int    `envconfig:"MINALESH_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MINALESH_DB_USER"`
	LegacyPassword string `envconfig:"MINALESH_DB_PASSWORD"`
	LegacyName     string `envconfig:"MINALESH_DB_NAME"`
	LegacySSLMode  string `envconfig:"MINALESH_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MINALESH_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MINALESH_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MINALESH_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MINALESH_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MINALESH_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MINALESH_REDIS_ADDR"`
	Password     string        `envconfig:"MINALESH_REDIS_PASSWORD"`
	DB           int           `envconfig:"MINALESH_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MINALESH_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MINALESH_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MINALESH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MINALESH_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MINALESH_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MINALESH_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MINALESH_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MINALESH_JWT_EXPIRATION_MINUTES" default:"60"`
}

// CheckoutConfig tunes the reservation and pricing behavior of checkout.
type CheckoutConfig struct {
	HoldWindow     time.Duration `envconfig:"MINALESH_CHECKOUT_HOLD_WINDOW" default:"15m"`
	MaxItemQty     int           `envconfig:"MINALESH_CHECKOUT_MAX_ITEM_QTY" default:"999"`
	DefaultTaxRate string        `envconfig:"MINALESH_CHECKOUT_DEFAULT_TAX_RATE" default:"0.15"`
	Currency       string        `envconfig:"MINALESH_CHECKOUT_CURRENCY" default:"ETB"`
}

type StripeConfig struct {
	APIKey string `envconfig:"MINALESH_STRIPE_API_KEY"`
	Env    string `envconfig:"MINALESH_STRIPE_ENV" default:"test"`
	// SettlementCurrency is the currency sent to the gateway; the order keeps
	// its own currency and no conversion is attempted here.
	SettlementCurrency string `envconfig:"MINALESH_STRIPE_SETTLEMENT_CURRENCY" default:"USD"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type GCPConfig struct {
	ProjectID string `envconfig:"MINALESH_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrderTrackingTopic string `envconfig:"MINALESH_PUBSUB_ORDER_TRACKING_TOPIC" default:"mn-order-tracking"`
}

type CronConfig struct {
	SweepInterval time.Duration `envconfig:"MINALESH_CRON_SWEEP_INTERVAL" default:"1m"`
	LockTTL       time.Duration `envconfig:"MINALESH_CRON_LOCK_TTL" default:"5m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MINALESH_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MINALESH_AUTO_MIGRATE" default:"false"`
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
