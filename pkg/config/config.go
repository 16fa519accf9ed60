package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Bus          BusConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	Reservation  ReservationConfig
	Cron         CronConfig
	ZooKeeper    ZooKeeperConfig
	Tracing      TracingConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Bus.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"INVENTORY_APP_ENV" required:"true"`
	Port         string   `envconfig:"INVENTORY_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"INVENTORY_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"INVENTORY_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"INVENTORY_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"INVENTORY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"INVENTORY_DB_DSN"`
	Driver string `envconfig:"INVENTORY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"INVENTORY_DB_HOST"`
	LegacyPort     int    `envconfig:"INVENTORY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"INVENTORY_DB_USER"`
	LegacyPassword string `envconfig:"INVENTORY_DB_PASSWORD"`
	LegacyName     string `envconfig:"INVENTORY_DB_NAME"`
	LegacySSLMode  string `envconfig:"INVENTORY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"INVENTORY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"INVENTORY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"INVENTORY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"INVENTORY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// NormalizedDriver returns the lower-cased driver name, defaulting to postgres.
func (db DBConfig) NormalizedDriver() string {
	driver := strings.ToLower(strings.TrimSpace(db.Driver))
	if driver == "" {
		return DBDriverPostgres
	}
	return driver
}

type RedisConfig struct {
	URL          string        `envconfig:"INVENTORY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"INVENTORY_REDIS_ADDR"`
	Password     string        `envconfig:"INVENTORY_REDIS_PASSWORD"`
	DB           int           `envconfig:"INVENTORY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"INVENTORY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"INVENTORY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"INVENTORY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"INVENTORY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"INVENTORY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"INVENTORY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"INVENTORY_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	InboundIdempotencyTTL time.Duration `envconfig:"INVENTORY_EVENTING_IDEMPOTENCY_TTL" default:"72h"`
}

// BusConfig selects the message transport and names the logical topics.
type BusConfig struct {
	Driver            string `envconfig:"INVENTORY_BUS_DRIVER" default:"pubsub"`
	CatalogTopic      string `envconfig:"INVENTORY_BUS_CATALOG_TOPIC" default:"product-events"`
	PaymentTopic      string `envconfig:"INVENTORY_BUS_PAYMENT_TOPIC" default:"payment-events"`
	OrderCancelTopic  string `envconfig:"INVENTORY_BUS_ORDER_CANCEL_TOPIC" default:"order-cancel-events"`
	LimitReachedTopic string `envconfig:"INVENTORY_BUS_LIMIT_REACHED_TOPIC" default:"inventory-limit-topic"`
}

func (b BusConfig) NormalizedDriver() string {
	driver := strings.ToLower(strings.TrimSpace(b.Driver))
	if driver == "" {
		return BusDriverPubSub
	}
	return driver
}

func (b BusConfig) validate() error {
	switch b.NormalizedDriver() {
	case BusDriverPubSub, BusDriverKafka:
	default:
		return fmt.Errorf("unsupported bus driver %q", b.Driver)
	}
	for env, value := range map[string]string{
		EnvBusCatalogTopic:      b.CatalogTopic,
		EnvBusPaymentTopic:      b.PaymentTopic,
		EnvBusOrderCancelTopic:  b.OrderCancelTopic,
		EnvBusLimitReachedTopic: b.LimitReachedTopic,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s must not be empty", env)
		}
	}
	return nil
}

type GCPConfig struct {
	ProjectID              string `envconfig:"INVENTORY_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"INVENTORY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"INVENTORY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	CatalogSubscription string `envconfig:"INVENTORY_PUBSUB_CATALOG_SUBSCRIPTION" default:"inventory-product-events"`
	PaymentSubscription string `envconfig:"INVENTORY_PUBSUB_PAYMENT_SUBSCRIPTION" default:"inventory-payment-events"`
}

type KafkaConfig struct {
	Brokers      []string      `envconfig:"INVENTORY_KAFKA_BROKERS" default:"localhost:9092"`
	GroupID      string        `envconfig:"INVENTORY_KAFKA_GROUP_ID" default:"inventory-service-group"`
	MinBytes     int           `envconfig:"INVENTORY_KAFKA_MIN_BYTES" default:"1"`
	MaxBytes     int           `envconfig:"INVENTORY_KAFKA_MAX_BYTES" default:"10485760"`
	MaxWait      time.Duration `envconfig:"INVENTORY_KAFKA_MAX_WAIT" default:"1s"`
	WriteTimeout time.Duration `envconfig:"INVENTORY_KAFKA_WRITE_TIMEOUT" default:"10s"`
	RequiredAcks int           `envconfig:"INVENTORY_KAFKA_REQUIRED_ACKS" default:"-1"`
	RetryBackoff time.Duration `envconfig:"INVENTORY_KAFKA_RETRY_BACKOFF" default:"1s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"INVENTORY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"INVENTORY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"INVENTORY_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// ReservationConfig tunes the hold window and the optimistic retry budget.
type ReservationConfig struct {
	HoldDuration time.Duration `envconfig:"INVENTORY_RESERVATION_HOLD_DURATION" default:"10m"`
	MaxAttempts  int           `envconfig:"INVENTORY_RESERVATION_MAX_ATTEMPTS" default:"3"`
	RetryBackoff time.Duration `envconfig:"INVENTORY_RESERVATION_RETRY_BACKOFF" default:"100ms"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"INVENTORY_CRON_INTERVAL" default:"60s"`
	LockBackend         string        `envconfig:"INVENTORY_CRON_LOCK_BACKEND" default:"redis"`
	LockTTL             time.Duration `envconfig:"INVENTORY_CRON_LOCK_TTL" default:"55s"`
	ExpiryBatch         int           `envconfig:"INVENTORY_CRON_EXPIRY_BATCH" default:"500"`
	OutboxRetentionDays int           `envconfig:"INVENTORY_CRON_OUTBOX_RETENTION_DAYS" default:"7"`
}

type ZooKeeperConfig struct {
	Servers        []string      `envconfig:"INVENTORY_ZOOKEEPER_SERVERS" default:"localhost:2181"`
	SessionTimeout time.Duration `envconfig:"INVENTORY_ZOOKEEPER_SESSION_TIMEOUT" default:"10s"`
	LockRoot       string        `envconfig:"INVENTORY_ZOOKEEPER_LOCK_ROOT" default:"/inventory/locks"`
}

type TracingConfig struct {
	Enabled     bool    `envconfig:"INVENTORY_TRACING_ENABLED" default:"false"`
	Endpoint    string  `envconfig:"INVENTORY_TRACING_OTLP_ENDPOINT" default:"localhost:4318"`
	Insecure    bool    `envconfig:"INVENTORY_TRACING_OTLP_INSECURE" default:"true"`
	SampleRatio float64 `envconfig:"INVENTORY_TRACING_SAMPLE_RATIO" default:"1"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.NormalizedDriver() == DBDriverSQLite {
		db.DSN = "file:inventory.db?cache=shared"
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

	if db.NormalizedDriver() == DBDriverMySQL {
		db.DSN = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
			db.LegacyUser, db.LegacyPassword, db.LegacyHost, db.LegacyPort, db.LegacyName)
		return nil
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
