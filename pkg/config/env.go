package config

const EnvPrefix = "INVENTORY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverMySQL    = "mysql"
	DBDriverSQLite   = "sqlite"
)

const (
	BusDriverPubSub = "pubsub"
	BusDriverKafka  = "kafka"
)

const (
	CronLockRedis     = "redis"
	CronLockZooKeeper = "zookeeper"
)

// Environment variable names referenced outside struct tags.
const (
	EnvAppEnv   = "INVENTORY_APP_ENV"
	EnvPort     = "INVENTORY_APP_PORT"
	EnvLogLevel = "INVENTORY_LOG_LEVEL"

	EnvDBDSN    = "INVENTORY_DB_DSN"
	EnvDBDriver = "INVENTORY_DB_DRIVER"
	EnvDBHost   = "INVENTORY_DB_HOST"
	EnvDBPort   = "INVENTORY_DB_PORT"
	EnvDBUser   = "INVENTORY_DB_USER"
	EnvDBName   = "INVENTORY_DB_NAME"

	EnvRedisURL = "INVENTORY_REDIS_URL"

	EnvBusDriver            = "INVENTORY_BUS_DRIVER"
	EnvBusCatalogTopic      = "INVENTORY_BUS_CATALOG_TOPIC"
	EnvBusPaymentTopic      = "INVENTORY_BUS_PAYMENT_TOPIC"
	EnvBusOrderCancelTopic  = "INVENTORY_BUS_ORDER_CANCEL_TOPIC"
	EnvBusLimitReachedTopic = "INVENTORY_BUS_LIMIT_REACHED_TOPIC"

	EnvGCPProjectID    = "INVENTORY_GCP_PROJECT_ID"
	EnvKafkaBrokers    = "INVENTORY_KAFKA_BROKERS"
	EnvCronInterval    = "INVENTORY_CRON_INTERVAL"
	EnvHoldDuration    = "INVENTORY_RESERVATION_HOLD_DURATION"
	EnvCronLockBackend = "INVENTORY_CRON_LOCK_BACKEND"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
