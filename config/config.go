package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`

	WorkerPool WorkerPoolConfig `mapstructure:"worker_pool"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// StorageConfig selects the row store backing the services.
// Driver is "postgres" or "memory".
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

// DSN builds the libpq connection string.
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslMode)
}

type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret       string `mapstructure:"secret"`
	ExpireHours  int    `mapstructure:"expire_hours"`
	RefreshHours int    `mapstructure:"refresh_hours"`
}

type RateLimitConfig struct {
	RegisterPerMinute int `mapstructure:"register_per_minute"`
	LoginPerMinute    int `mapstructure:"login_per_minute"`
	MessagePerMinute  int `mapstructure:"message_per_minute"`
	APIPerMinute      int `mapstructure:"api_per_minute"`
}

// GatewayConfig describes this node's place in the notification ring.
type GatewayConfig struct {
	NodeID   string   `mapstructure:"node_id"`
	Nodes    []string `mapstructure:"nodes"`
	Replicas int      `mapstructure:"replicas"`
}

type KafkaConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	Brokers       []string       `mapstructure:"brokers"`
	ConsumerGroup string         `mapstructure:"consumer_group"`
	Topics        TopicsConfig   `mapstructure:"topics"`
	Producer      ProducerConfig `mapstructure:"producer"`
	Consumer      ConsumerConfig `mapstructure:"consumer"`
}

type TopicsConfig struct {
	Events string `mapstructure:"events"`
	DLQ    string `mapstructure:"dlq"`
}

type ProducerConfig struct {
	MaxRetries     int `mapstructure:"max_retries"`
	RetryBackoffMs int `mapstructure:"retry_backoff_ms"`
}

type ConsumerConfig struct {
	MaxRetries     int `mapstructure:"max_retries"`
	RetryBackoffMs int `mapstructure:"retry_backoff_ms"`
}

type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

// LedgerConfig bounds retries of reads and idempotent writes against the row store.
type LedgerConfig struct {
	RetryAttempts  int `mapstructure:"retry_attempts"`
	RetryBackoffMs int `mapstructure:"retry_backoff_ms"`
}

// WorkerPoolConfig sizes the pool that publishes domain events off the
// request path.
type WorkerPoolConfig struct {
	Size      int `mapstructure:"size"`
	QueueSize int `mapstructure:"queue_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.max_idle_conns", 10)
	v.SetDefault("postgres.max_open_conns", 50)
	v.SetDefault("postgres.auto_migrate", true)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("jwt.refresh_hours", 2)
	v.SetDefault("ratelimit.register_per_minute", 5)
	v.SetDefault("ratelimit.login_per_minute", 10)
	v.SetDefault("ratelimit.message_per_minute", 60)
	v.SetDefault("ratelimit.api_per_minute", 300)
	v.SetDefault("gateway.node_id", "node-1")
	v.SetDefault("gateway.replicas", 50)
	v.SetDefault("kafka.consumer_group", "mindbridge-notifier")
	v.SetDefault("kafka.topics.events", "mindbridge.events")
	v.SetDefault("kafka.topics.dlq", "mindbridge.events.dlq")
	v.SetDefault("kafka.producer.max_retries", 3)
	v.SetDefault("kafka.producer.retry_backoff_ms", 100)
	v.SetDefault("kafka.consumer.max_retries", 3)
	v.SetDefault("kafka.consumer.retry_backoff_ms", 100)
	v.SetDefault("grpc.address", ":9090")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("ledger.retry_attempts", 3)
	v.SetDefault("ledger.retry_backoff_ms", 50)
	v.SetDefault("worker_pool.size", 8)
	v.SetDefault("worker_pool.queue_size", 1024)
}

// LoadConfig reads the TOML file at path. Any key can be overridden through
// an environment variable such as MINDBRIDGE_POSTGRES_HOST.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MINDBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// maxGatewayNodes is the number of distinct snowflake worker IDs.
const maxGatewayNodes = 1024

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret must be set")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers must be set when kafka is enabled")
	}
	if c.Ledger.RetryAttempts < 1 {
		return fmt.Errorf("ledger.retry_attempts must be at least 1")
	}
	if c.WorkerPool.Size < 1 || c.WorkerPool.QueueSize < 0 {
		return fmt.Errorf("worker_pool.size must be at least 1")
	}
	// 节点在列表中的位置决定 snowflake worker ID
	if len(c.Gateway.Nodes) > 0 && !slices.Contains(c.Gateway.Nodes, c.Gateway.NodeID) {
		return fmt.Errorf("gateway.node_id %q must be listed in gateway.nodes", c.Gateway.NodeID)
	}
	if len(c.Gateway.Nodes) > maxGatewayNodes {
		return fmt.Errorf("gateway.nodes may list at most %d nodes", maxGatewayNodes)
	}
	return nil
}
