package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded once at startup.
type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Clickhouse    ClickhouseConfig
	Elasticsearch ElasticsearchConfig
	Kafka         KafkaConfig
	KMS           KMSConfig
	Auth          AuthConfig
	Hashing       HashingConfig
	Bucketing     BucketingConfig
	EmailProvider ProviderConfig
	Insights      ProviderConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	EnableTLS    bool
	CertFile     string
	KeyFile      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type ClickhouseConfig struct {
	URL      string
	Database string
	Username string
	Password string
}

type ElasticsearchConfig struct {
	URL      string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

// AuthConfig covers the OTP/session/token knobs. The maximum of 5
// verification attempts is a protocol constant, not configurable.
type AuthConfig struct {
	JWTSecret       string
	TokenExpiry     time.Duration
	OTPTTL          time.Duration
	SessionTTL      time.Duration
	IdentityTTL     time.Duration
	ProviderTimeout time.Duration
}

type HashingConfig struct {
	Pepper            string
	Argon2MemoryCost  int
	Argon2TimeCost    int
	Argon2Parallelism int
}

type BucketingConfig struct {
	IdentityBuckets int
	EventBuckets    int
}

// ProviderConfig describes an outbound HTTP dependency.
type ProviderConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// LoadConfig reads configuration from the environment. A .env file is
// honored when present; real environment variables win.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Environment: GetEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:         GetEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
			CertFile:     GetEnv("SERVER_CERT_FILE", ""),
			KeyFile:      GetEnv("SERVER_KEY_FILE", ""),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  GetEnv("LOG_LEVEL", "info"),
			Format: GetEnv("LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			URL:      GetEnv("REDIS_URL", "redis://localhost:6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},
		Scylla: ScyllaConfig{
			Nodes:    getEnvList("SCYLLA_NODES", "localhost:9042"),
			Keyspace: GetEnv("SCYLLA_KEYSPACE", "insights"),
			Username: GetEnv("SCYLLA_USERNAME", ""),
			Password: GetEnv("SCYLLA_PASSWORD", ""),
		},
		Clickhouse: ClickhouseConfig{
			URL:      GetEnv("CLICKHOUSE_URL", "http://localhost:8123"),
			Database: GetEnv("CLICKHOUSE_DATABASE", "surveys"),
			Username: GetEnv("CLICKHOUSE_USERNAME", "default"),
			Password: GetEnv("CLICKHOUSE_PASSWORD", ""),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:      GetEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username: GetEnv("ELASTICSEARCH_USERNAME", ""),
			Password: GetEnv("ELASTICSEARCH_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", "localhost:9092"),
			Topic:   GetEnv("KAFKA_AUTH_EVENTS_TOPIC", "auth-events"),
		},
		KMS: KMSConfig{
			Enabled: getEnvBool("KMS_ENABLED", false),
			KeyID:   GetEnv("KMS_KEY_ID", ""),
			Region:  GetEnv("KMS_REGION", "us-east-1"),
		},
		Auth: AuthConfig{
			JWTSecret:       GetEnv("JWT_SECRET", "dev-only-secret-change-me"),
			TokenExpiry:     getEnvDuration("TOKEN_EXPIRY", 7*24*time.Hour),
			OTPTTL:          getEnvDuration("OTP_TTL", 600*time.Second),
			SessionTTL:      getEnvDuration("SESSION_TTL", 24*time.Hour),
			IdentityTTL:     getEnvDuration("IDENTITY_CACHE_TTL", 30*24*time.Hour),
			ProviderTimeout: getEnvDuration("EMAIL_PROVIDER_TIMEOUT", 30*time.Second),
		},
		Hashing: HashingConfig{
			Pepper:            GetEnv("HASHING_PEPPER", "dev-only-pepper"),
			Argon2MemoryCost:  getEnvInt("ARGON2_MEMORY_COST", 65536),
			Argon2TimeCost:    getEnvInt("ARGON2_TIME_COST", 1),
			Argon2Parallelism: getEnvInt("ARGON2_PARALLELISM", 4),
		},
		Bucketing: BucketingConfig{
			IdentityBuckets: getEnvInt("IDENTITY_BUCKETS", 64),
			EventBuckets:    getEnvInt("EVENT_BUCKETS", 16),
		},
		EmailProvider: ProviderConfig{
			BaseURL: GetEnv("EMAIL_PROVIDER_URL", "http://localhost:7100"),
			APIKey:  GetEnv("EMAIL_PROVIDER_API_KEY", ""),
			Timeout: getEnvDuration("EMAIL_PROVIDER_TIMEOUT", 30*time.Second),
		},
		Insights: ProviderConfig{
			BaseURL: GetEnv("INSIGHTS_PROVIDER_URL", "http://localhost:7200"),
			APIKey:  GetEnv("INSIGHTS_PROVIDER_API_KEY", ""),
			Timeout: getEnvDuration("INSIGHTS_PROVIDER_TIMEOUT", 60*time.Second),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetEnv returns the environment variable or a default.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := GetEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
