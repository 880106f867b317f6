// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. A .env file in the working directory is
// read first so local secrets can live outside the YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Site      SiteConfig      `yaml:"site"`
	Feeds     FeedsConfig     `yaml:"feeds"`
	Cache     CacheConfig     `yaml:"cache"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	CORS      CORSConfig      `yaml:"cors"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// SiteConfig controls how pages link to documents.
type SiteConfig struct {
	// BaseURL prefixes document links on the index and search pages. Empty
	// means links are host-relative.
	BaseURL string `yaml:"baseUrl"`
	// DownloadURL is a fmt template taking the document ID and title slug.
	DownloadURL string `yaml:"downloadUrl"`
	SiteName    string `yaml:"siteName"`
	// SuggestionCount is how many random documents the index, related and
	// no-match sections show.
	SuggestionCount int `yaml:"suggestionCount"`
}

// FeedsConfig locates the remote lists the catalog is built from.
type FeedsConfig struct {
	// ListURL serves a newline-delimited list of CSV feed URLs.
	ListURL string `yaml:"listUrl"`
	// DomainsURL serves a newline-delimited list of mirror domains used for
	// related-document links.
	DomainsURL string `yaml:"domainsUrl"`
	// BatchTimeout bounds one whole load. Zero waits for every feed.
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	// ClientTimeout is applied to the HTTP client. Zero disables it.
	ClientTimeout time.Duration `yaml:"clientTimeout"`
}

// CacheConfig controls catalog snapshot caching.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
	// KeyPrefix namespaces every key docshelf writes.
	KeyPrefix string `yaml:"keyPrefix"`
}

// AnalyticsConfig controls event publishing and snapshot persistence.
type AnalyticsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BufferSize       int           `yaml:"bufferSize"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	// SnapshotRetention is how many snapshots are kept. Zero keeps all.
	SnapshotRetention int `yaml:"snapshotRetention"`
}

// RateLimitConfig is a per-client token bucket.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// CORSConfig applies to the JSON API only.
type CORSConfig struct {
	AllowOrigins []string `yaml:"allowOrigins"`
	MaxAge       int      `yaml:"maxAge"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// SlowRequest promotes a request's span tree from debug to info.
	SlowRequest time.Duration `yaml:"slowRequest"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a .env file and a YAML config file (both optional) and applies
// environment-variable overrides on top of the defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that would leave the site unable to start.
func (c *Config) Validate() error {
	if c.Feeds.ListURL == "" {
		return errors.New("feeds.listUrl is required")
	}
	if c.Site.SuggestionCount < 0 {
		return fmt.Errorf("site.suggestionCount must not be negative, got %d", c.Site.SuggestionCount)
	}
	if c.Analytics.SnapshotRetention < 0 {
		return fmt.Errorf("analytics.snapshotRetention must not be negative, got %d", c.Analytics.SnapshotRetention)
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rateLimit.requestsPerSecond must be positive, got %v", c.RateLimit.RequestsPerSecond)
	}
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Site: SiteConfig{
			DownloadURL:     "https://scribd.vdownloaders.com/document/%s/%s",
			SiteName:        "English Resources",
			SuggestionCount: 10,
		},
		Feeds: FeedsConfig{
			ListURL:    "https://raw.githubusercontent.com/kuenastar115/scbd/main/src/csvs.txt",
			DomainsURL: "https://raw.githubusercontent.com/kuenastar115/scbd/main/src/urls.txt",
			// Shared loads are detached from request contexts, so each fetch
			// needs its own bound.
			ClientTimeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: true,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "docshelf",
			User:            "docshelf",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "docshelf-analytics",
			Topics: KafkaTopics{
				AnalyticsEvents: "docshelf-analytics-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize:  10,
			CacheTTL:  5 * time.Minute,
			KeyPrefix: "docshelf:",
		},
		Analytics: AnalyticsConfig{
			Enabled:          false,
			BufferSize:        10000,
			SnapshotInterval:  time.Minute,
			SnapshotRetention: 1440,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 20,
			Burst:             40,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
			MaxAge:       86400,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			SlowRequest: 500 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_SITE_BASE_URL"); v != "" {
		cfg.Site.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("SP_FEEDS_LIST_URL"); v != "" {
		cfg.Feeds.ListURL = v
	}
	if v := os.Getenv("SP_FEEDS_DOMAINS_URL"); v != "" {
		cfg.Feeds.DomainsURL = v
	}
	if v := os.Getenv("SP_FEEDS_BATCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Feeds.BatchTimeout = d
		}
	}
	if v := os.Getenv("SP_CACHE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.Enabled = b
		}
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_ANALYTICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Analytics.Enabled = b
		}
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
