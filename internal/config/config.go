// Package config loads centrallog configuration from defaults, an optional
// YAML file and CENTRALLOG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	natsclient "github.com/telhawk-systems/centrallog/common/messaging/nats"
	"github.com/telhawk-systems/centrallog/internal/searchindex"
	"github.com/telhawk-systems/centrallog/internal/syslog"
)

// EnvPrefix is prepended to every environment override, e.g.
// CENTRALLOG_DATABASE_POSTGRES_HOST.
const EnvPrefix = "CENTRALLOG"

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Sequence    SequenceConfig    `mapstructure:"sequence"`
	NATS        NATSConfig        `mapstructure:"nats"`
	OpenSearch  OpenSearchConfig  `mapstructure:"opensearch"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	Normalizer  NormalizerConfig  `mapstructure:"normalizer"`
	Correlation CorrelationConfig `mapstructure:"correlation"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// MaxBodyBytes caps request bodies on the ingest endpoints.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StorageConfig struct {
	// Driver is "memory" or "postgres".
	Driver string `mapstructure:"driver"`
	// MigrateOnStart applies embedded migrations when serve starts.
	MigrateOnStart bool `mapstructure:"migrate_on_start"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ConnString builds a postgres:// URL.
func (p PostgresConfig) ConnString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: url.Values{"sslmode": []string{p.SSLMode}}.Encode(),
	}
	return u.String()
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type SequenceConfig struct {
	// Backend is "memory", "redis" or "postgres".
	Backend string `mapstructure:"backend"`
}

type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	Token         string        `mapstructure:"token"`
}

func (n NATSConfig) ClientConfig() natsclient.Config {
	cfg := natsclient.DefaultConfig()
	cfg.URL = n.URL
	cfg.MaxReconnects = n.MaxReconnects
	cfg.ReconnectWait = n.ReconnectWait
	cfg.Timeout = n.Timeout
	cfg.Username = n.Username
	cfg.Password = n.Password
	cfg.Token = n.Token
	return cfg
}

type OpenSearchConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	URL             string `mapstructure:"url"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	TLSSkipVerify   bool   `mapstructure:"tls_skip_verify"`
	IndexPrefix     string `mapstructure:"index_prefix"`
	ShardCount      int    `mapstructure:"shard_count"`
	ReplicaCount    int    `mapstructure:"replica_count"`
	RefreshInterval string `mapstructure:"refresh_interval"`
	BulkWorkers     int    `mapstructure:"bulk_workers"`
}

func (o OpenSearchConfig) ClientConfig() searchindex.Config {
	return searchindex.Config{
		URL:             o.URL,
		Username:        o.Username,
		Password:        o.Password,
		TLSSkipVerify:   o.TLSSkipVerify,
		IndexPrefix:     o.IndexPrefix,
		ShardCount:      o.ShardCount,
		ReplicaCount:    o.ReplicaCount,
		RefreshInterval: o.RefreshInterval,
		BulkWorkers:     o.BulkWorkers,
	}
}

type KafkaConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Brokers     []string      `mapstructure:"brokers"`
	Topic       string        `mapstructure:"topic"`
	GroupID     string        `mapstructure:"group_id"`
	MinBytes    int           `mapstructure:"min_bytes"`
	MaxBytes    int           `mapstructure:"max_bytes"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
	StartOffset string        `mapstructure:"start_offset"`
}

type IngestConfig struct {
	BatchConcurrency int `mapstructure:"batch_concurrency"`
	MaxBatchSize     int `mapstructure:"max_batch_size"`
}

type NormalizerConfig struct {
	// SyslogYearPolicy is "current" or "rollback".
	SyslogYearPolicy string `mapstructure:"syslog_year_policy"`
}

type CorrelationConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration. configPath may be empty, in which case
// ./centrallog.yaml and /etc/centrallog/centrallog.yaml are tried.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("centrallog")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/centrallog")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// AutomaticEnv yields a single string for slice keys.
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers[0])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("invalid storage.driver %q (valid: memory, postgres)", c.Storage.Driver)
	}
	switch c.Sequence.Backend {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("invalid sequence.backend %q (valid: memory, redis, postgres)", c.Sequence.Backend)
	}
	if c.Sequence.Backend == "postgres" && c.Storage.Driver != "postgres" {
		return errors.New("sequence.backend postgres requires storage.driver postgres")
	}
	if _, err := syslog.ParseYearPolicy(c.Normalizer.SyslogYearPolicy); err != nil {
		return err
	}
	if c.Ingest.BatchConcurrency < 1 {
		return fmt.Errorf("ingest.batch_concurrency must be at least 1, got %d", c.Ingest.BatchConcurrency)
	}
	if c.Ingest.MaxBatchSize < 1 {
		return fmt.Errorf("ingest.max_batch_size must be at least 1, got %d", c.Ingest.MaxBatchSize)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.max_body_bytes", 10<<20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.migrate_on_start", true)

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "centrallog")
	v.SetDefault("database.postgres.user", "centrallog")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.max_conns", 25)

	v.SetDefault("redis.url", "redis://localhost:6379/0")

	v.SetDefault("sequence.backend", "memory")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.timeout", "5s")
	v.SetDefault("nats.username", "")
	v.SetDefault("nats.password", "")
	v.SetDefault("nats.token", "")

	v.SetDefault("opensearch.enabled", false)
	v.SetDefault("opensearch.url", "https://localhost:9200")
	v.SetDefault("opensearch.username", "admin")
	v.SetDefault("opensearch.password", "admin")
	v.SetDefault("opensearch.tls_skip_verify", true)
	v.SetDefault("opensearch.index_prefix", "centrallog")
	v.SetDefault("opensearch.shard_count", 1)
	v.SetDefault("opensearch.replica_count", 0)
	v.SetDefault("opensearch.refresh_interval", "5s")
	v.SetDefault("opensearch.bulk_workers", 2)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "centrallog.raw")
	v.SetDefault("kafka.group_id", "centrallog")
	v.SetDefault("kafka.min_bytes", 1)
	v.SetDefault("kafka.max_bytes", 10<<20)
	v.SetDefault("kafka.max_wait", "1s")
	v.SetDefault("kafka.start_offset", "last")

	v.SetDefault("ingest.batch_concurrency", 8)
	v.SetDefault("ingest.max_batch_size", 10000)

	v.SetDefault("normalizer.syslog_year_policy", "current")

	v.SetDefault("correlation.enabled", true)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
