// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Index, Search, Kafka, Postgres, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Index    IndexConfig    `yaml:"index"`
	Search   SearchConfig   `yaml:"search"`
	Synonyms SynonymsConfig `yaml:"synonyms"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings for the searcher.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RateLimitRPS    float64       `yaml:"rateLimitRps"`
	RateLimitBurst  int           `yaml:"rateLimitBurst"`
}

// IndexConfig controls snapshot building and storage.
type IndexConfig struct {
	// DataDir is where snapshot files are written and loaded from.
	DataDir string `yaml:"dataDir"`
	// Source selects where the builder reads documents from:
	// "file", "postgres", or "kafka".
	Source string `yaml:"source"`
	// SourcePath is the JSONL file path when Source is "file".
	SourcePath string `yaml:"sourcePath"`
	// BuildWorkers is the number of parallel normalization workers.
	// Zero means one per CPU.
	BuildWorkers int `yaml:"buildWorkers"`
	// TermShards is the number of term-partitioned accumulators the
	// merge phase writes into.
	TermShards int `yaml:"termShards"`
	// RebuildInterval is how often the kafka-fed indexer rebuilds and
	// persists a fresh snapshot.
	RebuildInterval time.Duration `yaml:"rebuildInterval"`
	// ReloadInterval is how often the searcher polls DataDir for a
	// newer snapshot file.
	ReloadInterval time.Duration `yaml:"reloadInterval"`
}

// SearchConfig controls the query pipeline.
type SearchConfig struct {
	DefaultTopK int `yaml:"defaultTopK"`
	MaxTopK     int `yaml:"maxTopK"`
	// MaxQueryLength bounds raw query strings; longer queries are
	// rejected as invalid input.
	MaxQueryLength int `yaml:"maxQueryLength"`
	// RankTimeout aborts candidate scoring and returns a partial,
	// truncated result when exceeded.
	RankTimeout time.Duration `yaml:"rankTimeout"`
	// ExpansionCap is the maximum number of synonyms added per
	// original query term.
	ExpansionCap int `yaml:"expansionCap"`
	// ExpansionWeight dampens the query-vector contribution of
	// expansion terms; must be < 1 so expansions never outweigh
	// literal terms.
	ExpansionWeight float64 `yaml:"expansionWeight"`
	// PhraseBonus is the score added per adjacent query-term pair
	// found at matching positions in a candidate.
	PhraseBonus float64 `yaml:"phraseBonus"`
	// Accelerator selects the scoring strategy: "exact" or "simhash".
	Accelerator string `yaml:"accelerator"`
	// MaxCandidates bounds the candidate set the simhash accelerator
	// rescores exactly. Ignored by the exact scorer.
	MaxCandidates int `yaml:"maxCandidates"`
}

// SynonymsConfig points at the synonym table file. An empty path uses the
// built-in default table.
type SynonymsConfig struct {
	Path string `yaml:"path"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentsCrawled string `yaml:"documentsCrawled"`
	IndexComplete    string `yaml:"indexComplete"`
}

// PostgresConfig holds PostgreSQL connection parameters for the crawler's
// landing table.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	PagesTable      string        `yaml:"pagesTable"`
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

// RedisConfig holds Redis connection and query-cache parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns a Config with defaults suitable for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimitRPS:    50,
			RateLimitBurst:  100,
		},
		Index: IndexConfig{
			DataDir:         "data/index",
			Source:          "file",
			TermShards:      16,
			RebuildInterval: 5 * time.Minute,
			ReloadInterval:  30 * time.Second,
		},
		Search: SearchConfig{
			DefaultTopK:     10,
			MaxTopK:         100,
			MaxQueryLength:  200,
			RankTimeout:     500 * time.Millisecond,
			ExpansionCap:    3,
			ExpansionWeight: 0.4,
			PhraseBonus:     0.1,
			Accelerator:     "exact",
			MaxCandidates:   5000,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "searchlite-indexer",
			Topics: KafkaTopics{
				DocumentsCrawled: "documents.crawled",
				IndexComplete:    "index.complete",
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "searchlite",
			User:            "searchlite",
			Password:        "localdev",
			SSLMode:         "disable",
			PagesTable:      "crawled_pages",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

func validate(cfg *Config) error {
	switch cfg.Index.Source {
	case "file", "postgres", "kafka":
	default:
		return fmt.Errorf("invalid index source %q: must be file, postgres, or kafka", cfg.Index.Source)
	}
	switch cfg.Search.Accelerator {
	case "exact", "simhash":
	default:
		return fmt.Errorf("invalid accelerator %q: must be exact or simhash", cfg.Search.Accelerator)
	}
	if cfg.Search.ExpansionWeight <= 0 || cfg.Search.ExpansionWeight >= 1 {
		return fmt.Errorf("expansionWeight must be in (0,1), got %v", cfg.Search.ExpansionWeight)
	}
	if cfg.Search.DefaultTopK < 1 {
		return fmt.Errorf("defaultTopK must be >= 1, got %d", cfg.Search.DefaultTopK)
	}
	return nil
}

// applyEnvOverrides reads SL_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SL_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SL_INDEX_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("SL_INDEX_SOURCE"); v != "" {
		cfg.Index.Source = v
	}
	if v := os.Getenv("SL_INDEX_SOURCE_PATH"); v != "" {
		cfg.Index.SourcePath = v
	}
	if v := os.Getenv("SL_SYNONYMS_PATH"); v != "" {
		cfg.Synonyms.Path = v
	}
	if v := os.Getenv("SL_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SL_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SL_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SL_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SL_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SL_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SL_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SL_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SL_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SL_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
