// Package config loads the service configuration from defaults, an optional
// YAML file, a .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAddr         = ":5000"
	DefaultHistoryLimit = 1000
	MaxHistoryLimit     = 10000
)

type Config struct {
	Addr    string        `yaml:"addr"`
	Secrets SecretsConfig `yaml:"secrets"`
	State   StateConfig   `yaml:"state"`
	Audit   AuditConfig   `yaml:"audit"`
	Lock    LockConfig    `yaml:"lock"`
	Redis   RedisConfig   `yaml:"redis"`
	Neo4j   Neo4jConfig   `yaml:"neo4j"`
	SPARQL  SPARQLConfig  `yaml:"sparql"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// SecretsConfig holds either one shared secret or up to three per-role
// secrets. Leaving everything empty disables authentication.
type SecretsConfig struct {
	Shared  string `yaml:"shared"`
	Readers string `yaml:"readers"`
	Loggers string `yaml:"loggers"`
	Admins  string `yaml:"admins"`
}

type StateConfig struct {
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
}

type AuditConfig struct {
	Backend        string `yaml:"backend"`
	SQLitePath     string `yaml:"sqlite_path"`
	DeletionRecord string `yaml:"deletion_record"`
	HistoryLimit   int    `yaml:"history_limit"`
}

type LockConfig struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type SPARQLConfig struct {
	QueryURL string        `yaml:"query_url"`
	StoreURL string        `yaml:"store_url"`
	Graph    string        `yaml:"graph"`
	Timeout  time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func Default() Config {
	return Config{
		Addr:  DefaultAddr,
		State: StateConfig{Backend: "sqlite", SQLitePath: "./.segb/graph.db"},
		Audit: AuditConfig{
			Backend:        "sqlite",
			SQLitePath:     "./.segb/audit.db",
			DeletionRecord: "content",
			HistoryLimit:   DefaultHistoryLimit,
		},
		Lock:   LockConfig{Backend: "memory", TTL: 30 * time.Second},
		Redis:  RedisConfig{Addr: "127.0.0.1:6379", Prefix: "segb", CacheTTL: 72 * time.Hour},
		Neo4j:  Neo4jConfig{URI: "neo4j://127.0.0.1:7687", User: "neo4j", Database: "neo4j"},
		SPARQL: SPARQLConfig{Timeout: 30 * time.Second},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. path may be empty, in which case SEGB_CONFIG
// is consulted; a missing .env file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) == "" {
		path = strings.TrimSpace(os.Getenv("SEGB_CONFIG"))
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(newEnvReader()); err != nil {
		return Config{}, fmt.Errorf("environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(env *envReader) error {
	env.str("SEGB_ADDR", &c.Addr)

	env.str("SECRET_KEY", &c.Secrets.Shared)
	env.str("SECRET_KEY_READERS", &c.Secrets.Readers)
	env.str("SECRET_KEY_LOGGERS", &c.Secrets.Loggers)
	env.str("SECRET_KEY_ADMINS", &c.Secrets.Admins)

	env.enum("SEGB_STATE_BACKEND", &c.State.Backend)
	env.str("SEGB_SQLITE_PATH", &c.State.SQLitePath)

	env.enum("SEGB_AUDIT_BACKEND", &c.Audit.Backend)
	env.str("SEGB_AUDIT_SQLITE_PATH", &c.Audit.SQLitePath)
	env.enum("SEGB_DELETION_RECORD", &c.Audit.DeletionRecord)
	env.int("SEGB_HISTORY_LIMIT", &c.Audit.HistoryLimit)

	env.enum("SEGB_LOCK_BACKEND", &c.Lock.Backend)
	env.duration("SEGB_LOCK_TTL", &c.Lock.TTL)

	env.str("SEGB_REDIS_ADDR", &c.Redis.Addr)
	env.str("SEGB_REDIS_PASSWORD", &c.Redis.Password)
	env.int("SEGB_REDIS_DB", &c.Redis.DB)
	env.str("SEGB_REDIS_PREFIX", &c.Redis.Prefix)
	env.duration("SEGB_REDIS_TTL", &c.Redis.CacheTTL)

	env.str("SEGB_NEO4J_URI", &c.Neo4j.URI)
	env.str("SEGB_NEO4J_USER", &c.Neo4j.User)
	env.str("SEGB_NEO4J_PASSWORD", &c.Neo4j.Password)
	env.str("SEGB_NEO4J_DATABASE", &c.Neo4j.Database)

	env.str("SEGB_SPARQL_QUERY_URL", &c.SPARQL.QueryURL)
	env.str("SEGB_SPARQL_STORE_URL", &c.SPARQL.StoreURL)
	env.str("SEGB_SPARQL_GRAPH", &c.SPARQL.Graph)
	env.duration("SEGB_QUERY_TIMEOUT", &c.SPARQL.Timeout)

	env.enum("SEGB_LOG_LEVEL", &c.Log.Level)
	env.enum("SEGB_LOG_FORMAT", &c.Log.Format)

	env.bool("SEGB_METRICS", &c.Metrics.Enabled)
	env.str("SEGB_METRICS_ADDR", &c.Metrics.Addr)
	return env.err()
}

func (c Config) Validate() error {
	var errs []error
	check := func(name, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("unsupported %s %q (use %s)", name, value, strings.Join(allowed, ", ")))
	}

	check("state backend", c.State.Backend, "sqlite", "redis", "hybrid", "sparql", "memory")
	check("audit backend", c.Audit.Backend, "sqlite", "redis", "neo4j", "memory")
	check("lock backend", c.Lock.Backend, "memory", "redis")
	check("deletion record", c.Audit.DeletionRecord, "content", "digest")
	check("log format", c.Log.Format, "text", "json", "auto")
	check("log level", c.Log.Level, "debug", "info", "warn", "error")

	if c.Audit.HistoryLimit <= 0 || c.Audit.HistoryLimit > MaxHistoryLimit {
		errs = append(errs, fmt.Errorf("history limit must be between 1 and %d, got %d", MaxHistoryLimit, c.Audit.HistoryLimit))
	}
	if c.State.Backend == "sparql" && strings.TrimSpace(c.SPARQL.StoreURL) == "" {
		errs = append(errs, errors.New("sparql state backend requires SEGB_SPARQL_STORE_URL"))
	}
	if c.Secrets.Shared != "" && (c.Secrets.Readers != "" || c.Secrets.Loggers != "" || c.Secrets.Admins != "") {
		errs = append(errs, errors.New("configure either SECRET_KEY or the per-role SECRET_KEY_* secrets, not both"))
	}
	if c.SPARQL.Timeout <= 0 {
		errs = append(errs, errors.New("query timeout must be positive"))
	}
	return errors.Join(errs...)
}

// SecurityDisabled reports whether no secret at all is configured.
func (c Config) SecurityDisabled() bool {
	s := c.Secrets
	return s.Shared == "" && s.Readers == "" && s.Loggers == "" && s.Admins == ""
}
