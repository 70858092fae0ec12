package domain

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the complete Underwriter configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which backends are used
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Engine and rule settings
	Scoring  ScoringConfig  `json:"scoring"`
	Settings SettingsConfig `json:"settings"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// ScoringConfig controls rule evaluation.
type ScoringConfig struct {
	// Strict makes rule defects propagate as errors instead of generic failures.
	Strict bool `json:"strict"`

	// MaxDepth bounds nested conditional evaluation.
	MaxDepth int `json:"maxDepth"`

	// Lookup cache lifetimes.
	RegistryTTL   time.Duration `json:"registryTtl"`
	FinancialsTTL time.Duration `json:"financialsTtl"`
	ContractsTTL  time.Duration `json:"contractsTtl"`
}

// SettingsConfig controls where bank rule settings come from.
type SettingsConfig struct {
	// Source is "repository" or "file".
	Source string `json:"source"`

	// Dir is the YAML directory for the file source.
	Dir string `json:"dir"`

	// Watch enables fsnotify reloads of Dir.
	Watch bool `json:"watch"`

	// ReloadSchedule is a standard cron expression; empty disables periodic reload.
	ReloadSchedule string `json:"reloadSchedule"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool    `json:"enabled"`
	ServiceName string  `json:"serviceName"`
	Protocol    string  `json:"protocol"` // otlphttp, otlpgrpc
	Endpoint    string  `json:"endpoint"`
	Insecure    bool    `json:"insecure"`
	SampleRatio float64 `json:"sampleRatio"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-process cache
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultMaxDepth bounds conditional nesting.
const DefaultMaxDepth = 20

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./underwriter.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Scoring: ScoringConfig{
			MaxDepth:      DefaultMaxDepth,
			RegistryTTL:   6 * time.Hour,
			FinancialsTTL: 24 * time.Hour,
			ContractsTTL:  12 * time.Hour,
		},
		Settings: SettingsConfig{
			Source: "repository",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "underwriter",
			Protocol:    "otlphttp",
			SampleRatio: 1.0,
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "underwriter",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Settings.ReloadSchedule = "*/5 * * * *"
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadFromEnv builds a configuration from UNDERWRITER_* environment variables.
func LoadFromEnv() (*Config, error) {
	return loadFromEnv(os.Getenv)
}

func loadFromEnv(getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()
	if Tier(getenv("UNDERWRITER_TIER")) == TierPro {
		cfg = ProConfig()
	}

	var errs []string
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = b
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}

	str("UNDERWRITER_HOST", &cfg.Server.Host)
	num("UNDERWRITER_PORT", &cfg.Server.Port)

	str("UNDERWRITER_DB_DRIVER", &cfg.Repository.Driver)
	str("UNDERWRITER_SQLITE_PATH", &cfg.Repository.SQLitePath)
	str("UNDERWRITER_PG_HOST", &cfg.Repository.PostgresHost)
	num("UNDERWRITER_PG_PORT", &cfg.Repository.PostgresPort)
	str("UNDERWRITER_PG_USER", &cfg.Repository.PostgresUser)
	str("UNDERWRITER_PG_PASSWORD", &cfg.Repository.PostgresPassword)
	str("UNDERWRITER_PG_DB", &cfg.Repository.PostgresDB)
	str("UNDERWRITER_PG_SSLMODE", &cfg.Repository.PostgresSSLMode)

	str("UNDERWRITER_CACHE", &cfg.Cache.Type)
	str("UNDERWRITER_REDIS_ADDR", &cfg.Cache.RedisAddr)
	str("UNDERWRITER_REDIS_PASSWORD", &cfg.Cache.RedisPassword)

	str("UNDERWRITER_BUS", &cfg.EventBus.Type)
	str("UNDERWRITER_NATS_URL", &cfg.EventBus.NATSUrl)
	str("UNDERWRITER_NATS_TOKEN", &cfg.EventBus.NATSToken)

	flag("UNDERWRITER_STRICT", &cfg.Scoring.Strict)
	num("UNDERWRITER_MAX_DEPTH", &cfg.Scoring.MaxDepth)
	dur("UNDERWRITER_REGISTRY_TTL", &cfg.Scoring.RegistryTTL)
	dur("UNDERWRITER_FINANCIALS_TTL", &cfg.Scoring.FinancialsTTL)
	dur("UNDERWRITER_CONTRACTS_TTL", &cfg.Scoring.ContractsTTL)

	str("UNDERWRITER_SETTINGS_SOURCE", &cfg.Settings.Source)
	str("UNDERWRITER_SETTINGS_DIR", &cfg.Settings.Dir)
	flag("UNDERWRITER_SETTINGS_WATCH", &cfg.Settings.Watch)
	str("UNDERWRITER_RELOAD_SCHEDULE", &cfg.Settings.ReloadSchedule)

	str("UNDERWRITER_LOG_LEVEL", &cfg.Logging.Level)
	if getenv("UNDERWRITER_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}

	flag("UNDERWRITER_TRACING", &cfg.Tracing.Enabled)
	str("UNDERWRITER_OTLP_PROTOCOL", &cfg.Tracing.Protocol)
	str("UNDERWRITER_OTLP_ENDPOINT", &cfg.Tracing.Endpoint)
	flag("UNDERWRITER_OTLP_INSECURE", &cfg.Tracing.Insecure)

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	if cfg.Scoring.MaxDepth <= 0 {
		cfg.Scoring.MaxDepth = DefaultMaxDepth
	}
	return cfg, nil
}
