// Package config provides configuration loading for the ddocs service.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all configuration for the ddocs service
type Config struct {
	Env        string           `mapstructure:"env"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Sync       SyncConfig       `mapstructure:"sync"`
	MCP        MCPConfig        `mapstructure:"mcp"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig selects and configures the store
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	MaxConns int32          `mapstructure:"max_conns"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString renders the settings as a postgres:// URL.
func (p PostgresConfig) ConnString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

// RedisConfig holds the credential cache connection
type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// OpenSearchConfig holds the search index connection
type OpenSearchConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Insecure bool   `mapstructure:"insecure"`
	Index    string `mapstructure:"index"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig holds the server's own credential and cache policy
type AuthConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	PortalAddress string        `mapstructure:"portal_address"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

// LedgerConfig points at the anchoring ledger. An empty RPCURL selects
// the in-process ledger.
type LedgerConfig struct {
	RPCURL      string        `mapstructure:"rpc_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	ExplorerURL string        `mapstructure:"explorer_url"`
	// RateLimit caps RPC calls per second. Zero is unlimited.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// SyncConfig controls the submission and resolution triggers
type SyncConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	SubmitInterval   time.Duration `mapstructure:"submit_interval"`
	ResolveInterval  time.Duration `mapstructure:"resolve_interval"`
	MaxSubmitPerRun  int           `mapstructure:"max_submit_per_run"`
	MaxResolvePerRun int           `mapstructure:"max_resolve_per_run"`
	ClaimLease       time.Duration `mapstructure:"claim_lease"`
	MaxRetries       int           `mapstructure:"max_retries"`
}

// MCPConfig describes the protocol endpoint
type MCPConfig struct {
	ProtocolVersion  string `mapstructure:"protocol_version"`
	ServerName       string `mapstructure:"server_name"`
	ServerVersion    string `mapstructure:"server_version"`
	BatchConcurrency int    `mapstructure:"batch_concurrency"`
}

// IsProduction reports whether env names a production deployment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Sync.MaxSubmitPerRun < 1 || c.Sync.MaxResolvePerRun < 1 {
		return fmt.Errorf("sync per-run limits must be positive")
	}
	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("sync.max_retries must not be negative")
	}
	if c.Auth.APIKey != "" && c.Auth.PortalAddress == "" {
		return fmt.Errorf("auth.portal_address is required when auth.api_key is set")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("server.port", 8001)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "ddocs")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "ddocs")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("opensearch.enabled", false)
	v.SetDefault("opensearch.url", "https://localhost:9200")
	v.SetDefault("opensearch.username", "admin")
	v.SetDefault("opensearch.password", "")
	v.SetDefault("opensearch.insecure", true)
	v.SetDefault("opensearch.index", "ddocs-documents")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.portal_address", "")
	v.SetDefault("auth.cache_ttl", "5m")

	v.SetDefault("ledger.rpc_url", "")
	v.SetDefault("ledger.timeout", "30s")
	v.SetDefault("ledger.explorer_url", "")
	v.SetDefault("ledger.rate_limit", 0)
	v.SetDefault("ledger.rate_burst", 1)

	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.submit_interval", "2m")
	v.SetDefault("sync.resolve_interval", "1m")
	v.SetDefault("sync.max_submit_per_run", 2)
	v.SetDefault("sync.max_resolve_per_run", 3)
	v.SetDefault("sync.claim_lease", "5m")
	v.SetDefault("sync.max_retries", 0)

	v.SetDefault("mcp.protocol_version", "2025-03-26")
	v.SetDefault("mcp.server_name", "fileverse-api")
	v.SetDefault("mcp.server_version", "1.0.0")
	v.SetDefault("mcp.batch_concurrency", 8)
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ddocs")
	}

	// Environment variables override (DDOCS_SERVER_PORT, etc.)
	v.SetEnvPrefix("DDOCS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Unprefixed names used by existing deployments.
	for key, env := range map[string]string{
		"auth.api_key":   "API_KEY",
		"ledger.rpc_url": "RPC_URL",
		"env":            "NODE_ENV",
	} {
		prefixed := "DDOCS_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	// Read config - ignore file not found for defaults
	if err := v.ReadInConfig(); err != nil {
		if configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
