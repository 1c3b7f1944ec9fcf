package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-dq/pkg/metadata"
)

// Source types.
const (
	SourceBackend  = "backend"
	SourcePostgres = "postgres"
	SourceMSSQL    = "mssql"
	SourceFixture  = "fixture"
)

// Config holds all configuration for ekaya-dq.
// Configuration can come from a YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (tokens, passwords, DSNs) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// Backend is the metadata API used by the "backend" source.
	Backend BackendConfig `yaml:"backend"`

	// Source selects where raw metadata responses come from.
	Source SourceConfig `yaml:"source"`

	Freshness FreshnessConfig `yaml:"freshness"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	MCP       MCPConfig       `yaml:"mcp"`
}

// BackendConfig holds the metadata backend API settings.
type BackendConfig struct {
	BaseURL        string `yaml:"base_url" env:"BACKEND_BASE_URL" env-default:"http://localhost:8080"`
	PathPrefix     string `yaml:"path_prefix" env:"BACKEND_PATH_PREFIX" env-default:"/api/v1"`
	APIToken       string `yaml:"-" env:"BACKEND_API_TOKEN"` // Secret - not in YAML
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"BACKEND_TIMEOUT_SECONDS" env-default:"30"`
	MaxRetries     int    `yaml:"max_retries" env:"BACKEND_MAX_RETRIES" env-default:"3"`
}

// Timeout returns the per-request timeout.
func (c *BackendConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SourceConfig selects and configures the metadata source.
type SourceConfig struct {
	// Type is one of backend, postgres, mssql, fixture.
	Type string `yaml:"type" env:"SOURCE_TYPE" env-default:"backend"`

	// FixturePath is the YAML fixture file for the fixture source.
	FixturePath string `yaml:"fixture_path" env:"SOURCE_FIXTURE_PATH" env-default:"fixtures.yaml"`

	// ConnectionsStr maps connection IDs to database DSNs for the direct
	// sources. Format: "id1=dsn1,id2=dsn2". DSNs carry passwords, so this is
	// environment-only.
	ConnectionsStr string `yaml:"-" env:"SOURCE_CONNECTIONS"`

	// Connections is the parsed map from ConnectionsStr (not from config file).
	Connections map[string]string `yaml:"-"`

	// PoolMaxConns caps connections per database pool.
	PoolMaxConns int32 `yaml:"pool_max_conns" env:"SOURCE_POOL_MAX_CONNS" env-default:"4"`

	// StatisticsSampleLimit caps the columns profiled per table by sources
	// that compute statistics with queries.
	StatisticsSampleLimit int `yaml:"statistics_sample_limit" env:"SOURCE_STATISTICS_SAMPLE_LIMIT" env-default:"50"`
}

// FreshnessConfig holds the age windows used to classify freshness.
type FreshnessConfig struct {
	FreshSeconds  int `yaml:"fresh_seconds" env:"FRESHNESS_FRESH_SECONDS" env-default:"300"`
	RecentSeconds int `yaml:"recent_seconds" env:"FRESHNESS_RECENT_SECONDS" env-default:"3600"`
}

// Thresholds converts the configured windows.
func (c *FreshnessConfig) Thresholds() metadata.FreshnessThresholds {
	return metadata.FreshnessThresholds{
		Fresh:  time.Duration(c.FreshSeconds) * time.Second,
		Recent: time.Duration(c.RecentSeconds) * time.Second,
	}
}

// CacheConfig holds the Redis snapshot cache settings.
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled" env:"CACHE_ENABLED" env-default:"false"`
	Host       string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port       int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	DB         int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	Password   string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	TTLSeconds int    `yaml:"ttl_seconds" env:"CACHE_TTL_SECONDS" env-default:"300"`
}

// Addr returns host:port for the Redis client.
func (c *CacheConfig) Addr() string {
	return fmt.Sprintf("%s:%d", ResolveHostForDocker(c.Host), c.Port)
}

// TTL returns the cache entry lifetime.
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:"https://auth.ekaya.ai=https://auth.ekaya.ai/.well-known/jwks.json"`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`

	// Audience must appear in the aud claim of accepted tokens. Empty disables the check.
	Audience string `yaml:"audience" env:"AUTH_AUDIENCE" env-default:"dq"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED" env-default:"true"`
	Path    string `yaml:"path" env:"METRICS_PATH" env-default:"/metrics"`
}

// MCPConfig controls the MCP endpoint.
type MCPConfig struct {
	Enabled bool `yaml:"enabled" env:"MCP_ENABLED" env-default:"true"`
}

// Load reads configuration from the YAML file at path with environment
// variable overrides. A missing file is not an error: configuration then
// comes from the environment and defaults alone.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, fs.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	cfg.parseComplexFields()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() {
	c.Auth.JWKSEndpoints = parsePairs(c.Auth.JWKSEndpointsStr)
	c.Source.Connections = parsePairs(c.Source.ConnectionsStr)
	c.Source.Type = strings.ToLower(strings.TrimSpace(c.Source.Type))
	c.Backend.BaseURL = strings.TrimRight(ResolveURLForDocker(c.Backend.BaseURL), "/")
}

func (c *Config) validate() error {
	if err := c.validateTLS(); err != nil {
		return err
	}

	switch c.Source.Type {
	case SourceBackend:
		if c.Backend.BaseURL == "" {
			return fmt.Errorf("backend.base_url is required for the backend source")
		}
		if _, err := url.ParseRequestURI(c.Backend.BaseURL); err != nil {
			return fmt.Errorf("backend.base_url is not a valid URL: %w", err)
		}
	case SourcePostgres, SourceMSSQL:
		if len(c.Source.Connections) == 0 {
			return fmt.Errorf("SOURCE_CONNECTIONS is required for the %s source", c.Source.Type)
		}
	case SourceFixture:
		if c.Source.FixturePath == "" {
			return fmt.Errorf("source.fixture_path is required for the fixture source")
		}
	default:
		return fmt.Errorf("unknown source type %q", c.Source.Type)
	}

	if c.Freshness.FreshSeconds <= 0 || c.Freshness.RecentSeconds <= c.Freshness.FreshSeconds {
		return fmt.Errorf("freshness windows must satisfy 0 < fresh_seconds < recent_seconds")
	}
	if c.Cache.Enabled && c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be positive when the cache is enabled")
	}
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// parsePairs parses "key1=value1,key2=value2" into a map. Only the first
// '=' separates key from value, so values may themselves contain '='.
func parsePairs(value string) map[string]string {
	pairs := make(map[string]string)
	if value == "" {
		return pairs
	}

	for _, pair := range strings.Split(value, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if ok && k != "" && v != "" {
			pairs[k] = v
		}
	}
	return pairs
}
