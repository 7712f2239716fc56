// Package config loads and validates the portal configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the DDP_ prefix (e.g. DDP_DATABASE_HOST
// overrides database.host in the YAML).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Security  SecurityConfig  `mapstructure:"security"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	FrontendURL  string        `mapstructure:"frontend_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxUploadMB caps the multipart body accepted by document uploads.
	MaxUploadMB int `mapstructure:"max_upload_mb"`
}

// GetFrontendURL returns the browser-facing URL used for SSO redirects.
func (s *ServerConfig) GetFrontendURL() string {
	if s.FrontendURL != "" {
		return strings.TrimRight(s.FrontendURL, "/")
	}
	return strings.TrimRight(s.BaseURL, "/")
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// StorageConfig holds storage backend configuration. Container is the bucket /
// blob container / directory that holds request documents.
type StorageConfig struct {
	DefaultBackend string             `mapstructure:"default_backend"`
	Container      string             `mapstructure:"container"`
	SignedURLTTL   time.Duration      `mapstructure:"signed_url_ttl"`
	Azure          AzureStorageConfig `mapstructure:"azure"`
	S3             S3StorageConfig    `mapstructure:"s3"`
	GCS            GCSStorageConfig   `mapstructure:"gcs"`
	Local          LocalStorageConfig `mapstructure:"local"`
}

// AzureStorageConfig holds Azure Blob Storage configuration
type AzureStorageConfig struct {
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
}

// S3StorageConfig holds S3-compatible storage configuration
type S3StorageConfig struct {
	// Endpoint is optional, for MinIO and other S3-compatible services
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`

	// AuthMethod is one of "default", "static" or "assume_role"
	AuthMethod      string `mapstructure:"auth_method"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	RoleARN         string `mapstructure:"role_arn"`
	ExternalID      string `mapstructure:"external_id"`
}

// GCSStorageConfig holds Google Cloud Storage configuration
type GCSStorageConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`
	Endpoint        string `mapstructure:"endpoint"`
}

// LocalStorageConfig holds local filesystem storage configuration
type LocalStorageConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	PasswordLogin bool          `mapstructure:"password_login"`
	// SessionStore holds signed-out session ids: "memory" or "redis"
	SessionStore string     `mapstructure:"session_store"`
	OIDC         OIDCConfig `mapstructure:"oidc"`
}

// OIDCConfig holds single sign-on provider configuration. Users signing in
// through SSO must already have a profile; SSO never creates one.
type OIDCConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	IssuerURL    string   `mapstructure:"issuer_url"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
	CSRF         CSRFConfig         `mapstructure:"csrf"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimitingConfig holds rate limiting configuration. When Backend is
// "redis" the limits are shared across replicas through the redis section.
type RateLimitingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Backend           string `mapstructure:"backend"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	Burst             int    `mapstructure:"burst"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// CSRFConfig controls the per-session CSRF token.
type CSRFConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	RotationInterval time.Duration `mapstructure:"rotation_interval"`
	// Store is "memory" or "redis"
	Store string `mapstructure:"store"`
}

// RedisConfig is shared by the redis rate limiter and the redis CSRF store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// AuditConfig holds audit logging configuration
type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// DispatchTimeout bounds a single best-effort delivery.
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	// LogForbidden records 403 responses as security_violation events
	LogForbidden bool                 `mapstructure:"log_forbidden"`
	Shippers     []AuditShipperConfig `mapstructure:"shippers"`
}

// AuditShipperConfig holds configuration for a single audit shipper
type AuditShipperConfig struct {
	Enabled bool                `mapstructure:"enabled"`
	Type    string              `mapstructure:"type"` // webhook, file
	Webhook *AuditWebhookConfig `mapstructure:"webhook"`
	File    *AuditFileConfig    `mapstructure:"file"`
}

// AuditWebhookConfig holds webhook shipper configuration
type AuditWebhookConfig struct {
	URL         string            `mapstructure:"url"`
	Headers     map[string]string `mapstructure:"headers"`
	TimeoutSecs int               `mapstructure:"timeout_secs"`
}

// AuditFileConfig holds file shipper configuration
type AuditFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// JobsConfig holds background job settings
type JobsConfig struct {
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	CleanupBatch    int           `mapstructure:"cleanup_batch"`
	CleanupMaxTries int           `mapstructure:"cleanup_max_tries"`
}

// envKeys lists every key that may be overridden from the environment.
// AutomaticEnv alone does not reach nested keys during Unmarshal.
var envKeys = []string{
	"server.host",
	"server.port",
	"server.base_url",
	"server.frontend_url",
	"server.read_timeout",
	"server.write_timeout",
	"server.max_upload_mb",

	"database.host",
	"database.port",
	"database.name",
	"database.user",
	"database.password",
	"database.ssl_mode",
	"database.max_connections",
	"database.min_idle_connections",

	"storage.default_backend",
	"storage.container",
	"storage.signed_url_ttl",
	"storage.azure.account_name",
	"storage.azure.account_key",
	"storage.s3.endpoint",
	"storage.s3.region",
	"storage.s3.auth_method",
	"storage.s3.access_key_id",
	"storage.s3.secret_access_key",
	"storage.s3.role_arn",
	"storage.s3.external_id",
	"storage.gcs.project_id",
	"storage.gcs.credentials_file",
	"storage.gcs.credentials_json",
	"storage.gcs.endpoint",
	"storage.local.base_path",

	"auth.session_ttl",
	"auth.password_login",
	"auth.session_store",
	"auth.oidc.enabled",
	"auth.oidc.issuer_url",
	"auth.oidc.client_id",
	"auth.oidc.client_secret",
	"auth.oidc.redirect_url",
	"auth.oidc.scopes",

	"security.cors.allowed_origins",
	"security.rate_limiting.enabled",
	"security.rate_limiting.backend",
	"security.rate_limiting.requests_per_minute",
	"security.rate_limiting.burst",
	"security.tls.enabled",
	"security.tls.cert_file",
	"security.tls.key_file",
	"security.csrf.enabled",
	"security.csrf.rotation_interval",
	"security.csrf.store",

	"redis.addr",
	"redis.password",
	"redis.db",

	"logging.level",
	"logging.format",

	"telemetry.service_name",
	"telemetry.metrics.enabled",
	"telemetry.metrics.prometheus_port",

	"audit.enabled",
	"audit.dispatch_timeout",
	"audit.log_forbidden",

	"jobs.cleanup_interval",
	"jobs.cleanup_batch",
	"jobs.cleanup_max_tries",
}

func bindEnvVars(v *viper.Viper) error {
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// newViper builds a viper instance with defaults, the optional config file and
// environment bindings applied. It is shared by Load and Watch.
func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/diligence-portal")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("DDP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Storage.Azure.AccountKey = expandEnv(cfg.Storage.Azure.AccountKey)
	cfg.Storage.S3.AccessKeyID = expandEnv(cfg.Storage.S3.AccessKeyID)
	cfg.Storage.S3.SecretAccessKey = expandEnv(cfg.Storage.S3.SecretAccessKey)
	cfg.Storage.GCS.CredentialsJSON = expandEnv(cfg.Storage.GCS.CredentialsJSON)
	cfg.Auth.OIDC.ClientSecret = expandEnv(cfg.Auth.OIDC.ClientSecret)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.frontend_url", "")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.max_upload_mb", 100)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "diligence_portal")
	v.SetDefault("database.user", "portal")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	v.SetDefault("storage.default_backend", "local")
	v.SetDefault("storage.container", "request-documents")
	v.SetDefault("storage.signed_url_ttl", "15m")
	v.SetDefault("storage.s3.auth_method", "default")
	v.SetDefault("storage.local.base_path", "./storage")

	v.SetDefault("auth.session_ttl", "8h")
	v.SetDefault("auth.password_login", true)
	v.SetDefault("auth.session_store", "memory")
	v.SetDefault("auth.oidc.enabled", false)
	v.SetDefault("auth.oidc.scopes", []string{"openid", "email", "profile"})

	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.backend", "memory")
	v.SetDefault("security.rate_limiting.requests_per_minute", 120)
	v.SetDefault("security.rate_limiting.burst", 30)
	v.SetDefault("security.tls.enabled", false)
	v.SetDefault("security.csrf.enabled", true)
	v.SetDefault("security.csrf.rotation_interval", "30m")
	v.SetDefault("security.csrf.store", "memory")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("telemetry.service_name", "diligence-portal")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.dispatch_timeout", "5s")
	v.SetDefault("audit.log_forbidden", true)

	v.SetDefault("jobs.cleanup_interval", "15m")
	v.SetDefault("jobs.cleanup_batch", 100)
	v.SetDefault("jobs.cleanup_max_tries", 10)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	if c.Storage.Container == "" {
		return fmt.Errorf("storage.container is required")
	}
	switch c.Storage.DefaultBackend {
	case "azure":
		if c.Storage.Azure.AccountName == "" || c.Storage.Azure.AccountKey == "" {
			return fmt.Errorf("storage.azure.account_name and storage.azure.account_key are required when using Azure backend")
		}
	case "s3":
		if c.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when using S3 backend")
		}
		if c.Storage.S3.AuthMethod == "assume_role" && c.Storage.S3.RoleARN == "" {
			return fmt.Errorf("storage.s3.role_arn is required for assume_role auth")
		}
	case "gcs":
	case "local":
		if c.Storage.Local.BasePath == "" {
			return fmt.Errorf("storage.local.base_path is required when using local backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be azure, s3, gcs, or local)", c.Storage.DefaultBackend)
	}

	if !c.Auth.PasswordLogin && !c.Auth.OIDC.Enabled {
		return fmt.Errorf("at least one of auth.password_login or auth.oidc.enabled must be set")
	}
	if c.Auth.OIDC.Enabled {
		if c.Auth.OIDC.IssuerURL == "" || c.Auth.OIDC.ClientID == "" || c.Auth.OIDC.ClientSecret == "" {
			return fmt.Errorf("auth.oidc.issuer_url, client_id and client_secret are required when OIDC is enabled")
		}
	}

	if s := c.Auth.SessionStore; s != "memory" && s != "redis" {
		return fmt.Errorf("invalid session store: %s (must be memory or redis)", s)
	}

	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" || c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.cert_file and security.tls.key_file are required when TLS is enabled")
		}
	}
	if b := c.Security.RateLimiting.Backend; b != "memory" && b != "redis" {
		return fmt.Errorf("invalid rate limiting backend: %s (must be memory or redis)", b)
	}
	if s := c.Security.CSRF.Store; s != "memory" && s != "redis" {
		return fmt.Errorf("invalid csrf store: %s (must be memory or redis)", s)
	}
	if c.Security.CSRF.Enabled && c.Security.CSRF.RotationInterval <= 0 {
		return fmt.Errorf("security.csrf.rotation_interval must be positive")
	}
	if c.UsesRedis() && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when a redis backend is selected")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// UsesRedis reports whether any component is configured to use redis.
func (c *Config) UsesRedis() bool {
	return c.Security.RateLimiting.Backend == "redis" ||
		c.Security.CSRF.Store == "redis" ||
		c.Auth.SessionStore == "redis"
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
