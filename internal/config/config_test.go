package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, BaseURL: "http://localhost:8080", MaxUploadMB: 100},
		Database: DatabaseConfig{
			Host: "localhost", Port: 5432, Name: "diligence_portal", User: "portal", SSLMode: "disable",
		},
		Storage: StorageConfig{
			DefaultBackend: "local",
			Container:      "request-documents",
			Local:          LocalStorageConfig{BasePath: "./storage"},
		},
		Auth: AuthConfig{PasswordLogin: true, SessionTTL: time.Hour, SessionStore: "memory"},
		Security: SecurityConfig{
			RateLimiting: RateLimitingConfig{Backend: "memory"},
			CSRF:         CSRFConfig{Enabled: true, RotationInterval: 30 * time.Minute, Store: "memory"},
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// ---------------------------------------------------------------------------
// GetDSN / GetAddress / GetFrontendURL
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "db.example.com", Port: 5433, User: "portal", Password: "pw", Name: "ddp", SSLMode: "disable",
	}
	want := "host=db.example.com port=5433 user=portal password=pw dbname=ddp sslmode=disable"
	if got := cfg.GetDSN(); got != want {
		t.Errorf("GetDSN() = %q, want %q", got, want)
	}
}

func TestGetAddress(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{"default", ServerConfig{Host: "0.0.0.0", Port: 8080}, "0.0.0.0:8080"},
		{"empty host", ServerConfig{Host: "", Port: 8080}, ":8080"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetAddress(); got != tt.want {
				t.Errorf("GetAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetFrontendURL(t *testing.T) {
	s := ServerConfig{BaseURL: "http://api.local/"}
	if got := s.GetFrontendURL(); got != "http://api.local" {
		t.Errorf("fallback = %q", got)
	}
	s.FrontendURL = "https://portal.example.com/"
	if got := s.GetFrontendURL(); got != "https://portal.example.com" {
		t.Errorf("frontend = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"missing base url", func(c *Config) { c.Server.BaseURL = "" }, "server.base_url"},
		{"missing db host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"missing container", func(c *Config) { c.Storage.Container = "" }, "storage.container"},
		{"unknown backend", func(c *Config) { c.Storage.DefaultBackend = "ftp" }, "invalid storage backend"},
		{"s3 without region", func(c *Config) { c.Storage.DefaultBackend = "s3" }, "storage.s3.region"},
		{"s3 assume role without arn", func(c *Config) {
			c.Storage.DefaultBackend = "s3"
			c.Storage.S3.Region = "eu-west-1"
			c.Storage.S3.AuthMethod = "assume_role"
		}, "role_arn"},
		{"azure without key", func(c *Config) {
			c.Storage.DefaultBackend = "azure"
			c.Storage.Azure.AccountName = "acct"
		}, "storage.azure"},
		{"gcs ok", func(c *Config) { c.Storage.DefaultBackend = "gcs" }, ""},
		{"no login method", func(c *Config) { c.Auth.PasswordLogin = false }, "auth.password_login"},
		{"oidc incomplete", func(c *Config) { c.Auth.OIDC.Enabled = true }, "auth.oidc"},
		{"tls incomplete", func(c *Config) { c.Security.TLS.Enabled = true }, "security.tls"},
		{"bad rate backend", func(c *Config) { c.Security.RateLimiting.Backend = "memcached" }, "rate limiting backend"},
		{"bad csrf store", func(c *Config) { c.Security.CSRF.Store = "cookie" }, "csrf store"},
		{"zero rotation", func(c *Config) { c.Security.CSRF.RotationInterval = 0 }, "rotation_interval"},
		{"redis without addr", func(c *Config) { c.Security.CSRF.Store = "redis" }, "redis.addr"},
		{"bad session store", func(c *Config) { c.Auth.SessionStore = "jwt" }, "session store"},
		{"redis sessions without addr", func(c *Config) { c.Auth.SessionStore = "redis" }, "redis.addr"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid logging level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, want debug from file", cfg.Logging.Level)
	}
	if cfg.Storage.Container != "request-documents" {
		t.Errorf("container = %q", cfg.Storage.Container)
	}
	if cfg.Security.CSRF.RotationInterval != 30*time.Minute {
		t.Errorf("csrf rotation = %v, want 30m", cfg.Security.CSRF.RotationInterval)
	}
	if cfg.Auth.SessionTTL != 8*time.Hour {
		t.Errorf("session ttl = %v", cfg.Auth.SessionTTL)
	}
	if cfg.Auth.SessionStore != "memory" {
		t.Errorf("session store = %q, want memory", cfg.Auth.SessionStore)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("database:\n  host: filehost\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DDP_DATABASE_HOST", "envhost")
	t.Setenv("DDP_SERVER_PORT", "9999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Host != "envhost" {
		t.Errorf("database.host = %q, want envhost", cfg.Database.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("server.port = %d, want 9999", cfg.Server.Port)
	}
}

func TestLoad_ExpandsSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("database:\n  password: ${PORTAL_TEST_DB_PW}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORTAL_TEST_DB_PW", "s3cret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Password != "s3cret" {
		t.Errorf("password = %q, want expanded value", cfg.Database.Password)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestWatch_NoFileIsNoop(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	if err := Watch("", func(*Config) { t.Error("unexpected callback") }); err != nil {
		t.Fatalf("Watch: %v", err)
	}
}
