package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Backend       BackendConfig       `mapstructure:"backend"`
	Session       SessionConfig       `mapstructure:"session"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Permissions   PermissionsConfig   `mapstructure:"permissions"`
	Dashboard     DashboardConfig     `mapstructure:"dashboard"`
	Login         LoginConfig         `mapstructure:"login"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

// BackendConfig points at the tax-free REST API every screen is driven by.
type BackendConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	StatusProbePath string        `mapstructure:"status_probe_path"`
	ProbeInterval   time.Duration `mapstructure:"probe_interval"`
	RequestsPerSec  float64       `mapstructure:"requests_per_sec"`
	Burst           int           `mapstructure:"burst"`
}

type SessionConfig struct {
	CookieName            string        `mapstructure:"cookie_name"`
	SigningSecret         string        `mapstructure:"signing_secret"`
	EncryptionKey         string        `mapstructure:"encryption_key"`
	TTL                   time.Duration `mapstructure:"ttl"`
	MaintenanceMessageTTL time.Duration `mapstructure:"maintenance_message_ttl"`
	ReapInterval          time.Duration `mapstructure:"reap_interval"`
	SecureCookie          bool          `mapstructure:"secure_cookie"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

// PermissionsConfig controls how long the guard waits for the permission
// payload and which roles bypass granular checks.
type PermissionsConfig struct {
	LoadWait     time.Duration `mapstructure:"load_wait"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	GranularRole []string      `mapstructure:"granular_roles"`
}

type DashboardConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	BorderPageSize  int           `mapstructure:"border_page_size"`
	AgentPageSize   int           `mapstructure:"agent_page_size"`
}

type LoginConfig struct {
	AttemptsPerMinute int `mapstructure:"attempts_per_minute"`
	Burst             int `mapstructure:"burst"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Env   string `mapstructure:"env"`
	Level string `mapstructure:"level"`
}

// ----------------- DEFAULTS -----------------

func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = 15 * time.Second
	}
	if c.Backend.StatusProbePath == "" {
		c.Backend.StatusProbePath = "/api/taxfree/status/"
	}
	if c.Backend.ProbeInterval <= 0 {
		c.Backend.ProbeInterval = 15 * time.Second
	}
	if c.Backend.RequestsPerSec <= 0 {
		c.Backend.RequestsPerSec = 50
	}
	if c.Backend.Burst <= 0 {
		c.Backend.Burst = 100
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "taxfree_session"
	}
	if c.Session.TTL <= 0 {
		c.Session.TTL = 12 * time.Hour
	}
	if c.Session.MaintenanceMessageTTL <= 0 {
		c.Session.MaintenanceMessageTTL = 10 * time.Minute
	}
	if c.Session.ReapInterval <= 0 {
		c.Session.ReapInterval = 10 * time.Minute
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "pgx"
	}
	if c.Permissions.LoadWait <= 0 {
		c.Permissions.LoadWait = 1500 * time.Millisecond
	}
	if c.Permissions.CacheTTL <= 0 {
		c.Permissions.CacheTTL = 5 * time.Minute
	}
	if len(c.Permissions.GranularRole) == 0 {
		c.Permissions.GranularRole = []string{"ADMIN", "AUDITOR"}
	}
	if c.Dashboard.RefreshInterval <= 0 {
		c.Dashboard.RefreshInterval = 30 * time.Second
	}
	if c.Dashboard.BorderPageSize <= 0 {
		c.Dashboard.BorderPageSize = 5
	}
	if c.Dashboard.AgentPageSize <= 0 {
		c.Dashboard.AgentPageSize = 10
	}
	if c.Login.AttemptsPerMinute <= 0 {
		c.Login.AttemptsPerMinute = 10
	}
	if c.Login.Burst <= 0 {
		c.Login.Burst = 5
	}
	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = "/metrics"
	}
}

// LoadConfigFromEnv builds the configuration from plain environment
// variables, used by container deployments without a config file.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvAsInt("PORT", 8080),
			BaseURL:        getEnv("BASE_URL", ""),
			AllowedOrigins: getEnv("ALLOWED_ORIGINS", ""),
			ReadTimeout:    getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("WRITE_TIMEOUT", 0),
			IdleTimeout:    getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
		},
		Backend: BackendConfig{
			BaseURL:         getEnv("BACKEND_BASE_URL", ""),
			Timeout:         getEnvAsDuration("BACKEND_TIMEOUT", 15*time.Second),
			StatusProbePath: getEnv("BACKEND_STATUS_PROBE_PATH", ""),
		},
		Session: SessionConfig{
			CookieName:    getEnv("SESSION_COOKIE_NAME", ""),
			SigningSecret: getEnv("SESSION_SIGNING_SECRET", ""),
			EncryptionKey: getEnv("SESSION_ENCRYPTION_KEY", ""),
			TTL:           getEnvAsDuration("SESSION_TTL", 12*time.Hour),
			SecureCookie:  getEnv("SESSION_SECURE_COOKIE", "true") == "true",
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "pgx"),
			Source:       getEnv("DB_SOURCE", ""),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		Dashboard: DashboardConfig{
			RefreshInterval: getEnvAsDuration("DASHBOARD_REFRESH_INTERVAL", 30*time.Second),
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{Enabled: getEnv("METRICS_ENABLED", "false") == "true"},
			Logging: LoggingConfig{
				Env:   getEnv("APP_ENV", "production"),
				Level: getEnv("LOG_LEVEL", "info"),
			},
		},
	}
	if roles := getEnv("PERMISSIONS_GRANULAR_ROLES", ""); roles != "" {
		for _, role := range strings.Split(roles, ",") {
			cfg.Permissions.GranularRole = append(cfg.Permissions.GranularRole, strings.TrimSpace(role))
		}
	}
	cfg.ApplyDefaults()
	return cfg
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Backend.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("backend config: %v", err))
	}

	if err := c.Session.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("session config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		for _, origin := range c.Origins() {
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *ServerConfig) Origins() []string {
	if c.AllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

func (c *BackendConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base_url %q", c.BaseURL)
	}
	return nil
}

func (c *SessionConfig) Validate() error {
	if len(c.SigningSecret) < 32 {
		return errors.New("signing_secret must be at least 32 characters")
	}
	if len(c.EncryptionKey) != 32 {
		return errors.New("encryption_key must be exactly 32 bytes")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}
