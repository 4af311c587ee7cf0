package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Remote     RemoteConfig     `yaml:"remote"`
	Auth       AuthConfig       `yaml:"auth"`
	Sync       SyncConfig       `yaml:"sync"`
	API        APIConfig        `yaml:"api"`
	Backup     BackupConfig     `yaml:"backup"`
	Exports    ExportConfig     `yaml:"exports"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path          string `yaml:"path"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// RemoteConfig describes the remote booking API (system of record).
type RemoteConfig struct {
	BaseURL        string  `yaml:"base_url"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RPS            float64 `yaml:"rps"`
	Burst          int     `yaml:"burst"`
	TutorsCacheTTL int     `yaml:"tutors_cache_ttl_seconds"`
}

type AuthConfig struct {
	UserID      string       `yaml:"user_id"`
	StaticToken string       `yaml:"static_token"`
	OAuth2      OAuth2Config `yaml:"oauth2"`
}

type OAuth2Config struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	TokenURL     string   `yaml:"token_url"`
	RefreshToken string   `yaml:"refresh_token"`
	Scopes       []string `yaml:"scopes"`
}

type SyncConfig struct {
	// Guard selects the single-flight lock: "memory", "redis" or "failover".
	Guard           string `yaml:"guard"`
	GuardKey        string `yaml:"guard_key"`
	GuardTTLSeconds int    `yaml:"guard_ttl_seconds"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

const (
	GuardMemory   = "memory"
	GuardRedis    = "redis"
	GuardFailover = "failover"
)

func Load(configPath string) (*Config, error) {
	// .env is optional; variables already in the environment win.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Remote.BaseURL == "" {
		return errors.New("remote base_url is required")
	}
	u, err := url.Parse(c.Remote.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("remote base_url is invalid: %q", c.Remote.BaseURL)
	}

	switch c.Sync.Guard {
	case GuardMemory:
	case GuardRedis, GuardFailover:
		if c.Redis.Address == "" {
			return fmt.Errorf("sync guard %q requires redis.address", c.Sync.Guard)
		}
	default:
		return fmt.Errorf("unknown sync guard %q", c.Sync.Guard)
	}

	if c.Auth.OAuth2.RefreshToken != "" && c.Auth.OAuth2.TokenURL == "" {
		return errors.New("auth.oauth2.token_url is required with a refresh token")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "skolar"
	}
	if c.Database.BusyTimeoutMS == 0 {
		c.Database.BusyTimeoutMS = 5000
	}
	c.Remote.BaseURL = strings.TrimRight(c.Remote.BaseURL, "/")
	if c.Remote.TimeoutSeconds == 0 {
		c.Remote.TimeoutSeconds = 10
	}
	if c.Remote.Burst == 0 {
		c.Remote.Burst = 5
	}
	if c.Sync.Guard == "" {
		c.Sync.Guard = GuardMemory
	}
	if c.Sync.GuardKey == "" {
		c.Sync.GuardKey = "skolar:sync:lock"
	}
	if c.Sync.GuardTTLSeconds == 0 {
		c.Sync.GuardTTLSeconds = 300
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
