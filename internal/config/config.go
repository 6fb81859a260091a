package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"konsult/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	Google     GoogleConfig     `yaml:"google"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	PrometheusPort    int    `yaml:"prometheus_port"`
	HealthCheckPort   int    `yaml:"health_check_port"`
	LogLevel          string `yaml:"log_level"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
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
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type SchedulerConfig struct {
	// IncrementMinutes is the fallback template granularity; consultants
	// may override it per profile.
	IncrementMinutes int `yaml:"increment_minutes"`
	// DefaultTimezone is applied to seeded consultants without one.
	DefaultTimezone string `yaml:"default_timezone"`
}

type ReconcileConfig struct {
	MaxRetries   int `yaml:"max_retries"`
	RetryDelayMS int `yaml:"retry_delay_ms"`
}

// RetryDelay returns the poll spacing as a duration.
func (c ReconcileConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

type GoogleConfig struct {
	GoogleCredentialsFile string `yaml:"credentials_file"`
	BookingSpreadSheetID  string `yaml:"bookings_spreadsheet_id"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env отсутствие файла не считается ошибкой
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
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

	if c.Scheduler.IncrementMinutes < 0 {
		return errors.New("scheduler increment_minutes must be positive")
	}

	if c.Reconcile.MaxRetries < 0 || c.Reconcile.RetryDelayMS < 0 {
		return errors.New("reconcile retries and delay must be positive")
	}

	return nil
}

// ValidateConsultantSeeds rejects duplicate names and malformed templates
// before anything reaches the store.
func ValidateConsultantSeeds(seeds []models.ConsultantSeed) error {
	names := make(map[string]bool)
	for _, seed := range seeds {
		if seed.Name == "" {
			return errors.New("consultant with empty name")
		}
		if names[seed.Name] {
			return fmt.Errorf("duplicate consultant name: %s", seed.Name)
		}
		names[seed.Name] = true

		if seed.Timezone != "" {
			if _, err := time.LoadLocation(seed.Timezone); err != nil {
				return fmt.Errorf("consultant %q: invalid timezone %q", seed.Name, seed.Timezone)
			}
		}

		for _, entry := range seed.Template {
			if entry.Weekday < 0 || entry.Weekday > 6 {
				return fmt.Errorf("consultant %q: invalid weekday %d", seed.Name, entry.Weekday)
			}
			for _, start := range entry.StartTimes {
				if _, err := time.Parse(models.SlotTimeFormat, start); err != nil {
					return fmt.Errorf("consultant %q: invalid start time %q", seed.Name, start)
				}
			}
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	if c.Scheduler.IncrementMinutes == 0 {
		c.Scheduler.IncrementMinutes = models.DefaultIncrementMinutes
	}
	if c.Scheduler.DefaultTimezone == "" {
		c.Scheduler.DefaultTimezone = "UTC"
	}

	if c.Reconcile.MaxRetries == 0 {
		c.Reconcile.MaxRetries = models.ReconcileMaxRetries
	}
	if c.Reconcile.RetryDelayMS == 0 {
		c.Reconcile.RetryDelayMS = int(models.ReconcileRetryDelay / time.Millisecond)
	}
}
