// Package config loads and validates the service configuration at startup.
// Fail-fast: if a required value is missing, Load returns an error and the
// process exits.
package config

import (
	"time"

	"jobmate/autoapply-service/internal/model"
)

// Config is the root configuration tree.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Server        ServerConfig       `mapstructure:"server"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Queue         QueueConfig        `mapstructure:"queue"`
	Scheduler     SchedulerConfig    `mapstructure:"scheduler"`
	Quota         QuotaConfig        `mapstructure:"quota"`
	Pacing        PacingConfig       `mapstructure:"pacing"`
	Portals       PortalsConfig      `mapstructure:"portals"`
	AI            AIConfig           `mapstructure:"ai"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	HTTPPort        string `mapstructure:"http_port"`
	GRPCPort        string `mapstructure:"grpc_port"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	URL            string `mapstructure:"url"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// Storage, queue and quota backends.
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type QueueConfig struct {
	Driver        string `mapstructure:"driver"`
	Workers       int    `mapstructure:"workers"`        // application pipeline workers
	ScrapeWorkers int    `mapstructure:"scrape_workers"` // concurrent user passes
	TaskTimeout   int    `mapstructure:"task_timeout"`   // milliseconds
	PassTimeout   int    `mapstructure:"pass_timeout"`   // milliseconds
	Buffer        int    `mapstructure:"buffer"`
}

type SchedulerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	IntervalHours int  `mapstructure:"interval_hours"`
	RunOnStart    bool `mapstructure:"run_on_start"`
}

type QuotaConfig struct {
	Backend string         `mapstructure:"backend"`
	Limits  map[string]int `mapstructure:"limits"`
}

// PortalLimits converts the configured ceilings to portal-keyed limits.
// Unknown portal names are dropped.
func (q QuotaConfig) PortalLimits() map[model.Portal]int {
	out := make(map[model.Portal]int, len(q.Limits))
	for name, n := range q.Limits {
		p, err := model.ParsePortal(name)
		if err != nil {
			continue
		}
		out[p] = n
	}
	return out
}

type PacingConfig struct {
	ListingMin int `mapstructure:"listing_min"` // milliseconds
	ListingMax int `mapstructure:"listing_max"`
	PortalMin  int `mapstructure:"portal_min"`
	PortalMax  int `mapstructure:"portal_max"`
}

// Submit modes.
const (
	SubmitDryRun = "dry_run"
	SubmitLive   = "live"
)

type PortalsConfig struct {
	FetchTimeout    int               `mapstructure:"fetch_timeout"` // milliseconds
	HTTPTimeout     int               `mapstructure:"http_timeout"`  // milliseconds
	FetchLimit      int               `mapstructure:"fetch_limit"`
	SubmitMode      string            `mapstructure:"submit_mode"`
	ApplyGatewayURL string            `mapstructure:"apply_gateway_url"`
	DefaultLocation string            `mapstructure:"default_location"`
	UserAgent       string            `mapstructure:"user_agent"`
	Endpoints       map[string]string `mapstructure:"endpoints"`
	Adzuna          AdzunaConfig      `mapstructure:"adzuna"`
}

type AdzunaConfig struct {
	AppID   string `mapstructure:"app_id"`
	AppKey  string `mapstructure:"app_key"`
	Country string `mapstructure:"country"`
}

type AIConfig struct {
	Model       string  `mapstructure:"model"`
	Timeout     int     `mapstructure:"timeout"` // milliseconds
	Temperature float64 `mapstructure:"temperature"`
}

type NotificationConfig struct {
	Email EmailConfig `mapstructure:"email"`
}

type EmailConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	FromEmail string `mapstructure:"from_email"`
	Region    string `mapstructure:"region"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Duration converts milliseconds from config to time.Duration.
func Duration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
