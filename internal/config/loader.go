package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"jobmate/autoapply-service/internal/model"
)

// Load reads configs/config.yaml (optional), merges config.<APP_ENVIRONMENT>.yaml
// when present, applies environment overrides and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName("config." + env)
	_ = v.MergeInConfig()

	return build(v)
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	return build(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func build(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	overrideFromEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "autoapply-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")

	v.SetDefault("server.http_port", "8083")
	v.SetDefault("server.grpc_port", "9083")
	v.SetDefault("server.read_timeout", 10000)
	v.SetDefault("server.write_timeout", 10000)
	v.SetDefault("server.shutdown_timeout", 15000)

	v.SetDefault("database.postgres.url", "")
	v.SetDefault("database.postgres.max_connections", 25)
	v.SetDefault("database.postgres.max_idle", 5)
	v.SetDefault("database.postgres.auto_migrate", true)
	v.SetDefault("database.redis.url", "")

	v.SetDefault("storage.driver", DriverPostgres)

	v.SetDefault("queue.driver", DriverRedis)
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.scrape_workers", 2)
	v.SetDefault("queue.task_timeout", 180000)
	v.SetDefault("queue.pass_timeout", 1800000)
	v.SetDefault("queue.buffer", 256)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval_hours", 6)
	v.SetDefault("scheduler.run_on_start", true)

	v.SetDefault("quota.backend", DriverRedis)
	v.SetDefault("quota.limits", map[string]int{
		string(model.PortalLinkedIn):   20,
		string(model.PortalLaborum):    15,
		string(model.PortalBNE):        25,
		string(model.PortalTrabajando): 15,
		string(model.PortalAdzuna):     50,
	})

	v.SetDefault("pacing.listing_min", 1000)
	v.SetDefault("pacing.listing_max", 3000)
	v.SetDefault("pacing.portal_min", 10000)
	v.SetDefault("pacing.portal_max", 20000)

	v.SetDefault("portals.fetch_timeout", 120000)
	v.SetDefault("portals.http_timeout", 15000)
	v.SetDefault("portals.fetch_limit", 25)
	v.SetDefault("portals.submit_mode", SubmitDryRun)
	v.SetDefault("portals.apply_gateway_url", "")
	v.SetDefault("portals.default_location", "Santiago")
	v.SetDefault("portals.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("portals.endpoints", map[string]string{})
	v.SetDefault("portals.adzuna.app_id", "")
	v.SetDefault("portals.adzuna.app_key", "")
	v.SetDefault("portals.adzuna.country", "gb")

	v.SetDefault("ai.model", "gemini-2.0-flash")
	v.SetDefault("ai.timeout", 30000)
	v.SetDefault("ai.temperature", 0.7)

	v.SetDefault("notifications.email.enabled", false)
	v.SetDefault("notifications.email.from_email", "")
	v.SetDefault("notifications.email.region", "us-east-1")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		s, ok := v.Get(key).(string)
		if !ok || !strings.Contains(s, "$") {
			continue
		}
		if expanded := os.ExpandEnv(s); expanded != s {
			v.Set(key, expanded)
		}
	}
}

// overrideFromEnv honours the short variable names used by the deployment
// manifests when the nested keys were left empty.
func overrideFromEnv(cfg *Config) {
	if cfg.Database.Postgres.URL == "" {
		cfg.Database.Postgres.URL = os.Getenv("DATABASE_URL")
	}
	if cfg.Database.Redis.URL == "" {
		cfg.Database.Redis.URL = os.Getenv("REDIS_URL")
	}
	if cfg.Portals.Adzuna.AppID == "" {
		cfg.Portals.Adzuna.AppID = os.Getenv("ADZUNA_APP_ID")
	}
	if cfg.Portals.Adzuna.AppKey == "" {
		cfg.Portals.Adzuna.AppKey = os.Getenv("ADZUNA_APP_KEY")
	}
}

func validate(cfg *Config) error {
	switch cfg.Storage.Driver {
	case DriverPostgres:
		if cfg.Database.Postgres.URL == "" {
			return fmt.Errorf("database.postgres.url is required for the postgres storage driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, cfg.Storage.Driver)
	}

	for name, backend := range map[string]string{"queue.driver": cfg.Queue.Driver, "quota.backend": cfg.Quota.Backend} {
		switch backend {
		case DriverRedis:
			if cfg.Database.Redis.URL == "" {
				return fmt.Errorf("database.redis.url is required when %s is %q", name, DriverRedis)
			}
		case DriverMemory:
		default:
			return fmt.Errorf("%s must be %q or %q, got %q", name, DriverRedis, DriverMemory, backend)
		}
	}

	if cfg.Queue.Workers < 1 || cfg.Queue.ScrapeWorkers < 1 {
		return fmt.Errorf("queue.workers and queue.scrape_workers must be positive")
	}
	if cfg.Scheduler.Enabled && cfg.Scheduler.IntervalHours < 1 {
		return fmt.Errorf("scheduler.interval_hours must be a positive integer, got %d", cfg.Scheduler.IntervalHours)
	}
	if cfg.Pacing.ListingMin > cfg.Pacing.ListingMax || cfg.Pacing.PortalMin > cfg.Pacing.PortalMax {
		return fmt.Errorf("pacing minimums must not exceed maximums")
	}
	for name, n := range cfg.Quota.Limits {
		if _, err := model.ParsePortal(name); err != nil {
			return fmt.Errorf("quota.limits: %w", err)
		}
		if n < 0 {
			return fmt.Errorf("quota.limits.%s must not be negative", name)
		}
	}
	switch cfg.Portals.SubmitMode {
	case SubmitDryRun:
	case SubmitLive:
		if cfg.Portals.ApplyGatewayURL == "" {
			return fmt.Errorf("portals.apply_gateway_url is required in %q submit mode", SubmitLive)
		}
	default:
		return fmt.Errorf("portals.submit_mode must be %q or %q", SubmitDryRun, SubmitLive)
	}
	if cfg.Notifications.Email.Enabled && cfg.Notifications.Email.FromEmail == "" {
		return fmt.Errorf("notifications.email.from_email is required when email is enabled")
	}
	return nil
}
