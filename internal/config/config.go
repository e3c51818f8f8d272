package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	activeMu sync.Mutex
	active   *viper.Viper
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	config := GetDefaults()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/compliance-sentinel/")
	v.AddConfigPath("$HOME/.compliance-sentinel/")

	// Environment variable overrides, e.g. SENTINEL_SERVER_PORT
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	activeMu.Lock()
	active = v
	activeMu.Unlock()

	return config, nil
}

// bindEnvKeys registers keys that are commonly set only through the
// environment, since AutomaticEnv ignores keys viper has never seen.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"server.port",
		"server.max_content_length",
		"engine.legacy_pattern_offsets",
		"logging.level",
		"logging.format",
		"rate_limit.enabled",
		"rate_limit.requests_per_minute",
		"cache.enabled",
		"cache.redis_url",
		"store.enabled",
		"store.driver",
		"store.dsn",
		"websocket.username",
		"websocket.password",
		"metrics.enabled",
	} {
		_ = v.BindEnv(key)
	}
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Server.MaxContentLength <= 0 {
		return fmt.Errorf("invalid max content length: %d", config.Server.MaxContentLength)
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.RateLimit.Enabled && config.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("invalid rate limit: %d requests per minute", config.RateLimit.RequestsPerMinute)
	}

	if config.Store.Enabled {
		if config.Store.Driver != "sqlite" && config.Store.Driver != "postgres" {
			return fmt.Errorf("invalid store driver: %s (must be sqlite or postgres)", config.Store.Driver)
		}
		if config.Store.DSN == "" {
			return fmt.Errorf("store dsn is required when the store is enabled")
		}
	}

	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("cache redis_url is required when the cache is enabled")
	}

	if config.Scheduler.RetentionSchedule != "" && config.Scheduler.RetentionPeriod <= 0 {
		return fmt.Errorf("retention_period must be positive when retention_schedule is set")
	}

	if config.Batch.WorkerCount <= 0 || config.Batch.BatchSize <= 0 {
		return fmt.Errorf("invalid batch settings: %d workers, batch size %d", config.Batch.WorkerCount, config.Batch.BatchSize)
	}

	return nil
}

// Watch starts watching the configuration file loaded by Load for changes.
// The callback receives each new configuration that passes validation;
// invalid edits are reported through onError and otherwise ignored.
func Watch(callback func(*Config), onError func(error)) error {
	activeMu.Lock()
	v := active
	activeMu.Unlock()

	if v == nil {
		return fmt.Errorf("configuration has not been loaded")
	}
	if v.ConfigFileUsed() == "" {
		return fmt.Errorf("no configuration file to watch")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := v.Unmarshal(newConfig); err != nil {
			reportError(onError, fmt.Errorf("failed to unmarshal %s: %w", e.Name, err))
			return
		}

		if err := validateConfig(newConfig); err != nil {
			reportError(onError, fmt.Errorf("ignoring invalid %s: %w", e.Name, err))
			return
		}

		callback(newConfig)
	})
	v.WatchConfig()

	return nil
}

func reportError(onError func(error), err error) {
	if onError != nil {
		onError(err)
	}
}
