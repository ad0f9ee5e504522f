package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // record_timezone must resolve without host zoneinfo

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// envPrefix is prepended to every environment variable name, e.g. RECORDQ_SERVER_PORT.
const envPrefix = "RECORDQ"

// keys lists every configuration key so that viper binds each one to its
// environment variable even when no config file mentions it.
var keys = []string{
	"server.port",
	"server.log_level",
	"database.url",
	"store.driver",
	"store.pebble_dir",
	"auth.jwt_secret",
	"auth.token_lifetime_minutes",
	"queue.lease_ttl_seconds",
	"queue.current_group_key",
	"queue.record_timezone",
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom behaves like Load but reads the given config file instead of
// searching the working directory. An empty path falls back to the search.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("store.driver", DriverPostgres)
	v.SetDefault("auth.token_lifetime_minutes", 30)
	v.SetDefault("queue.lease_ttl_seconds", 300)
	v.SetDefault("queue.record_timezone", "America/Toronto")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tags and the driver-dependent requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	switch c.Store.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("config validation failed: database.url is required for the %s driver", DriverPostgres)
		}
	case DriverPebble:
		if c.Store.PebbleDir == "" {
			return fmt.Errorf("config validation failed: store.pebble_dir is required for the %s driver", DriverPebble)
		}
	}

	if _, err := time.LoadLocation(c.Queue.RecordTimezone); err != nil {
		return fmt.Errorf("config validation failed: queue.record_timezone: %w", err)
	}

	return nil
}
