package config

import "time"

// Supported task pool backends.
const (
	DriverPostgres = "postgres"
	DriverPebble   = "pebble"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Store    StoreConfig    `mapstructure:"store" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
// URL is only required when the postgres driver is selected.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// StoreConfig selects the backend holding the task pool, archive and users.
type StoreConfig struct {
	Driver    string `mapstructure:"driver" validate:"required,oneof=postgres pebble memory"`
	PebbleDir string `mapstructure:"pebble_dir"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// QueueConfig holds the lease engine settings.
type QueueConfig struct {
	// LeaseTTLSeconds is the process-wide lease lifetime. A lease not renewed
	// within this window becomes reclaimable by the next acquire.
	LeaseTTLSeconds int `mapstructure:"lease_ttl_seconds" validate:"required,gt=0"`

	// CurrentGroupKey is the group new intake tasks are filed under.
	CurrentGroupKey string `mapstructure:"current_group_key"`

	// RecordTimezone is the IANA zone used for the archive's human readable record time.
	RecordTimezone string `mapstructure:"record_timezone" validate:"required"`
}

// LeaseTTL returns the configured lease lifetime as a duration.
func (q QueueConfig) LeaseTTL() time.Duration {
	return time.Duration(q.LeaseTTLSeconds) * time.Second
}

// TokenLifetime returns the access token lifetime as a duration.
func (a AuthConfig) TokenLifetime() time.Duration {
	return time.Duration(a.TokenLifetimeMinutes) * time.Minute
}
