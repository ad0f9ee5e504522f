// Package config loads recordq settings from environment variables and an
// optional config.yaml file. Environment variables use the RECORDQ_ prefix and
// take precedence over file values. Loaded settings are validated before they
// reach any component.
package config
