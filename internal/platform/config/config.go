package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type HTTPConfig struct {
	Addr string
}

type AppConfig struct {
	ServiceName string
	LogLevel    string
	Env         string
	HTTP        HTTPConfig
}

const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// IsProd reports whether APP_ENV=production. Production disables every
// in-memory fallback.
func (c AppConfig) IsProd() bool {
	return c.Env == EnvProduction
}

// Load reads the settings common to every service.
func Load() (AppConfig, error) {
	cfg := AppConfig{
		ServiceName: Env("SERVICE_NAME"),
		LogLevel:    EnvOr("LOG_LEVEL", "info"),
		Env:         strings.ToLower(EnvOr("APP_ENV", EnvDevelopment)),
		HTTP:        HTTPConfig{Addr: EnvOr("HTTP_ADDR", ":8080")},
	}
	if err := Required("SERVICE_NAME"); err != nil {
		return AppConfig{}, err
	}
	switch cfg.Env {
	case EnvDevelopment, EnvStaging, EnvProduction, EnvTest:
	default:
		return AppConfig{}, fmt.Errorf("APP_ENV %q is not one of development, staging, production, test", cfg.Env)
	}
	return cfg, nil
}

// Env returns the trimmed value of key.
func Env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// EnvOr returns the trimmed value of key, or fallback when it is blank.
func EnvOr(key, fallback string) string {
	if v := Env(key); v != "" {
		return v
	}
	return fallback
}

// Required reports every listed key that is blank in one error.
func Required(keys ...string) error {
	var errs []error
	for _, k := range keys {
		if Env(k) == "" {
			errs = append(errs, fmt.Errorf("%s is required", k))
		}
	}
	return errors.Join(errs...)
}

// EnvInt reads a positive integer, returning fallback when unset or invalid.
func EnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// EnvDuration reads a positive time.Duration such as "5s".
func EnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// EnvFloat reads a positive float64.
func EnvFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}
