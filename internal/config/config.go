package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Overlap modes accepted by SCHEDULING_OVERLAP_MODE.
const (
	OverlapStartInWindow = "start-in-window"
	OverlapInterval      = "interval"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	JWTSecret          string        `mapstructure:"JWT_SECRET"`
	JWTIssuer          string        `mapstructure:"JWT_ISSUER"`
	JWTAccessTTL       time.Duration `mapstructure:"JWT_ACCESS_TTL"`
	JWTRefreshTTL      time.Duration `mapstructure:"JWT_REFRESH_TTL"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ClinicTimezone     string        `mapstructure:"CLINIC_TIMEZONE"`
	OverlapMode        string        `mapstructure:"SCHEDULING_OVERLAP_MODE"`
	EnforceTransitions bool          `mapstructure:"SCHEDULING_ENFORCE_TRANSITIONS"`
	BookingLockTTL     time.Duration `mapstructure:"BOOKING_LOCK_TTL"`
	DashboardCacheTTL  time.Duration `mapstructure:"DASHBOARD_CACHE_TTL"`
	MigrationsDir      string        `mapstructure:"MIGRATIONS_DIR"`
}

var envKeys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "JWT_SECRET", "JWT_ISSUER", "JWT_ACCESS_TTL", "JWT_REFRESH_TTL",
	"CORS_ORIGINS", "REQUEST_TIMEOUT", "CLINIC_TIMEZONE", "SCHEDULING_OVERLAP_MODE",
	"SCHEDULING_ENFORCE_TRANSITIONS", "BOOKING_LOCK_TTL", "DASHBOARD_CACHE_TTL",
	"MIGRATIONS_DIR",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("JWT_ISSUER", "clinic-server")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("CLINIC_TIMEZONE", "UTC")
	v.SetDefault("SCHEDULING_OVERLAP_MODE", OverlapStartInWindow)
	v.SetDefault("SCHEDULING_ENFORCE_TRANSITIONS", true)
	v.SetDefault("BOOKING_LOCK_TTL", "5s")
	v.SetDefault("DASHBOARD_CACHE_TTL", "30s")
	v.SetDefault("MIGRATIONS_DIR", "")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves CLINIC_TIMEZONE. Calendar-day filters are evaluated in it.
func (c *Config) Location() (*time.Location, error) {
	if c.ClinicTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if !c.IsDev() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters outside development (current ENV=%q)", c.Env)
	}
	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL and JWT_REFRESH_TTL must be positive")
	}
	if c.OverlapMode != OverlapStartInWindow && c.OverlapMode != OverlapInterval {
		return fmt.Errorf("SCHEDULING_OVERLAP_MODE must be %q or %q, got %q",
			OverlapStartInWindow, OverlapInterval, c.OverlapMode)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
