package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	JWTSecret   string `mapstructure:"JWT_SECRET"`
	JWTIssuer   string `mapstructure:"JWT_ISSUER"`
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`

	// Grant lifetime per urgency level, in minutes.
	ExpiryCriticalMin int `mapstructure:"EXPIRY_CRITICAL_MINUTES"`
	ExpiryHighMin     int `mapstructure:"EXPIRY_HIGH_MINUTES"`
	ExpiryMediumMin   int `mapstructure:"EXPIRY_MEDIUM_MINUTES"`
	ExpiryLowMin      int `mapstructure:"EXPIRY_LOW_MINUTES"`

	RiskAccessThreshold int `mapstructure:"RISK_ACCESS_THRESHOLD"`

	SweepIntervalSec int `mapstructure:"SWEEP_INTERVAL_SECONDS"`

	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("EXPIRY_CRITICAL_MINUTES", 60)
	v.SetDefault("EXPIRY_HIGH_MINUTES", 120)
	v.SetDefault("EXPIRY_MEDIUM_MINUTES", 240)
	v.SetDefault("EXPIRY_LOW_MINUTES", 480)
	v.SetDefault("RISK_ACCESS_THRESHOLD", 10)
	v.SetDefault("SWEEP_INTERVAL_SECONDS", 60)
	v.SetDefault("MIGRATIONS_DIR", "migrations")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("JWT_ISSUER")
	v.BindEnv("JWT_AUDIENCE")
	v.BindEnv("EXPIRY_CRITICAL_MINUTES")
	v.BindEnv("EXPIRY_HIGH_MINUTES")
	v.BindEnv("EXPIRY_MEDIUM_MINUTES")
	v.BindEnv("EXPIRY_LOW_MINUTES")
	v.BindEnv("RISK_ACCESS_THRESHOLD")
	v.BindEnv("SWEEP_INTERVAL_SECONDS")
	v.BindEnv("MIGRATIONS_DIR")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Outside of
// development mode a JWT secret is mandatory so that authentication is
// actually enforced.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set when ENV is not development; refusing to start without authentication")
	}
	if c.RiskAccessThreshold <= 0 {
		return fmt.Errorf("RISK_ACCESS_THRESHOLD must be positive, got %d", c.RiskAccessThreshold)
	}
	for name, mins := range map[string]int{
		"EXPIRY_CRITICAL_MINUTES": c.ExpiryCriticalMin,
		"EXPIRY_HIGH_MINUTES":     c.ExpiryHighMin,
		"EXPIRY_MEDIUM_MINUTES":   c.ExpiryMediumMin,
		"EXPIRY_LOW_MINUTES":      c.ExpiryLowMin,
	} {
		if mins <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, mins)
		}
	}
	return nil
}

// SweepInterval returns the expiry sweeper period.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}
