package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	// Clearinghouse connectivity. When the URL is empty the server falls
	// back to the deterministic transport simulator, which is only
	// acceptable outside production.
	ClearinghouseURL    string `mapstructure:"CLEARINGHOUSE_URL"`
	ClearinghouseAPIKey string `mapstructure:"CLEARINGHOUSE_API_KEY"`

	// Provider identity placed on every 270 inquiry.
	ProviderName string `mapstructure:"PROVIDER_NAME"`
	ProviderNPI  string `mapstructure:"PROVIDER_NPI"`

	VerifyTimeoutSeconds int `mapstructure:"VERIFY_TIMEOUT_SECONDS"`
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
	v.SetDefault("PROVIDER_NAME", "Sprout Health")
	v.SetDefault("VERIFY_TIMEOUT_SECONDS", 30)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("CLEARINGHOUSE_URL")
	v.BindEnv("CLEARINGHOUSE_API_KEY")
	v.BindEnv("PROVIDER_NAME")
	v.BindEnv("PROVIDER_NPI")
	v.BindEnv("VERIFY_TIMEOUT_SECONDS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
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

// VerifyTimeout returns the adapter deadline for one eligibility round trip.
func (c *Config) VerifyTimeout() time.Duration {
	return time.Duration(c.VerifyTimeoutSeconds) * time.Second
}

// Validate checks that the configuration is safe to run. Production refuses
// to start on the transport simulator.
func (c *Config) Validate() error {
	if c.IsProduction() && c.ClearinghouseURL == "" {
		return fmt.Errorf("CLEARINGHOUSE_URL is required in production; " +
			"the simulated transport is for development and tests only")
	}
	if c.VerifyTimeoutSeconds <= 0 {
		return fmt.Errorf("VERIFY_TIMEOUT_SECONDS must be positive, got %d", c.VerifyTimeoutSeconds)
	}
	return nil
}
