package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32  `mapstructure:"DB_MIN_CONNS"`
	DBSchema      string `mapstructure:"DB_SCHEMA"`
	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`

	CopayAmount          float64 `mapstructure:"COPAY_AMOUNT"`
	CoinsuranceRate      float64 `mapstructure:"COINSURANCE_RATE"`
	DefaultAllowanceRate float64 `mapstructure:"DEFAULT_ALLOWANCE_RATE"`
	TimelyFilingDays     int     `mapstructure:"TIMELY_FILING_DAYS"`
	TimelyFilingWarnDays int     `mapstructure:"TIMELY_FILING_WARN_DAYS"`
	FeeScheduleFile      string  `mapstructure:"FEE_SCHEDULE_FILE"`

	BatchWorkers    int           `mapstructure:"BATCH_WORKERS"`
	JobPollInterval time.Duration `mapstructure:"JOB_POLL_INTERVAL"`
	JobMaxAttempts  int           `mapstructure:"JOB_MAX_ATTEMPTS"`
	JobRateLimit    float64       `mapstructure:"JOB_RATE_LIMIT"`
	JobLease        time.Duration `mapstructure:"JOB_LEASE"`
	OpsAddr         string        `mapstructure:"OPS_ADDR"`
}

var keys = []string{
	"ENV", "LOG_LEVEL",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_SCHEMA", "MIGRATIONS_DIR",
	"COPAY_AMOUNT", "COINSURANCE_RATE", "DEFAULT_ALLOWANCE_RATE",
	"TIMELY_FILING_DAYS", "TIMELY_FILING_WARN_DAYS", "FEE_SCHEDULE_FILE",
	"BATCH_WORKERS", "JOB_POLL_INTERVAL", "JOB_MAX_ATTEMPTS", "JOB_RATE_LIMIT", "JOB_LEASE", "OPS_ADDR",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("MIGRATIONS_DIR", "")
	v.SetDefault("COPAY_AMOUNT", 25.0)
	v.SetDefault("COINSURANCE_RATE", 0.20)
	v.SetDefault("DEFAULT_ALLOWANCE_RATE", 0.80)
	v.SetDefault("TIMELY_FILING_DAYS", 365)
	v.SetDefault("TIMELY_FILING_WARN_DAYS", 180)
	v.SetDefault("BATCH_WORKERS", 1)
	v.SetDefault("JOB_POLL_INTERVAL", "1s")
	v.SetDefault("JOB_MAX_ATTEMPTS", 3)
	v.SetDefault("JOB_RATE_LIMIT", 50.0)
	v.SetDefault("JOB_LEASE", "1m")
	v.SetDefault("OPS_ADDR", ":9090")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

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

// IsProduction returns true when the engine is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate rejects settings that would make adjudication results meaningless.
func (c *Config) Validate() error {
	if c.CopayAmount < 0 {
		return fmt.Errorf("COPAY_AMOUNT must not be negative, got %v", c.CopayAmount)
	}
	if c.CoinsuranceRate < 0 || c.CoinsuranceRate > 1 {
		return fmt.Errorf("COINSURANCE_RATE must be within [0,1], got %v", c.CoinsuranceRate)
	}
	if c.DefaultAllowanceRate < 0 || c.DefaultAllowanceRate > 1 {
		return fmt.Errorf("DEFAULT_ALLOWANCE_RATE must be within [0,1], got %v", c.DefaultAllowanceRate)
	}
	if c.TimelyFilingDays < 1 {
		return fmt.Errorf("TIMELY_FILING_DAYS must be positive, got %d", c.TimelyFilingDays)
	}
	if c.TimelyFilingWarnDays >= c.TimelyFilingDays {
		return fmt.Errorf("TIMELY_FILING_WARN_DAYS (%d) must be less than TIMELY_FILING_DAYS (%d)",
			c.TimelyFilingWarnDays, c.TimelyFilingDays)
	}
	if c.BatchWorkers < 1 {
		return fmt.Errorf("BATCH_WORKERS must be at least 1, got %d", c.BatchWorkers)
	}
	if c.JobMaxAttempts < 1 {
		return fmt.Errorf("JOB_MAX_ATTEMPTS must be at least 1, got %d", c.JobMaxAttempts)
	}
	if c.JobLease < time.Second {
		return fmt.Errorf("JOB_LEASE must be at least 1s, got %v", c.JobLease)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
