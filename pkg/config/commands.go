package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alim08/market_pulse/pkg/validation"
	"github.com/joho/godotenv"
)

// RetentionConfig drives cmd/retention.
type RetentionConfig struct {
	DatabaseURL string        `validate:"required"`
	Retention   time.Duration `validate:"gt=0"`
	Interval    time.Duration `validate:"gt=0"`
	Once        bool
	// MetricsAddr is where the long-running pruner serves /metrics; empty disables it.
	MetricsAddr string
}

// LoadRetention reads the retention job's settings the same way Load does.
func LoadRetention() (*RetentionConfig, error) {
	_ = godotenv.Load()
	return loadRetention(os.Args[1:])
}

func loadRetention(args []string) (*RetentionConfig, error) {
	retention, err := getEnvDurationOrDefault("RETENTION_WINDOW", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	interval, err := getEnvDurationOrDefault("RETENTION_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	cfg := &RetentionConfig{}
	fs := flag.NewFlagSet("retention", flag.ContinueOnError)
	fs.StringVar(&cfg.DatabaseURL, "database", os.Getenv("DATABASE_URL"), "Postgres connection URL")
	fs.DurationVar(&cfg.Retention, "retention", retention, "how long archived rows are kept")
	fs.DurationVar(&cfg.Interval, "interval", interval, "time between retention runs")
	fs.BoolVar(&cfg.Once, "once", false, "run a single pass and exit")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", getEnvOrDefault("RETENTION_METRICS_ADDR", ":9091"), "listen address for /metrics, empty to disable")
	if err := fs.Parse(appArgs(args)); err != nil {
		return nil, err
	}

	if errs := validation.ValidateStruct(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid retention config: %w", errs)
	}
	return cfg, nil
}

// TokenConfig drives cmd/admintoken. The JWT settings match the server's.
type TokenConfig struct {
	Subject string        `validate:"required"`
	Roles   []string      `validate:"min=1,dive,required"`
	TTL     time.Duration `validate:"gt=0"`

	JWTSecret   string `validate:"required"`
	JWTIssuer   string `validate:"required"`
	JWTAudience string `validate:"required"`
}

// LoadToken reads the token minter's settings.
func LoadToken() (*TokenConfig, error) {
	_ = godotenv.Load()
	return loadToken(os.Args[1:])
}

func loadToken(args []string) (*TokenConfig, error) {
	cfg := &TokenConfig{
		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTIssuer:   getEnvOrDefault("JWT_ISSUER", "market-pulse"),
		JWTAudience: getEnvOrDefault("JWT_AUDIENCE", "market-pulse-admin"),
	}

	var roles string
	fs := flag.NewFlagSet("admintoken", flag.ContinueOnError)
	fs.StringVar(&cfg.Subject, "subject", "operator", "token subject")
	fs.StringVar(&roles, "roles", "admin", "comma-separated roles")
	fs.DurationVar(&cfg.TTL, "ttl", time.Hour, "token lifetime")
	if err := fs.Parse(appArgs(args)); err != nil {
		return nil, err
	}
	for _, r := range strings.Split(roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			cfg.Roles = append(cfg.Roles, r)
		}
	}

	if errs := validation.ValidateStruct(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid token config: %w", errs)
	}
	return cfg, nil
}
