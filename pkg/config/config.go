package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alim08/market_pulse/pkg/validation"
	"github.com/joho/godotenv"
)

// DefaultContractAddress is the token quoted when TOKEN_CONTRACT_ADDRESS is unset.
const DefaultContractAddress = "0x1111111111166b7fe7bd91427724b487980afc69"

type Config struct {
	HTTPPort int `validate:"min=1,max=65535"`

	CMCAPIKey       string        `validate:"required"`
	CMCBaseURL      string        `validate:"required,url"`
	ContractAddress string        `validate:"contract"`
	ConvertCurrency string        `validate:"currency"`
	UpstreamTimeout time.Duration `validate:"gt=0"`

	PriceCacheTTL   time.Duration `validate:"gt=0"`
	HistoryCacheTTL time.Duration `validate:"gt=0"`
	HistoryDays     int           `validate:"min=1,max=365"`
	StreamInterval  time.Duration `validate:"gt=0"`

	RedisURL    string
	DatabaseURL string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

// Load reads an optional .env file, environment variables and application
// flags (via a local FlagSet), strips out any -test.* flags, and validates
// the result.
func Load() (*Config, error) {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	port, err := getEnvIntOrDefault("PORT", 8080)
	if err != nil {
		return nil, err
	}
	timeout, err := getEnvDurationOrDefault("UPSTREAM_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	priceTTL, err := getEnvDurationOrDefault("PRICE_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, err
	}
	historyTTL, err := getEnvDurationOrDefault("HISTORY_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	historyDays, err := getEnvIntOrDefault("HISTORY_DAYS", 7)
	if err != nil {
		return nil, err
	}
	streamInterval, err := getEnvDurationOrDefault("STREAM_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		CMCAPIKey:       os.Getenv("CMC_API_KEY"),
		CMCBaseURL:      getEnvOrDefault("CMC_BASE_URL", "https://pro-api.coinmarketcap.com"),
		ContractAddress: strings.ToLower(getEnvOrDefault("TOKEN_CONTRACT_ADDRESS", DefaultContractAddress)),
		ConvertCurrency: strings.ToUpper(getEnvOrDefault("CONVERT_CURRENCY", "USD")),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		JWTIssuer:       getEnvOrDefault("JWT_ISSUER", "market-pulse"),
		JWTAudience:     getEnvOrDefault("JWT_AUDIENCE", "market-pulse-admin"),
	}

	// Build a fresh FlagSet so we don't collide with `go test` flags
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.IntVar(&cfg.HTTPPort, "port", port, "HTTP listen port")
	fs.StringVar(&cfg.RedisURL, "redis", os.Getenv("REDIS_URL"), "Redis connection URL (optional)")
	fs.StringVar(&cfg.DatabaseURL, "database", os.Getenv("DATABASE_URL"), "Postgres connection URL (optional)")
	fs.DurationVar(&cfg.UpstreamTimeout, "upstream-timeout", timeout, "Upstream request timeout")
	fs.DurationVar(&cfg.PriceCacheTTL, "price-ttl", priceTTL, "Current price cache TTL")
	fs.DurationVar(&cfg.HistoryCacheTTL, "history-ttl", historyTTL, "Historical series cache TTL")
	fs.IntVar(&cfg.HistoryDays, "history-days", historyDays, "Days of daily closes to fetch")
	fs.DurationVar(&cfg.StreamInterval, "stream-interval", streamInterval, "Websocket push interval")

	if err := fs.Parse(appArgs(args)); err != nil {
		return nil, err
	}

	if errs := validation.ValidateStruct(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %w", errs)
	}
	return cfg, nil
}

// appArgs drops the -test.* flags `go test` passes to the binary.
func appArgs(args []string) []string {
	var out []string
	for _, arg := range args {
		if strings.HasPrefix(arg, "-test.") {
			continue
		}
		out = append(out, arg)
	}
	return out
}

// AdminEnabled reports whether the JWT-protected admin routes should be mounted.
func (c *Config) AdminEnabled() bool {
	return c.JWTSecret != ""
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s env var: %w", key, err)
	}
	return parsed, nil
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s env var: %w", key, err)
	}
	return parsed, nil
}
