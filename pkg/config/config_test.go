package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CMC_API_KEY", "test-key")

	cfg, err := load(nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d; want 8080", cfg.HTTPPort)
	}
	if cfg.ContractAddress != DefaultContractAddress {
		t.Errorf("ContractAddress = %q; want %q", cfg.ContractAddress, DefaultContractAddress)
	}
	if cfg.ConvertCurrency != "USD" {
		t.Errorf("ConvertCurrency = %q; want USD", cfg.ConvertCurrency)
	}
	if cfg.PriceCacheTTL != time.Minute || cfg.HistoryCacheTTL != 5*time.Minute {
		t.Errorf("TTLs = %v/%v; want 1m/5m", cfg.PriceCacheTTL, cfg.HistoryCacheTTL)
	}
	if cfg.UpstreamTimeout != 5*time.Second {
		t.Errorf("UpstreamTimeout = %v; want 5s", cfg.UpstreamTimeout)
	}
	if cfg.HistoryDays != 7 {
		t.Errorf("HistoryDays = %d; want 7", cfg.HistoryDays)
	}
	if cfg.AdminEnabled() {
		t.Error("admin routes should be disabled without JWT_SECRET")
	}
}

func TestLoad_MissingAPIKey(t *testing.T) {
	t.Setenv("CMC_API_KEY", "")

	_, err := load(nil)
	if err == nil {
		t.Fatal("expected error due to missing CMC_API_KEY, got nil")
	}
	if !strings.Contains(err.Error(), "CMCAPIKey is required") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CMC_API_KEY", "test-key")
	t.Setenv("PORT", "9090")
	t.Setenv("PRICE_CACHE_TTL", "30s")
	t.Setenv("CONVERT_CURRENCY", "eur")
	t.Setenv("TOKEN_CONTRACT_ADDRESS", "0xABCDEF0123456789abcdef0123456789ABCDEF01")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := load(nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d; want 9090", cfg.HTTPPort)
	}
	if cfg.PriceCacheTTL != 30*time.Second {
		t.Errorf("PriceCacheTTL = %v; want 30s", cfg.PriceCacheTTL)
	}
	if cfg.ConvertCurrency != "EUR" {
		t.Errorf("ConvertCurrency = %q; want EUR", cfg.ConvertCurrency)
	}
	if cfg.ContractAddress != "0xabcdef0123456789abcdef0123456789abcdef01" {
		t.Errorf("ContractAddress = %q", cfg.ContractAddress)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
	if !cfg.AdminEnabled() {
		t.Error("admin routes should be enabled with JWT_SECRET")
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("CMC_API_KEY", "test-key")
	t.Setenv("PORT", "9090")

	cfg, err := load([]string{"-test.v", "-port", "7070", "-history-days", "14", "-test.run=TestX"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.HTTPPort != 7070 {
		t.Errorf("HTTPPort = %d; want 7070", cfg.HTTPPort)
	}
	if cfg.HistoryDays != 14 {
		t.Errorf("HistoryDays = %d; want 14", cfg.HistoryDays)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port not a number", "PORT", "eighty"},
		{"port out of range", "PORT", "70000"},
		{"bad duration", "UPSTREAM_TIMEOUT", "soon"},
		{"zero ttl", "PRICE_CACHE_TTL", "0s"},
		{"bad contract", "TOKEN_CONTRACT_ADDRESS", "0x1234"},
		{"bad currency", "CONVERT_CURRENCY", "dollars"},
		{"bad base url", "CMC_BASE_URL", "not a url"},
		{"no history", "HISTORY_DAYS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CMC_API_KEY", "test-key")
			t.Setenv(tt.key, tt.val)

			if _, err := load(nil); err == nil {
				t.Fatalf("expected error for %s=%q, got nil", tt.key, tt.val)
			}
		})
	}
}

func TestLoadRetention_DefaultsAndFlags(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/market_pulse")
	t.Setenv("RETENTION_METRICS_ADDR", "")

	cfg, err := loadRetention([]string{"-test.v", "-retention", "48h", "-once"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost/market_pulse" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.Retention != 48*time.Hour {
		t.Errorf("Retention = %v; want 48h", cfg.Retention)
	}
	if cfg.Interval != time.Hour {
		t.Errorf("Interval = %v; want 1h", cfg.Interval)
	}
	if !cfg.Once {
		t.Error("Once should be set by -once")
	}
	if cfg.MetricsAddr != ":9091" {
		t.Errorf("MetricsAddr = %q; want :9091", cfg.MetricsAddr)
	}
}

func TestLoadRetention_EnvAndValidation(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := loadRetention(nil)
	if err == nil || !strings.Contains(err.Error(), "DatabaseURL is required") {
		t.Fatalf("expected missing DatabaseURL error, got %v", err)
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/market_pulse")
	t.Setenv("RETENTION_INTERVAL", "soon")
	if _, err := loadRetention(nil); err == nil {
		t.Fatal("expected error for unparsable RETENTION_INTERVAL")
	}

	t.Setenv("RETENTION_INTERVAL", "15m")
	t.Setenv("RETENTION_METRICS_ADDR", "127.0.0.1:9200")
	cfg, err := loadRetention([]string{"-retention", "0s"})
	if err == nil {
		t.Fatalf("expected error for zero retention, got %+v", cfg)
	}

	cfg, err = loadRetention(nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Interval != 15*time.Minute || cfg.MetricsAddr != "127.0.0.1:9200" {
		t.Errorf("Interval/MetricsAddr = %v/%q", cfg.Interval, cfg.MetricsAddr)
	}
}

func TestLoadToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("JWT_ISSUER", "")
	t.Setenv("JWT_AUDIENCE", "ops-tools")

	cfg, err := loadToken([]string{"-subject", "alice", "-roles", "admin, viewer,", "-ttl", "10m"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Subject != "alice" || cfg.TTL != 10*time.Minute {
		t.Errorf("Subject/TTL = %q/%v", cfg.Subject, cfg.TTL)
	}
	if strings.Join(cfg.Roles, "|") != "admin|viewer" {
		t.Errorf("Roles = %v; want [admin viewer]", cfg.Roles)
	}
	if cfg.JWTIssuer != "market-pulse" || cfg.JWTAudience != "ops-tools" {
		t.Errorf("Issuer/Audience = %q/%q", cfg.JWTIssuer, cfg.JWTAudience)
	}

	if _, err := loadToken([]string{"-roles", ""}); err == nil {
		t.Error("expected error for empty role list")
	}

	t.Setenv("JWT_SECRET", "")
	if _, err := loadToken(nil); err == nil || !strings.Contains(err.Error(), "JWTSecret is required") {
		t.Errorf("expected missing JWTSecret error, got %v", err)
	}
}
