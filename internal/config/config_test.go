package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaultsAndClamps(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("SALE_RESET_SECONDS", "0")
	t.Setenv("CATALOG_CACHE_TTL_SECONDS", "not-a-number")
	t.Setenv("AUTH_LATENCY_MS", "-10")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("port default: %q", cfg.Port)
	}
	if cfg.SaleResetSeconds != 5 {
		t.Fatalf("sale reset clamp: %d", cfg.SaleResetSeconds)
	}
	if cfg.CatalogCacheTTLSeconds != 30 {
		t.Fatalf("catalog ttl fallback: %d", cfg.CatalogCacheTTLSeconds)
	}
	if cfg.AuthLatencyMillis != 250 {
		t.Fatalf("auth latency clamp: %d", cfg.AuthLatencyMillis)
	}
	if cfg.TerminalID != "caixa-01" {
		t.Fatalf("terminal default: %q", cfg.TerminalID)
	}
}
