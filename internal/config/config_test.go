package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("SEED_ADMIN_PASSWORD", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.SeedAdminPassword != "" {
		t.Fatalf("expected empty SEED_ADMIN_PASSWORD when unset, got %q", cfg.SeedAdminPassword)
	}
}

func TestLoadFallsBackOnBadNumbers(t *testing.T) {
	t.Setenv("WORKER_POOL_SIZE", "not-a-number")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-3")

	cfg := Load()
	if cfg.WorkerPoolSize != 4 {
		t.Fatalf("WorkerPoolSize = %d, want fallback 4", cfg.WorkerPoolSize)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("AccessTokenTTLMinutes = %d, want fallback 480", cfg.AccessTokenTTLMinutes)
	}
}

func TestAddress(t *testing.T) {
	t.Setenv("PORT", "9090")
	cfg := Load()
	if cfg.Address() != ":9090" {
		t.Fatalf("Address() = %q", cfg.Address())
	}
}
