package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATA_DIR", "")
	t.Setenv("SYNC_INTERVAL_SECONDS", "")
	t.Setenv("ADMIN_USERNAME", "")
	t.Setenv("ADMIN_PASSWORD", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.DataDir != "data" {
		t.Fatalf("expected default data dir, got %q", cfg.DataDir)
	}
	if cfg.SyncIntervalSeconds != 30 {
		t.Fatalf("expected default sync interval 30, got %d", cfg.SyncIntervalSeconds)
	}
	if cfg.AdminSeed.Username != "DROP" || cfg.AdminSeed.Password != "072024" {
		t.Fatalf("unexpected admin seed: %+v", cfg.AdminSeed)
	}
	if cfg.StaffSeed.Username != "staff" || cfg.StaffSeed.Password != "staff123" {
		t.Fatalf("unexpected staff seed: %+v", cfg.StaffSeed)
	}
}

func TestLoadDoesNotInjectWeakAuthDefault(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadRejectsBadSyncInterval(t *testing.T) {
	t.Setenv("SYNC_INTERVAL_SECONDS", "garbage")
	if cfg := Load(); cfg.SyncIntervalSeconds != 30 {
		t.Fatalf("expected fallback interval, got %d", cfg.SyncIntervalSeconds)
	}

	t.Setenv("SYNC_INTERVAL_SECONDS", "0")
	if cfg := Load(); cfg.SyncIntervalSeconds != 30 {
		t.Fatalf("expected fallback interval for zero, got %d", cfg.SyncIntervalSeconds)
	}
}

func TestAddress(t *testing.T) {
	t.Setenv("PORT", "9191")
	if got := Load().Address(); got != ":9191" {
		t.Fatalf("expected :9191, got %q", got)
	}
}
