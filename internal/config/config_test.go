package config

import (
	"testing"
	"time"
)

func TestLoad_valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 15s", cfg.Server.ReadTimeout)
	}
	if cfg.Identity.Issuer != "https://auth.example.com" {
		t.Errorf("Identity.Issuer = %q", cfg.Identity.Issuer)
	}
	if cfg.Identity.JWKSURL != "https://auth.example.com/.well-known/jwks.json" {
		t.Errorf("Identity.JWKSURL = %q", cfg.Identity.JWKSURL)
	}
	if len(cfg.Identity.Algorithms) != 2 {
		t.Errorf("Identity.Algorithms = %v, want 2 entries", cfg.Identity.Algorithms)
	}
	if cfg.SLA.ScanInterval != time.Minute {
		t.Errorf("SLA.ScanInterval = %v, want 1m", cfg.SLA.ScanInterval)
	}
	if !cfg.SLA.ExtendDeadlineOnReassign {
		t.Error("SLA.ExtendDeadlineOnReassign = false, want true")
	}
	if cfg.SLA.UpcomingWindow != 48*time.Hour {
		t.Errorf("SLA.UpcomingWindow = %v, want 48h", cfg.SLA.UpcomingWindow)
	}
	if cfg.Permissions.CacheTTL != 2*time.Minute {
		t.Errorf("Permissions.CacheTTL = %v, want 2m", cfg.Permissions.CacheTTL)
	}
	if len(cfg.Templates.SeedDirectories) != 1 {
		t.Errorf("Templates.SeedDirectories = %v, want 1 entry", cfg.Templates.SeedDirectories)
	}
	if cfg.Observability.Tracing.Exporter != "stdout" {
		t.Errorf("Tracing.Exporter = %q, want stdout", cfg.Observability.Tracing.Exporter)
	}
}

func TestLoad_fileValuesKeepDefaults(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Fields absent from the file keep their defaults.
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("Database.MaxOpenConns = %d, want default 25", cfg.Database.MaxOpenConns)
	}
	if cfg.Identity.ClaimPaths["subject_id"] != "sub" {
		t.Errorf("ClaimPaths[subject_id] = %q, want sub", cfg.Identity.ClaimPaths["subject_id"])
	}
}

func TestLoad_missing_file(t *testing.T) {
	_, err := Load("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_missing_identity(t *testing.T) {
	_, err := Load("testdata/missing_identity.yaml")
	if err == nil {
		t.Fatal("Load() with missing identity should return error")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Permissions.CacheTTL != 5*time.Minute {
		t.Errorf("default Permissions.CacheTTL = %v, want 5m", cfg.Permissions.CacheTTL)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
	if cfg.SLA.LeaseTTL != 4*time.Minute {
		t.Errorf("default SLA.LeaseTTL = %v, want 4m", cfg.SLA.LeaseTTL)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DOCFLOW_SERVER_PORT", "3000")
	t.Setenv("DOCFLOW_IDENTITY_ISSUER", "https://env-issuer.com")
	t.Setenv("DOCFLOW_OBSERVABILITY_LOG_LEVEL", "error")
	t.Setenv("DOCFLOW_SLA_SCAN_INTERVAL", "30s")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000 (env override)", cfg.Server.Port)
	}
	if cfg.Identity.Issuer != "https://env-issuer.com" {
		t.Errorf("Identity.Issuer = %q, want env override", cfg.Identity.Issuer)
	}
	if cfg.Observability.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error (env override)", cfg.Observability.LogLevel)
	}
	if cfg.SLA.ScanInterval != 30*time.Second {
		t.Errorf("SLA.ScanInterval = %v, want 30s (env override)", cfg.SLA.ScanInterval)
	}
}

func TestValidate_invalid_port(t *testing.T) {
	cfg := Defaults()
	cfg.Identity.Issuer = "https://auth.example.com"
	cfg.Identity.JWKSURL = "https://auth.example.com/.well-known/jwks.json"
	cfg.Identity.Audience = "docflow"
	cfg.Server.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() with port 0 should return error")
	}
}

func TestValidate_zero_scan_interval(t *testing.T) {
	cfg := Defaults()
	cfg.Identity.Issuer = "https://auth.example.com"
	cfg.Identity.JWKSURL = "https://auth.example.com/.well-known/jwks.json"
	cfg.Identity.Audience = "docflow"
	cfg.SLA.ScanInterval = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() with zero scan interval should return error")
	}
}
