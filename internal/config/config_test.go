package config

import (
	"os"
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
	if len(cfg.Identity.Algorithms) != 2 {
		t.Errorf("Identity.Algorithms = %v, want 2 entries", cfg.Identity.Algorithms)
	}
	if cfg.Backend.BaseURL != "https://api.example.com" {
		t.Errorf("Backend.BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != 10*time.Second {
		t.Errorf("Backend.Timeout = %v, want 10s", cfg.Backend.Timeout)
	}
	if cfg.Backend.Retry.MaxAttempts != 2 {
		t.Errorf("Backend.Retry.MaxAttempts = %d, want 2", cfg.Backend.Retry.MaxAttempts)
	}
	if cfg.Backend.CircuitBreaker.FailureThreshold != 4 {
		t.Errorf("Backend.CircuitBreaker.FailureThreshold = %d, want 4", cfg.Backend.CircuitBreaker.FailureThreshold)
	}
	if cfg.Workflow.DraftTTL != 48*time.Hour {
		t.Errorf("Workflow.DraftTTL = %v, want 48h", cfg.Workflow.DraftTTL)
	}
	if cfg.Upload.Concurrency != 5 {
		t.Errorf("Upload.Concurrency = %d, want 5", cfg.Upload.Concurrency)
	}
}

func TestLoad_missing_file(t *testing.T) {
	_, err := Load("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_missing_backend(t *testing.T) {
	_, err := Load("testdata/missing_backend.yaml")
	if err == nil {
		t.Fatal("Load() without backend.base_url should return error")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Upload.Concurrency != 3 {
		t.Errorf("default Upload.Concurrency = %d, want 3", cfg.Upload.Concurrency)
	}
	if cfg.Workflow.DraftTTL != 24*time.Hour {
		t.Errorf("default Workflow.DraftTTL = %v, want 24h", cfg.Workflow.DraftTTL)
	}
	if cfg.Lookup.Cache.TTL != 5*time.Minute {
		t.Errorf("default Lookup.Cache.TTL = %v, want 5m", cfg.Lookup.Cache.TTL)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
}

func TestEnvOverrides(t *testing.T) {
	os.Setenv("LISTING_BACKEND_BASE_URL", "https://override.example.com")
	os.Setenv("LISTING_SERVER_PORT", "7070")
	defer os.Unsetenv("LISTING_BACKEND_BASE_URL")
	defer os.Unsetenv("LISTING_SERVER_PORT")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.BaseURL != "https://override.example.com" {
		t.Errorf("Backend.BaseURL = %q, want env override", cfg.Backend.BaseURL)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
}

func TestValidate_badDriver(t *testing.T) {
	cfg := Defaults()
	cfg.Backend.BaseURL = "https://api.example.com"
	cfg.Identity.Issuer = "https://auth.example.com"
	cfg.Identity.JWKSURL = "https://auth.example.com/jwks"
	cfg.Identity.Audience = "listing-service"
	cfg.Workflow.Store.Driver = "cassandra"

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with unknown store driver should fail")
	}
}
