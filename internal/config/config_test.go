package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad_RequiresAPIBaseURL(t *testing.T) {
	os.Unsetenv("API_BASE_URL")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error when API_BASE_URL is missing")
	}
}

func TestLoad_WithAPIBaseURL(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://backend.local/api")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIBaseURL != "http://backend.local/api" {
		t.Errorf("expected API_BASE_URL to be set, got %s", cfg.APIBaseURL)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.NotifyTTL != 3*time.Second {
		t.Errorf("expected default notify ttl 3s, got %s", cfg.NotifyTTL)
	}
	if cfg.APIRetryCount != 2 {
		t.Errorf("expected default retry count 2, got %d", cfg.APIRetryCount)
	}
	if cfg.AuditEnabled() {
		t.Error("expected audit disabled without DATABASE_URL")
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() {
		t.Error("expected IsDev() to return true for development")
	}

	c.Env = "production"
	if c.IsDev() {
		t.Error("expected IsDev() to return false for production")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Env:           "production",
			APIBaseURL:    "https://backend.example.org/api",
			APITimeout:    10 * time.Second,
			APIRetryCount: 1,
			AuthIssuer:    "https://auth.example.org",
			NotifyTTL:     3 * time.Second,
			ScreenIdleTTL: time.Minute,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"relative api url", func(c *Config) { c.APIBaseURL = "/api" }, true},
		{"zero timeout", func(c *Config) { c.APITimeout = 0 }, true},
		{"negative retries", func(c *Config) { c.APIRetryCount = -1 }, true},
		{"no token verification in production", func(c *Config) { c.AuthIssuer = "" }, true},
		{"dev without auth", func(c *Config) { c.Env = "development"; c.AuthIssuer = "" }, false},
		{"zero notify ttl", func(c *Config) { c.NotifyTTL = 0 }, true},
		{"flash key", func(c *Config) { c.FlashKey = strings.Repeat("0f", 32) }, false},
		{"short flash key", func(c *Config) { c.FlashKey = "0f0f" }, true},
		{"flash key not hex", func(c *Config) { c.FlashKey = strings.Repeat("zz", 32) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
