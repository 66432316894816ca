package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Books.MaxSymbols != 20 {
		t.Errorf("Expected 20 max symbols, got %d", cfg.Books.MaxSymbols)
	}
	if cfg.Books.StalenessThreshold != 5*time.Second {
		t.Errorf("Expected 5s staleness threshold, got %v", cfg.Books.StalenessThreshold)
	}
	if cfg.Governor.RequestsPerSecond != 8 {
		t.Errorf("Expected 8 rps, got %g", cfg.Governor.RequestsPerSecond)
	}
	if cfg.Store.Retention != 72*time.Hour {
		t.Errorf("Expected 72h retention, got %v", cfg.Store.Retention)
	}
	if cfg.Analytics.ValueAreaFraction != 0.70 {
		t.Errorf("Expected 0.70 value area, got %g", cfg.Analytics.ValueAreaFraction)
	}
	if !cfg.Features.OrderFlow || !cfg.Features.HealthScore {
		t.Error("Analytics features must default to enabled")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BOOK_MAX_SYMBOLS", "5")
	t.Setenv("GOVERNOR_RPS", "2.5")
	t.Setenv("FEATURE_ANOMALIES", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Books.MaxSymbols != 5 {
		t.Errorf("Expected 5 max symbols, got %d", cfg.Books.MaxSymbols)
	}
	if cfg.Governor.RequestsPerSecond != 2.5 {
		t.Errorf("Expected 2.5 rps, got %g", cfg.Governor.RequestsPerSecond)
	}
	if cfg.Features.Anomalies {
		t.Error("FEATURE_ANOMALIES=false must disable anomalies")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "Zero max symbols",
			mutate:  func(c *Config) { c.Books.MaxSymbols = 0 },
			wantErr: "BOOK_MAX_SYMBOLS",
		},
		{
			name:    "Zero top levels",
			mutate:  func(c *Config) { c.Books.TopLevels = 0 },
			wantErr: "BOOK_TOP_LEVELS",
		},
		{
			name:    "Negative rps",
			mutate:  func(c *Config) { c.Governor.RequestsPerSecond = -1 },
			wantErr: "GOVERNOR_RPS",
		},
		{
			name:    "Value area above one",
			mutate:  func(c *Config) { c.Analytics.ValueAreaFraction = 1.5 },
			wantErr: "ANALYTICS_VALUE_AREA_FRACTION",
		},
		{
			name:    "Confidence floor out of range",
			mutate:  func(c *Config) { c.Analytics.ConfidenceFloor = -0.1 },
			wantErr: "ANALYTICS_CONFIDENCE_FLOOR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Error %q does not mention %s", err, tt.wantErr)
			}
		})
	}
}
