package redauth

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults valid",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "missing base URL",
			mutate: func(c *Config) {
				c.Platform.BaseURL = ""
			},
			wantValid: false,
		},
		{
			name: "missing login URL",
			mutate: func(c *Config) {
				c.Platform.LoginURL = ""
			},
			wantValid: false,
		},
		{
			name: "no identity endpoints",
			mutate: func(c *Config) {
				c.Platform.WhoAmIURLs = nil
			},
			wantValid: false,
		},
		{
			name: "empty passphrase",
			mutate: func(c *Config) {
				c.Storage.Passphrase = ""
			},
			wantValid: false,
		},
		{
			name: "zero cache window",
			mutate: func(c *Config) {
				c.Cache.Window = 0
			},
			wantValid: false,
		},
		{
			name: "zero code length",
			mutate: func(c *Config) {
				c.Login.CodeLength = 0
			},
			wantValid: false,
		},
		{
			name: "typing delay bounds inverted",
			mutate: func(c *Config) {
				c.Pacing.TypeDelayMin = 200 * time.Millisecond
				c.Pacing.TypeDelayMax = 100 * time.Millisecond
			},
			wantValid: false,
		},
		{
			name: "settle bounds inverted",
			mutate: func(c *Config) {
				c.Pacing.SettleMin = 2 * time.Second
				c.Pacing.SettleMax = time.Second
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.wantValid {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
			}
		})
	}
}

func TestCloneConfigIsolatesSlices(t *testing.T) {
	original := DefaultConfig()
	clone := cloneConfig(original)

	original.Platform.WhoAmIURLs[0] = "mutated"
	original.Selectors.LoggedInMarkers[0] = "mutated"
	original.Login.RequiredFields[0] = "mutated"

	if clone.Platform.WhoAmIURLs[0] == "mutated" {
		t.Fatal("identity endpoints shared between clone and original")
	}
	if clone.Selectors.LoggedInMarkers[0] == "mutated" {
		t.Fatal("markers shared between clone and original")
	}
	if clone.Login.RequiredFields[0] == "mutated" {
		t.Fatal("required fields shared between clone and original")
	}
}
