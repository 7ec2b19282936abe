package goNoPassword

import (
	"bytes"
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Code.Secret = []byte("test-secret")
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults with secret valid",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "missing secret invalid",
			mutate: func(c *Config) {
				c.Code.Secret = nil
			},
			wantValid: false,
		},
		{
			name: "unknown hash invalid",
			mutate: func(c *Config) {
				c.Code.HashAlgorithm = "crc32"
			},
			wantValid: false,
		},
		{
			name: "hash name case insensitive",
			mutate: func(c *Config) {
				c.Code.HashAlgorithm = "SHA512"
			},
			wantValid: true,
		},
		{
			name: "zero length invalid",
			mutate: func(c *Config) {
				c.Code.Length = 0
			},
			wantValid: false,
		},
		{
			name: "hex length at digest capacity valid",
			mutate: func(c *Config) {
				c.Code.Length = 64
			},
			wantValid: true,
		},
		{
			name: "hex length above digest capacity invalid",
			mutate: func(c *Config) {
				c.Code.Length = 65
			},
			wantValid: false,
		},
		{
			name: "numeric length above digest capacity invalid",
			mutate: func(c *Config) {
				c.Code.Numeric = true
				c.Code.Length = 78
			},
			wantValid: false,
		},
		{
			name: "zero ttl invalid",
			mutate: func(c *Config) {
				c.Code.TTL = 0
			},
			wantValid: false,
		},
		{
			name: "zero attempts invalid",
			mutate: func(c *Config) {
				c.Code.MaxGenerateAttempts = 0
			},
			wantValid: false,
		},
		{
			name: "negative prune grace invalid",
			mutate: func(c *Config) {
				c.Code.PruneGrace = -time.Second
			},
			wantValid: false,
		},
		{
			name: "zero prune grace valid",
			mutate: func(c *Config) {
				c.Code.PruneGrace = 0
			},
			wantValid: true,
		},
		{
			name: "server url with scheme invalid",
			mutate: func(c *Config) {
				c.Link.ServerURL = "https://example.com"
			},
			wantValid: false,
		},
		{
			name: "empty server url invalid",
			mutate: func(c *Config) {
				c.Link.ServerURL = ""
			},
			wantValid: false,
		},
		{
			name: "relative login path invalid",
			mutate: func(c *Config) {
				c.Link.LoginPath = "login"
			},
			wantValid: false,
		},
		{
			name: "zero delivery timeout invalid",
			mutate: func(c *Config) {
				c.Delivery.Timeout = 0
			},
			wantValid: false,
		},
		{
			name: "audit without buffer invalid",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config, got nil")
			}
		})
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Code.Length != DefaultCodeLength || cfg.Code.TTL != DefaultCodeTTL {
		t.Fatalf("unexpected code defaults %+v", cfg.Code)
	}
	if cfg.Code.HashAlgorithm != DefaultHashAlgorithm || cfg.Code.Numeric {
		t.Fatalf("unexpected generator defaults %+v", cfg.Code)
	}
	if cfg.Link.ServerURL != DefaultServerURL || cfg.Link.LoginPath != DefaultLoginPath {
		t.Fatalf("unexpected link defaults %+v", cfg.Link)
	}
	if cfg.Link.Secure || cfg.Link.HideUsername {
		t.Fatal("links default to http with the username segment")
	}
	if len(cfg.Code.Secret) != 0 {
		t.Fatal("default config must not carry a secret")
	}
}

func TestCloneConfigCopiesSecret(t *testing.T) {
	cfg := validTestConfig()
	clone := cloneConfig(cfg)
	cfg.Code.Secret[0] = 'X'
	if bytes.Equal(clone.Code.Secret, cfg.Code.Secret) {
		t.Fatal("clone shares the secret slice")
	}
}
