package goNoPassword

import (
	"testing"
	"time"
)

func lintConfig() Config {
	cfg := defaultConfig()
	cfg.Code.Secret = []byte("0123456789abcdef0123")
	cfg.Link.Secure = true
	cfg.Audit.Enabled = true
	return cfg
}

func TestLint_HardenedConfigNoWarnings(t *testing.T) {
	cfg := lintConfig()
	if ws := cfg.Lint(); len(ws) != 0 {
		t.Fatalf("expected no warnings, got %v", ws.Codes())
	}
}

func TestLint_DefaultConfigFlagsInsecureLinks(t *testing.T) {
	cfg := defaultConfig()
	ws := cfg.Lint()
	if !ws.Has("links_insecure") {
		t.Error("expected links_insecure warning")
	}
	if !ws.Has("audit_disabled") {
		t.Error("expected audit_disabled warning")
	}
	if ws.Has("code_entropy_low") {
		t.Error("20 hex characters should not warn about entropy")
	}
}

func TestLint_ShortNumericCodes(t *testing.T) {
	cfg := lintConfig()
	cfg.Code.Numeric = true
	cfg.Code.Length = 8

	ws := cfg.Lint()
	if !ws.Has("code_entropy_low") {
		t.Fatal("expected code_entropy_low warning")
	}
	if ws[0].Severity != LintWarn {
		t.Fatalf("expected warn severity, got %s", ws[0].Severity)
	}

	cfg.Link.HideUsername = true
	ws = cfg.Lint()
	if ws[0].Severity != LintDanger {
		t.Fatalf("expected danger severity with hidden usernames, got %s", ws[0].Severity)
	}
}

func TestLint_LongTTL(t *testing.T) {
	cfg := lintConfig()
	cfg.Code.TTL = 2 * time.Hour
	if !cfg.Lint().Has("ttl_long") {
		t.Error("expected ttl_long warning")
	}
}

func TestLint_LegacyHash(t *testing.T) {
	cfg := lintConfig()
	cfg.Code.HashAlgorithm = "SHA1"
	if !cfg.Lint().Has("hash_legacy") {
		t.Error("expected hash_legacy warning")
	}
}

func TestLint_ShortSecret(t *testing.T) {
	cfg := lintConfig()
	cfg.Code.Secret = []byte("short")
	if !cfg.Lint().Has("secret_short") {
		t.Error("expected secret_short warning")
	}
}

func TestLint_LocalHostsAllowHTTP(t *testing.T) {
	for _, host := range []string{"localhost", "localhost:8080", "127.0.0.1:3000", "[::1]:8080", "app.localhost"} {
		cfg := lintConfig()
		cfg.Link.Secure = false
		cfg.Link.ServerURL = host
		if cfg.Lint().Has("links_insecure") {
			t.Errorf("%s: unexpected links_insecure warning", host)
		}
	}
}

func TestSecurityReport(t *testing.T) {
	engine, _ := newTestEngine(t, func(b *Builder) {
		b.WithSinks(&recordingSink{name: "a"}, &recordingSink{name: "b"})
	})

	r := engine.SecurityReport()
	if r.HashAlgorithm != "sha256" || r.CodeLength != 20 || r.NumericCodes {
		t.Fatalf("unexpected code settings %+v", r)
	}
	if r.EntropyBits != 80 {
		t.Fatalf("expected 80 bits, got %v", r.EntropyBits)
	}
	if r.CustomGenerator || r.RateLimitingActive || r.DeliverySinks != 2 {
		t.Fatalf("unexpected report %+v", r)
	}
	if !r.PrincipalRecheck {
		t.Fatal("expected principal recheck with a directory configured")
	}

	var nilEngine *Engine
	if nilEngine.SecurityReport() != (SecurityReport{}) {
		t.Fatal("expected zero report for nil engine")
	}
}
