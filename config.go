package goNoPassword

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds every tunable of the engine. It is copied into the Engine by
// [Builder.Build] and never read from global state afterwards.
type Config struct {
	Code     CodeConfig
	Link     LinkConfig
	Delivery DeliveryConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
CODE CONFIG
====================================
*/

// CodeConfig controls code generation and validity.
type CodeConfig struct {
	// Length of every generated code. Default 20.
	Length int
	// HashAlgorithm names the digest used by the generator. Default "sha256".
	// See [SupportedHashAlgorithms].
	HashAlgorithm string
	// Numeric selects decimal-digit codes instead of lower-case hex.
	Numeric bool
	// TTL is the validity window, measured from IssuedAt at redemption time.
	TTL time.Duration
	// MaxGenerateAttempts caps the collision retry loop of IssueCode.
	MaxGenerateAttempts int
	// Secret is keying material mixed into every generated code.
	Secret []byte
	// PruneGrace keeps expired records around for this long before Prune removes them.
	PruneGrace time.Duration
}

/*
====================================
LINK CONFIG
====================================
*/

// LinkConfig controls the redemption URL sent to principals.
type LinkConfig struct {
	// ServerURL is the host (and optional port) placed in redemption URLs.
	ServerURL string
	// Secure selects https instead of http.
	Secure bool
	// LoginPath is the path prefix of the redemption endpoint.
	LoginPath string
	// HideUsername drops the username segment from redemption URLs; codes are
	// then looked up by value only.
	HideUsername bool
}

// DeliveryConfig controls notification fan-out.
type DeliveryConfig struct {
	// Timeout bounds each sink call. A timeout is reported as a delivery failure.
	Timeout time.Duration
	// Async sends in the background; IssueResult.Delivery is then Pending.
	Async bool
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

const (
	// DefaultCodeLength is the default for CodeConfig.Length.
	DefaultCodeLength = 20
	// DefaultHashAlgorithm is the default for CodeConfig.HashAlgorithm.
	DefaultHashAlgorithm = "sha256"
	// DefaultCodeTTL is the default for CodeConfig.TTL.
	DefaultCodeTTL = 15 * time.Minute
	// DefaultMaxGenerateAttempts is the default for CodeConfig.MaxGenerateAttempts.
	DefaultMaxGenerateAttempts = 10
	// DefaultServerURL is the default for LinkConfig.ServerURL.
	DefaultServerURL = "example.com"
	// DefaultLoginPath is the default for LinkConfig.LoginPath.
	DefaultLoginPath = "/login-code"
	// DefaultRedirectTarget is stored when the caller supplies no redirect target.
	DefaultRedirectTarget = "/"
	// DefaultDeliveryTimeout is the default for DeliveryConfig.Timeout.
	DefaultDeliveryTimeout = 10 * time.Second
)

// DefaultConfig returns the documented defaults. Code.Secret is left empty and
// must be provided before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Code: CodeConfig{
			Length:              DefaultCodeLength,
			HashAlgorithm:       DefaultHashAlgorithm,
			Numeric:             false,
			TTL:                 DefaultCodeTTL,
			MaxGenerateAttempts: DefaultMaxGenerateAttempts,
			PruneGrace:          time.Hour,
		},
		Link: LinkConfig{
			ServerURL:    DefaultServerURL,
			Secure:       false,
			LoginPath:    DefaultLoginPath,
			HideUsername: false,
		},
		Delivery: DeliveryConfig{
			Timeout: DefaultDeliveryTimeout,
			Async:   false,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Code.Secret = cloneBytes(cfg.Code.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first inconsistency in c.
func (c *Config) Validate() error {
	// Code
	spec, ok := lookupHash(c.Code.HashAlgorithm)
	if !ok {
		return fmt.Errorf("Code HashAlgorithm %q is not supported", c.Code.HashAlgorithm)
	}
	if c.Code.Length <= 0 {
		return errors.New("Code Length must be > 0")
	}
	if max := spec.maxLength(c.Code.Numeric); c.Code.Length > max {
		return fmt.Errorf("Code Length must be <= %d for %s", max, spec.name)
	}
	if c.Code.TTL <= 0 {
		return errors.New("Code TTL must be > 0")
	}
	if c.Code.MaxGenerateAttempts <= 0 {
		return errors.New("Code MaxGenerateAttempts must be > 0")
	}
	if len(c.Code.Secret) == 0 {
		return errors.New("Code Secret must be set")
	}
	if c.Code.PruneGrace < 0 {
		return errors.New("Code PruneGrace must be >= 0")
	}

	// Link
	if c.Link.ServerURL == "" {
		return errors.New("Link ServerURL must be set")
	}
	if strings.Contains(c.Link.ServerURL, "://") {
		return errors.New("Link ServerURL must be a host without scheme")
	}
	if !strings.HasPrefix(c.Link.LoginPath, "/") {
		return errors.New("Link LoginPath must start with '/'")
	}

	// Delivery
	if c.Delivery.Timeout <= 0 {
		return errors.New("Delivery Timeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
