package goNoPassword

import (
	"strings"
	"time"
)

// LintSeverity ranks a LintWarning.
type LintSeverity string

const (
	LintInfo   LintSeverity = "info"
	LintWarn   LintSeverity = "warn"
	LintDanger LintSeverity = "danger"
)

// LintWarning is one finding of Config.Lint.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the ordered list of findings.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, len(r))
	for i, w := range r {
		out[i] = w.Code
	}
	return out
}

// Has reports whether a warning with code is present.
func (r LintResult) Has(code string) bool {
	for _, w := range r {
		if w.Code == code {
			return true
		}
	}
	return false
}

const (
	lintMinEntropyBits  = 64
	lintMaxTTL          = time.Hour
	lintMinSecretLength = 16
)

// Lint reports settings that pass Validate but weaken login codes. It never
// fails; Validate remains the gate for Build.
func (c *Config) Lint() LintResult {
	var out LintResult
	add := func(code string, sev LintSeverity, msg string) {
		out = append(out, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	bits := codeEntropyBits(c.Code.Length, c.Code.Numeric)
	if bits < lintMinEntropyBits {
		sev := LintWarn
		if c.Link.HideUsername {
			// Code-only lookup: any stored code is a valid guess.
			sev = LintDanger
		}
		add("code_entropy_low", sev, "login codes carry fewer than 64 bits of entropy")
	}

	switch strings.ToLower(c.Code.HashAlgorithm) {
	case "md5", "sha1":
		add("hash_legacy", LintInfo, "md5 and sha1 are accepted for compatibility only")
	}

	if c.Code.TTL > lintMaxTTL {
		add("ttl_long", LintWarn, "login codes stay valid for more than an hour")
	}

	if len(c.Code.Secret) > 0 && len(c.Code.Secret) < lintMinSecretLength {
		add("secret_short", LintWarn, "Code.Secret is shorter than 16 bytes")
	}

	if !c.Link.Secure && !isLocalHost(c.Link.ServerURL) {
		add("links_insecure", LintDanger, "redemption links use http for a non-local host")
	}

	if c.Code.PruneGrace == 0 {
		add("prune_grace_zero", LintInfo, "Prune removes records as soon as they expire")
	}

	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "audit events are disabled")
	}

	return out
}

func isLocalHost(serverURL string) bool {
	host := serverURL
	if i := strings.LastIndex(host, ":"); i >= 0 && !strings.HasSuffix(host, "]") {
		host = host[:i]
	}
	host = strings.Trim(host, "[]")
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return strings.HasSuffix(host, ".localhost")
}
