package goNoPassword

import (
	"math"
	"time"
)

// SecurityReport summarizes the security-relevant settings of a built Engine.
type SecurityReport struct {
	HashAlgorithm string
	CodeLength    int
	NumericCodes  bool
	// EntropyBits is log2 of the code space: 4 bits per hex character and
	// log2(10) per digit.
	EntropyBits float64
	CodeTTL     time.Duration
	// CustomGenerator is set when a CodeGenerator other than HashGenerator
	// is installed; the fields above then describe the expected shape only.
	CustomGenerator bool
	SecureLinks     bool
	UsernameInLinks bool
	// PrincipalRecheck is set when redemption reloads the principal and
	// refuses inactive ones.
	PrincipalRecheck   bool
	RateLimitingActive bool
	AuditEnabled       bool
	AsyncDelivery      bool
	DeliverySinks      int
}

// SecurityReport describes the securityreport operation and its observable behavior.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		HashAlgorithm:      e.config.Code.HashAlgorithm,
		CodeLength:         e.config.Code.Length,
		NumericCodes:       e.config.Code.Numeric,
		EntropyBits:        codeEntropyBits(e.config.Code.Length, e.config.Code.Numeric),
		CodeTTL:            e.config.Code.TTL,
		CustomGenerator:    !e.strictAlphabet,
		SecureLinks:        e.config.Link.Secure,
		UsernameInLinks:    !e.config.Link.HideUsername,
		PrincipalRecheck:   e.directory != nil,
		RateLimitingActive: e.limiter != nil,
		AuditEnabled:       e.config.Audit.Enabled,
		AsyncDelivery:      e.config.Delivery.Async,
		DeliverySinks:      len(e.sinks),
	}
}

func codeEntropyBits(length int, numeric bool) float64 {
	if length <= 0 {
		return 0
	}
	if numeric {
		return float64(length) * math.Log2(10)
	}
	return float64(length) * 4
}
