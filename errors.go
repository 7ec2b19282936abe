package goNoPassword

import "errors"

var (
	// ErrInactivePrincipal is returned by IssueCode when the principal is not active.
	// No record is created.
	ErrInactivePrincipal = errors.New("principal inactive")
	// ErrPrincipalNotFound is returned when the principal directory has no match.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrGenerationExhausted means every generated candidate collided with a stored code.
	// It points at a broken entropy source or a code length that is too short.
	ErrGenerationExhausted = errors.New("login code generation exhausted")

	// ErrCodeInvalid is the single user-facing rejection for redemption.
	// ErrCodeNotFound, ErrCodeExpired and ErrCodeConsumed all match it with errors.Is.
	ErrCodeInvalid = errors.New("login code invalid or expired")
	// ErrCodeNotFound means the code is empty, malformed or unknown.
	ErrCodeNotFound = &rejection{reason: "not_found"}
	// ErrCodeExpired means the code outlived Code.TTL.
	ErrCodeExpired = &rejection{reason: "expired"}
	// ErrCodeConsumed means the code was already redeemed.
	ErrCodeConsumed = &rejection{reason: "already_consumed"}
	// ErrCodeOwnerInactive means the code is live but its principal was
	// deactivated after issue. It also matches ErrInactivePrincipal.
	ErrCodeOwnerInactive = &rejection{reason: "principal_inactive", cause: ErrInactivePrincipal}

	// ErrDeliveryFailed wraps every per-sink delivery failure, including timeouts.
	ErrDeliveryFailed = errors.New("login code delivery failed")
	// ErrStoreUnavailable wraps transport failures of the code store.
	ErrStoreUnavailable = errors.New("login code store unavailable")
	// ErrRateLimited is returned when the configured RateLimiter rejects a call.
	ErrRateLimited = errors.New("login code rate limited")
	// ErrEngineNotReady is returned when required dependencies are missing.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// rejection carries the internal reason for a refused redemption while
// presenting the same message as ErrCodeInvalid.
type rejection struct {
	reason string
	cause  error
}

func (r *rejection) Error() string { return ErrCodeInvalid.Error() }

func (r *rejection) Unwrap() error { return ErrCodeInvalid }

func (r *rejection) Is(target error) bool { return r.cause != nil && target == r.cause }

// Reason returns the internal rejection reason used in audit events and logs.
func (r *rejection) Reason() string { return r.reason }

// PublicError collapses redemption rejections into ErrCodeInvalid so callers
// cannot tell a wrong code from an expired or replayed one. Other errors are
// returned unchanged.
func PublicError(err error) error {
	if errors.Is(err, ErrCodeInvalid) {
		return ErrCodeInvalid
	}
	return err
}

// RejectionReason returns "not_found", "expired", "already_consumed" or
// "principal_inactive" for redemption rejections and "" otherwise.
func RejectionReason(err error) string {
	var r *rejection
	if errors.As(err, &r) {
		return r.reason
	}
	return ""
}
