package goNoPassword

import (
	"context"

	"github.com/MrEthical07/goNoPassword/codestore"
)

// Principal is the account a login code authenticates. The engine never
// stores principals; it reads them from a [PrincipalDirectory] or takes them
// from the caller.
type Principal struct {
	ID       string
	Username string
	Email    string
	Active   bool
}

// PrincipalDirectory resolves principals. Both methods return
// ErrPrincipalNotFound when nothing matches.
type PrincipalDirectory interface {
	// GetPrincipalByIdentifier resolves what a user typed into the login form,
	// usually an email address or username.
	GetPrincipalByIdentifier(ctx context.Context, identifier string) (Principal, error)
	GetPrincipalByID(ctx context.Context, id string) (Principal, error)
}

// RateLimiter is an optional hook consulted before issuing and redeeming.
// A non-nil error refuses the call with ErrRateLimited. The client IP, when
// known, is available through the context set by [WithClientIP].
type RateLimiter interface {
	AllowIssue(ctx context.Context, identifier string) error
	AllowRedeem(ctx context.Context) error
}

// LoginCode is one issued code as stored by the code store.
type LoginCode = codestore.Record

// CodeStore is the persistence contract for login codes.
type CodeStore = codestore.Store

// Redemption is the outcome of a successful redemption.
type Redemption struct {
	PrincipalID string
	// Principal is set when a PrincipalDirectory is configured.
	Principal      *Principal
	RedirectTarget string
	Code           LoginCode
}

// IssueResult is the outcome of [Engine.RequestLoginCode].
type IssueResult struct {
	Code      *LoginCode
	Principal Principal
	URL       string
	Delivery  DeliveryReport
}

// DeliveryErr joins every failed delivery, or returns nil.
func (r *IssueResult) DeliveryErr() error {
	if r == nil {
		return nil
	}
	return r.Delivery.Err()
}
