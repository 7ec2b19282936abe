package goNoPassword

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goNoPassword/codestore"
	"go.uber.org/zap"
)

// Redeem consumes code and returns who it authenticates and where to go next.
//
// Checks run in this order: shape of the input, rate limit hook, lookup,
// consumed flag, TTL, principal (when a directory is configured), then the
// atomic consume. Unknown, expired and replayed codes return ErrCodeNotFound,
// ErrCodeExpired and ErrCodeConsumed, and a code whose principal was
// deactivated returns ErrCodeOwnerInactive; all of them match ErrCodeInvalid, and
// PublicError collapses them for user-facing output. Rejections never mutate
// the record. Of concurrent redemptions of one code exactly one succeeds.
func (e *Engine) Redeem(ctx context.Context, code string) (*Redemption, error) {
	return e.redeem(ctx, code, "", false)
}

// RedeemWithUsername is Redeem for URLs that carry the username. A code that
// belongs to a different principal is rejected as ErrCodeNotFound.
// It requires a PrincipalDirectory.
func (e *Engine) RedeemWithUsername(ctx context.Context, username, code string) (*Redemption, error) {
	if e != nil && e.directory == nil {
		return nil, ErrEngineNotReady
	}
	return e.redeem(ctx, code, username, true)
}

func (e *Engine) redeem(ctx context.Context, code, username string, checkUsername bool) (*Redemption, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		e.metricObserve(MetricRedeemLatency, time.Since(start))
	}()

	code = strings.TrimSpace(code)
	if !e.wellFormed(code) {
		return nil, e.reject(ctx, ErrCodeNotFound, "", "")
	}

	if e.limiter != nil {
		if err := e.limiter.AllowRedeem(ctx); err != nil {
			e.emitRateLimit(ctx, "redeem", nil)
			return nil, rateLimitError(err)
		}
	}

	rec, err := e.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, codestore.ErrNotFound) {
			return nil, e.reject(ctx, ErrCodeNotFound, "", "")
		}
		return nil, e.mapStoreError("find", err)
	}

	if rec.Consumed {
		return nil, e.reject(ctx, ErrCodeConsumed, rec.PrincipalID, rec.ID)
	}

	now := e.now()
	if now.Sub(rec.IssuedAt) > e.config.Code.TTL {
		return nil, e.reject(ctx, ErrCodeExpired, rec.PrincipalID, rec.ID)
	}

	var principal *Principal
	if e.directory != nil {
		p, err := e.directory.GetPrincipalByID(ctx, rec.PrincipalID)
		switch {
		case errors.Is(err, ErrPrincipalNotFound):
			return nil, e.reject(ctx, ErrCodeNotFound, rec.PrincipalID, rec.ID)
		case err != nil:
			return nil, fmt.Errorf("principal lookup: %w", err)
		}
		if checkUsername && p.Username != username {
			return nil, e.reject(ctx, ErrCodeNotFound, rec.PrincipalID, rec.ID)
		}
		if !p.Active {
			return nil, e.reject(ctx, ErrCodeOwnerInactive, rec.PrincipalID, rec.ID)
		}
		principal = &p
	}

	if err := e.store.MarkConsumed(ctx, rec.ID, now); err != nil {
		switch {
		case errors.Is(err, codestore.ErrAlreadyConsumed):
			return nil, e.reject(ctx, ErrCodeConsumed, rec.PrincipalID, rec.ID)
		case errors.Is(err, codestore.ErrNotFound):
			// Pruned between lookup and consume.
			return nil, e.reject(ctx, ErrCodeNotFound, rec.PrincipalID, rec.ID)
		default:
			return nil, e.mapStoreError("mark_consumed", err)
		}
	}

	rec.Consumed = true
	rec.ConsumedAt = now.UTC()

	e.metricInc(MetricRedeemSuccess)
	e.logger.Debug("login code redeemed",
		zap.String("principal_id", rec.PrincipalID),
		zap.String("code_id", rec.ID),
	)
	e.emitAudit(ctx, auditEventCodeRedeemed, true, rec.PrincipalID, rec.ID, nil, nil)

	return &Redemption{
		PrincipalID:    rec.PrincipalID,
		Principal:      principal,
		RedirectTarget: rec.RedirectTarget,
		Code:           rec,
	}, nil
}

func (e *Engine) wellFormed(code string) bool {
	if code == "" {
		return false
	}
	if !e.strictAlphabet {
		return len(code) == e.config.Code.Length
	}
	return wellFormedCode(code, e.config.Code.Length, e.config.Code.Numeric)
}

// reject records a refused redemption and returns err unchanged.
func (e *Engine) reject(ctx context.Context, err error, principalID, codeID string) error {
	switch err {
	case ErrCodeNotFound:
		e.metricInc(MetricRedeemNotFound)
	case ErrCodeExpired:
		e.metricInc(MetricRedeemExpired)
	case ErrCodeConsumed:
		e.metricInc(MetricRedeemConsumed)
	}
	e.logger.Debug("login code rejected",
		zap.String("reason", RejectionReason(err)),
		zap.String("principal_id", principalID),
		zap.String("code_id", codeID),
	)
	e.emitAudit(ctx, auditEventCodeRejected, false, principalID, codeID, err, nil)
	return err
}
