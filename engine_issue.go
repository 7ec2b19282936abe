package goNoPassword

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goNoPassword/codestore"
	"go.uber.org/zap"
)

// IssueCode creates and stores a fresh login code for principal.
//
// An inactive principal yields ErrInactivePrincipal and nothing is stored.
// Generated codes that collide with a stored code are discarded and
// regenerated, up to Code.MaxGenerateAttempts times; ErrGenerationExhausted
// is returned when every attempt collided. An empty redirectTarget is stored
// as "/".
func (e *Engine) IssueCode(ctx context.Context, principal Principal, redirectTarget string) (*LoginCode, error) {
	if e == nil || e.store == nil || e.generator == nil {
		return nil, ErrEngineNotReady
	}
	if principal.ID == "" {
		return nil, ErrPrincipalNotFound
	}

	if !principal.Active {
		e.metricInc(MetricCodeIssueRefused)
		e.logger.Info("login code refused for inactive principal", zap.String("principal_id", principal.ID))
		e.emitAudit(ctx, auditEventCodeIssueRefused, false, principal.ID, "", ErrInactivePrincipal, nil)
		return nil, ErrInactivePrincipal
	}

	if redirectTarget == "" {
		redirectTarget = DefaultRedirectTarget
	}

	start := time.Now()
	defer func() {
		e.metricObserve(MetricIssueLatency, time.Since(start))
	}()

	cfg := e.config.Code
	for attempt := 1; attempt <= cfg.MaxGenerateAttempts; attempt++ {
		candidate := e.generator.Generate(cfg.Length, cfg.Numeric)
		if len(candidate) != cfg.Length {
			return nil, fmt.Errorf("code generator returned %d characters, want %d", len(candidate), cfg.Length)
		}

		rec := &LoginCode{
			PrincipalID:    principal.ID,
			Code:           candidate,
			RedirectTarget: redirectTarget,
		}

		err := e.store.Create(ctx, rec)
		if err == nil {
			e.metricInc(MetricCodeIssued)
			e.logger.Debug("login code issued",
				zap.String("principal_id", principal.ID),
				zap.String("code_id", rec.ID),
				zap.Int("attempt", attempt),
			)
			e.emitAudit(ctx, auditEventCodeIssued, true, principal.ID, rec.ID, nil, func() map[string]string {
				return map[string]string{"attempts": strconv.Itoa(attempt)}
			})
			return rec, nil
		}

		if errors.Is(err, codestore.ErrConstraintViolation) {
			e.metricInc(MetricCodeCollision)
			e.logger.Debug("login code collision, regenerating",
				zap.String("principal_id", principal.ID),
				zap.Int("attempt", attempt),
			)
			continue
		}

		mapped := e.mapStoreError("create", err)
		e.emitAudit(ctx, auditEventCodeIssued, false, principal.ID, "", mapped, nil)
		return nil, mapped
	}

	e.metricInc(MetricGenerationExhausted)
	e.logger.Error("login code generation exhausted",
		zap.String("principal_id", principal.ID),
		zap.Int("attempts", cfg.MaxGenerateAttempts),
		zap.Int("length", cfg.Length),
		zap.Bool("numeric", cfg.Numeric),
	)
	e.emitAudit(ctx, auditEventCodeIssued, false, principal.ID, "", ErrGenerationExhausted, nil)
	return nil, ErrGenerationExhausted
}

// RequestLoginCode runs the whole request path: rate limit hook, directory
// lookup by identifier, then Issue.
//
// Delivery failures do not fail the call; inspect IssueResult.Delivery.
// Each call issues and delivers exactly one code.
func (e *Engine) RequestLoginCode(ctx context.Context, identifier, redirectTarget string) (*IssueResult, error) {
	if e == nil || e.directory == nil {
		return nil, ErrEngineNotReady
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrPrincipalNotFound
	}

	if e.limiter != nil {
		if err := e.limiter.AllowIssue(ctx, identifier); err != nil {
			e.emitRateLimit(ctx, "issue", nil)
			return nil, rateLimitError(err)
		}
	}

	principal, err := e.directory.GetPrincipalByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			e.metricInc(MetricCodeIssueRefused)
			e.emitAudit(ctx, auditEventCodeIssueRefused, false, "", "", ErrPrincipalNotFound, nil)
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("principal lookup: %w", err)
	}

	return e.Issue(ctx, principal, redirectTarget)
}

// Issue stores a code for principal and delivers it to every sink. Delivery
// failures are reported in IssueResult.Delivery and leave the code valid.
func (e *Engine) Issue(ctx context.Context, principal Principal, redirectTarget string) (*IssueResult, error) {
	code, err := e.IssueCode(ctx, principal, redirectTarget)
	if err != nil {
		return nil, err
	}

	return &IssueResult{
		Code:      code,
		Principal: principal,
		URL:       e.LoginURL(code, principal),
		Delivery:  e.SendLoginCode(ctx, code, principal),
	}, nil
}

func rateLimitError(err error) error {
	if errors.Is(err, ErrRateLimited) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrRateLimited, err)
}
