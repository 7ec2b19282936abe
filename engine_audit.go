package goNoPassword

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	auditEventCodeIssued         = "login_code_issued"
	auditEventCodeIssueRefused   = "login_code_issue_refused"
	auditEventCodeDelivery       = "login_code_delivery"
	auditEventCodeRedeemed       = "login_code_redeemed"
	auditEventCodeRejected       = "login_code_rejected"
	auditEventCodesPruned        = "login_code_pruned"
	auditEventRateLimitTriggered = "rate_limit_triggered"
)

// AuditErrorCode is the stable error label written into AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrNotFound            AuditErrorCode = "not_found"
	auditErrExpired             AuditErrorCode = "expired"
	auditErrAlreadyConsumed     AuditErrorCode = "already_consumed"
	auditErrPrincipalInactive   AuditErrorCode = "principal_inactive"
	auditErrPrincipalNotFound   AuditErrorCode = "principal_not_found"
	auditErrGenerationExhausted AuditErrorCode = "generation_exhausted"
	auditErrDeliveryFailed      AuditErrorCode = "delivery_failed"
	auditErrRateLimited         AuditErrorCode = "rate_limited"
	auditErrUnavailable         AuditErrorCode = "backend_unavailable"
	auditErrCanceled            AuditErrorCode = "canceled"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID string,
	codeID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["request_id"] = rid
	}

	event := AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		PrincipalID: principalID,
		CodeID:      codeID,
		IP:          ClientIPFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// auditDropped logs the first dropped event and then every 1000th.
func (e *Engine) auditDropped(event AuditEvent, dropped uint64) {
	if dropped == 1 || dropped%1000 == 0 {
		e.logger.Warn("audit buffer full, dropping events",
			zap.String("event_type", event.EventType),
			zap.Uint64("dropped", dropped),
		)
	}
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string, metadataBuilder func() map[string]string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", ErrRateLimited, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch RejectionReason(err) {
	case "not_found":
		return auditErrNotFound
	case "expired":
		return auditErrExpired
	case "already_consumed":
		return auditErrAlreadyConsumed
	}

	switch {
	case errors.Is(err, ErrInactivePrincipal):
		return auditErrPrincipalInactive
	case errors.Is(err, ErrPrincipalNotFound):
		return auditErrPrincipalNotFound
	case errors.Is(err, ErrGenerationExhausted):
		return auditErrGenerationExhausted
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return auditErrCanceled
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
