package goNoPassword

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Prune deletes records issued before now - Code.TTL - Code.PruneGrace and
// returns how many were removed. Expired records are otherwise kept; expiry
// is enforced at redemption time.
func (e *Engine) Prune(ctx context.Context) (int64, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}

	cutoff := e.PruneCutoff()
	n, err := e.store.Prune(ctx, cutoff)
	if err != nil {
		mapped := e.mapStoreError("prune", err)
		e.emitAudit(ctx, auditEventCodesPruned, false, "", "", mapped, nil)
		return 0, mapped
	}

	if n > 0 {
		e.metricAdd(MetricCodesPruned, uint64(n))
	}
	e.logger.Info("login codes pruned", zap.Int64("removed", n), zap.Time("cutoff", cutoff))
	e.emitAudit(ctx, auditEventCodesPruned, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"removed": strconv.FormatInt(n, 10),
			"cutoff":  cutoff.UTC().Format(time.RFC3339),
		}
	})
	return n, nil
}

// PruneCutoff returns the issue time before which Prune removes records.
func (e *Engine) PruneCutoff() time.Time {
	return e.now().Add(-(e.config.Code.TTL + e.config.Code.PruneGrace))
}
