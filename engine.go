package goNoPassword

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrEthical07/goNoPassword/codestore"
	"github.com/MrEthical07/goNoPassword/internal/audit"
	"go.uber.org/zap"
)

// Engine issues, delivers and redeems login codes.
//
// Engine instances are built once through [Builder.Build] and are safe for
// concurrent use afterwards.
type Engine struct {
	config    Config
	store     codestore.Store
	generator CodeGenerator
	// strictAlphabet enables the hex/digit check on redemption input; custom
	// generators may use any alphabet.
	strictAlphabet bool
	directory      PrincipalDirectory
	sinks          []NotificationSink
	limiter        RateLimiter
	logger         *zap.Logger
	audit          *audit.Dispatcher
	metrics        *Metrics
	now            func() time.Time

	// closeMu orders background.Add against Close so Wait never races a
	// late delivery.
	closeMu    sync.Mutex
	closed     bool
	background sync.WaitGroup
}

// Close waits for background deliveries and flushes pending audit events.
// Deliveries requested after Close fail with ErrEngineNotReady. Close is
// idempotent.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeMu.Lock()
	if e.closed {
		e.closeMu.Unlock()
		return
	}
	e.closed = true
	e.closeMu.Unlock()

	e.background.Wait()
	if e.audit != nil {
		e.audit.Close()
	}
	_ = e.logger.Sync()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return defaultConfig()
	}
	return cloneConfig(e.config)
}

// AuditDropped returns the number of audit events dropped by a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot returns empty maps when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, n uint64) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Add(id, n)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

// mapStoreError converts backend errors into engine errors. Sentinels the
// caller handles itself (not found, consumed, duplicate) never reach here.
func (e *Engine) mapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	e.metricInc(MetricStoreUnavailable)
	e.logger.Error("login code store failure", zap.String("op", op), zap.Error(err))

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
