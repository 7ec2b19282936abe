package goNoPassword

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Delivery is what a NotificationSink needs to reach the principal.
type Delivery struct {
	Principal      Principal
	Code           string
	URL            string
	RedirectTarget string
	ExpiresAt      time.Time
	TTL            time.Duration
}

// NotificationSink sends a login code out of band. Deliver should honor ctx;
// the engine abandons calls that outlive Delivery.Timeout either way.
type NotificationSink interface {
	Deliver(ctx context.Context, d Delivery) error
}

// NamedSink lets a sink choose the name used in reports, logs and audit events.
type NamedSink interface {
	Name() string
}

// DeliveryResult is the outcome of one sink.
type DeliveryResult struct {
	Sink     string
	Err      error
	Duration time.Duration
}

// DeliveryReport collects the outcome of every sink for one code.
type DeliveryReport struct {
	Results []DeliveryResult
	// Pending is set when delivery runs in the background and Results is empty.
	Pending bool
}

// Failed returns the results whose Err is set.
func (r DeliveryReport) Failed() []DeliveryResult {
	var out []DeliveryResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Err joins every failure, or returns nil.
func (r DeliveryReport) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}

func sinkName(s NotificationSink) string {
	if n, ok := s.(NamedSink); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

// SendLoginCode delivers code to every configured sink concurrently, each
// bounded by Delivery.Timeout. A failed delivery never invalidates the code.
// With Delivery.Async the call returns at once with a Pending report. After
// Close no sink is contacted and every result carries ErrEngineNotReady.
func (e *Engine) SendLoginCode(ctx context.Context, code *LoginCode, principal Principal) DeliveryReport {
	if e == nil || code == nil || len(e.sinks) == 0 {
		return DeliveryReport{}
	}

	d := Delivery{
		Principal:      principal,
		Code:           code.Code,
		URL:            e.LoginURL(code, principal),
		RedirectTarget: code.RedirectTarget,
		ExpiresAt:      code.IssuedAt.Add(e.config.Code.TTL),
		TTL:            e.config.Code.TTL,
	}

	e.closeMu.Lock()
	if e.closed {
		e.closeMu.Unlock()
		return e.refuseDelivery(ctx, d, code.ID)
	}
	if !e.config.Delivery.Async {
		e.closeMu.Unlock()
		return e.fanOut(ctx, d, code.ID)
	}
	e.background.Add(1)
	e.closeMu.Unlock()

	bg := context.WithoutCancel(ctx)
	go func() {
		defer e.background.Done()
		e.fanOut(bg, d, code.ID)
	}()
	return DeliveryReport{Pending: true}
}

// refuseDelivery reports every sink as failed without contacting it.
func (e *Engine) refuseDelivery(ctx context.Context, d Delivery, codeID string) DeliveryReport {
	results := make([]DeliveryResult, len(e.sinks))
	for i, sink := range e.sinks {
		name := sinkName(sink)
		results[i] = DeliveryResult{
			Sink: name,
			Err:  fmt.Errorf("%w: %s: %w", ErrDeliveryFailed, name, ErrEngineNotReady),
		}
		e.recordDelivery(ctx, d.Principal.ID, codeID, results[i])
	}
	return DeliveryReport{Results: results}
}

func (e *Engine) fanOut(ctx context.Context, d Delivery, codeID string) DeliveryReport {
	results := make([]DeliveryResult, len(e.sinks))

	var g errgroup.Group
	for i, sink := range e.sinks {
		g.Go(func() error {
			name := sinkName(sink)
			start := time.Now()
			err := e.deliverOne(ctx, sink, d)
			if err != nil {
				err = fmt.Errorf("%w: %s: %w", ErrDeliveryFailed, name, err)
			}
			results[i] = DeliveryResult{Sink: name, Err: err, Duration: time.Since(start)}
			e.recordDelivery(ctx, d.Principal.ID, codeID, results[i])
			return nil
		})
	}
	_ = g.Wait()

	return DeliveryReport{Results: results}
}

func (e *Engine) deliverOne(parent context.Context, sink NotificationSink, d Delivery) error {
	ctx, cancel := context.WithTimeout(parent, e.config.Delivery.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("sink panic: %v", r)
			}
		}()
		done <- sink.Deliver(ctx, d)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) recordDelivery(ctx context.Context, principalID, codeID string, res DeliveryResult) {
	e.metricObserve(MetricDeliveryLatency, res.Duration)
	if res.Err != nil {
		e.metricInc(MetricDeliveryFailure)
		e.logger.Warn("login code delivery failed",
			zap.String("sink", res.Sink),
			zap.String("principal_id", principalID),
			zap.String("code_id", codeID),
			zap.Duration("duration", res.Duration),
			zap.Error(res.Err),
		)
	} else {
		e.metricInc(MetricDeliverySuccess)
		e.logger.Debug("login code delivered",
			zap.String("sink", res.Sink),
			zap.String("code_id", codeID),
			zap.Duration("duration", res.Duration),
		)
	}

	e.emitAudit(ctx, auditEventCodeDelivery, res.Err == nil, principalID, codeID, res.Err, func() map[string]string {
		return map[string]string{"sink": res.Sink}
	})
}
