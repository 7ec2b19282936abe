package notify

import (
	"context"

	nopw "github.com/MrEthical07/goNoPassword"
	"go.uber.org/zap"
)

// LogSink writes redemption URLs to a zap logger. It is meant for local
// development, where no mail server is available.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("notify")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, d nopw.Delivery) error {
	s.logger.Info("login code ready",
		zap.String("principal_id", d.Principal.ID),
		zap.String("email", d.Principal.Email),
		zap.String("url", d.URL),
		zap.Time("expires_at", d.ExpiresAt),
	)
	return nil
}

// FuncSink adapts a function to nopw.NotificationSink.
type FuncSink func(ctx context.Context, d nopw.Delivery) error

func (f FuncSink) Deliver(ctx context.Context, d nopw.Delivery) error {
	return f(ctx, d)
}
