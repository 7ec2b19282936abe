package goNoPassword

import (
	"errors"
	"time"

	"github.com/MrEthical07/goNoPassword/codestore"
	"github.com/MrEthical07/goNoPassword/internal/audit"
	"go.uber.org/zap"
)

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config Config
	store  codestore.Store

	generator CodeGenerator
	directory PrincipalDirectory
	sinks     []NotificationSink
	limiter   RateLimiter
	logger    *zap.Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithSecret sets Code.Secret.
func (b *Builder) WithSecret(secret []byte) *Builder {
	b.config.Code.Secret = cloneBytes(secret)
	return b
}

// WithStore sets the code store. Required.
func (b *Builder) WithStore(store codestore.Store) *Builder {
	b.store = store
	return b
}

// WithGenerator replaces the default HashGenerator.
func (b *Builder) WithGenerator(g CodeGenerator) *Builder {
	b.generator = g
	return b
}

// WithPrincipalDirectory sets the directory used by RequestLoginCode and by
// redemption to load and re-check principals.
func (b *Builder) WithPrincipalDirectory(d PrincipalDirectory) *Builder {
	b.directory = d
	return b
}

// WithSinks appends notification sinks. Every sink receives every code.
func (b *Builder) WithSinks(sinks ...NotificationSink) *Builder {
	for _, s := range sinks {
		if s != nil {
			b.sinks = append(b.sinks, s)
		}
	}
	return b
}

// WithRateLimiter installs the rate limiting hook.
func (b *Builder) WithRateLimiter(l RateLimiter) *Builder {
	b.limiter = l
	return b
}

// WithLogger sets the structured logger. Default zap.NewNop().
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit sink and enables audit dispatching.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the issue, delivery and redeem latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides the clock used for expiry checks and pruning.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and returns the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.store == nil {
		return nil, errors.New("code store required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		store:     b.store,
		generator: b.generator,
		directory: b.directory,
		sinks:     append([]NotificationSink(nil), b.sinks...),
		limiter:   b.limiter,
		logger:    b.logger,
		now:       b.now,
	}

	if engine.generator == nil {
		g, ok := NewHashGenerator(cfg.Code.Secret, cfg.Code.HashAlgorithm)
		if !ok {
			return nil, errors.New("Code HashAlgorithm is not supported")
		}
		engine.generator = g
	}
	_, engine.strictAlphabet = engine.generator.(*HashGenerator)

	if engine.logger == nil {
		engine.logger = zap.NewNop()
	}
	engine.logger = engine.logger.Named("nopassword")
	if engine.now == nil {
		engine.now = time.Now
	}

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop:     engine.auditDropped,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
