package goNoPassword

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPruneRemovesOnlyPastGrace(t *testing.T) {
	engine, env := newTestEngine(t, func(b *Builder) { b.WithMetricsEnabled(true) })
	cfg := engine.Config().Code
	ctx := context.Background()

	old := issueFor(t, engine, alice, "")
	env.clock.Advance(cfg.TTL)
	recent := issueFor(t, engine, alice, "")

	env.clock.Advance(cfg.PruneGrace + time.Second)
	if !engine.PruneCutoff().Equal(env.clock.Now().Add(-(cfg.TTL + cfg.PruneGrace))) {
		t.Fatalf("unexpected cutoff %v", engine.PruneCutoff())
	}

	n, err := engine.Prune(ctx)
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one record removed, got %d", n)
	}

	if _, err := env.store.FindByCode(ctx, old.Code); err == nil {
		t.Fatal("old record must be gone")
	}
	if _, err := env.store.FindByCode(ctx, recent.Code); err != nil {
		t.Fatalf("recent expired record must be kept during grace: %v", err)
	}
	if got := engine.MetricsSnapshot().Counters[MetricCodesPruned]; got != 1 {
		t.Fatalf("expected MetricCodesPruned=1, got %d", got)
	}

	_, err = engine.Redeem(ctx, recent.Code)
	if !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("kept record still expires, got %v", err)
	}
}

func TestPruneKeepsValidCodes(t *testing.T) {
	engine, env := newTestEngine(t, func(b *Builder) {
		cfg := DefaultConfig()
		cfg.Code.Secret = []byte("test-secret")
		cfg.Code.PruneGrace = 0
		b.WithConfig(cfg)
	})
	code := issueFor(t, engine, alice, "")
	env.clock.Advance(engine.Config().Code.TTL)

	n, err := engine.Prune(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected nothing pruned at exactly TTL, got %d, %v", n, err)
	}
	if _, err := engine.Redeem(context.Background(), code.Code); err != nil {
		t.Fatalf("code must survive prune: %v", err)
	}
}

func TestPruneStoreFailure(t *testing.T) {
	engine, err := New().
		WithSecret([]byte("test-secret")).
		WithStore(failingStore{err: errors.New("connection reset")}).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer engine.Close()

	if _, err := engine.Prune(context.Background()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
