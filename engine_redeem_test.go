package goNoPassword

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goNoPassword/codestore"
)

func issueFor(t *testing.T, engine *Engine, p Principal, next string) *LoginCode {
	t.Helper()
	code, err := engine.IssueCode(context.Background(), p, next)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	return code
}

func TestRedeemSuccess(t *testing.T) {
	engine, env := newTestEngine(t, nil)
	code := issueFor(t, engine, alice, "/inbox")
	env.clock.Advance(time.Minute)

	r, err := engine.Redeem(context.Background(), code.Code)
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if r.PrincipalID != alice.ID || r.RedirectTarget != "/inbox" {
		t.Fatalf("unexpected redemption %+v", r)
	}
	if r.Principal == nil || r.Principal.Username != "alice" {
		t.Fatalf("expected principal from directory, got %+v", r.Principal)
	}
	if !r.Code.Consumed || !r.Code.ConsumedAt.Equal(env.clock.Now()) {
		t.Fatalf("expected consumed record, got %+v", r.Code)
	}

	stored, err := env.store.FindByCode(context.Background(), code.Code)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if !stored.Consumed {
		t.Fatal("store record not marked consumed")
	}
}

func TestRedeemTwiceFails(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	code := issueFor(t, engine, alice, "")
	ctx := context.Background()

	if _, err := engine.Redeem(ctx, code.Code); err != nil {
		t.Fatalf("first redeem failed: %v", err)
	}

	_, err := engine.Redeem(ctx, code.Code)
	if !errors.Is(err, ErrCodeConsumed) {
		t.Fatalf("expected ErrCodeConsumed, got %v", err)
	}
	if !errors.Is(err, ErrCodeInvalid) {
		t.Fatal("ErrCodeConsumed must match ErrCodeInvalid")
	}
	if RejectionReason(err) != "already_consumed" {
		t.Fatalf("unexpected reason %q", RejectionReason(err))
	}
}

func TestRedeemConcurrentSingleWinner(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	code := issueFor(t, engine, alice, "")

	const workers = 32
	var (
		wg       sync.WaitGroup
		start    = make(chan struct{})
		wins     atomic.Int32
		consumed atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := engine.Redeem(context.Background(), code.Code)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrCodeConsumed):
				consumed.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one success, got %d", wins.Load())
	}
	if consumed.Load() != workers-1 {
		t.Fatalf("expected %d consumed rejections, got %d", workers-1, consumed.Load())
	}
}

func TestRedeemExpiry(t *testing.T) {
	engine, env := newTestEngine(t, nil)
	ttl := engine.Config().Code.TTL
	ctx := context.Background()

	onEdge := issueFor(t, engine, alice, "")
	late := issueFor(t, engine, alice, "")

	env.clock.Advance(ttl)
	if _, err := engine.Redeem(ctx, onEdge.Code); err != nil {
		t.Fatalf("code must be valid at exactly TTL: %v", err)
	}

	env.clock.Advance(time.Nanosecond)
	_, err := engine.Redeem(ctx, late.Code)
	if !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}

	stored, err := env.store.FindByCode(ctx, late.Code)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if stored.Consumed {
		t.Fatal("expired code must not be marked consumed")
	}
}

func TestRedeemMalformedInput(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	for _, in := range []string{
		"",
		"   ",
		"abc",
		strings.Repeat("g", 20),
		strings.Repeat("A", 20),
		strings.Repeat("0", 21),
	} {
		_, err := engine.Redeem(ctx, in)
		if !errors.Is(err, ErrCodeNotFound) {
			t.Fatalf("%q: expected ErrCodeNotFound, got %v", in, err)
		}
	}
}

func TestRedeemTrimsWhitespace(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	code := issueFor(t, engine, alice, "")

	if _, err := engine.Redeem(context.Background(), " "+code.Code+"\n"); err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
}

func TestRedeemUnknownCode(t *testing.T) {
	engine, _ := newTestEngine(t, nil)

	_, err := engine.Redeem(context.Background(), strings.Repeat("0", 20))
	if !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestRedeemWithUsername(t *testing.T) {
	engine, env := newTestEngine(t, nil)
	code := issueFor(t, engine, alice, "")
	ctx := context.Background()

	if _, err := engine.RedeemWithUsername(ctx, "carol", code.Code); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound for wrong username, got %v", err)
	}
	stored, _ := env.store.FindByCode(ctx, code.Code)
	if stored.Consumed {
		t.Fatal("username mismatch must not consume the code")
	}

	r, err := engine.RedeemWithUsername(ctx, "alice", code.Code)
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if r.PrincipalID != alice.ID {
		t.Fatalf("unexpected principal %q", r.PrincipalID)
	}
}

func TestRedeemWithUsernameRequiresDirectory(t *testing.T) {
	engine, err := New().WithSecret([]byte("s")).WithStore(codestore.NewMemoryStore()).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer engine.Close()

	if _, err := engine.RedeemWithUsername(context.Background(), "alice", "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}

func TestRedeemWithoutDirectory(t *testing.T) {
	store := codestore.NewMemoryStore()
	engine, err := New().WithSecret([]byte("s")).WithStore(store).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer engine.Close()

	code, err := engine.IssueCode(context.Background(), alice, "")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	r, err := engine.Redeem(context.Background(), code.Code)
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if r.Principal != nil {
		t.Fatalf("expected no principal without a directory, got %+v", r.Principal)
	}
}

func TestRedeemDeactivatedPrincipal(t *testing.T) {
	engine, env := newTestEngine(t, nil)
	code := issueFor(t, engine, carol, "")
	ctx := context.Background()

	disabled := carol
	disabled.Active = false
	env.dir.set(disabled)

	_, err := engine.Redeem(ctx, code.Code)
	if !errors.Is(err, ErrInactivePrincipal) {
		t.Fatalf("expected ErrInactivePrincipal, got %v", err)
	}
	if !errors.Is(err, ErrCodeInvalid) {
		t.Fatal("inactive owner must match ErrCodeInvalid")
	}
	if PublicError(err) != ErrCodeInvalid {
		t.Fatalf("inactive owner must collapse to ErrCodeInvalid, got %v", PublicError(err))
	}
	if RejectionReason(err) != "principal_inactive" {
		t.Fatalf("unexpected reason %q", RejectionReason(err))
	}

	env.dir.set(carol)
	if _, err := engine.Redeem(ctx, code.Code); err != nil {
		t.Fatalf("code must still be usable after reactivation: %v", err)
	}
}

func TestRedeemDeletedPrincipal(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ghost := Principal{ID: "u-ghost", Username: "ghost", Active: true}
	code := issueFor(t, engine, ghost, "")

	_, err := engine.Redeem(context.Background(), code.Code)
	if !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestRedeemRateLimited(t *testing.T) {
	limiter := &denyLimiter{redeem: ErrRateLimited}
	engine, env := newTestEngine(t, func(b *Builder) { b.WithRateLimiter(limiter) })
	code := issueFor(t, engine, alice, "")

	_, err := engine.Redeem(context.Background(), code.Code)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	stored, _ := env.store.FindByCode(context.Background(), code.Code)
	if stored.Consumed {
		t.Fatal("rate limited redemption must not consume the code")
	}
}

func TestRedeemStoreUnavailable(t *testing.T) {
	engine, err := New().
		WithSecret([]byte("test-secret")).
		WithStore(failingStore{err: errors.New("i/o timeout")}).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer engine.Close()

	_, err = engine.Redeem(context.Background(), strings.Repeat("0", 20))
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if errors.Is(err, ErrCodeInvalid) {
		t.Fatal("store failures must not look like rejections")
	}
	if got := engine.MetricsSnapshot().Counters[MetricStoreUnavailable]; got != 1 {
		t.Fatalf("expected MetricStoreUnavailable=1, got %d", got)
	}
}

// raceStore reports the record as unconsumed on lookup but loses the
// consume race.
type raceStore struct {
	*codestore.MemoryStore
	markErr error
}

func (s raceStore) MarkConsumed(context.Context, string, time.Time) error { return s.markErr }

func TestRedeemLostRaceMapping(t *testing.T) {
	cases := []struct {
		markErr error
		want    error
	}{
		{markErr: codestore.ErrAlreadyConsumed, want: ErrCodeConsumed},
		{markErr: codestore.ErrNotFound, want: ErrCodeNotFound},
		{markErr: codestore.ErrUnavailable, want: ErrStoreUnavailable},
	}

	for _, tc := range cases {
		store := raceStore{MemoryStore: codestore.NewMemoryStore(), markErr: tc.markErr}
		engine, err := New().WithSecret([]byte("s")).WithStore(store).Build()
		if err != nil {
			t.Fatalf("build failed: %v", err)
		}

		code, err := engine.IssueCode(context.Background(), alice, "")
		if err != nil {
			t.Fatalf("issue failed: %v", err)
		}
		if _, err := engine.Redeem(context.Background(), code.Code); !errors.Is(err, tc.want) {
			t.Fatalf("mark error %v: expected %v, got %v", tc.markErr, tc.want, err)
		}
		engine.Close()
	}
}

func TestNumericRedeem(t *testing.T) {
	engine, _ := newTestEngine(t, func(b *Builder) {
		cfg := DefaultConfig()
		cfg.Code.Secret = []byte("test-secret")
		cfg.Code.Numeric = true
		cfg.Code.Length = 8
		b.WithConfig(cfg)
	})
	code := issueFor(t, engine, alice, "")

	if _, err := engine.Redeem(context.Background(), "abcdefab"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected hex input to be rejected in numeric mode, got %v", err)
	}
	if _, err := engine.Redeem(context.Background(), code.Code); err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
}

func TestPublicErrorCollapsesRejections(t *testing.T) {
	for _, err := range []error{ErrCodeNotFound, ErrCodeExpired, ErrCodeConsumed, ErrCodeOwnerInactive} {
		if got := PublicError(err); got != ErrCodeInvalid {
			t.Fatalf("%v: expected ErrCodeInvalid, got %v", RejectionReason(err), got)
		}
		if err.Error() != ErrCodeInvalid.Error() {
			t.Fatalf("rejection message leaks reason: %q", err.Error())
		}
	}

	other := errors.New("other")
	if PublicError(other) != other {
		t.Fatal("unrelated errors must pass through")
	}
	if RejectionReason(other) != "" {
		t.Fatal("unrelated errors have no rejection reason")
	}
}
