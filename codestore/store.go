package codestore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrConstraintViolation is returned by Create when the code is already stored.
	ErrConstraintViolation = errors.New("login code already exists")
	// ErrNotFound is returned when no record matches.
	ErrNotFound = errors.New("login code not found")
	// ErrAlreadyConsumed is returned by MarkConsumed for a record that was consumed before.
	ErrAlreadyConsumed = errors.New("login code already consumed")
	// ErrUnavailable wraps backend transport and decoding failures.
	ErrUnavailable = errors.New("login code store unavailable")
)

// Record is one issued login code.
type Record struct {
	ID             string
	PrincipalID    string
	Code           string
	IssuedAt       time.Time
	RedirectTarget string
	Consumed       bool
	ConsumedAt     time.Time
}

// Store persists login codes.
//
// Implementations must make Create fail with ErrConstraintViolation when the
// code is already present, and must make MarkConsumed succeed for exactly one
// caller per record even under concurrent calls.
type Store interface {
	// Create assigns ID and IssuedAt and persists rec.
	Create(ctx context.Context, rec *Record) error
	// FindByCode returns the record holding code, consumed or not.
	FindByCode(ctx context.Context, code string) (Record, error)
	// MarkConsumed flips the consumed flag of record id.
	MarkConsumed(ctx context.Context, id string, at time.Time) error
	// Prune deletes records issued before the cutoff and reports how many were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Option configures a store constructor. Options a backend does not use are ignored.
type Option func(*storeOptions)

type storeOptions struct {
	now       func() time.Time
	prefix    string
	retention time.Duration
}

// WithClock overrides the clock used to stamp IssuedAt.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithKeyPrefix sets the Redis key prefix. Default "nplc".
func WithKeyPrefix(prefix string) Option {
	return func(o *storeOptions) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithRetention bounds how long Redis keeps a record after issue. Zero keeps
// records until Prune removes them.
func WithRetention(d time.Duration) Option {
	return func(o *storeOptions) {
		if d >= 0 {
			o.retention = d
		}
	}
}

func buildOptions(opts []Option) storeOptions {
	o := storeOptions{
		now:    time.Now,
		prefix: "nplc",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// prepare validates rec and assigns the store-owned fields.
func prepare(rec *Record, now time.Time) error {
	if rec == nil {
		return errors.New("nil record")
	}
	if rec.Code == "" {
		return errors.New("empty code")
	}
	rec.ID = uuid.NewString()
	rec.IssuedAt = now.UTC()
	rec.Consumed = false
	rec.ConsumedAt = time.Time{}
	return nil
}
