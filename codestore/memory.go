package codestore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.Mutex
	now    func() time.Time
	byCode map[string]*Record
	byID   map[string]*Record
}

// NewMemoryStore returns an empty MemoryStore. Only WithClock applies.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		now:    o.now,
		byCode: make(map[string]*Record),
		byID:   make(map[string]*Record),
	}
}

func (s *MemoryStore) Create(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec != nil {
		if _, exists := s.byCode[rec.Code]; exists {
			return ErrConstraintViolation
		}
	}
	if err := prepare(rec, s.now()); err != nil {
		return err
	}

	stored := *rec
	s.byCode[stored.Code] = &stored
	s.byID[stored.ID] = &stored
	return nil
}

func (s *MemoryStore) FindByCode(ctx context.Context, code string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byCode[code]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

func (s *MemoryStore) MarkConsumed(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if rec.Consumed {
		return ErrAlreadyConsumed
	}
	rec.Consumed = true
	rec.ConsumedAt = at.UTC()
	return nil
}

func (s *MemoryStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, rec := range s.byID {
		if rec.IssuedAt.Before(before) {
			delete(s.byID, id)
			delete(s.byCode, rec.Code)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
