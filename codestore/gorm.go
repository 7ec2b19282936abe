package codestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// loginCodeRow is the relational layout of a Record.
type loginCodeRow struct {
	ID             string     `gorm:"primaryKey;size:36"`
	PrincipalRef   string     `gorm:"column:principal_ref;size:255;not null;index"`
	Code           string     `gorm:"size:128;not null;uniqueIndex"`
	IssuedAt       time.Time  `gorm:"not null;index"`
	RedirectTarget string     `gorm:"size:2048;not null"`
	Consumed       bool       `gorm:"not null;default:false"`
	ConsumedAt     *time.Time `gorm:"default:null"`
}

func (loginCodeRow) TableName() string { return "login_codes" }

func (r loginCodeRow) record() Record {
	rec := Record{
		ID:             r.ID,
		PrincipalID:    r.PrincipalRef,
		Code:           r.Code,
		IssuedAt:       r.IssuedAt.UTC(),
		RedirectTarget: r.RedirectTarget,
		Consumed:       r.Consumed,
	}
	if r.ConsumedAt != nil {
		rec.ConsumedAt = r.ConsumedAt.UTC()
	}
	return rec
}

// GormStore keeps records in the login_codes table of any GORM dialect.
// Open the database with gorm.Config{TranslateError: true} so duplicate keys
// are reported as gorm.ErrDuplicatedKey; driver messages are matched otherwise.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore migrates the login_codes table and returns a store on db.
// Only WithClock applies.
func NewGormStore(db *gorm.DB, opts ...Option) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("nil gorm db")
	}
	if err := db.AutoMigrate(&loginCodeRow{}); err != nil {
		return nil, fmt.Errorf("migrate login_codes: %w", err)
	}
	o := buildOptions(opts)
	return &GormStore{db: db, now: o.now}, nil
}

func (s *GormStore) Create(ctx context.Context, rec *Record) error {
	// Postgres keeps microseconds.
	if err := prepare(rec, s.now().Truncate(time.Microsecond)); err != nil {
		return err
	}

	row := loginCodeRow{
		ID:             rec.ID,
		PrincipalRef:   rec.PrincipalID,
		Code:           rec.Code,
		IssuedAt:       rec.IssuedAt,
		RedirectTarget: rec.RedirectTarget,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrConstraintViolation
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *GormStore) FindByCode(ctx context.Context, code string) (Record, error) {
	var row loginCodeRow
	err := s.db.WithContext(ctx).Where("code = ?", code).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return row.record(), nil
}

func (s *GormStore) MarkConsumed(ctx context.Context, id string, at time.Time) error {
	at = at.UTC().Truncate(time.Microsecond)
	res := s.db.WithContext(ctx).
		Model(&loginCodeRow{}).
		Where("id = ? AND consumed = ?", id, false).
		Updates(map[string]any{"consumed": true, "consumed_at": at})
	if res.Error != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&loginCodeRow{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrAlreadyConsumed
}

func (s *GormStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("issued_at < ?", before.UTC()).Delete(&loginCodeRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, res.Error)
	}
	return res.RowsAffected, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
