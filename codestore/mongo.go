package codestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoRecord struct {
	ID             string     `bson:"_id"`
	PrincipalRef   string     `bson:"principal_ref"`
	Code           string     `bson:"code"`
	IssuedAt       time.Time  `bson:"issued_at"`
	RedirectTarget string     `bson:"redirect_target"`
	Consumed       bool       `bson:"consumed"`
	ConsumedAt     *time.Time `bson:"consumed_at,omitempty"`
}

func (m mongoRecord) record() Record {
	rec := Record{
		ID:             m.ID,
		PrincipalID:    m.PrincipalRef,
		Code:           m.Code,
		IssuedAt:       m.IssuedAt.UTC(),
		RedirectTarget: m.RedirectTarget,
		Consumed:       m.Consumed,
	}
	if m.ConsumedAt != nil {
		rec.ConsumedAt = m.ConsumedAt.UTC()
	}
	return rec
}

// MongoStore keeps one document per record, with a unique index on code.
type MongoStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoStore ensures the indexes of coll and returns a store on it.
// Only WithClock applies.
func NewMongoStore(ctx context.Context, coll *mongo.Collection, opts ...Option) (*MongoStore, error) {
	if coll == nil {
		return nil, errors.New("nil mongo collection")
	}

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "code", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("code_unique"),
		},
		{
			Keys:    bson.D{{Key: "issued_at", Value: 1}},
			Options: options.Index().SetName("issued_at"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create indexes: %w", ErrUnavailable, err)
	}

	o := buildOptions(opts)
	return &MongoStore{coll: coll, now: o.now}, nil
}

func (s *MongoStore) Create(ctx context.Context, rec *Record) error {
	// BSON dates keep milliseconds.
	if err := prepare(rec, s.now().Truncate(time.Millisecond)); err != nil {
		return err
	}

	doc := mongoRecord{
		ID:             rec.ID,
		PrincipalRef:   rec.PrincipalID,
		Code:           rec.Code,
		IssuedAt:       rec.IssuedAt,
		RedirectTarget: rec.RedirectTarget,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConstraintViolation
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *MongoStore) FindByCode(ctx context.Context, code string) (Record, error) {
	var doc mongoRecord
	err := s.coll.FindOne(ctx, bson.M{"code": code}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return doc.record(), nil
}

func (s *MongoStore) MarkConsumed(ctx context.Context, id string, at time.Time) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "consumed": false},
		bson.M{"$set": bson.M{"consumed": true, "consumed_at": at.UTC().Truncate(time.Millisecond)}},
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrAlreadyConsumed
}

func (s *MongoStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"issued_at": bson.M{"$lt": before.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return res.DeletedCount, nil
}
