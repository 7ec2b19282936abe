package codestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// createCodeLua stores a record unless its code key already exists.
// KEYS[1] = code hash key
// KEYS[2] = id index key
// KEYS[3] = issued-at sorted set
// ARGV[1] = id
// ARGV[2] = principal
// ARGV[3] = issued unix nanos
// ARGV[4] = redirect target
// ARGV[5] = issued unix millis (sorted set score)
// ARGV[6] = retention millis, 0 for none
// ARGV[7] = code
//
// Returns 1, or error string "duplicate".
var createCodeLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return {err='duplicate'}
end

redis.call('HSET', KEYS[1],
  'id', ARGV[1],
  'principal', ARGV[2],
  'issued', ARGV[3],
  'redirect', ARGV[4],
  'consumed', '0',
  'consumed_at', '0')
redis.call('SET', KEYS[2], ARGV[7])
redis.call('ZADD', KEYS[3], ARGV[5], ARGV[1])

local retention = tonumber(ARGV[6])
if retention > 0 then
  redis.call('PEXPIRE', KEYS[1], retention)
  redis.call('PEXPIRE', KEYS[2], retention)
end
return 1
`)

// consumeCodeLua flips the consumed field of a record exactly once.
// KEYS[1] = id index key
// ARGV[1] = code key prefix
// ARGV[2] = consumed-at unix nanos
//
// Returns 1, or error string "not_found" / "already_consumed".
var consumeCodeLua = redis.NewScript(`
local code = redis.call('GET', KEYS[1])
if not code then
  return {err='not_found'}
end

local key = ARGV[1] .. code
local consumed = redis.call('HGET', key, 'consumed')
if not consumed then
  return {err='not_found'}
end
if consumed == '1' then
  return {err='already_consumed'}
end

redis.call('HSET', key, 'consumed', '1', 'consumed_at', ARGV[2])
return 1
`)

// pruneCodesLua removes records whose sorted-set score is below the cutoff.
// KEYS[1] = issued-at sorted set
// ARGV[1] = cutoff unix millis (exclusive)
// ARGV[2] = id key prefix
// ARGV[3] = code key prefix
//
// Returns the number of record hashes deleted.
var pruneCodesLua = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
local removed = 0
for _, id in ipairs(ids) do
  local code = redis.call('GET', ARGV[2] .. id)
  if code then
    removed = removed + redis.call('DEL', ARGV[3] .. code)
    redis.call('DEL', ARGV[2] .. id)
  end
  redis.call('ZREM', KEYS[1], id)
end
return removed
`)

// RedisStore keeps each record in a hash keyed by its code, with an id index
// and an issued-at sorted set for pruning. Scripts address keys derived from
// the prefix, so all keys must live on one Redis node.
type RedisStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewRedisStore returns a store using client. WithKeyPrefix, WithRetention and
// WithClock apply.
func NewRedisStore(client redis.UniversalClient, opts ...Option) *RedisStore {
	o := buildOptions(opts)
	return &RedisStore{
		redis:     client,
		prefix:    o.prefix,
		retention: o.retention,
		now:       o.now,
	}
}

func (s *RedisStore) codePrefix() string { return s.prefix + ":code:" }
func (s *RedisStore) idPrefix() string   { return s.prefix + ":id:" }
func (s *RedisStore) issuedKey() string  { return s.prefix + ":issued" }

func (s *RedisStore) Create(ctx context.Context, rec *Record) error {
	if err := prepare(rec, s.now()); err != nil {
		return err
	}

	_, err := createCodeLua.Run(ctx, s.redis,
		[]string{s.codePrefix() + rec.Code, s.idPrefix() + rec.ID, s.issuedKey()},
		rec.ID,
		rec.PrincipalID,
		rec.IssuedAt.UnixNano(),
		rec.RedirectTarget,
		rec.IssuedAt.UnixMilli(),
		s.retention.Milliseconds(),
		rec.Code,
	).Result()
	if err != nil {
		if err.Error() == "duplicate" {
			return ErrConstraintViolation
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) FindByCode(ctx context.Context, code string) (Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.codePrefix()+code).Result()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return Record{}, ErrNotFound
	}

	rec, err := decodeRedisRecord(code, fields)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rec, nil
}

func (s *RedisStore) MarkConsumed(ctx context.Context, id string, at time.Time) error {
	_, err := consumeCodeLua.Run(ctx, s.redis,
		[]string{s.idPrefix() + id},
		s.codePrefix(),
		at.UTC().UnixNano(),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return ErrNotFound
		case "already_consumed":
			return ErrAlreadyConsumed
		default:
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}
	return nil
}

func (s *RedisStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	n, err := pruneCodesLua.Run(ctx, s.redis,
		[]string{s.issuedKey()},
		before.UnixMilli(),
		s.idPrefix(),
		s.codePrefix(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return n, nil
}

func decodeRedisRecord(code string, fields map[string]string) (Record, error) {
	id := fields["id"]
	if id == "" {
		return Record{}, errors.New("record without id")
	}

	issued, err := strconv.ParseInt(fields["issued"], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("issued: %w", err)
	}

	rec := Record{
		ID:             id,
		PrincipalID:    fields["principal"],
		Code:           code,
		IssuedAt:       time.Unix(0, issued).UTC(),
		RedirectTarget: fields["redirect"],
		Consumed:       fields["consumed"] == "1",
	}

	if rec.Consumed {
		consumedAt, err := strconv.ParseInt(fields["consumed_at"], 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("consumed_at: %w", err)
		}
		rec.ConsumedAt = time.Unix(0, consumedAt).UTC()
	}
	return rec, nil
}
