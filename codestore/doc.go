// Package codestore persists login codes.
//
// [Store] is the contract the engine relies on: Create enforces code
// uniqueness and MarkConsumed is an atomic compare-and-set, so exactly one
// concurrent redemption of a code can win. Backends:
//
//   - [MemoryStore]: mutex-guarded maps for tests and single-process use.
//   - [RedisStore]: Lua scripts over go-redis.
//   - [GormStore]: a login_codes table with a unique index on code.
//   - [MongoStore]: a collection with a unique index on code.
//
// Backends stamp IssuedAt themselves; callers never supply it.
package codestore
