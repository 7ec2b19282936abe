// Package goNoPassword issues and redeems single-use login codes for
// passwordless sign-in.
//
// A principal asks for access, the [Engine] stores a fresh code and hands a
// redemption URL to every configured [NotificationSink]; the principal then
// redeems the code once, within Code.TTL, and gets back the redirect target
// chosen at issue time. Engine methods are safe to call from multiple
// goroutines after [Builder.Build].
//
// # Architecture boundaries
//
// The root package owns the lifecycle: generation, collision retry, expiry
// checks and single-use redemption. Persistence lives behind
// [codestore.Store]; uniqueness and consume-once are store primitives, so
// several engine instances can share one store. Request routing, sessions
// and the principal directory belong to the caller; httpapi is one binding.
//
// # What this package must NOT do
//
//   - Read configuration from globals or the environment.
//   - Tell users whether a code was wrong, expired or already used; see [PublicError].
//   - Log or audit code values.
package goNoPassword
