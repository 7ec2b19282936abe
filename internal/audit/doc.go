// Package audit implements async dispatching of login-code lifecycle events.
//
// [Dispatcher] is a buffered relay in front of a [Sink] with drop-if-full or
// block-if-full semantics. Sinks provided here write to a channel, a JSON
// line stream or a zap logger.
//
// The package does not decide which events to emit; the Engine does.
package audit
