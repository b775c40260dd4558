// Package audit relays authentication events to caller-supplied sinks.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON lines, zerolog, no-op).
//   - [Dispatcher]: buffered async relay; drops or blocks when the buffer is full.
//   - [Event]: one sign-up, sign-in, sign-out, or revocation record.
//
// The engine decides which events exist; this package only buffers and delivers them.
// It must not import hostauth or any sibling internal package.
package audit
