// Package internal holds helpers private to hostauth: session token generation
// and digests.
//
// Sub-packages:
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - rate: Redis-backed sign-in throttling
package internal
