// Package rate provides the Redis-backed fixed-window counters used to throttle
// email/password sign-in attempts.
//
// # Window semantics
//
// INCR + EXPIRE on the first hit of a window. Keys live under the configured prefix:
//   - <prefix>:rl:email:<email> counts per account identifier
//   - <prefix>:rl:ip:<ip> counts per client address
package rate
