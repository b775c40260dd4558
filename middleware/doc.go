// Package middleware exposes HTTP guards built on top of hostauth.Engine.
//
// # Guards
//
//   - [RequireSession] resolves the session cookie or bearer session token
//     through Engine.GetSession.
//   - [RequireToken] verifies a bearer access token with Engine.VerifyToken.
//     No storage is consulted.
//   - [Guard] selects one of the above by [Mode].
//
// Each guard injects its result into the request context. Handlers read it
// back with [SessionFromContext] or [ClaimsFromContext].
//
// This package translates HTTP semantics into Engine calls. Every pass or
// reject decision is delegated to the Engine.
package middleware
