// Package hostauth is an email and password authentication engine that runs
// inside a host application and persists through the host's database adapter.
//
// An [Engine] is built from [Options] with [New] or a [Builder]. It stores
// users, credential accounts, and sessions through an [adapter.Adapter], can
// cache session lookups and throttle sign-ins in Redis, and optionally issues
// JWT access tokens for a session. [Engine.Handler] serves the HTTP routes
// under Options.BasePath.
//
// Engine methods are safe to call from multiple goroutines.
//
// # Architecture boundaries
//
// The engine never opens databases or Redis connections itself; callers pass
// them in through Options. Wiring engines into a host application, including
// sharing one adapter between several named instances, lives in package
// plugin.
package hostauth
