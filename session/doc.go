// Package session provides the Redis secondary storage that caches resolved
// sessions in front of the database adapter.
//
// Entries are opaque byte payloads keyed by a digest of the session token, so raw
// tokens never appear in Redis key space. The package does not interpret
// payloads, decide expiry policy, or talk to the database; the engine does.
package session
