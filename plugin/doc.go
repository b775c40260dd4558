// Package plugin wires hostauth engines into a host application.
//
// It owns two pieces of glue. [AdapterCache] lazily builds the database
// adapter for a host application and keeps it for as long as the same host
// instance keeps asking; it holds the host only weakly. [InitEngines] builds
// either one engine or a set of named engines that share that adapter, each
// with its own cookie prefix and option overrides.
//
// A process-wide cache backs [GetOrCreateAdapter] and [InitEngines] when no
// explicit cache is injected.
package plugin
