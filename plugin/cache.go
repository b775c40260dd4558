package plugin

import (
	"sync"
	"sync/atomic"
	"weak"

	"github.com/MrEthical07/hostauth/adapter"
	"github.com/MrEthical07/hostauth/host"
)

// AdapterFactory builds an adapter for a host application.
type AdapterFactory func(app *host.App, cfg adapter.Config) (adapter.Adapter, error)

// AdapterCache holds at most one adapter, keyed by the identity of the host
// application it was built for.
//
// The host is referenced weakly, but adapters built by adapter.New hold their
// host strongly, so a cached host stays alive until Clear or a lookup for a
// different host replaces the adapter. Only a custom factory whose adapters
// drop the host lets the weak reference resolve to nil, which is then a miss.
//
// On a hit the cfg argument is ignored: asking again for the same host with a
// different config returns the adapter built with the first config. Call
// Clear to force a rebuild.
type AdapterCache struct {
	factory AdapterFactory

	mu      sync.Mutex
	adapter adapter.Adapter
	host    weak.Pointer[host.App]

	hits   atomic.Uint64
	builds atomic.Uint64
}

// CacheStats reports cache activity.
type CacheStats struct {
	Hits   uint64
	Builds uint64
	Cached bool
}

// NewAdapterCache returns an empty cache. A nil factory means adapter.New.
func NewAdapterCache(factory AdapterFactory) *AdapterCache {
	if factory == nil {
		factory = adapter.New
	}
	return &AdapterCache{factory: factory}
}

// GetOrCreate returns the cached adapter when it was built for app, and
// otherwise builds, caches and returns a new one. Factory errors are returned
// as is and leave the cache untouched.
func (c *AdapterCache) GetOrCreate(app *host.App, cfg adapter.Config) (adapter.Adapter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.adapter != nil && app != nil && c.host.Value() == app {
		c.hits.Add(1)
		return c.adapter, nil
	}

	a, err := c.factory(app, cfg)
	if err != nil {
		return nil, err
	}

	c.adapter = a
	c.host = weak.Make(app)
	c.builds.Add(1)

	if app != nil {
		logger := app.Logger()
		logger.Debug().
			Str("component", "plugin").
			Str("id_type", string(cfg.IDType)).
			Bool("debug_logs", cfg.EnableDebugLogs).
			Msg("database adapter built")
	}
	return a, nil
}

// Clear drops the cached adapter and host reference. It is idempotent.
func (c *AdapterCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapter = nil
	c.host = weak.Pointer[host.App]{}
}

// Stats returns hit and build counters and whether an adapter is cached.
func (c *AdapterCache) Stats() CacheStats {
	c.mu.Lock()
	cached := c.adapter != nil
	c.mu.Unlock()
	return CacheStats{Hits: c.hits.Load(), Builds: c.builds.Load(), Cached: cached}
}

var shared = NewAdapterCache(nil)

// SharedAdapterCache returns the process-wide cache.
func SharedAdapterCache() *AdapterCache {
	return shared
}

// GetOrCreateAdapter looks up app in the process-wide cache.
func GetOrCreateAdapter(app *host.App, cfg adapter.Config) (adapter.Adapter, error) {
	return shared.GetOrCreate(app, cfg)
}

// ClearAdapterCache empties the process-wide cache.
func ClearAdapterCache() {
	shared.Clear()
}
