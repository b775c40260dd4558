package plugin

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"weak"

	"github.com/MrEthical07/hostauth/adapter"
	"github.com/MrEthical07/hostauth/host"
)

func newHost(t *testing.T) *host.App {
	t.Helper()
	app, err := host.Open(context.Background(), host.Config{})
	if err != nil {
		t.Fatalf("open host: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestGetOrCreateReusesAdapterForSameHost(t *testing.T) {
	app := newHost(t)
	cache := NewAdapterCache(nil)

	first, err := cache.GetOrCreate(app, adapter.Config{IDType: adapter.IDTypeText})
	if err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	second, err := cache.GetOrCreate(app, adapter.Config{IDType: adapter.IDTypeText})
	if err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if first != second {
		t.Fatal("expected the cached adapter on the second lookup")
	}

	stats := cache.Stats()
	if stats.Builds != 1 || stats.Hits != 1 || !stats.Cached {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestGetOrCreateIgnoresConfigOnHit(t *testing.T) {
	app := newHost(t)
	cache := NewAdapterCache(nil)

	first, err := cache.GetOrCreate(app, adapter.Config{IDType: adapter.IDTypeNumber})
	if err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	second, err := cache.GetOrCreate(app, adapter.Config{IDType: adapter.IDTypeText, EnableDebugLogs: true})
	if err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if first != second {
		t.Fatal("expected the cached adapter despite a different config")
	}
	if got := second.Config(); got.IDType != adapter.IDTypeNumber || got.EnableDebugLogs {
		t.Fatalf("expected first config to stick, got %+v", got)
	}
}

func TestGetOrCreateRebuildsForNewHost(t *testing.T) {
	cache := NewAdapterCache(nil)
	cfg := adapter.Config{IDType: adapter.IDTypeText}

	a, err := cache.GetOrCreate(newHost(t), cfg)
	if err != nil {
		t.Fatalf("host a: %v", err)
	}
	b, err := cache.GetOrCreate(newHost(t), cfg)
	if err != nil {
		t.Fatalf("host b: %v", err)
	}
	if a == b {
		t.Fatal("expected a new adapter for a different host")
	}
	if got := cache.Stats().Builds; got != 2 {
		t.Fatalf("expected 2 builds, got %d", got)
	}
}

func TestClearForcesRebuild(t *testing.T) {
	app := newHost(t)
	cache := NewAdapterCache(nil)
	cfg := adapter.Config{IDType: adapter.IDTypeText}

	before, err := cache.GetOrCreate(app, cfg)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	cache.Clear()
	cache.Clear()
	if cache.Stats().Cached {
		t.Fatal("expected empty cache after Clear")
	}

	after, err := cache.GetOrCreate(app, cfg)
	if err != nil {
		t.Fatalf("lookup after clear: %v", err)
	}
	if before == after {
		t.Fatal("expected a rebuilt adapter after Clear")
	}
}

func TestGetOrCreatePassesFactoryErrorThrough(t *testing.T) {
	app := newHost(t)
	boom := errors.New("boom")
	calls := 0
	cache := NewAdapterCache(func(*host.App, adapter.Config) (adapter.Adapter, error) {
		calls++
		return nil, boom
	})

	if _, err := cache.GetOrCreate(app, adapter.Config{}); err != boom {
		t.Fatalf("expected factory error unchanged, got %v", err)
	}
	if _, err := cache.GetOrCreate(app, adapter.Config{}); err != boom {
		t.Fatalf("expected factory error on retry, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("failed builds must not be cached, factory called %d times", calls)
	}
	if cache.Stats().Cached {
		t.Fatal("cache must stay empty after a failed build")
	}
}

func TestGetOrCreateNilHost(t *testing.T) {
	cache := NewAdapterCache(nil)
	if _, err := cache.GetOrCreate(nil, adapter.Config{IDType: adapter.IDTypeText}); !errors.Is(err, adapter.ErrNilHost) {
		t.Fatalf("expected ErrNilHost, got %v", err)
	}
}

func TestGetOrCreateConcurrentSingleBuild(t *testing.T) {
	app := newHost(t)
	cache := NewAdapterCache(nil)
	cfg := adapter.Config{IDType: adapter.IDTypeText}

	const goroutines = 16
	results := make([]adapter.Adapter, goroutines)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			a, err := cache.GetOrCreate(app, cfg)
			if err != nil {
				t.Errorf("lookup %d: %v", i, err)
				return
			}
			results[i] = a
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		if results[i] != results[0] {
			t.Fatalf("goroutine %d got a different adapter", i)
		}
	}
	if got := cache.Stats().Builds; got != 1 {
		t.Fatalf("expected a single build, got %d", got)
	}
}

func TestSharedCacheHelpers(t *testing.T) {
	ClearAdapterCache()
	t.Cleanup(ClearAdapterCache)

	app := newHost(t)
	cfg := adapter.Config{IDType: adapter.IDTypeText}

	a, err := GetOrCreateAdapter(app, cfg)
	if err != nil {
		t.Fatalf("shared lookup: %v", err)
	}
	b, err := SharedAdapterCache().GetOrCreate(app, cfg)
	if err != nil {
		t.Fatalf("shared lookup via cache: %v", err)
	}
	if a != b {
		t.Fatal("expected helpers to share one cache")
	}
}

func TestCachedAdapterKeepsHostAlive(t *testing.T) {
	app, err := host.Open(context.Background(), host.Config{})
	if err != nil {
		t.Fatalf("open host: %v", err)
	}
	db := app.DB()
	t.Cleanup(func() { _ = db.Close() })

	cache := NewAdapterCache(nil)
	if _, err := cache.GetOrCreate(app, adapter.Config{IDType: adapter.IDTypeText}); err != nil {
		t.Fatalf("get or create: %v", err)
	}

	ref := weak.Make(app)
	app = nil
	runtime.GC()
	runtime.GC()

	if ref.Value() == nil {
		t.Fatal("expected the cached adapter to keep its host reachable")
	}
	if !cache.Stats().Cached {
		t.Fatal("expected the adapter to stay cached")
	}
}
