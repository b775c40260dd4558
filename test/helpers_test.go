//go:build integration
// +build integration

package test

import (
	"context"
	"testing"

	"github.com/MrEthical07/hostauth"
	"github.com/MrEthical07/hostauth/adapter"
	"github.com/MrEthical07/hostauth/host"
	"github.com/MrEthical07/hostauth/password"
	"github.com/MrEthical07/hostauth/plugin"
	"github.com/alicebob/miniredis/v2"
	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
)

type integrationStack struct {
	mr      *miniredis.Miniredis
	rdb     *redis.Client
	cache   *plugin.AdapterCache
	engines *plugin.Result
	router  *httprouter.Router
}

func fastPassword() password.Config {
	return password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

// newIntegrationStack builds an admin and a public engine over one host
// application and one Redis, mounted on a shared router.
func newIntegrationStack(t *testing.T, idType adapter.IDType) *integrationStack {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	app, err := host.Open(context.Background(), host.Config{})
	if err != nil {
		t.Fatalf("open host: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	cache := plugin.NewAdapterCache(nil)
	res, err := plugin.InitEngines(plugin.InitParams{
		Host:   app,
		IDType: idType,
		Options: hostauth.Options{
			EmailAndPassword: hostauth.EmailAndPasswordOptions{Enabled: true},
			RateLimit:        hostauth.RateLimitOptions{Enabled: true, MaxAttempts: 3},
			Metrics:          hostauth.MetricsOptions{Enabled: true},
			Password:         fastPassword(),
			SecondaryStorage: rdb,
		},
		Instances: map[string]plugin.InstanceConfig{
			"admin":  {CookiePrefix: "admin", OptionOverrides: &hostauth.Options{BasePath: "/admin/auth"}},
			"public": {CookiePrefix: "public", OptionOverrides: &hostauth.Options{BasePath: "/auth"}},
		},
		Cache: cache,
	})
	if err != nil {
		t.Fatalf("init engines: %v", err)
	}
	t.Cleanup(res.Close)

	router := httprouter.New()
	for _, e := range res.Instances {
		e.Mount(router)
	}

	return &integrationStack{mr: mr, rdb: rdb, cache: cache, engines: res, router: router}
}
