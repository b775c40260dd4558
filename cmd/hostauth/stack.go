package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/MrEthical07/hostauth/host"
	"github.com/MrEthical07/hostauth/metrics/export/prometheus"
	"github.com/MrEthical07/hostauth/plugin"
	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// stack is everything a running server owns.
type stack struct {
	app     *host.App
	redis   redis.UniversalClient
	engines *plugin.Result
	cache   *plugin.AdapterCache
	handler http.Handler
}

func newStack(ctx context.Context, cfg *plugin.Config, logger zerolog.Logger) (_ *stack, err error) {
	st := &stack{cache: plugin.NewAdapterCache(nil)}
	defer func() {
		if err != nil {
			st.Close()
		}
	}()

	st.app, err = host.Open(ctx, host.Config{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
		Logger: &logger,
	})
	if err != nil {
		return nil, err
	}

	opts := cfg.Options.Clone()
	opts.Logger = &logger
	if cfg.Redis.Addr != "" {
		st.redis = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := st.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
		}
		opts.SecondaryStorage = st.redis
	}

	params := cfg.Params(st.app)
	params.Options = opts
	params.Cache = st.cache
	st.engines, err = plugin.InitEngines(params)
	if err != nil {
		return nil, err
	}

	exporter := prometheus.NewExporter().WithAdapterCache(st.cache)
	exporter.AddResult(st.engines)

	router := httprouter.New()
	if st.engines.Multi() {
		for _, name := range cfg.InstanceNames() {
			e := st.engines.Instances[name]
			e.Mount(router)
			logger.Info().Str("instance", name).Str("base_path", e.Options().BasePath).Msg("engine mounted")
		}
	} else {
		st.engines.Engine.Mount(router)
		logger.Info().Str("base_path", st.engines.Engine.Options().BasePath).Msg("engine mounted")
	}
	router.Handler(http.MethodGet, "/metrics", exporter.Handler())
	router.HandlerFunc(http.MethodGet, "/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	st.handler = router

	return st, nil
}

// Close releases engines before the stores they depend on.
func (st *stack) Close() {
	if st == nil {
		return
	}
	st.engines.Close()
	st.cache.Clear()
	if st.redis != nil {
		_ = st.redis.Close()
	}
	if st.app != nil {
		_ = st.app.Close()
	}
}
