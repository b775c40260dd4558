package plugin

import (
	"sort"

	"github.com/MrEthical07/hostauth"
	"github.com/MrEthical07/hostauth/adapter"
	"github.com/MrEthical07/hostauth/host"
)

// EngineFactory builds an engine from fully merged options.
type EngineFactory func(opts hostauth.Options) (*hostauth.Engine, error)

// InstanceConfig customizes one named engine.
type InstanceConfig struct {
	CookiePrefix    string            `yaml:"cookiePrefix"`
	OptionOverrides *hostauth.Options `yaml:"optionOverrides"`
}

// InitParams are the inputs of InitEngines.
type InitParams struct {
	Host      *host.App
	IDType    adapter.IDType
	Options   hostauth.Options
	Instances map[string]InstanceConfig

	// Cache defaults to the process-wide cache.
	Cache *AdapterCache
	// NewEngine defaults to hostauth.New.
	NewEngine EngineFactory
}

// Result holds either a single Engine or named Instances, never both.
type Result struct {
	Engine    *hostauth.Engine
	Instances map[string]*hostauth.Engine
}

// Multi reports whether the result holds named instances.
func (r *Result) Multi() bool {
	return r.Instances != nil
}

// Close closes every engine in the result.
func (r *Result) Close() {
	if r == nil {
		return
	}
	if r.Engine != nil {
		r.Engine.Close()
	}
	for _, e := range r.Instances {
		e.Close()
	}
}

// InitEngines builds the engines described by p.
//
// With no instances it returns a single engine built from p.Options. With
// instances it returns one engine per name, built in sorted name order, all
// sharing the adapter resolved through the cache for p.Host. Engine factory
// errors are returned unchanged after closing engines already built.
func InitEngines(p InitParams) (*Result, error) {
	cache := p.Cache
	if cache == nil {
		cache = shared
	}
	newEngine := p.NewEngine
	if newEngine == nil {
		newEngine = hostauth.New
	}

	adapterCfg := adapter.Config{
		EnableDebugLogs: p.Options.EnableDebugLogs,
		IDType:          p.IDType,
	}

	build := func(prefix string, overrides *hostauth.Options) (*hostauth.Engine, error) {
		db, err := cache.GetOrCreate(p.Host, adapterCfg)
		if err != nil {
			return nil, err
		}
		opts, err := MergeOptions(p.Options, prefix, overrides, db)
		if err != nil {
			return nil, err
		}
		return newEngine(opts)
	}

	if len(p.Instances) == 0 {
		e, err := build("", nil)
		if err != nil {
			return nil, err
		}
		return &Result{Engine: e}, nil
	}

	names := make([]string, 0, len(p.Instances))
	for name := range p.Instances {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]*hostauth.Engine, len(names))
	for _, name := range names {
		inst := p.Instances[name]
		e, err := build(inst.CookiePrefix, inst.OptionOverrides)
		if err != nil {
			for _, built := range out {
				built.Close()
			}
			return nil, err
		}
		out[name] = e
	}
	return &Result{Instances: out}, nil
}

// MergeOptions layers the options for one engine, later steps winning:
// base without EnableDebugLogs and Database, then overrides, then prefix as
// Advanced.CookiePrefix when non-empty, then db as Database.
//
// Overrides are merged field by field at every depth, nested sections
// included: an override of Session.ExpiresIn keeps the base Session.UpdateAge.
// Zero values in overrides are treated as unset, so an override can never
// clear a base field or switch a base flag off.
func MergeOptions(base hostauth.Options, prefix string, overrides *hostauth.Options, db adapter.Adapter) (hostauth.Options, error) {
	merged := base.Clone()
	merged.EnableDebugLogs = false
	merged.Database = nil

	if overrides != nil {
		var err error
		merged, err = merged.Merge(*overrides)
		if err != nil {
			return hostauth.Options{}, err
		}
	}

	if prefix != "" {
		merged.Advanced.CookiePrefix = prefix
	}
	merged.Database = db
	return merged, nil
}
