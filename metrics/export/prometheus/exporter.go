package prometheus

import (
	"net/http"
	"sort"
	"sync"

	"github.com/MrEthical07/hostauth"
	"github.com/MrEthical07/hostauth/metrics/export/internaldefs"
	"github.com/MrEthical07/hostauth/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSource is implemented by *hostauth.Engine.
type MetricsSource interface {
	MetricsSnapshot() hostauth.MetricsSnapshot
	AuditDropped() uint64
}

// CacheStatsSource is implemented by *plugin.AdapterCache.
type CacheStatsSource interface {
	Stats() plugin.CacheStats
}

// Exporter collects counters from any number of named engines.
type Exporter struct {
	mu      sync.RWMutex
	sources map[string]MetricsSource
	cache   CacheStatsSource

	counters     []counterDesc
	histograms   []histogramDesc
	auditDropped *prometheus.Desc
	cacheHits    *prometheus.Desc
	cacheBuilds  *prometheus.Desc
}

type counterDesc struct {
	id   hostauth.MetricID
	desc *prometheus.Desc
}

type histogramDesc struct {
	id   hostauth.MetricID
	desc *prometheus.Desc
}

// NewExporter returns an Exporter with no sources.
func NewExporter() *Exporter {
	labels := []string{internaldefs.InstanceLabel}

	x := &Exporter{
		sources:    make(map[string]MetricsSource),
		counters:   make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		histograms: make([]histogramDesc, 0, len(internaldefs.HistogramDefs)),
	}
	for _, def := range internaldefs.CounterDefs {
		x.counters = append(x.counters, counterDesc{
			id:   def.ID,
			desc: prometheus.NewDesc(def.Name, def.Help, labels, nil),
		})
	}
	for _, def := range internaldefs.HistogramDefs {
		x.histograms = append(x.histograms, histogramDesc{
			id:   def.ID,
			desc: prometheus.NewDesc(def.Name, def.Help, labels, nil),
		})
	}
	x.auditDropped = prometheus.NewDesc(internaldefs.AuditDropped.Name, internaldefs.AuditDropped.Help, labels, nil)
	x.cacheHits = prometheus.NewDesc(internaldefs.AdapterCacheHits.Name, internaldefs.AdapterCacheHits.Help, nil, nil)
	x.cacheBuilds = prometheus.NewDesc(internaldefs.AdapterCacheBuilds.Name, internaldefs.AdapterCacheBuilds.Help, nil, nil)
	return x
}

// NewExporterForEngine returns an Exporter with engine registered under name.
func NewExporterForEngine(name string, engine *hostauth.Engine) *Exporter {
	x := NewExporter()
	x.Add(name, engine)
	return x
}

// Add registers source under instance, replacing any previous source with
// that name.
func (x *Exporter) Add(instance string, source MetricsSource) {
	if source == nil {
		return
	}
	x.mu.Lock()
	x.sources[instance] = source
	x.mu.Unlock()
}

// AddResult registers every engine of res. A single engine is registered
// under its cookie prefix.
func (x *Exporter) AddResult(res *plugin.Result) {
	if res == nil {
		return
	}
	if res.Engine != nil {
		x.Add(res.Engine.Options().Advanced.CookiePrefix, res.Engine)
	}
	for name, e := range res.Instances {
		x.Add(name, e)
	}
}

// WithAdapterCache also exports the hit and build counters of cache.
func (x *Exporter) WithAdapterCache(cache CacheStatsSource) *Exporter {
	x.mu.Lock()
	x.cache = cache
	x.mu.Unlock()
	return x
}

// Describe implements prometheus.Collector.
func (x *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range x.counters {
		ch <- c.desc
	}
	for _, h := range x.histograms {
		ch <- h.desc
	}
	ch <- x.auditDropped
	ch <- x.cacheHits
	ch <- x.cacheBuilds
}

// Collect implements prometheus.Collector. Engines with metrics disabled
// contribute nothing.
func (x *Exporter) Collect(ch chan<- prometheus.Metric) {
	x.mu.RLock()
	names := make([]string, 0, len(x.sources))
	for name := range x.sources {
		names = append(names, name)
	}
	sources := make(map[string]MetricsSource, len(x.sources))
	for name, src := range x.sources {
		sources[name] = src
	}
	cache := x.cache
	x.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		src := sources[name]
		snapshot := src.MetricsSnapshot()
		dropped := src.AuditDropped()
		if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
			continue
		}

		for _, c := range x.counters {
			ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(snapshot.Counters[c.id]), name)
		}
		for _, h := range x.histograms {
			raw, ok := snapshot.Histograms[h.id]
			if !ok {
				continue
			}
			cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
			buckets := make(map[float64]uint64, len(internaldefs.HistogramBounds))
			for i, le := range internaldefs.HistogramBounds {
				buckets[le] = cumulative[i]
			}
			// Engine histograms do not track a sum.
			ch <- prometheus.MustNewConstHistogram(h.desc, cumulative[len(cumulative)-1], 0, buckets, name)
		}
		ch <- prometheus.MustNewConstMetric(x.auditDropped, prometheus.CounterValue, float64(dropped), name)
	}

	if cache != nil {
		stats := cache.Stats()
		ch <- prometheus.MustNewConstMetric(x.cacheHits, prometheus.CounterValue, float64(stats.Hits))
		ch <- prometheus.MustNewConstMetric(x.cacheBuilds, prometheus.CounterValue, float64(stats.Builds))
	}
}

// Registry returns a new registry holding x plus the Go runtime and process
// collectors.
func (x *Exporter) Registry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		x,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// Handler serves x from a private registry.
func (x *Exporter) Handler() http.Handler {
	registry := x.Registry()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
