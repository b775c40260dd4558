// Package prometheus exposes hostauth engine counters through
// client_golang.
//
// An [Exporter] is a prometheus.Collector. Each registered engine becomes one
// value of the "instance" label; counters are named hostauth_*_total and the
// session lookup histogram is hostauth_get_session_latency_seconds. Values are
// read from Engine.MetricsSnapshot at scrape time.
//
// [Exporter.Handler] serves a private registry. Callers that already run a
// registry can register the Exporter there instead.
package prometheus
