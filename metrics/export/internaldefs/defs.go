package internaldefs

import (
	"github.com/MrEthical07/hostauth"
)

// InstanceLabel names the engine a series belongs to. Its value is the key
// the source was registered under.
const InstanceLabel = "instance"

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   hostauth.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram to its exported name.
type HistogramDef struct {
	ID   hostauth.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: hostauth.MetricSignUpSuccess, Name: "hostauth_sign_up_success_total", Help: "Successful email sign-ups."},
	{ID: hostauth.MetricSignUpFailure, Name: "hostauth_sign_up_failure_total", Help: "Rejected email sign-ups."},
	{ID: hostauth.MetricSignInSuccess, Name: "hostauth_sign_in_success_total", Help: "Successful email sign-ins."},
	{ID: hostauth.MetricSignInFailure, Name: "hostauth_sign_in_failure_total", Help: "Failed email sign-ins."},
	{ID: hostauth.MetricSignInRateLimited, Name: "hostauth_sign_in_rate_limited_total", Help: "Sign-ins rejected by the rate limiter."},
	{ID: hostauth.MetricSessionCreated, Name: "hostauth_session_created_total", Help: "Created sessions."},
	{ID: hostauth.MetricSessionRevoked, Name: "hostauth_session_revoked_total", Help: "Sessions removed by sign-out or revocation."},
	{ID: hostauth.MetricSessionExpired, Name: "hostauth_session_expired_total", Help: "Sessions found expired on lookup."},
	{ID: hostauth.MetricSessionRefreshed, Name: "hostauth_session_refreshed_total", Help: "Sessions whose expiry was extended."},
	{ID: hostauth.MetricSessionCacheHit, Name: "hostauth_session_cache_hit_total", Help: "Session lookups served from secondary storage."},
	{ID: hostauth.MetricSessionCacheMiss, Name: "hostauth_session_cache_miss_total", Help: "Session lookups that fell through to the database."},
	{ID: hostauth.MetricTokenIssued, Name: "hostauth_token_issued_total", Help: "Issued access tokens."},
	{ID: hostauth.MetricPasswordRehashed, Name: "hostauth_password_rehashed_total", Help: "Stored password hashes upgraded to current parameters."},
}

var HistogramDefs = []HistogramDef{
	{ID: hostauth.MetricGetSessionLatency, Name: "hostauth_get_session_latency_seconds", Help: "GetSession latency."},
}

// AuditDropped is exported alongside the engine counters.
var AuditDropped = CounterDef{Name: "hostauth_audit_dropped_total", Help: "Audit events dropped because the dispatcher buffer was full."}

// Adapter cache series.
var (
	AdapterCacheHits   = CounterDef{Name: "hostauth_adapter_cache_hits_total", Help: "Adapter lookups served from the cache."}
	AdapterCacheBuilds = CounterDef{Name: "hostauth_adapter_cache_builds_total", Help: "Adapters built by the cache."}
)

// HistogramBounds are the upper bounds in seconds of the first seven engine
// buckets. The eighth bucket is +Inf.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten buckets into separate instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the eight engine buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
