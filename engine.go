package hostauth

import (
	"sync"
	"time"

	"github.com/MrEthical07/hostauth/adapter"
	"github.com/MrEthical07/hostauth/internal/audit"
	"github.com/MrEthical07/hostauth/internal/rate"
	"github.com/MrEthical07/hostauth/jwt"
	"github.com/MrEthical07/hostauth/password"
	"github.com/MrEthical07/hostauth/session"
	"github.com/rs/zerolog"
)

// Engine serves email and password authentication for one instance.
//
// An Engine is safe for concurrent use. It does not own its adapter or its
// secondary storage client; Close only stops the audit dispatcher.
type Engine struct {
	options  Options
	db       adapter.Adapter
	sessions *session.Store
	limiter  *rate.Limiter
	hasher   *password.Hasher
	tokens   *jwt.Manager
	audit    *audit.Dispatcher
	metrics  *Metrics
	logger   zerolog.Logger
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// Options returns a copy of the engine's effective options.
func (e *Engine) Options() Options {
	return e.options.Clone()
}

// Close stops the audit dispatcher after flushing queued events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped counts audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// dummyPasswordHash is verified against when an email is unknown so that
// sign-in timing does not reveal which accounts exist.
func (e *Engine) dummyPasswordHash() string {
	e.dummyOnce.Do(func() {
		h, err := e.hasher.Hash("hostauth-timing-equalizer")
		if err != nil {
			e.logger.Warn().Err(err).Msg("compute dummy password hash")
			return
		}
		e.dummyHash = h
	})
	return e.dummyHash
}
