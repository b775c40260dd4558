package hostauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/hostauth/adapter"
	"github.com/MrEthical07/hostauth/internal"
	"github.com/MrEthical07/hostauth/session"
)

// cachedSession is the secondary-storage snapshot of a session lookup.
type cachedSession struct {
	User    User    `json:"user"`
	Session Session `json:"session"`
}

func (e *Engine) createSession(ctx context.Context, userID any) (*Session, string, error) {
	token, err := internal.NewSessionToken()
	if err != nil {
		return nil, "", fmt.Errorf("generate session token: %w", err)
	}
	digest := internal.TokenDigest(token)

	now := e.now()
	rec, err := e.db.Create(ctx, modelSession, adapter.Record{
		"userId":    userID,
		"token":     digest,
		"expiresAt": millis(now.Add(e.options.Session.ExpiresIn)),
		"createdAt": millis(now),
		"updatedAt": millis(now),
		"ipAddress": clientIPFromContext(ctx),
		"userAgent": userAgentFromContext(ctx),
	})
	if err != nil {
		return nil, "", fmt.Errorf("create session: %w", err)
	}

	sess := sessionFromRecord(rec)
	e.metrics.Inc(MetricSessionCreated)
	return &sess, token, nil
}

// GetSession resolves a session token to its user and session.
//
// Lookups hit secondary storage first when configured. A session older than
// Session.UpdateAge has its expiry pushed out by Session.ExpiresIn, and the
// result is marked Refreshed.
func (e *Engine) GetSession(ctx context.Context, token string) (*AuthResult, error) {
	start := time.Now()
	defer func() { e.metrics.Observe(MetricGetSessionLatency, time.Since(start)) }()

	if !internal.WellFormedSessionToken(token) {
		return nil, ErrSessionNotFound
	}
	digest := internal.TokenDigest(token)
	now := e.now()

	if cached, ok := e.cachedLookup(ctx, digest); ok {
		if cached.Session.ExpiresAt.After(now) && !e.dueForRefresh(cached.Session, now) {
			e.metrics.Inc(MetricSessionCacheHit)
			sess := cached.Session
			return &AuthResult{User: cached.User, Session: &sess}, nil
		}
	}
	if e.sessions != nil {
		e.metrics.Inc(MetricSessionCacheMiss)
	}

	rec, err := e.db.FindOne(ctx, modelSession, []adapter.Where{adapter.Eq("token", digest)})
	if errors.Is(err, adapter.ErrNotFound) {
		e.dropCached(ctx, digest)
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	sess := sessionFromRecord(rec)
	if !sess.ExpiresAt.After(now) {
		if _, err := e.db.Delete(ctx, modelSession, []adapter.Where{adapter.Eq("id", rec["id"])}); err != nil {
			e.logger.Warn().Err(err).Msg("delete expired session")
		}
		e.dropCached(ctx, digest)
		e.metrics.Inc(MetricSessionExpired)
		e.emitAudit(ctx, AuditEventSessionExpired, true, sess.UserID, sess.ID, nil)
		return nil, ErrSessionExpired
	}

	userRec, err := e.db.FindOne(ctx, modelUser, []adapter.Where{adapter.Eq("id", rec["userId"])})
	if errors.Is(err, adapter.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session user: %w", err)
	}

	refreshed := false
	if e.dueForRefresh(sess, now) {
		updated, err := e.db.Update(ctx, modelSession, []adapter.Where{adapter.Eq("id", rec["id"])}, adapter.Record{
			"expiresAt": millis(now.Add(e.options.Session.ExpiresIn)),
			"updatedAt": millis(now),
		})
		if err != nil {
			return nil, fmt.Errorf("refresh session: %w", err)
		}
		sess = sessionFromRecord(updated)
		refreshed = true
		e.metrics.Inc(MetricSessionRefreshed)
	}

	res := &AuthResult{User: userFromRecord(userRec), Session: &sess, Refreshed: refreshed}
	e.storeCached(ctx, digest, res, now)
	return res, nil
}

// SignOut deletes the session behind token. Unknown tokens are not an error.
func (e *Engine) SignOut(ctx context.Context, token string) error {
	if !internal.WellFormedSessionToken(token) {
		return nil
	}
	digest := internal.TokenDigest(token)

	n, err := e.db.Delete(ctx, modelSession, []adapter.Where{adapter.Eq("token", digest)})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	e.dropCached(ctx, digest)

	if n > 0 {
		e.metrics.Inc(MetricSessionRevoked)
		e.emitAudit(ctx, AuditEventSignOut, true, "", "", nil)
	}
	return nil
}

// RevokeUserSessions deletes every session of userID and returns how many
// were removed.
func (e *Engine) RevokeUserSessions(ctx context.Context, userID string) (int64, error) {
	where := []adapter.Where{adapter.Eq("userId", e.idValue(userID))}

	var digests []string
	if e.sessions != nil {
		recs, err := e.db.FindMany(ctx, modelSession, where, adapter.FindOptions{})
		if err != nil {
			return 0, fmt.Errorf("list sessions: %w", err)
		}
		for _, rec := range recs {
			if d := stringField(rec, "token"); d != "" {
				digests = append(digests, d)
			}
		}
	}

	n, err := e.db.Delete(ctx, modelSession, where)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	e.dropCached(ctx, digests...)

	for i := int64(0); i < n; i++ {
		e.metrics.Inc(MetricSessionRevoked)
	}
	e.emitAudit(ctx, AuditEventSessionsRevoked, true, userID, "", nil)
	return n, nil
}

func (e *Engine) dueForRefresh(s Session, now time.Time) bool {
	age := e.options.Session.UpdateAge
	if age < 0 {
		return false
	}
	issued := s.ExpiresAt.Add(-e.options.Session.ExpiresIn)
	return !now.Before(issued.Add(age))
}

func (e *Engine) cachedLookup(ctx context.Context, digest string) (*cachedSession, bool) {
	if e.sessions == nil {
		return nil, false
	}
	payload, err := e.sessions.Get(ctx, digest)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			e.logger.Warn().Err(err).Msg("session cache read failed, falling back to database")
		}
		return nil, false
	}
	var cached cachedSession
	if err := json.Unmarshal(payload, &cached); err != nil {
		e.dropCached(ctx, digest)
		return nil, false
	}
	return &cached, true
}

func (e *Engine) storeCached(ctx context.Context, digest string, res *AuthResult, now time.Time) {
	if e.sessions == nil || res.Session == nil {
		return
	}
	ttl := e.options.Advanced.SessionTTL
	if remaining := res.Session.ExpiresAt.Sub(now); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}
	payload, err := json.Marshal(cachedSession{User: res.User, Session: *res.Session})
	if err != nil {
		return
	}
	if err := e.sessions.Put(ctx, digest, payload, ttl); err != nil {
		e.logger.Warn().Err(err).Msg("session cache write failed")
	}
}

func (e *Engine) dropCached(ctx context.Context, digests ...string) {
	if e.sessions == nil || len(digests) == 0 {
		return
	}
	if err := e.sessions.Delete(ctx, digests...); err != nil {
		e.logger.Warn().Err(err).Msg("session cache delete failed")
	}
}
