package hostauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/hostauth/adapter"
	"github.com/MrEthical07/hostauth/host"
	"github.com/MrEthical07/hostauth/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testEnv struct {
	engine *Engine
	db     adapter.Adapter
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

func fastPassword() password.Config {
	return password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func newTestDB(t *testing.T, idType adapter.IDType) adapter.Adapter {
	t.Helper()
	app, err := host.Open(context.Background(), host.Config{})
	if err != nil {
		t.Fatalf("open host: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	db, err := adapter.New(app, adapter.Config{IDType: idType})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return db
}

func newTestEnv(t *testing.T, idType adapter.IDType, mutate func(*Options)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db := newTestDB(t, idType)
	opts := Options{
		EmailAndPassword: EmailAndPasswordOptions{Enabled: true},
		Password:         fastPassword(),
		Metrics:          MetricsOptions{Enabled: true},
		Database:         db,
		SecondaryStorage: rdb,
	}
	if mutate != nil {
		mutate(&opts)
	}

	e, err := New(opts)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(e.Close)
	return &testEnv{engine: e, db: db, mr: mr, rdb: rdb}
}

func signUp(t *testing.T, e *Engine, email string) *AuthResult {
	t.Helper()
	res, err := e.SignUpEmail(context.Background(), SignUpRequest{Email: email, Password: "correct horse", Name: "Test"})
	if err != nil {
		t.Fatalf("sign up %s: %v", email, err)
	}
	return res
}

func TestNewRequiresDatabase(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrDatabaseRequired) {
		t.Fatalf("expected ErrDatabaseRequired, got %v", err)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	e, err := New(Options{Database: newTestDB(t, adapter.IDTypeText), Password: fastPassword()})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	defer e.Close()

	got := e.Options()
	if got.BasePath != "/api/auth" || got.Advanced.CookiePrefix != "hostauth" || got.Session.ExpiresIn != 7*24*time.Hour {
		t.Fatalf("defaults not applied: %+v", got)
	}
	if e.SessionCookieName() != "hostauth.session_token" {
		t.Fatalf("unexpected cookie name %q", e.SessionCookieName())
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := NewBuilder().
		WithOptions(Options{Password: fastPassword()}).
		WithDatabase(newTestDB(t, adapter.IDTypeText))

	e, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer e.Close()

	if _, err := b.Build(); !errors.Is(err, ErrBuilderUsed) {
		t.Fatalf("expected ErrBuilderUsed, got %v", err)
	}
}

func TestSignUpSignInGetSession(t *testing.T) {
	for _, idType := range []adapter.IDType{adapter.IDTypeNumber, adapter.IDTypeText} {
		t.Run(string(idType), func(t *testing.T) {
			env := newTestEnv(t, idType, nil)
			e := env.engine
			ctx := context.Background()

			up := signUp(t, e, "Ada@Example.com")
			if up.Token == "" || up.Session == nil {
				t.Fatalf("expected auto sign-in, got %+v", up)
			}
			if up.User.Email != "ada@example.com" {
				t.Fatalf("expected normalized email, got %q", up.User.Email)
			}

			in, err := e.SignInEmail(ctx, SignInRequest{Email: "ada@example.com", Password: "correct horse"})
			if err != nil {
				t.Fatalf("sign in: %v", err)
			}
			if in.User.ID != up.User.ID {
				t.Fatalf("user id mismatch %q vs %q", in.User.ID, up.User.ID)
			}

			got, err := e.GetSession(ctx, in.Token)
			if err != nil {
				t.Fatalf("get session: %v", err)
			}
			if got.Session.ID != in.Session.ID || got.User.Email != "ada@example.com" {
				t.Fatalf("unexpected session %+v", got)
			}

			n, err := e.RevokeUserSessions(ctx, up.User.ID)
			if err != nil || n != 2 {
				t.Fatalf("revoke: n=%d err=%v", n, err)
			}
			if _, err := e.GetSession(ctx, in.Token); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("expected revoked session to be gone, got %v", err)
			}
		})
	}
}

func TestSignUpConcurrentSameEmail(t *testing.T) {
	env := newTestEnv(t, adapter.IDTypeText, nil)
	ctx := context.Background()

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		errs    []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.engine.SignUpEmail(ctx, SignUpRequest{Email: "dup@example.com", Password: "correct horse"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
				return
			}
			errs = append(errs, err)
		}()
	}
	close(start)
	wg.Wait()

	if created != 1 {
		t.Fatalf("expected exactly one successful sign up, got %d", created)
	}
	for _, err := range errs {
		if !errors.Is(err, ErrUserExists) {
			t.Fatalf("expected ErrUserExists, got %v", err)
		}
	}
	n, err := env.db.Count(ctx, modelUser, []adapter.Where{adapter.Eq("email", "dup@example.com")})
	if err != nil || n != 1 {
		t.Fatalf("expected one stored user, got n=%d err=%v", n, err)
	}
	if _, err := env.engine.SignInEmail(ctx, SignInRequest{Email: "dup@example.com", Password: "correct horse"}); err != nil {
		t.Fatalf("sign in after concurrent sign up: %v", err)
	}
}

func TestSignUpValidation(t *testing.T) {
	env := newTestEnv(t, adapter.IDTypeText, nil)
	e := env.engine
	ctx := context.Background()

	signUp(t, e, "dup@example.com")

	tests := []struct {
		name string
		req  SignUpRequest
		want error
	}{
		{"duplicate", SignUpRequest{Email: "DUP@example.com", Password: "long enough"}, ErrUserExists},
		{"bad email", SignUpRequest{Email: "not-an-email", Password: "long enough"}, ErrInvalidEmail},
		{"display name email", SignUpRequest{Email: "Bob <bob@example.com>", Password: "long enough"}, ErrInvalidEmail},
		{"short password", SignUpRequest{Email: "a@example.com", Password: "short"}, ErrPasswordPolicy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.SignUpEmail(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if got := e.MetricsSnapshot().Counters[MetricSignUpFailure]; got != uint64(len(tests)) {
		t.Fatalf("expected %d sign-up failures, got %d", len(tests), got)
	}
}

func TestSignUpSwitches(t *testing.T) {
	ctx := context.Background()

	off := newTestEnv(t, adapter.IDTypeText, func(o *Options) { o.EmailAndPassword.Enabled = false })
	if _, err := off.engine.SignUpEmail(ctx, SignUpRequest{Email: "a@example.com", Password: "long enough"}); !errors.Is(err, ErrEmailPasswordDisabled) {
		t.Fatalf("expected ErrEmailPasswordDisabled, got %v", err)
	}

	closed := newTestEnv(t, adapter.IDTypeText, func(o *Options) { o.EmailAndPassword.DisableSignUp = true })
	if _, err := closed.engine.SignUpEmail(ctx, SignUpRequest{Email: "a@example.com", Password: "long enough"}); !errors.Is(err, ErrSignUpDisabled) {
		t.Fatalf("expected ErrSignUpDisabled, got %v", err)
	}

	manual := newTestEnv(t, adapter.IDTypeText, func(o *Options) { o.EmailAndPassword.DisableAutoSignIn = true })
	res := signUp(t, manual.engine, "a@example.com")
	if res.Token != "" || res.Session != nil {
		t.Fatalf("expected no session without auto sign-in, got %+v", res)
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t, adapter.IDTypeNumber, nil)
	e := env.engine
	ctx := context.Background()

	signUp(t, e, "user@example.com")

	if _, err := e.SignInEmail(ctx, SignInRequest{Email: "user@example.com", Password: "wrong password"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := e.SignInEmail(ctx, SignInRequest{Email: "ghost@example.com", Password: "correct horse"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
	if got := e.MetricsSnapshot().Counters[MetricSignInFailure]; got != 2 {
		t.Fatalf("expected 2 sign-in failures, got %d", got)
	}
}

func TestSignInRateLimited(t *testing.T) {
	env := newTestEnv(t, adapter.IDTypeText, func(o *Options) {
		o.RateLimit = RateLimitOptions{Enabled: true, MaxAttempts: 2, Window: time.Minute}
	})
	e := env.engine
	ctx := WithClientIP(context.Background(), "203.0.113.7")

	signUp(t, e, "user@example.com")

	for i := 0; i < 2; i++ {
		if _, err := e.SignInEmail(ctx, SignInRequest{Email: "user@example.com", Password: "nope nope"}); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	if _, err := e.SignInEmail(ctx, SignInRequest{Email: "user@example.com", Password: "correct horse"}); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	env.mr.FastForward(2 * time.Minute)
	if _, err := e.SignInEmail(ctx, SignInRequest{Email: "user@example.com", Password: "correct horse"}); err != nil {
		t.Fatalf("expected sign-in after window, got %v", err)
	}
	if got := e.MetricsSnapshot().Counters[MetricSignInRateLimited]; got != 1 {
		t.Fatalf("expected 1 rate-limited sign-in, got %d", got)
	}
}

func TestRateLimitRequiresSecondaryStorage(t *testing.T) {
	_, err := New(Options{
		Database:  newTestDB(t, adapter.IDTypeText),
		Password:  fastPassword(),
		RateLimit: RateLimitOptions{Enabled: true},
	})
	if !errors.Is(err, ErrSecondaryStorageRequired) {
		t.Fatalf("expected ErrSecondaryStorageRequired, got %v", err)
	}
}

func TestGetSessionUsesCache(t *testing.T) {
	env := newTestEnv(t, adapter.IDTypeText, nil)
	e := env.engine
	ctx := context.Background()

	res := signUp(t, e, "cache@example.com")

	if _, err := e.GetSession(ctx, res.Token); err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	if _, err := e.GetSession(ctx, res.Token); err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	snap := e.MetricsSnapshot()
	if snap.Counters[MetricSessionCacheMiss] != 1 || snap.Counters[MetricSessionCacheHit] != 1 {
		t.Fatalf("expected one miss then one hit, got %v", snap.Counters)
	}

	if err := e.SignOut(ctx, res.Token); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, err := e.GetSession(ctx, res.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected signed-out session to be gone, got %v", err)
	}
	if err := e.SignOut(ctx, res.Token); err != nil {
		t.Fatalf("second sign out should be a no-op, got %v", err)
	}
}

func TestGetSessionWithoutSecondaryStorage(t *testing.T) {
	e, err := New(Options{
		Database:         newTestDB(t, adapter.IDTypeNumber),
		Password:         fastPassword(),
		EmailAndPassword: EmailAndPasswordOptions{Enabled: true},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	defer e.Close()

	res := signUp(t, e, "plain@example.com")
	got, err := e.GetSession(context.Background(), res.Token)
	if err != nil || got.User.ID != res.User.ID {
		t.Fatalf("get session: %+v %v", got, err)
	}
	if _, err := e.GetSession(context.Background(), "garbage"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for malformed token, got %v", err)
	}
}

func TestGetSessionExpiryAndRefresh(t *testing.T) {
	env := newTestEnv(t, adapter.IDTypeText, func(o *Options) {
		o.Session = SessionOptions{ExpiresIn: time.Hour, UpdateAge: 10 * time.Minute}
	})
	e := env.engine
	ctx := context.Background()

	base := time.Now()
	e.now = func() time.Time { return base }
	res := signUp(t, e, "slide@example.com")
	firstExpiry := res.Session.ExpiresAt

	e.now = func() time.Time { return base.Add(15 * time.Minute) }
	got, err := e.GetSession(ctx, res.Token)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !got.Refreshed || !got.Session.ExpiresAt.After(firstExpiry) {
		t.Fatalf("expected sliding refresh, got %+v", got.Session)
	}

	e.now = func() time.Time { return base.Add(3 * time.Hour) }
	if _, err := e.GetSession(ctx, res.Token); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if _, err := e.GetSession(ctx, res.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expired session should be deleted, got %v", err)
	}
}

func TestCacheIsolatedPerCookiePrefix(t *testing.T) {
	env := newTestEnv(t, adapter.IDTypeText, func(o *Options) { o.Advanced.CookiePrefix = "one" })
	res := signUp(t, env.engine, "iso@example.com")
	if _, err := env.engine.GetSession(context.Background(), res.Token); err != nil {
		t.Fatalf("get session: %v", err)
	}

	for _, key := range env.mr.Keys() {
		if len(key) < 4 || key[:4] != "one:" {
			t.Fatalf("expected keys namespaced by cookie prefix, got %q", key)
		}
	}
}

func TestIssueAndVerifyToken(t *testing.T) {
	env := newTestEnv(t, adapter.IDTypeNumber, func(o *Options) {
		o.JWT = JWTOptions{Enabled: true, Issuer: "hostauth-test"}
	})
	e := env.engine
	ctx := context.Background()

	res := signUp(t, e, "jwt@example.com")
	tok, exp, err := e.IssueToken(ctx, res.Token)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", exp)
	}

	claims, err := e.VerifyToken(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != res.User.ID || claims.SID != res.Session.ID || claims.Issuer != "hostauth-test" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := e.VerifyToken(tok + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenOperationsRequireJWT(t *testing.T) {
	env := newTestEnv(t, adapter.IDTypeText, nil)
	if _, _, err := env.engine.IssueToken(context.Background(), "x"); !errors.Is(err, ErrJWTDisabled) {
		t.Fatalf("expected ErrJWTDisabled, got %v", err)
	}
	if _, err := env.engine.VerifyToken("x"); !errors.Is(err, ErrJWTDisabled) {
		t.Fatalf("expected ErrJWTDisabled, got %v", err)
	}
}

func TestAuditEventsDelivered(t *testing.T) {
	sink := NewChannelSink(16)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	e, err := NewBuilder().
		WithOptions(Options{
			EmailAndPassword: EmailAndPasswordOptions{Enabled: true},
			Password:         fastPassword(),
			Audit:            AuditOptions{Enabled: true, BufferSize: 16},
			Advanced:         AdvancedOptions{CookiePrefix: "audited"},
		}).
		WithDatabase(newTestDB(t, adapter.IDTypeText)).
		WithSecondaryStorage(rdb).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	ctx := WithUserAgent(WithClientIP(context.Background(), "198.51.100.1"), "test-agent")
	if _, err := e.SignUpEmail(ctx, SignUpRequest{Email: "audit@example.com", Password: "correct horse"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	e.Close()

	select {
	case ev := <-sink.Events():
		if ev.Type != AuditEventSignUp || !ev.Success || ev.Instance != "audited" || ev.IP != "198.51.100.1" || ev.UserAgent != "test-agent" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a sign-up audit event")
	}
}
