package hostauth

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/hostauth/adapter"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func buildAuditTestEngine(t *testing.T, enabled bool, sink AuditSink) *Engine {
	t.Helper()

	e, err := NewBuilder().
		WithOptions(Options{
			EmailAndPassword: EmailAndPasswordOptions{Enabled: true},
			Password:         fastPassword(),
			Audit:            AuditOptions{Enabled: enabled, BufferSize: 64},
		}).
		WithDatabase(newTestDB(t, adapter.IDTypeText)).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return e
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	engine := buildAuditTestEngine(t, false, sink)

	signUp(t, engine, "quiet@example.com")
	_, _ = engine.SignInEmail(WithClientIP(context.Background(), "203.0.113.1"), SignInRequest{Email: "quiet@example.com", Password: "wrong-password"})
	engine.Close()

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditFailedSignInCarriesError(t *testing.T) {
	sink := NewChannelSink(16)
	engine := buildAuditTestEngine(t, true, sink)

	signUp(t, engine, "fail@example.com")
	_, err := engine.SignInEmail(context.Background(), SignInRequest{Email: "fail@example.com", Password: "wrong-password"})
	if err == nil {
		t.Fatal("expected sign-in failure")
	}
	engine.Close()

	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-sink.Events():
			if ev.Type != AuditEventSignIn {
				continue
			}
			if ev.Success || ev.Error != ErrInvalidCredentials.Error() {
				t.Fatalf("unexpected sign-in event %+v", ev)
			}
			return
		case <-deadline:
			t.Fatal("expected a failed sign-in event")
		}
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	buf := &syncBuffer{}
	engine := buildAuditTestEngine(t, true, NewJSONWriterSink(buf))

	const pw = "super-secret-password"
	res, err := engine.SignUpEmail(context.Background(), SignUpRequest{Email: "secret@example.com", Password: pw})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if _, err := engine.SignInEmail(context.Background(), SignInRequest{Email: "secret@example.com", Password: pw}); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := engine.SignOut(context.Background(), res.Token); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	engine.Close()

	out := buf.String()
	if strings.Count(out, "\n") < 3 {
		t.Fatalf("expected at least three events, got:\n%s", out)
	}
	for _, secret := range []string{pw, res.Token} {
		if strings.Contains(out, secret) {
			t.Fatalf("audit output leaked a secret:\n%s", out)
		}
	}
}
