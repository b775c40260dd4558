package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func TestEd25519RoundTrip(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv, Issuer: "hostauth", Audience: "app"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok, exp, err := m.CreateAccess("42", "sess-1", "a@example.com")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expected future expiry, got %v", exp)
	}

	claims, err := m.ParseAccess(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "42" || claims.SID != "sess-1" || claims.Email != "a@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestHS256RequiresLongKey(t *testing.T) {
	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")}); err == nil {
		t.Fatal("expected short hs256 key to be rejected")
	}
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("0123456789abcdef0123456789abcdef")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	tok, _, err := m.CreateAccess("u1", "s1", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.ParseAccess(tok); err != nil {
		t.Fatalf("parse: %v", err)
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if m.CanSign() {
		t.Fatal("verify-only manager must not sign")
	}

	claims := AccessClaims{SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseAccessRejectsForeignKeyAndAudience(t *testing.T) {
	_, privA := newEdKeys(t)
	_, privB := newEdKeys(t)

	signer, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: privA, Audience: "app"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	other, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: privB, Audience: "app"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	wrongAud, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: privA, Audience: "admin"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok, _, err := signer.CreateAccess("u1", "s1", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := other.ParseAccess(tok); err == nil {
		t.Fatal("expected foreign key to fail verification")
	}
	if _, err := wrongAud.ParseAccess(tok); err == nil {
		t.Fatal("expected audience mismatch to fail")
	}
}

func TestParseAccessRejectsExpired(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := AccessClaims{SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-time.Hour)),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims).SignedString(priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cases := []Config{
		{AccessTTL: 0, SigningMethod: MethodHS256, PrivateKey: make([]byte, 32)},
		{AccessTTL: time.Minute, SigningMethod: "rs256"},
		{AccessTTL: time.Minute, SigningMethod: MethodEd25519},
		{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: []byte("nope")},
		{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: make([]byte, 32), Leeway: time.Hour},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
