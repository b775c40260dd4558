package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/hostauth"
	"github.com/MrEthical07/hostauth/jwt"
)

// Mode selects what a guard checks.
type Mode int

const (
	// ModeSession requires a live session.
	ModeSession Mode = iota
	// ModeToken requires a valid access token.
	ModeToken
)

type sessionContextKey struct{}
type claimsContextKey struct{}

// SessionFromContext returns the session resolved by RequireSession.
func SessionFromContext(ctx context.Context) (*hostauth.AuthResult, bool) {
	res, ok := ctx.Value(sessionContextKey{}).(*hostauth.AuthResult)
	return res, ok
}

// ClaimsFromContext returns the access token claims verified by RequireToken.
func ClaimsFromContext(ctx context.Context) (*jwt.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*jwt.AccessClaims)
	return claims, ok
}

// Guard returns the guard for mode.
func Guard(engine *hostauth.Engine, mode Mode) func(http.Handler) http.Handler {
	if mode == ModeToken {
		return RequireToken(engine)
	}
	return RequireSession(engine)
}

// RequireSession rejects requests without a live session. A session extended
// by the lookup gets its cookie rewritten.
func RequireSession(engine *hostauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				unauthorized(w)
				return
			}

			token, ok := engine.SessionTokenFromRequest(r)
			if !ok {
				unauthorized(w)
				return
			}

			res, err := engine.GetSession(r.Context(), token)
			if err != nil {
				unauthorized(w)
				return
			}
			if res.Refreshed {
				engine.SetSessionCookie(w, token, res.Session.ExpiresAt)
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireToken rejects requests without a valid bearer access token.
func RequireToken(engine *hostauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				unauthorized(w)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			claims, err := engine.VerifyToken(token)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
