package hostauth

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

const maxBodyBytes = 1 << 20

// Handler returns a router serving the engine's routes under BasePath.
func (e *Engine) Handler() http.Handler {
	router := httprouter.New()
	e.Mount(router)
	return router
}

// Mount registers the engine's routes under BasePath on router. Several
// engines can share one router as long as their base paths differ.
func (e *Engine) Mount(router *httprouter.Router) {
	base := strings.TrimSuffix(e.options.BasePath, "/")

	router.HandlerFunc(http.MethodPost, base+"/sign-up/email", e.handleSignUp)
	router.HandlerFunc(http.MethodPost, base+"/sign-in/email", e.handleSignIn)
	router.HandlerFunc(http.MethodGet, base+"/get-session", e.handleGetSession)
	router.HandlerFunc(http.MethodPost, base+"/sign-out", e.handleSignOut)
	router.HandlerFunc(http.MethodGet, base+"/token", e.handleToken)
	router.HandlerFunc(http.MethodGet, base+"/ok", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
}

func (e *Engine) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if !e.originAllowed(r) {
		writeError(w, http.StatusForbidden, "INVALID_ORIGIN", "origin not allowed")
		return
	}
	var req SignUpRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := e.SignUpEmail(requestContext(r), req)
	if err != nil {
		e.writeEngineError(w, err)
		return
	}
	if res.Session != nil {
		e.SetSessionCookie(w, res.Token, res.Session.ExpiresAt)
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": nullable(res.Token), "user": res.User})
}

func (e *Engine) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if !e.originAllowed(r) {
		writeError(w, http.StatusForbidden, "INVALID_ORIGIN", "origin not allowed")
		return
	}
	var req SignInRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := e.SignInEmail(requestContext(r), req)
	if err != nil {
		e.writeEngineError(w, err)
		return
	}
	e.SetSessionCookie(w, res.Token, res.Session.ExpiresAt)
	writeJSON(w, http.StatusOK, map[string]any{"redirect": false, "token": res.Token, "user": res.User})
}

func (e *Engine) handleGetSession(w http.ResponseWriter, r *http.Request) {
	token, ok := e.SessionTokenFromRequest(r)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	res, err := e.GetSession(requestContext(r), token)
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionExpired):
		e.ClearSessionCookie(w)
		writeJSON(w, http.StatusOK, nil)
		return
	case err != nil:
		e.writeEngineError(w, err)
		return
	}
	if res.Refreshed {
		e.SetSessionCookie(w, token, res.Session.ExpiresAt)
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": res.Session, "user": res.User})
}

func (e *Engine) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if !e.originAllowed(r) {
		writeError(w, http.StatusForbidden, "INVALID_ORIGIN", "origin not allowed")
		return
	}
	if token, ok := e.SessionTokenFromRequest(r); ok {
		if err := e.SignOut(requestContext(r), token); err != nil {
			e.writeEngineError(w, err)
			return
		}
	}
	e.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (e *Engine) handleToken(w http.ResponseWriter, r *http.Request) {
	token, ok := e.SessionTokenFromRequest(r)
	if !ok {
		e.writeEngineError(w, ErrSessionNotFound)
		return
	}
	access, expires, err := e.IssueToken(requestContext(r), token)
	if err != nil {
		e.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": access, "expiresAt": expires.UTC().Format(time.RFC3339)})
}

// originAllowed rejects cross-origin state changes. Requests without an
// Origin header (non-browser clients) pass.
func (e *Engine) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if e.options.BaseURL != "" && sameOrigin(origin, e.options.BaseURL) {
		return true
	}
	for _, trusted := range e.options.TrustedOrigins {
		if sameOrigin(origin, trusted) {
			return true
		}
	}
	return len(e.options.TrustedOrigins) == 0 && e.options.BaseURL == ""
}

func sameOrigin(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Scheme, ub.Scheme) && strings.EqualFold(ua.Host, ub.Host)
}

func requestContext(r *http.Request) context.Context {
	ctx := r.Context()
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ctx = WithClientIP(ctx, host)
	} else if r.RemoteAddr != "" {
		ctx = WithClientIP(ctx, r.RemoteAddr)
	}
	if ua := r.UserAgent(); ua != "" {
		ctx = WithUserAgent(ctx, ua)
	}
	return ctx
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be a JSON object")
		return false
	}
	return true
}

type errorStatus struct {
	err    error
	status int
	code   string
}

var errorStatuses = []errorStatus{
	{ErrInvalidEmail, http.StatusBadRequest, "INVALID_EMAIL"},
	{ErrPasswordPolicy, http.StatusBadRequest, "INVALID_PASSWORD"},
	{ErrEmailPasswordDisabled, http.StatusBadRequest, "EMAIL_PASSWORD_DISABLED"},
	{ErrSignUpDisabled, http.StatusForbidden, "SIGN_UP_DISABLED"},
	{ErrUserExists, http.StatusUnprocessableEntity, "USER_ALREADY_EXISTS"},
	{ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_EMAIL_OR_PASSWORD"},
	{ErrSessionNotFound, http.StatusUnauthorized, "SESSION_NOT_FOUND"},
	{ErrSessionExpired, http.StatusUnauthorized, "SESSION_EXPIRED"},
	{ErrRateLimited, http.StatusTooManyRequests, "TOO_MANY_REQUESTS"},
	{ErrJWTDisabled, http.StatusNotFound, "NOT_FOUND"},
}

func (e *Engine) writeEngineError(w http.ResponseWriter, err error) {
	for _, es := range errorStatuses {
		if errors.Is(err, es.err) {
			writeError(w, es.status, es.code, es.err.Error())
			return
		}
	}
	e.logger.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
