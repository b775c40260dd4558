package hostauth

import (
	"net/http"
	"strings"
	"time"
)

const (
	sessionCookieSuffix = ".session_token"
	secureCookiePrefix  = "__Secure-"
)

// SessionCookieName returns "<prefix>.session_token", with the __Secure-
// prefix when secure cookies are enabled.
func (e *Engine) SessionCookieName() string {
	name := e.options.Advanced.CookiePrefix + sessionCookieSuffix
	if e.options.Advanced.UseSecureCookies {
		name = secureCookiePrefix + name
	}
	return name
}

// SetSessionCookie writes the session cookie for token.
func (e *Engine) SetSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, e.sessionCookie(token, expires))
}

// ClearSessionCookie expires the session cookie.
func (e *Engine) ClearSessionCookie(w http.ResponseWriter) {
	c := e.sessionCookie("", time.Unix(0, 0))
	c.MaxAge = -1
	http.SetCookie(w, c)
}

// SessionTokenFromRequest reads the session token from the instance's cookie,
// falling back to an Authorization bearer header.
func (e *Engine) SessionTokenFromRequest(r *http.Request) (string, bool) {
	if c, err := r.Cookie(e.SessionCookieName()); err == nil && c.Value != "" {
		return c.Value, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func (e *Engine) sessionCookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     e.SessionCookieName(),
		Value:    value,
		Path:     "/",
		Domain:   e.options.Advanced.CookieDomain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   e.options.Advanced.UseSecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	token := strings.TrimSpace(value[len(bearer):])
	return token, token != ""
}
