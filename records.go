package hostauth

import (
	"strconv"
	"time"

	"github.com/MrEthical07/hostauth/adapter"
)

// Collection names used through the adapter.
const (
	modelUser    = "user"
	modelSession = "session"
	modelAccount = "account"

	credentialProvider = "credential"
)

// User is an authenticated principal.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Session is a persisted sign-in. The bearer token is never stored; records
// carry its digest only.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
}

// AuthResult is returned by sign-up, sign-in and session lookups.
//
// Token is the raw session token and is only set when a session was created
// by the call. Refreshed reports that GetSession extended the expiry.
type AuthResult struct {
	User      User     `json:"user"`
	Session   *Session `json:"session,omitempty"`
	Token     string   `json:"token,omitempty"`
	Refreshed bool     `json:"-"`
}

// SignUpRequest is the input of SignUpEmail.
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// SignInRequest is the input of SignInEmail.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func userFromRecord(rec adapter.Record) User {
	return User{
		ID:            adapter.IDString(rec["id"]),
		Email:         stringField(rec, "email"),
		Name:          stringField(rec, "name"),
		EmailVerified: boolField(rec, "emailVerified"),
		CreatedAt:     timeField(rec, "createdAt"),
		UpdatedAt:     timeField(rec, "updatedAt"),
	}
}

func sessionFromRecord(rec adapter.Record) Session {
	return Session{
		ID:        adapter.IDString(rec["id"]),
		UserID:    adapter.IDString(rec["userId"]),
		ExpiresAt: timeField(rec, "expiresAt"),
		CreatedAt: timeField(rec, "createdAt"),
		UpdatedAt: timeField(rec, "updatedAt"),
		IPAddress: stringField(rec, "ipAddress"),
		UserAgent: stringField(rec, "userAgent"),
	}
}

func stringField(rec adapter.Record, key string) string {
	s, _ := rec[key].(string)
	return s
}

func boolField(rec adapter.Record, key string) bool {
	switch v := rec[key].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	default:
		return false
	}
}

func timeField(rec adapter.Record, key string) time.Time {
	switch v := rec[key].(type) {
	case int64:
		return time.UnixMilli(v).UTC()
	case float64:
		return time.UnixMilli(int64(v)).UTC()
	default:
		return time.Time{}
	}
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

// idValue converts a user id back to the type the adapter stores, so that
// foreign-key lookups compare like with like.
func (e *Engine) idValue(id string) any {
	if e.db.Config().IDType == adapter.IDTypeNumber {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			return n
		}
	}
	return id
}
