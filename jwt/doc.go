// Package jwt issues and verifies short-lived access tokens that carry the
// identity of an authenticated session.
package jwt
