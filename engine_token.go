package hostauth

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/hostauth/jwt"
)

// IssueToken exchanges a valid session token for a signed access token.
func (e *Engine) IssueToken(ctx context.Context, sessionToken string) (string, time.Time, error) {
	if e.tokens == nil {
		return "", time.Time{}, ErrJWTDisabled
	}
	res, err := e.GetSession(ctx, sessionToken)
	if err != nil {
		return "", time.Time{}, err
	}

	token, expires, err := e.tokens.CreateAccess(res.User.ID, res.Session.ID, res.User.Email)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}

	e.metrics.Inc(MetricTokenIssued)
	e.emitAudit(ctx, AuditEventTokenIssued, true, res.User.ID, res.Session.ID, nil)
	return token, expires, nil
}

// VerifyToken checks an access token issued by this engine. It does not
// consult the session store, so a token stays valid until it expires even if
// its session is revoked.
func (e *Engine) VerifyToken(token string) (*jwt.AccessClaims, error) {
	if e.tokens == nil {
		return nil, ErrJWTDisabled
	}
	claims, err := e.tokens.ParseAccess(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
