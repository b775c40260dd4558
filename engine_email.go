package hostauth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/hostauth/adapter"
	"github.com/MrEthical07/hostauth/internal/rate"
	"github.com/MrEthical07/hostauth/password"
)

// SignUpEmail registers a user with a credential account. Unless
// DisableAutoSignIn is set, a session is created and its token returned.
func (e *Engine) SignUpEmail(ctx context.Context, req SignUpRequest) (res *AuthResult, err error) {
	defer func() {
		if err != nil {
			e.metrics.Inc(MetricSignUpFailure)
			e.emitAudit(ctx, AuditEventSignUp, false, "", "", err)
		}
	}()

	if !e.options.EmailAndPassword.Enabled {
		return nil, ErrEmailPasswordDisabled
	}
	if e.options.EmailAndPassword.DisableSignUp {
		return nil, ErrSignUpDisabled
	}

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := e.checkPasswordPolicy(req.Password); err != nil {
		return nil, err
	}

	existing, err := e.db.Count(ctx, modelUser, []adapter.Where{adapter.Eq("email", email)})
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if existing > 0 {
		return nil, ErrUserExists
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := millis(e.now())
	userRec, err := e.db.Create(ctx, modelUser, adapter.Record{
		"email":         email,
		"name":          strings.TrimSpace(req.Name),
		"emailVerified": false,
		"createdAt":     now,
		"updatedAt":     now,
	})
	if errors.Is(err, adapter.ErrConflict) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	userID := adapter.IDString(userRec["id"])
	if _, err := e.db.Create(ctx, modelAccount, adapter.Record{
		"userId":     userRec["id"],
		"accountId":  userID,
		"providerId": credentialProvider,
		"password":   hash,
		"createdAt":  now,
		"updatedAt":  now,
	}); err != nil {
		// Leave no half-registered user behind.
		_, _ = e.db.Delete(ctx, modelUser, []adapter.Where{adapter.Eq("id", userRec["id"])})
		return nil, fmt.Errorf("create account: %w", err)
	}

	res = &AuthResult{User: userFromRecord(userRec)}
	if !e.options.EmailAndPassword.DisableAutoSignIn {
		sess, token, err := e.createSession(ctx, userRec["id"])
		if err != nil {
			return nil, err
		}
		res.Session = sess
		res.Token = token
	}

	e.metrics.Inc(MetricSignUpSuccess)
	e.emitAudit(ctx, AuditEventSignUp, true, userID, sessionID(res.Session), nil)
	e.logger.Debug().Str("user_id", userID).Msg("user signed up")
	return res, nil
}

// SignInEmail verifies credentials and creates a session.
//
// Unknown emails and wrong passwords both return ErrInvalidCredentials.
// When rate limiting is enabled, failures count against the email and the
// client IP from WithClientIP.
func (e *Engine) SignInEmail(ctx context.Context, req SignInRequest) (res *AuthResult, err error) {
	ip := clientIPFromContext(ctx)

	defer func() {
		if err != nil {
			if errors.Is(err, ErrRateLimited) {
				e.metrics.Inc(MetricSignInRateLimited)
			} else {
				e.metrics.Inc(MetricSignInFailure)
			}
			e.emitAudit(ctx, AuditEventSignIn, false, "", "", err)
		}
	}()

	if !e.options.EmailAndPassword.Enabled {
		return nil, ErrEmailPasswordDisabled
	}

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if e.limiter != nil {
		if err := e.limiter.Check(ctx, email, ip); err != nil {
			return nil, mapRateError(err)
		}
	}

	userRec, hash, err := e.lookupCredential(ctx, email)
	if err != nil {
		return nil, err
	}

	if hash == "" {
		// Spend the same hashing time as a real verification.
		if dummy := e.dummyPasswordHash(); dummy != "" {
			_, _ = e.hasher.Verify(req.Password, dummy)
		}
		return nil, e.recordFailure(ctx, email, ip)
	}

	ok, err := e.hasher.Verify(req.Password, hash)
	if err != nil || !ok {
		if err != nil {
			e.logger.Warn().Err(err).Msg("stored password hash unreadable")
		}
		return nil, e.recordFailure(ctx, email, ip)
	}

	if e.limiter != nil {
		if err := e.limiter.Reset(ctx, email); err != nil {
			e.logger.Warn().Err(err).Msg("reset sign-in counter")
		}
	}

	e.maybeRehash(ctx, userRec["id"], req.Password, hash)

	sess, token, err := e.createSession(ctx, userRec["id"])
	if err != nil {
		return nil, err
	}

	user := userFromRecord(userRec)
	e.metrics.Inc(MetricSignInSuccess)
	e.emitAudit(ctx, AuditEventSignIn, true, user.ID, sess.ID, nil)
	return &AuthResult{User: user, Session: sess, Token: token}, nil
}

// lookupCredential returns the user record and its stored password hash. A
// missing user or account yields an empty hash and no error.
func (e *Engine) lookupCredential(ctx context.Context, email string) (adapter.Record, string, error) {
	userRec, err := e.db.FindOne(ctx, modelUser, []adapter.Where{adapter.Eq("email", email)})
	if errors.Is(err, adapter.ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("lookup user: %w", err)
	}

	account, err := e.db.FindOne(ctx, modelAccount, []adapter.Where{
		adapter.Eq("userId", userRec["id"]),
		adapter.Eq("providerId", credentialProvider),
	})
	if errors.Is(err, adapter.ErrNotFound) {
		return userRec, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("lookup account: %w", err)
	}
	return userRec, stringField(account, "password"), nil
}

func (e *Engine) recordFailure(ctx context.Context, email, ip string) error {
	if e.limiter == nil {
		return ErrInvalidCredentials
	}
	if err := e.limiter.RecordFailure(ctx, email, ip); err != nil && !errors.Is(err, rate.ErrRateLimited) {
		e.logger.Warn().Err(err).Msg("record sign-in failure")
	}
	return ErrInvalidCredentials
}

func (e *Engine) maybeRehash(ctx context.Context, userID any, plain, hash string) {
	need, err := e.hasher.NeedsRehash(hash)
	if err != nil || !need {
		return
	}
	upgraded, err := e.hasher.Hash(plain)
	if err != nil {
		return
	}
	_, err = e.db.Update(ctx, modelAccount, []adapter.Where{
		adapter.Eq("userId", userID),
		adapter.Eq("providerId", credentialProvider),
	}, adapter.Record{"password": upgraded, "updatedAt": millis(e.now())})
	if err != nil {
		e.logger.Warn().Err(err).Msg("upgrade password hash")
		return
	}
	e.metrics.Inc(MetricPasswordRehashed)
}

func (e *Engine) checkPasswordPolicy(pw string) error {
	n := utf8.RuneCountInString(pw)
	if n < e.options.EmailAndPassword.MinPasswordLength {
		return fmt.Errorf("%w: shorter than %d characters", ErrPasswordPolicy, e.options.EmailAndPassword.MinPasswordLength)
	}
	if n > e.options.EmailAndPassword.MaxPasswordLength || len(pw) > password.MaxPasswordBytes {
		return fmt.Errorf("%w: longer than %d characters", ErrPasswordPolicy, e.options.EmailAndPassword.MaxPasswordLength)
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func mapRateError(err error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		return ErrRateLimited
	}
	return fmt.Errorf("check sign-in rate: %w", err)
}

func sessionID(s *Session) string {
	if s == nil {
		return ""
	}
	return s.ID
}
