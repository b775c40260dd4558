package hostauth

import "errors"

var (
	// ErrDatabaseRequired is returned by New when Options.Database is nil.
	ErrDatabaseRequired = errors.New("database adapter required")
	// ErrSecondaryStorageRequired is returned when a feature needs Redis and none is configured.
	ErrSecondaryStorageRequired = errors.New("secondary storage required")
	// ErrInvalidOptions wraps every Options validation failure.
	ErrInvalidOptions = errors.New("invalid options")

	// ErrEmailPasswordDisabled is returned when credential auth is switched off.
	ErrEmailPasswordDisabled = errors.New("email and password authentication disabled")
	// ErrSignUpDisabled is returned by SignUpEmail when sign-up is disabled.
	ErrSignUpDisabled = errors.New("sign up disabled")
	// ErrInvalidEmail is returned for addresses that do not parse.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrPasswordPolicy is returned when a password violates the length policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrUserExists is returned when signing up with a registered email.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials is returned for unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRateLimited is returned once sign-in attempts exceed the configured budget.
	ErrRateLimited = errors.New("too many attempts")

	// ErrSessionNotFound is returned for unknown or malformed session tokens.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned for sessions past their expiry.
	ErrSessionExpired = errors.New("session expired")

	// ErrJWTDisabled is returned by token operations when JWT is off.
	ErrJWTDisabled = errors.New("jwt disabled")
	// ErrInvalidToken is returned when an access token fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrBuilderUsed is returned when Build is called twice on the same Builder.
	ErrBuilderUsed = errors.New("builder already used")
)
