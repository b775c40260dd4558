package hostauth

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/MrEthical07/hostauth/adapter"
	"github.com/MrEthical07/hostauth/password"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Options configures one engine instance.
//
// Database, SecondaryStorage and Logger are runtime references and are never
// read from configuration files.
type Options struct {
	AppName        string   `yaml:"appName"`
	BaseURL        string   `yaml:"baseURL"`
	BasePath       string   `yaml:"basePath"`
	Secret         string   `yaml:"secret"`
	TrustedOrigins []string `yaml:"trustedOrigins"`

	EmailAndPassword EmailAndPasswordOptions `yaml:"emailAndPassword"`
	Session          SessionOptions          `yaml:"session"`
	Advanced         AdvancedOptions         `yaml:"advanced"`
	RateLimit        RateLimitOptions        `yaml:"rateLimit"`
	JWT              JWTOptions              `yaml:"jwt"`
	Password         password.Config         `yaml:"password"`
	Audit            AuditOptions            `yaml:"audit"`
	Metrics          MetricsOptions          `yaml:"metrics"`

	// EnableDebugLogs turns on per-operation adapter logging. It configures
	// the adapter, not the engine.
	EnableDebugLogs bool `yaml:"enableDebugLogs"`

	Database         adapter.Adapter       `yaml:"-"`
	SecondaryStorage redis.UniversalClient `yaml:"-"`
	Logger           *zerolog.Logger       `yaml:"-"`
}

// EmailAndPasswordOptions controls credential sign-up and sign-in.
type EmailAndPasswordOptions struct {
	Enabled           bool `yaml:"enabled"`
	DisableSignUp     bool `yaml:"disableSignUp"`
	DisableAutoSignIn bool `yaml:"disableAutoSignIn"`
	MinPasswordLength int  `yaml:"minPasswordLength"`
	MaxPasswordLength int  `yaml:"maxPasswordLength"`
}

// SessionOptions controls session lifetime.
type SessionOptions struct {
	ExpiresIn time.Duration `yaml:"expiresIn"`
	// UpdateAge is how old a session must be before GetSession extends it.
	// A negative value disables sliding refresh.
	UpdateAge time.Duration `yaml:"updateAge"`
	// StoragePrefix namespaces secondary-storage keys. Defaults to the cookie prefix.
	StoragePrefix string `yaml:"storagePrefix"`
}

// AdvancedOptions holds cookie and cache settings.
type AdvancedOptions struct {
	CookiePrefix     string `yaml:"cookiePrefix"`
	UseSecureCookies bool   `yaml:"useSecureCookies"`
	CookieDomain     string `yaml:"cookieDomain"`
	// SessionTTL caps how long a session snapshot stays in secondary storage.
	SessionTTL time.Duration `yaml:"sessionTTL"`
}

// RateLimitOptions throttles failed sign-ins per email and client IP.
type RateLimitOptions struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"maxAttempts"`
	Window      time.Duration `yaml:"window"`
}

// JWTOptions controls access token issuance. Keys are PEM text; for hs256 an
// empty PrivateKey falls back to Options.Secret.
type JWTOptions struct {
	Enabled       bool          `yaml:"enabled"`
	AccessTTL     time.Duration `yaml:"accessTTL"`
	SigningMethod string        `yaml:"signingMethod"`
	PrivateKey    string        `yaml:"privateKey"`
	PublicKey     string        `yaml:"publicKey"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
}

// AuditOptions controls the asynchronous audit dispatcher.
type AuditOptions struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"bufferSize"`
	DropIfFull bool `yaml:"dropIfFull"`
}

// MetricsOptions controls in-process counters.
type MetricsOptions struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enableLatencyHistograms"`
}

var cookiePrefixPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,64}$`)

/*
====================================
DEFAULT OPTIONS
====================================
*/

// DefaultOptions returns the values New uses for every zero field.
//
// Boolean switches all default to false so an explicit false in caller
// options is never overwritten.
func DefaultOptions() Options {
	return Options{
		AppName:  "hostauth",
		BasePath: "/api/auth",
		EmailAndPassword: EmailAndPasswordOptions{
			MinPasswordLength: 8,
			MaxPasswordLength: 128,
		},
		Session: SessionOptions{
			ExpiresIn: 7 * 24 * time.Hour,
			UpdateAge: 24 * time.Hour,
		},
		Advanced: AdvancedOptions{
			CookiePrefix: "hostauth",
			SessionTTL:   5 * time.Minute,
		},
		RateLimit: RateLimitOptions{
			MaxAttempts: 5,
			Window:      15 * time.Minute,
		},
		JWT: JWTOptions{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
		},
		Password: password.DefaultConfig(),
		Audit: AuditOptions{
			BufferSize: 1024,
		},
	}
}

// runtimeRefs holds the pointer and interface fields of Options. mergo
// follows pointers into their targets, so these are lifted out before any
// merge and put back afterwards.
type runtimeRefs struct {
	database  adapter.Adapter
	secondary redis.UniversalClient
	logger    *zerolog.Logger
}

func (o *Options) detachRefs() runtimeRefs {
	refs := runtimeRefs{database: o.Database, secondary: o.SecondaryStorage, logger: o.Logger}
	o.Database = nil
	o.SecondaryStorage = nil
	o.Logger = nil
	return refs
}

func (o *Options) attachRefs(refs runtimeRefs) {
	o.Database = refs.database
	o.SecondaryStorage = refs.secondary
	o.Logger = refs.logger
}

// Clone returns a copy that shares no slices with o.
func (o Options) Clone() Options {
	out := o
	if o.TrustedOrigins != nil {
		out.TrustedOrigins = append([]string(nil), o.TrustedOrigins...)
	}
	return out
}

// Merge returns a copy of o with every non-zero field of overrides applied
// on top. Runtime references in overrides replace those of o only when set.
func (o Options) Merge(overrides Options) (Options, error) {
	dst := o.Clone()
	src := overrides.Clone()

	dstRefs := dst.detachRefs()
	srcRefs := src.detachRefs()

	if err := mergo.Merge(&dst, src, mergo.WithOverride); err != nil {
		return Options{}, fmt.Errorf("merge options: %w", err)
	}

	if srcRefs.database != nil {
		dstRefs.database = srcRefs.database
	}
	if srcRefs.secondary != nil {
		dstRefs.secondary = srcRefs.secondary
	}
	if srcRefs.logger != nil {
		dstRefs.logger = srcRefs.logger
	}
	dst.attachRefs(dstRefs)
	return dst, nil
}

func withDefaults(opts Options) (Options, error) {
	out := opts.Clone()
	refs := out.detachRefs()
	if err := mergo.Merge(&out, DefaultOptions()); err != nil {
		return Options{}, fmt.Errorf("apply default options: %w", err)
	}
	out.attachRefs(refs)
	return out, nil
}

func (o *Options) storagePrefix() string {
	if o.Session.StoragePrefix != "" {
		return o.Session.StoragePrefix
	}
	return o.Advanced.CookiePrefix
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks a fully defaulted Options value.
func (o *Options) Validate() error {
	if o.Database == nil {
		return ErrDatabaseRequired
	}

	if !strings.HasPrefix(o.BasePath, "/") || (len(o.BasePath) > 1 && strings.HasSuffix(o.BasePath, "/")) {
		return fmt.Errorf("%w: BasePath must start with / and not end with /", ErrInvalidOptions)
	}
	if o.Secret != "" && len(o.Secret) < 32 {
		return fmt.Errorf("%w: Secret must be at least 32 bytes", ErrInvalidOptions)
	}

	// Email and password
	ep := o.EmailAndPassword
	if ep.MinPasswordLength < 1 {
		return fmt.Errorf("%w: EmailAndPassword MinPasswordLength must be >= 1", ErrInvalidOptions)
	}
	if ep.MaxPasswordLength < ep.MinPasswordLength || ep.MaxPasswordLength > password.MaxPasswordBytes {
		return fmt.Errorf("%w: EmailAndPassword MaxPasswordLength must be in [MinPasswordLength, %d]", ErrInvalidOptions, password.MaxPasswordBytes)
	}

	// Session
	if o.Session.ExpiresIn <= 0 {
		return fmt.Errorf("%w: Session ExpiresIn must be > 0", ErrInvalidOptions)
	}
	if o.Session.UpdateAge >= o.Session.ExpiresIn {
		return fmt.Errorf("%w: Session UpdateAge must be < ExpiresIn", ErrInvalidOptions)
	}

	// Advanced
	if !cookiePrefixPattern.MatchString(o.Advanced.CookiePrefix) {
		return fmt.Errorf("%w: Advanced CookiePrefix %q", ErrInvalidOptions, o.Advanced.CookiePrefix)
	}
	if o.Advanced.SessionTTL < 0 {
		return fmt.Errorf("%w: Advanced SessionTTL must be >= 0", ErrInvalidOptions)
	}

	// Rate limit
	if o.RateLimit.Enabled {
		if o.SecondaryStorage == nil {
			return fmt.Errorf("%w: RateLimit", ErrSecondaryStorageRequired)
		}
		if o.RateLimit.MaxAttempts <= 0 || o.RateLimit.Window <= 0 {
			return fmt.Errorf("%w: RateLimit MaxAttempts and Window must be > 0", ErrInvalidOptions)
		}
	}

	// JWT
	if o.JWT.Enabled {
		if o.JWT.AccessTTL <= 0 {
			return fmt.Errorf("%w: JWT AccessTTL must be > 0", ErrInvalidOptions)
		}
		switch o.JWT.SigningMethod {
		case "ed25519":
		case "hs256":
			if o.JWT.PrivateKey == "" && o.Secret == "" {
				return fmt.Errorf("%w: hs256 requires PrivateKey or Secret", ErrInvalidOptions)
			}
		default:
			return fmt.Errorf("%w: unsupported JWT signing method %q", ErrInvalidOptions, o.JWT.SigningMethod)
		}
	}

	if err := o.Password.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	if o.Audit.Enabled && o.Audit.BufferSize <= 0 {
		return fmt.Errorf("%w: Audit BufferSize must be > 0", ErrInvalidOptions)
	}

	return nil
}
