package hostauth

import (
	"crypto/ed25519"
	"crypto/rand"
	"time"

	"github.com/MrEthical07/hostauth/adapter"
	"github.com/MrEthical07/hostauth/internal/audit"
	"github.com/MrEthical07/hostauth/internal/rate"
	"github.com/MrEthical07/hostauth/jwt"
	"github.com/MrEthical07/hostauth/password"
	"github.com/MrEthical07/hostauth/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	options   Options
	auditSink AuditSink
	built     bool
}

// NewBuilder returns a builder seeded with DefaultOptions.
func NewBuilder() *Builder {
	return &Builder{options: DefaultOptions()}
}

// New builds an engine from opts. Zero fields take their DefaultOptions value.
func New(opts Options) (*Engine, error) {
	return NewBuilder().WithOptions(opts).Build()
}

// WithOptions replaces the builder's options.
func (b *Builder) WithOptions(opts Options) *Builder {
	b.options = opts.Clone()
	return b
}

// WithDatabase sets the adapter the engine persists through.
func (b *Builder) WithDatabase(db adapter.Adapter) *Builder {
	b.options.Database = db
	return b
}

// WithSecondaryStorage sets the Redis client used for the session cache and
// sign-in throttling.
func (b *Builder) WithSecondaryStorage(client redis.UniversalClient) *Builder {
	b.options.SecondaryStorage = client
	return b
}

// WithLogger sets the engine logger.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.options.Logger = &logger
	return b
}

// WithAuditSink sets where audit events go when Audit.Enabled is true. The
// default sink logs through the engine logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the options and wires the engine's collaborators.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}
	b.built = true

	opts, err := withDefaults(b.options)
	if err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().
		Str("component", "hostauth").
		Str("instance", opts.Advanced.CookiePrefix).
		Logger()

	hasher, err := password.NewHasher(opts.Password)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		options: opts,
		db:      opts.Database,
		hasher:  hasher,
		metrics: NewMetrics(opts.Metrics),
		logger:  logger,
		now:     time.Now,
	}

	// -------- SECONDARY STORAGE --------
	if opts.SecondaryStorage != nil {
		prefix := opts.storagePrefix()
		e.sessions = session.NewStore(opts.SecondaryStorage, prefix)
		if opts.RateLimit.Enabled {
			e.limiter = rate.New(opts.SecondaryStorage, rate.Config{
				Prefix:      prefix,
				MaxAttempts: opts.RateLimit.MaxAttempts,
				Window:      opts.RateLimit.Window,
			})
		}
	}

	// -------- ACCESS TOKENS --------
	if opts.JWT.Enabled {
		tokens, err := newTokenManager(opts, logger)
		if err != nil {
			return nil, err
		}
		e.tokens = tokens
	}

	// -------- AUDIT --------
	if opts.Audit.Enabled {
		sink := b.auditSink
		if sink == nil {
			sink = audit.NewLogSink(logger)
		}
		e.audit = audit.NewDispatcher(audit.Config{
			Enabled:    true,
			BufferSize: opts.Audit.BufferSize,
			DropIfFull: opts.Audit.DropIfFull,
		}, sink)
	}

	logger.Debug().
		Str("base_path", opts.BasePath).
		Str("id_type", string(opts.Database.Config().IDType)).
		Bool("secondary_storage", e.sessions != nil).
		Bool("rate_limit", e.limiter != nil).
		Bool("jwt", e.tokens != nil).
		Msg("engine ready")

	return e, nil
}

func newTokenManager(opts Options, logger zerolog.Logger) (*jwt.Manager, error) {
	cfg := jwt.Config{
		AccessTTL: opts.JWT.AccessTTL,
		Issuer:    opts.JWT.Issuer,
		Audience:  opts.JWT.Audience,
	}

	switch opts.JWT.SigningMethod {
	case "hs256":
		key := opts.JWT.PrivateKey
		if key == "" {
			key = opts.Secret
		}
		cfg.SigningMethod = jwt.MethodHS256
		cfg.PrivateKey = []byte(key)
	default:
		cfg.SigningMethod = jwt.MethodEd25519
		if opts.JWT.PrivateKey != "" {
			cfg.PrivateKey = []byte(opts.JWT.PrivateKey)
		}
		if opts.JWT.PublicKey != "" {
			cfg.PublicKey = []byte(opts.JWT.PublicKey)
		}
		if cfg.PrivateKey == nil && cfg.PublicKey == nil {
			_, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return nil, err
			}
			cfg.PrivateKey = priv
			logger.Warn().Msg("no jwt signing key configured, using an ephemeral ed25519 key")
		}
	}

	return jwt.NewManager(cfg)
}
