package goRecover

import (
	"errors"

	"github.com/MrEthical07/goRecover/internal/limiters"
	"github.com/MrEthical07/goRecover/internal/stores"
	"github.com/MrEthical07/goRecover/jwt"
	"github.com/MrEthical07/goRecover/password"
	"github.com/MrEthical07/goRecover/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Configure it once, call [Builder.Build],
// discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userProvider UserProvider
	credStore    CredentialStore
	auditSink    AuditSink

	built bool
}

// New returns a Builder loaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration tree. Zero-value fields are
// NOT defaulted; start from the defaults if only a few knobs need changing.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing flow sessions, login sessions,
// and the optional throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserProvider sets the account lookup and password persistence backend.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithCredentialStore sets the security-question persistence backend.
func (b *Builder) WithCredentialStore(cs CredentialStore) *Builder {
	b.credStore = cs
	return b
}

// WithAuditSink sets the destination for audit events. Without a sink the
// dispatcher still runs and counts drops against a NoOpSink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the flow counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires the stores, and returns a ready
// [Engine]. A Builder can build at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	if b.credStore == nil {
		return nil, errors.New("credential store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		userProvider: b.userProvider,
		credStore:    b.credStore,
	}

	engine.sessionStore = session.NewStore(b.redis, cfg.Session.RedisPrefix)
	engine.resetStore = stores.NewResetSessionStore(b.redis, cfg.Reset.RedisPrefix)
	engine.changeStore = stores.NewChangeSessionStore(b.redis, cfg.Change.RedisPrefix)
	engine.resetLimiter = limiters.NewResetLimiter(b.redis, limiters.ResetConfig{
		Enabled:     cfg.Limiter.Enabled,
		Window:      cfg.Limiter.Window,
		MaxRequests: cfg.Limiter.MaxRequests,
		Prefix:      cfg.Limiter.RedisPrefix,
	})
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = newMetrics(cfg.Metrics)

	ph, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	jm, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.Token.TTL,
		SigningMethod: jwt.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.Key),
		Issuer:        cfg.Token.Issuer,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	b.built = true

	return engine, nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
