package goRecover

import (
	"errors"
	"time"
)

// Config is the full engine configuration tree. Configure once before
// [Builder.Build]; the engine clones it and treats it as immutable afterwards.
type Config struct {
	Reset    ResetConfig
	Change   ChangeConfig
	Password PasswordConfig
	Session  SessionConfig
	Token    TokenConfig
	Limiter  LimiterConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
RESET FLOW CONFIG
====================================
*/

// ResetConfig controls the unauthenticated reset flow. SessionTTL is the
// expiry horizon after which an untouched reset session counts as abandoned.
type ResetConfig struct {
	SessionTTL  time.Duration
	RedisPrefix string
}

// ChangeConfig controls the authenticated change flow. One change session
// exists per user at a time; BeginChange replaces it.
type ChangeConfig struct {
	SessionTTL  time.Duration
	RedisPrefix string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters (memory in KB) and the minimum
// accepted password length.
type PasswordConfig struct {
	MinLength   int
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
LIVE SESSION / TOKEN CONFIG
====================================
*/

// SessionConfig controls the live login-session store used by Login and by
// post-reset session invalidation.
type SessionConfig struct {
	TTL         time.Duration
	RedisPrefix string
}

// TokenConfig controls the session-token signer. SigningMethod is "hs256"
// (default) or "ed25519"; Key carries the HMAC secret or ed25519 seed.
type TokenConfig struct {
	TTL           time.Duration
	SigningMethod string
	Key           []byte
	Issuer        string
}

/*
====================================
THROTTLE / AUDIT / METRICS CONFIG
====================================
*/

// LimiterConfig is the optional fixed-window throttle on BeginReset. The
// observed system has no lockout, so the throttle ships disabled; enabling it
// bounds begin-reset calls per username and per client IP within Window.
type LimiterConfig struct {
	Enabled     bool
	Window      time.Duration
	MaxRequests int
	RedisPrefix string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig enables the atomic flow counters exposed through
// [Engine.MetricsSnapshot].
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the configuration the engine ships with. Callers
// adjust fields and pass the result to [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Reset: ResetConfig{
			SessionTTL:  15 * time.Minute,
			RedisPrefix: "grr",
		},
		Change: ChangeConfig{
			SessionTTL:  15 * time.Minute,
			RedisPrefix: "grc",
		},
		Password: PasswordConfig{
			MinLength:   8,
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Session: SessionConfig{
			TTL:         24 * time.Hour,
			RedisPrefix: "grs",
		},
		Token: TokenConfig{
			TTL:           24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "goRecover",
		},
		Limiter: LimiterConfig{
			Enabled:     false,
			Window:      15 * time.Minute,
			MaxRequests: 10,
			RedisPrefix: "grl",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for values the engine cannot operate
// with. Builder.Build calls it after applying defaults.
func (c *Config) Validate() error {
	if c.Reset.SessionTTL <= 0 || c.Change.SessionTTL <= 0 {
		return errors.New("flow session TTLs must be positive")
	}
	if c.Password.MinLength < 8 {
		return errors.New("password minimum length below 8")
	}
	if c.Password.Memory < 8*1024 || c.Password.Time < 1 || c.Password.Parallelism < 1 {
		return errors.New("argon2 parameters below hardening floor")
	}
	if c.Password.SaltLength < 16 || c.Password.KeyLength < 16 {
		return errors.New("argon2 salt/key length below hardening floor")
	}
	if c.Session.TTL <= 0 || c.Token.TTL <= 0 {
		return errors.New("session/token TTLs must be positive")
	}
	switch c.Token.SigningMethod {
	case "hs256", "ed25519":
	default:
		return errors.New("unsupported token signing method")
	}
	if c.Limiter.Enabled && (c.Limiter.Window <= 0 || c.Limiter.MaxRequests < 1) {
		return errors.New("limiter enabled with invalid window or budget")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Token.Key != nil {
		out.Token.Key = make([]byte, len(cfg.Token.Key))
		copy(out.Token.Key, cfg.Token.Key)
	}
	return out
}
