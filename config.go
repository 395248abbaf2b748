package authcore

import (
	"errors"
	"time"

	"github.com/hexora/authcore/credential"
	"github.com/hexora/authcore/mfa"
	"github.com/hexora/authcore/policy"
	"github.com/hexora/authcore/session"
	"github.com/hexora/authcore/token"
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Token     TokenConfig
	Password  PasswordConfig
	TOTP      TOTPConfig
	Session   SessionConfig
	Policy    PolicyConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Notify    NotifyConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by authcore APIs.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by authcore APIs.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// MaxConcurrentHashes bounds simultaneous Argon2 invocations so a login
	// burst cannot saturate CPU.
	MaxConcurrentHashes int
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig defines a public type used by authcore APIs.
type TOTPConfig struct {
	Issuer          string
	Digits          int
	Period          int
	Skew            int
	Algorithm       string
	SetupTokenTTL   time.Duration
	ChallengeTTL    time.Duration
	BackupCodeCount int
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by authcore APIs.
type SessionConfig struct {
	AbsoluteTTL   time.Duration
	SlidingWindow time.Duration
	KeyGrace      time.Duration
	CookieName    string
	CsrfCookie    string
	CsrfHeader    string
	SweepInterval time.Duration
}

/*
====================================
POLICY CONFIG
====================================
*/

// PolicyConfig defines a public type used by authcore APIs.
type PolicyConfig struct {
	CacheTTL    time.Duration
	MaxDepth    int
	RedisPrefix string
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig defines a public type used by authcore APIs.
type RateLimitConfig struct {
	MaxLoginAttempts   int
	LoginWindow        time.Duration
	MaxMfaAttempts     int
	MfaWindow          time.Duration
	MaxRefreshAttempts int
	RefreshWindow      time.Duration
}

/*
====================================
AUDIT / NOTIFY CONFIG
====================================
*/

// AuditConfig defines a public type used by authcore APIs.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// NotifyConfig defines a public type used by authcore APIs.
type NotifyConfig struct {
	Enabled    bool
	BufferSize int
}

// DefaultConfig returns the configuration tree the builder starts from.
// Callers adjust individual fields and pass the result to WithConfig.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "authcore",
		},
		Password: PasswordConfig{
			Memory:              64 * 1024,
			Time:                3,
			Parallelism:         2,
			SaltLength:          16,
			KeyLength:           32,
			MaxConcurrentHashes: 4,
		},
		TOTP: TOTPConfig{
			Issuer:          "authcore",
			Digits:          6,
			Period:          30,
			Skew:            1,
			Algorithm:       "SHA1",
			SetupTokenTTL:   10 * time.Minute,
			ChallengeTTL:    5 * time.Minute,
			BackupCodeCount: 10,
		},
		Session: SessionConfig{
			AbsoluteTTL:   12 * time.Hour,
			SlidingWindow: 30 * time.Minute,
			KeyGrace:      24 * time.Hour,
			CookieName:    "__Host-session",
			CsrfCookie:    "csrf_token",
			CsrfHeader:    "X-CSRF-Token",
			SweepInterval: 5 * time.Minute,
		},
		Policy: PolicyConfig{
			CacheTTL: 30 * time.Second,
			MaxDepth: 10,
		},
		RateLimit: RateLimitConfig{
			MaxLoginAttempts:   10,
			LoginWindow:        time.Minute,
			MaxMfaAttempts:     5,
			MfaWindow:          time.Minute,
			MaxRefreshAttempts: 30,
			RefreshWindow:      time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Notify: NotifyConfig{
			Enabled:    true,
			BufferSize: 64,
		},
	}
}

// Validate checks cross-field constraints that the per-service constructors
// cannot see.
func (c Config) Validate() error {
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("refresh TTL must exceed access TTL")
	}
	if c.Session.AbsoluteTTL < c.Token.AccessTTL {
		return errors.New("session TTL must be at least the access TTL")
	}
	if c.Session.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	if c.Password.MaxConcurrentHashes <= 0 {
		return errors.New("max concurrent hashes must be positive")
	}
	return nil
}

func (c Config) tokenManagerConfig() token.ManagerConfig {
	return token.ManagerConfig{
		SigningMethod: token.SigningMethod(c.Token.SigningMethod),
		PrivateKey:    c.Token.PrivateKey,
		PublicKey:     c.Token.PublicKey,
		Issuer:        c.Token.Issuer,
		Audience:      c.Token.Audience,
		Leeway:        c.Token.Leeway,
		KeyID:         c.Token.KeyID,
		VerifyKeys:    c.Token.VerifyKeys,
	}
}

func (c Config) tokenServiceConfig() token.ServiceConfig {
	return token.ServiceConfig{
		AccessTTL:  c.Token.AccessTTL,
		RefreshTTL: c.Token.RefreshTTL,
	}
}

func (c Config) hasherConfig() credential.HasherConfig {
	return credential.HasherConfig{
		Memory:      c.Password.Memory,
		Time:        c.Password.Time,
		Parallelism: c.Password.Parallelism,
		SaltLength:  c.Password.SaltLength,
		KeyLength:   c.Password.KeyLength,
	}
}

func (c Config) mfaServiceConfig() mfa.ServiceConfig {
	return mfa.ServiceConfig{
		TOTP: mfa.TOTPConfig{
			Issuer:    c.TOTP.Issuer,
			Digits:    c.TOTP.Digits,
			Period:    c.TOTP.Period,
			Skew:      c.TOTP.Skew,
			Algorithm: c.TOTP.Algorithm,
		},
		SetupTokenTTL:   c.TOTP.SetupTokenTTL,
		ChallengeTTL:    c.TOTP.ChallengeTTL,
		BackupCodeCount: c.TOTP.BackupCodeCount,
	}
}

func (c Config) sessionConfig() session.Config {
	return session.Config{
		AbsoluteTTL:   c.Session.AbsoluteTTL,
		SlidingWindow: c.Session.SlidingWindow,
		KeyGrace:      c.Session.KeyGrace,
		CookieName:    c.Session.CookieName,
		CsrfCookie:    c.Session.CsrfCookie,
		CsrfHeader:    c.Session.CsrfHeader,
	}
}

func (c Config) policyConfig() policy.Config {
	return policy.Config{
		CacheTTL:    c.Policy.CacheTTL,
		MaxDepth:    c.Policy.MaxDepth,
		RedisPrefix: c.Policy.RedisPrefix,
	}
}
