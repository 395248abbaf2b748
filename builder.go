package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/hexora/authcore/credential"
	"github.com/hexora/authcore/identity"
	"github.com/hexora/authcore/internal/limiters"
	"github.com/hexora/authcore/internal/stores"
	"github.com/hexora/authcore/mfa"
	"github.com/hexora/authcore/policy"
	"github.com/hexora/authcore/session"
	"github.com/hexora/authcore/token"
)

// Builder defines a public type used by authcore APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	db     *gorm.DB
	redis  redis.UniversalClient

	users     identity.Store
	auditSink AuditSink
	notifier  Notifier

	tokenStore   token.Store
	mfaStore     mfa.Store
	sessionStore session.Store
	keyStore     session.KeyStore
	policyStore  policy.Store

	skipMigrate bool
	built       bool
}

// New starts a builder with default configuration. Call With* methods to
// inject dependencies, then Build.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration tree.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithDB injects the GORM handle backing all persisted state. Required
// unless every store is injected explicitly.
func (b *Builder) WithDB(db *gorm.DB) *Builder {
	b.db = db
	return b
}

// WithRedis injects the Redis client used by the rate limiters and the
// shared policy decision cache. Optional; without it the limiters are inert
// and the decision cache is in-process.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore injects the credential view of the identity collaborator.
// Defaults to the GORM-backed store when a DB is provided.
func (b *Builder) WithUserStore(s identity.Store) *Builder {
	b.users = s
	return b
}

// WithAuditSink injects the destination for security events. Defaults to
// NoOpSink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithNotifier injects the email collaborator for security notifications.
// Optional.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithTokenStore overrides the refresh token store.
func (b *Builder) WithTokenStore(s token.Store) *Builder {
	b.tokenStore = s
	return b
}

// WithMfaStore overrides the MFA state store.
func (b *Builder) WithMfaStore(s mfa.Store) *Builder {
	b.mfaStore = s
	return b
}

// WithSessionStore overrides the session store.
func (b *Builder) WithSessionStore(s session.Store) *Builder {
	b.sessionStore = s
	return b
}

// WithKeyStore overrides the session key store.
func (b *Builder) WithKeyStore(s session.KeyStore) *Builder {
	b.keyStore = s
	return b
}

// WithPolicyStore overrides the authoritative policy store.
func (b *Builder) WithPolicyStore(s policy.Store) *Builder {
	b.policyStore = s
	return b
}

// WithoutAutoMigrate skips schema migration at build time for deployments
// that manage migrations out of band.
func (b *Builder) WithoutAutoMigrate() *Builder {
	b.skipMigrate = true
	return b
}

// Build validates the configuration, wires the services, starts the
// background workers, and returns the engine.
//
// Build may return an error when configuration or dependencies are invalid.
// A Builder can be used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	needsDB := b.users == nil || b.tokenStore == nil || b.mfaStore == nil ||
		b.sessionStore == nil || b.keyStore == nil || b.policyStore == nil
	if needsDB && b.db == nil {
		return nil, errors.New("gorm DB required unless all stores are injected")
	}

	if b.db != nil && !b.skipMigrate {
		if err := stores.AutoMigrate(b.db); err != nil {
			return nil, err
		}
	}

	if b.users == nil {
		b.users = stores.NewUserStore(b.db)
	}
	if b.tokenStore == nil {
		b.tokenStore = stores.NewTokenStore(b.db)
	}
	if b.mfaStore == nil {
		b.mfaStore = stores.NewMfaStore(b.db)
	}
	if b.sessionStore == nil {
		b.sessionStore = stores.NewSessionStore(b.db)
	}
	if b.keyStore == nil {
		b.keyStore = stores.NewKeyStore(b.db)
	}
	if b.policyStore == nil {
		b.policyStore = stores.NewPolicyStore(b.db)
	}

	hasher, err := credential.NewHasher(cfg.hasherConfig())
	if err != nil {
		return nil, err
	}

	manager, err := token.NewManager(cfg.tokenManagerConfig())
	if err != nil {
		return nil, err
	}

	tokens, err := token.NewService(manager, b.tokenStore, cfg.tokenServiceConfig())
	if err != nil {
		return nil, err
	}

	mfaSvc, err := mfa.NewService(b.mfaStore, manager, cfg.mfaServiceConfig())
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewService(b.sessionStore, b.keyStore, manager, cfg.sessionConfig())
	if err != nil {
		return nil, err
	}

	enforcer, err := policy.NewEnforcer(b.policyStore, b.redis, cfg.policyConfig())
	if err != nil {
		return nil, err
	}

	sink := b.auditSink
	if sink == nil {
		sink = NoOpSink{}
	}

	engine := &Engine{
		config:   cfg,
		users:    b.users,
		hasher:   hasher,
		tokens:   tokens,
		mfa:      mfaSvc,
		sessions: sessions,
		enforcer: enforcer,
		limiter: limiters.New(b.redis, limiters.Config{
			MaxLoginAttempts:   cfg.RateLimit.MaxLoginAttempts,
			LoginWindow:        cfg.RateLimit.LoginWindow,
			MaxMfaAttempts:     cfg.RateLimit.MaxMfaAttempts,
			MfaWindow:          cfg.RateLimit.MfaWindow,
			MaxRefreshAttempts: cfg.RateLimit.MaxRefreshAttempts,
			RefreshWindow:      cfg.RateLimit.RefreshWindow,
		}),
		audit:    newAuditDispatcher(cfg.Audit, sink),
		notify:   newNotifyQueue(cfg.Notify, b.notifier),
		hashGate: make(chan struct{}, cfg.Password.MaxConcurrentHashes),
		done:     make(chan struct{}),
	}
	engine.startSweeper(cfg.Session.SweepInterval)

	markStarted()
	b.built = true

	return engine, nil
}
