package policy

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRuleNotFound is returned when removing a rule or grouping edge that
	// does not exist. Callers can distinguish "removed" from "was absent".
	ErrRuleNotFound = errors.New("policy rule not found")
)

// Rule is one (subject, object, action) permission triple.
type Rule struct {
	Subject string
	Object  string
	Action  string
}

// GroupingRule is one subject→role membership edge. Roles are subjects
// themselves, so edges chain (user→role→role→permission).
type GroupingRule struct {
	Subject string
	Role    string
}

// Store is the authoritative rule store the enforcer evaluates against.
//
// AddRule and AddGroupingRule are idempotent: adding a present entry
// reports created=false without erroring (implementations may rely on a
// unique-constraint violation to detect the race). RemoveRule and
// RemoveGroupingRule report found=false for absent entries.
type Store interface {
	HasRule(ctx context.Context, sub, obj, act string) (bool, error)
	AddRule(ctx context.Context, sub, obj, act string) (created bool, err error)
	RemoveRule(ctx context.Context, sub, obj, act string) (found bool, err error)

	RolesFor(ctx context.Context, sub string) ([]string, error)
	AddGroupingRule(ctx context.Context, sub, role string) (created bool, err error)
	RemoveGroupingRule(ctx context.Context, sub, role string) (found bool, err error)
}

// Config defines a public type used by authcore APIs.
type Config struct {
	CacheTTL time.Duration
	// MaxDepth bounds transitive role resolution (subject→role→…).
	MaxDepth int
	// RedisPrefix namespaces the shared decision cache.
	RedisPrefix string
}

// Enforcer answers allow/deny for (subject, object, action) with a
// short-TTL decision cache in front of the authoritative store.
//
// Enforcer instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Enforcer struct {
	store  Store
	cache  decisionCache
	config Config
}

// NewEnforcer composes an Enforcer. With a nil redis client the decision
// cache is in-process; deployments with several replicas should pass Redis
// so invalidations are shared.
func NewEnforcer(store Store, redisClient redis.UniversalClient, cfg Config) (*Enforcer, error) {
	if store == nil {
		return nil, errors.New("policy store required")
	}
	if cfg.CacheTTL <= 0 {
		return nil, errors.New("cache TTL must be positive")
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 10
	}

	var cache decisionCache
	if redisClient != nil {
		cache = newRedisCache(redisClient, cfg.RedisPrefix)
	} else {
		cache = newMemoryCache()
	}

	return &Enforcer{store: store, cache: cache, config: cfg}, nil
}

// IsAllowed decides whether sub may perform act on obj.
//
// The cached decision is used when fresh; on a miss the authoritative store
// is consulted: direct triple first, then the subject's transitive role
// memberships up to the configured depth.
func (e *Enforcer) IsAllowed(ctx context.Context, sub, obj, act string) (bool, error) {
	key := cacheKey(sub, obj, act)

	if decision, ok, err := e.cache.Get(ctx, key); err == nil && ok {
		return decision, nil
	}

	decision, err := e.evaluate(ctx, sub, obj, act)
	if err != nil {
		return false, err
	}

	// Cache population is best effort; a failed write only costs a re-read.
	_ = e.cache.Set(ctx, key, decision, e.config.CacheTTL)

	return decision, nil
}

func (e *Enforcer) evaluate(ctx context.Context, sub, obj, act string) (bool, error) {
	seen := map[string]bool{sub: true}
	frontier := []string{sub}

	for depth := 0; depth <= e.config.MaxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, subject := range frontier {
			ok, err := e.store.HasRule(ctx, subject, obj, act)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}

			roles, err := e.store.RolesFor(ctx, subject)
			if err != nil {
				return false, err
			}
			for _, role := range roles {
				if !seen[role] {
					seen[role] = true
					next = append(next, role)
				}
			}
		}
		frontier = next
	}

	return false, nil
}

// AddRule inserts a permission triple. Returns created=false when the rule
// already exists. The affected cache entry is invalidated strictly, before
// AddRule returns.
func (e *Enforcer) AddRule(ctx context.Context, sub, obj, act string) (bool, error) {
	created, err := e.store.AddRule(ctx, sub, obj, act)
	if err != nil {
		return false, err
	}
	if err := e.cache.Delete(ctx, cacheKey(sub, obj, act)); err != nil {
		return created, err
	}
	return created, nil
}

// RemoveRule deletes a permission triple. Returns ErrRuleNotFound when the
// rule was absent; state is unchanged in that case. The affected cache entry
// is invalidated strictly.
func (e *Enforcer) RemoveRule(ctx context.Context, sub, obj, act string) error {
	found, err := e.store.RemoveRule(ctx, sub, obj, act)
	if err != nil {
		return err
	}
	if !found {
		return ErrRuleNotFound
	}
	return e.cache.Delete(ctx, cacheKey(sub, obj, act))
}

// AddGroupingRule inserts a subject→role edge. A new edge can change any
// decision for the subject, so the whole decision cache is flushed rather
// than tracked per-entry.
func (e *Enforcer) AddGroupingRule(ctx context.Context, sub, role string) (bool, error) {
	created, err := e.store.AddGroupingRule(ctx, sub, role)
	if err != nil {
		return false, err
	}
	if created {
		if err := e.cache.Flush(ctx); err != nil {
			return created, err
		}
	}
	return created, nil
}

// RemoveGroupingRule deletes a subject→role edge, flushing the decision
// cache on success. Absent edges return ErrRuleNotFound.
func (e *Enforcer) RemoveGroupingRule(ctx context.Context, sub, role string) error {
	found, err := e.store.RemoveGroupingRule(ctx, sub, role)
	if err != nil {
		return err
	}
	if !found {
		return ErrRuleNotFound
	}
	return e.cache.Flush(ctx)
}
