package authcore

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/hexora/authcore/credential"
	"github.com/hexora/authcore/identity"
	"github.com/hexora/authcore/internal/limiters"
	"github.com/hexora/authcore/mfa"
	"github.com/hexora/authcore/policy"
	"github.com/hexora/authcore/session"
	"github.com/hexora/authcore/token"
)

// Engine defines a public type used by authcore APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config   Config
	users    identity.Store
	hasher   *credential.Hasher
	tokens   *token.Service
	mfa      *mfa.Service
	sessions *session.Service
	enforcer *policy.Enforcer
	limiter  *limiters.Limiter
	audit    *auditDispatcher
	notify   *notifyQueue

	// hashGate bounds concurrent Argon2 invocations.
	hashGate chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

const (
	auditActionRegister         = "auth.register"
	auditActionLogin            = "auth.login"
	auditActionMfaVerify        = "auth.mfa_verify"
	auditActionRefresh          = "auth.refresh"
	auditActionLogout           = "auth.logout"
	auditActionPasswordChange   = "auth.password_change"
	auditActionMfaSetup         = "auth.mfa_setup"
	auditActionMfaDisable       = "auth.mfa_disable"
	auditActionBackupCodes      = "auth.backup_codes_regenerate"
	auditActionSessionLogin     = "auth.session_login"
	auditActionSessionLogout    = "auth.session_logout"
	auditActionTheftDetected    = "auth.refresh_reuse_detected"
	auditActionKeyRotation      = "auth.session_key_rotation"
	auditActionPolicyMutation   = "policy.mutation"
	auditActionSweep            = "auth.sweep"
	auditActionCsrfRejected     = "auth.csrf_rejected"
	auditActionLoginRateLimit   = "auth.login_rate_limited"
	auditActionMfaRateLimit     = "auth.mfa_rate_limited"
	auditActionRefreshRateLimit = "auth.refresh_rate_limited"
)

// Close stops the background workers and flushes the audit pipeline.
// Safe to call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		close(e.done)
		e.wg.Wait()
		if e.audit != nil {
			e.audit.Close()
		}
		if e.notify != nil {
			e.notify.Close()
		}
	})
}

// AuditDropped reports how many audit events were discarded because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Sessions exposes the session service for cookie construction helpers.
func (e *Engine) Sessions() *session.Service {
	return e.sessions
}

// Tokens exposes the signed-token manager for middleware verification.
func (e *Engine) Tokens() *token.Manager {
	return e.tokens.Manager()
}

// Enforcer exposes the policy enforcer for authorization middleware.
func (e *Engine) Enforcer() *policy.Enforcer {
	return e.enforcer
}

func (e *Engine) startSweeper(interval time.Duration) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-e.done:
				return
			case <-ticker.C:
				e.sweep()
			}
		}
	}()
}

// sweep purges dead sessions, retired keys past grace, expired refresh
// tokens, and expired MFA setup tokens. Failures are logged and retried on
// the next tick.
func (e *Engine) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sessions, keys, err := e.sessions.Sweep(ctx)
	if err != nil {
		log.Print("authcore: session sweep failed")
	}
	setupTokens, err := e.mfa.SweepSetupTokens(ctx)
	if err != nil {
		log.Print("authcore: mfa setup token sweep failed")
	}
	refreshTokens, err := e.tokens.DeleteExpired(ctx)
	if err != nil {
		log.Print("authcore: refresh token sweep failed")
	}

	if sessions+keys+setupTokens+refreshTokens > 0 {
		e.emitAudit(ctx, "", auditActionSweep, "", OutcomeSuccess, map[string]string{
			"sessions":       strconv.FormatInt(sessions, 10),
			"keys":           strconv.FormatInt(keys, 10),
			"setup_tokens":   strconv.FormatInt(setupTokens, 10),
			"refresh_tokens": strconv.FormatInt(refreshTokens, 10),
		})
	}
}

func (e *Engine) emitAudit(ctx context.Context, actor, action, resource string, outcome Outcome, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	if ip := clientIPFromContext(ctx); ip != "" {
		if metadata == nil {
			metadata = map[string]string{}
		}
		metadata["ip"] = ip
	}
	e.audit.Emit(ctx, AuditEvent{
		Timestamp: time.Now(),
		Actor:     actor,
		Action:    action,
		Resource:  resource,
		Outcome:   outcome,
		Metadata:  metadata,
	})
}

func (e *Engine) enqueueNotification(userID, email string, kind NotificationKind) {
	if e == nil || e.notify == nil {
		return
	}
	e.notify.Enqueue(Notification{
		UserID: userID,
		Email:  email,
		Kind:   kind,
	})
}

// acquireHashSlot blocks until an Argon2 slot frees up or ctx is done.
func (e *Engine) acquireHashSlot(ctx context.Context) error {
	select {
	case e.hashGate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) releaseHashSlot() {
	<-e.hashGate
}
