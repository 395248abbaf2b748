package authcore

import (
	"context"
	"errors"
	"net/http"

	"github.com/hexora/authcore/internal/limiters"
	"github.com/hexora/authcore/session"
	"github.com/hexora/authcore/token"
)

// SessionLoginResult is the outcome of a cookie-based login. When MFA is
// required the session is withheld and MfaChallenge drives
// VerifyMfaSessionLogin.
type SessionLoginResult struct {
	UserID       string
	MfaRequired  bool
	MfaChallenge string
	// Session carries the raw session and CSRF token values exactly once.
	Session *session.Created
}

// SessionLogin is the cookie-based variant of Login: on success a server
// side session wrapping a freshly issued access token is created, and the
// cookie values are returned for the caller to set.
//
// Attach client metadata with WithClientIP and WithUserAgent; it is recorded
// on the session row.
func (e *Engine) SessionLogin(ctx context.Context, username, password string) (*SessionLoginResult, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	if err := e.limiter.CheckLogin(ctx, username); err != nil {
		if errors.Is(err, limiters.ErrRateLimited) {
			e.emitAudit(ctx, "", auditActionLoginRateLimit, username, OutcomeFailure, nil)
			return nil, ErrLoginRateLimited
		}
		return nil, err
	}

	user, err := e.verifyPassword(ctx, username, password)
	if err != nil {
		e.emitAudit(ctx, "", auditActionSessionLogin, username, OutcomeFailure, nil)
		return nil, err
	}

	if user.MfaEnabled {
		challenge, err := e.mfa.ChallengeToken(user.ID)
		if err != nil {
			return nil, err
		}
		return &SessionLoginResult{
			UserID:       user.ID,
			MfaRequired:  true,
			MfaChallenge: challenge,
		}, nil
	}

	created, err := e.openSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, user.ID, auditActionSessionLogin, username, OutcomeSuccess, nil)
	return &SessionLoginResult{
		UserID:  user.ID,
		Session: created,
	}, nil
}

// VerifyMfaSessionLogin completes a cookie-based MFA login with a TOTP or
// backup code.
func (e *Engine) VerifyMfaSessionLogin(ctx context.Context, challengeToken, code string) (*SessionLoginResult, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Manager().Parse(challengeToken, token.TypeMfaChallenge)
	if err != nil {
		return nil, err
	}

	if err := e.limiter.CheckMfa(ctx, claims.UID); err != nil {
		if errors.Is(err, limiters.ErrRateLimited) {
			e.emitAudit(ctx, claims.UID, auditActionMfaRateLimit, "", OutcomeFailure, nil)
			return nil, ErrMfaRateLimited
		}
		return nil, err
	}

	userID, err := e.mfa.VerifyLogin(ctx, challengeToken, code)
	if err != nil {
		e.emitAudit(ctx, claims.UID, auditActionMfaVerify, "", OutcomeFailure, nil)
		return nil, err
	}

	created, err := e.openSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, userID, auditActionSessionLogin, "", OutcomeSuccess, map[string]string{
		"mfa": "verified",
	})
	return &SessionLoginResult{
		UserID:  userID,
		Session: created,
	}, nil
}

// ResolveSession authenticates a session cookie value and returns the
// principal. Revoked, expired, undecryptable, and inner-token-invalid
// sessions all surface as ErrSessionInvalid.
func (e *Engine) ResolveSession(ctx context.Context, cookieValue string) (*Identity, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	resolved, err := e.sessions.Resolve(ctx, cookieValue)
	if err != nil {
		return nil, err
	}

	return &Identity{
		UserID:    resolved.UserID,
		SessionID: resolved.SessionID,
	}, nil
}

// LogoutSession revokes the session behind a cookie value. Unknown cookies
// are a no-op.
func (e *Engine) LogoutSession(ctx context.Context, cookieValue string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	sess, err := e.sessions.RevokeByToken(ctx, cookieValue, "logout")
	if err != nil {
		if errors.Is(err, ErrSessionInvalid) {
			return nil
		}
		return err
	}

	e.emitAudit(ctx, sess.UserID, auditActionSessionLogout, sess.ID, OutcomeSuccess, nil)
	return nil
}

// ValidateCSRF checks the echoed CSRF header value against the session's
// stored token. Call it on mutating verbs before the handler runs.
func (e *Engine) ValidateCSRF(ctx context.Context, sessionID, headerValue string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if err := e.sessions.ValidateCSRF(ctx, sessionID, headerValue); err != nil {
		if errors.Is(err, ErrCsrfMismatch) {
			e.emitAudit(ctx, "", auditActionCsrfRejected, sessionID, OutcomeFailure, nil)
		}
		return err
	}
	return nil
}

// RotateSessionKeys rotates both the signing and encryption key. Sessions
// sealed under the previous encryption key keep resolving until the grace
// period ends.
func (e *Engine) RotateSessionKeys(ctx context.Context) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	for _, typ := range []session.KeyType{session.KeyTypeSigning, session.KeyTypeEncryption} {
		if err := e.sessions.RotateKey(ctx, typ); err != nil {
			e.emitAudit(ctx, "", auditActionKeyRotation, string(typ), OutcomeFailure, nil)
			return err
		}
		e.emitAudit(ctx, "", auditActionKeyRotation, string(typ), OutcomeSuccess, nil)
	}
	return nil
}

// SessionCookies builds the Set-Cookie values for a freshly created session.
func (e *Engine) SessionCookies(created *session.Created) []*http.Cookie {
	return []*http.Cookie{
		e.sessions.SessionCookie(created.SessionToken, created.ExpiresAt),
		e.sessions.CsrfCookie(created.CsrfToken, created.ExpiresAt),
	}
}

// ClearSessionCookies builds expired cookies for logout responses.
func (e *Engine) ClearSessionCookies() []*http.Cookie {
	return e.sessions.ClearCookies()
}

func (e *Engine) openSession(ctx context.Context, userID string) (*session.Created, error) {
	pair, err := e.tokens.Issue(ctx, userID)
	if err != nil {
		return nil, err
	}

	created, err := e.sessions.Create(ctx, userID, pair.AccessToken, session.Metadata{
		UserAgent:      userAgentFromContext(ctx),
		IPAddress:      clientIPFromContext(ctx),
		RefreshTokenID: pair.RefreshID,
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
