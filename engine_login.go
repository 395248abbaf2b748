package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hexora/authcore/credential"
	"github.com/hexora/authcore/identity"
	"github.com/hexora/authcore/internal/limiters"
	"github.com/hexora/authcore/token"
)

// LoginResult is the outcome of a password login. When the account has MFA
// enabled the token pair is withheld and MfaChallenge carries the short-lived
// token that VerifyMfaLogin consumes together with a code.
type LoginResult struct {
	UserID       string
	MfaRequired  bool
	MfaChallenge string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Register creates an account from a username, email, and plaintext
// password. The password is checked against the strength policy and stored
// only as an Argon2id hash.
//
// Register returns ErrUserExists on username or email collision and a
// *credential.WeakPasswordError when the password is rejected.
func (e *Engine) Register(ctx context.Context, username, email, password string) (string, error) {
	if e == nil || e.hasher == nil {
		return "", ErrEngineNotReady
	}
	if username == "" || password == "" {
		return "", ErrInvalidCredentials
	}

	if err := credential.ValidateStrength(password); err != nil {
		return "", err
	}

	if err := e.acquireHashSlot(ctx); err != nil {
		return "", err
	}
	hash, err := e.hasher.Hash(password)
	e.releaseHashSlot()
	if err != nil {
		return "", err
	}

	user := &identity.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	if err := e.users.Create(ctx, user); err != nil {
		if errors.Is(err, identity.ErrUserExists) {
			e.emitAudit(ctx, "", auditActionRegister, username, OutcomeFailure, map[string]string{
				"reason": "duplicate",
			})
			return "", ErrUserExists
		}
		return "", err
	}

	e.emitAudit(ctx, user.ID, auditActionRegister, username, OutcomeSuccess, nil)
	return user.ID, nil
}

// Login verifies a username/password pair.
//
// For accounts without MFA a token pair is issued directly. For MFA-enabled
// accounts the result carries an mfa_challenge token instead; complete the
// login with VerifyMfaLogin. Unknown usernames and wrong passwords are
// indistinguishable.
func (e *Engine) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if e == nil || e.hasher == nil {
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
		e.emitAudit(ctx, "", auditActionLogin, username, OutcomeFailure, nil)
		return nil, err
	}

	if user.MfaEnabled {
		challenge, err := e.mfa.ChallengeToken(user.ID)
		if err != nil {
			return nil, err
		}
		e.emitAudit(ctx, user.ID, auditActionLogin, username, OutcomeSuccess, map[string]string{
			"mfa": "required",
		})
		return &LoginResult{
			UserID:       user.ID,
			MfaRequired:  true,
			MfaChallenge: challenge,
		}, nil
	}

	pair, err := e.tokens.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, user.ID, auditActionLogin, username, OutcomeSuccess, nil)
	return &LoginResult{
		UserID:       user.ID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	}, nil
}

// VerifyMfaLogin completes an MFA login: the challenge token from Login plus
// a current TOTP code or an unused backup code yields the token pair.
//
// All code failures surface as ErrInvalidMfaCode; expired or tampered
// challenge tokens surface as token errors.
func (e *Engine) VerifyMfaLogin(ctx context.Context, challengeToken, code string) (*LoginResult, error) {
	if e == nil || e.mfa == nil {
		return nil, ErrEngineNotReady
	}

	// The challenge is parsed up front so the rate limit keys on the user,
	// not on the caller-controlled token string.
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

	pair, err := e.tokens.Issue(ctx, userID)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, userID, auditActionMfaVerify, "", OutcomeSuccess, nil)
	return &LoginResult{
		UserID:       userID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	}, nil
}

// Refresh exchanges a refresh token for a fresh pair, rotating the family.
//
// Replay of an already-rotated token revokes the whole family and returns
// ErrTokenTheftDetected; an expired token returns ErrTokenExpired without
// cascading.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*token.Pair, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	presentedHash, err := token.HashRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	if err := e.limiter.CheckRefresh(ctx, presentedHash); err != nil {
		if errors.Is(err, limiters.ErrRateLimited) {
			e.emitAudit(ctx, "", auditActionRefreshRateLimit, "", OutcomeFailure, nil)
			return nil, ErrRefreshRateLimited
		}
		return nil, err
	}

	pair, err := e.tokens.Rotate(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, token.ErrReuseDetected) {
			e.emitAudit(ctx, "", auditActionTheftDetected, "", OutcomeIncident, nil)
			return nil, ErrTokenTheftDetected
		}
		e.emitAudit(ctx, "", auditActionRefresh, "", OutcomeFailure, nil)
		return nil, err
	}

	e.emitAudit(ctx, "", auditActionRefresh, "", OutcomeSuccess, nil)
	return pair, nil
}

// Logout revokes the refresh family of the presented token. Unknown tokens
// are a no-op; logout never fails because the client was already out.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	if err := e.tokens.Revoke(ctx, refreshToken); err != nil {
		return err
	}
	e.emitAudit(ctx, "", auditActionLogout, "", OutcomeSuccess, nil)
	return nil
}

// LogoutEverywhere revokes every refresh family and session owned by userID.
func (e *Engine) LogoutEverywhere(ctx context.Context, userID string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	if err := e.tokens.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	if err := e.sessions.RevokeAllForUser(ctx, userID, "logout_everywhere"); err != nil {
		return err
	}
	e.emitAudit(ctx, userID, auditActionLogout, "", OutcomeSuccess, map[string]string{
		"scope": "all",
	})
	return nil
}

// ChangePassword verifies the current password, applies the strength policy
// to the new one, rehashes, and revokes every refresh family and session so
// other devices must re-authenticate. A notification is enqueued.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if e == nil || e.hasher == nil {
		return ErrEngineNotReady
	}
	if userID == "" || oldPassword == "" || newPassword == "" {
		return ErrInvalidCredentials
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}

	if err := e.acquireHashSlot(ctx); err != nil {
		return err
	}
	ok, err := e.hasher.Verify(oldPassword, user.PasswordHash)
	e.releaseHashSlot()
	if err != nil || !ok {
		e.emitAudit(ctx, userID, auditActionPasswordChange, "", OutcomeFailure, map[string]string{
			"reason": "old_password_mismatch",
		})
		return ErrInvalidCredentials
	}

	if err := credential.ValidateStrength(newPassword); err != nil {
		return err
	}

	if err := e.acquireHashSlot(ctx); err != nil {
		return err
	}
	newHash, err := e.hasher.Hash(newPassword)
	e.releaseHashSlot()
	if err != nil {
		return err
	}

	if err := e.users.UpdatePasswordHash(ctx, userID, newHash); err != nil {
		return err
	}

	if err := e.tokens.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	if err := e.sessions.RevokeAllForUser(ctx, userID, "password_change"); err != nil {
		return err
	}

	e.enqueueNotification(userID, user.Email, NotifyPasswordChanged)
	e.emitAudit(ctx, userID, auditActionPasswordChange, "", OutcomeSuccess, nil)
	return nil
}

// verifyPassword resolves a username to its account and checks the password
// under the hash gate. When the stored hash predates the current Argon2
// parameters it is transparently upgraded.
func (e *Engine) verifyPassword(ctx context.Context, username, password string) (*identity.User, error) {
	user, err := e.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			// Burn a hash anyway so unknown usernames cost the same as
			// wrong passwords.
			if gateErr := e.acquireHashSlot(ctx); gateErr == nil {
				_, _ = e.hasher.Hash(password)
				e.releaseHashSlot()
			}
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := e.acquireHashSlot(ctx); err != nil {
		return nil, err
	}
	ok, err := e.hasher.Verify(password, user.PasswordHash)
	e.releaseHashSlot()
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	if rehash, err := e.hasher.NeedsRehash(user.PasswordHash); err == nil && rehash {
		if gateErr := e.acquireHashSlot(ctx); gateErr == nil {
			upgraded, hashErr := e.hasher.Hash(password)
			e.releaseHashSlot()
			if hashErr == nil {
				// Best effort; a failed upgrade must not block the login.
				_ = e.users.UpdatePasswordHash(ctx, user.ID, upgraded)
			}
		}
	}

	return user, nil
}
