package authcore

import (
	"context"
	"errors"

	"github.com/hexora/authcore/identity"
	"github.com/hexora/authcore/mfa"
)

// InitiateMfaSetup starts TOTP enrollment for userID. The current password
// is required as proof of possession before any secret is generated.
//
// The returned provisioning material carries the base32 secret, the
// otpauth:// URI, and the one-time setup token ConfirmMfaSetup consumes.
func (e *Engine) InitiateMfaSetup(ctx context.Context, userID, password string) (*mfa.Provisioning, error) {
	if e == nil || e.mfa == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.requirePassword(ctx, userID, password)
	if err != nil {
		return nil, err
	}

	prov, err := e.mfa.InitiateSetup(ctx, userID, user.Username)
	if err != nil {
		e.emitAudit(ctx, userID, auditActionMfaSetup, "", OutcomeFailure, nil)
		return nil, err
	}

	e.emitAudit(ctx, userID, auditActionMfaSetup, "", OutcomeSuccess, map[string]string{
		"stage": "initiated",
	})
	return prov, nil
}

// ConfirmMfaSetup proves the authenticator was enrolled correctly and
// enables MFA. The plaintext backup codes are returned exactly once; only
// hashes persist.
func (e *Engine) ConfirmMfaSetup(ctx context.Context, setupToken, code string) ([]string, error) {
	if e == nil || e.mfa == nil {
		return nil, ErrEngineNotReady
	}

	userID, codes, err := e.mfa.ConfirmSetup(ctx, setupToken, code)
	if err != nil {
		e.emitAudit(ctx, "", auditActionMfaSetup, "", OutcomeFailure, map[string]string{
			"stage": "confirm",
		})
		return nil, err
	}

	if user, err := e.users.GetByID(ctx, userID); err == nil {
		e.enqueueNotification(userID, user.Email, NotifyMfaEnabled)
	}
	e.emitAudit(ctx, userID, auditActionMfaSetup, "", OutcomeSuccess, map[string]string{
		"stage": "confirmed",
	})
	return codes, nil
}

// DisableMfa turns MFA off. Both the current password and a current TOTP
// code are required; a backup code is not accepted here.
func (e *Engine) DisableMfa(ctx context.Context, userID, password, code string) error {
	if e == nil || e.mfa == nil {
		return ErrEngineNotReady
	}

	user, err := e.requirePassword(ctx, userID, password)
	if err != nil {
		return err
	}

	if err := e.mfa.Disable(ctx, userID, code); err != nil {
		e.emitAudit(ctx, userID, auditActionMfaDisable, "", OutcomeFailure, nil)
		return err
	}

	e.enqueueNotification(userID, user.Email, NotifyMfaDisabled)
	e.emitAudit(ctx, userID, auditActionMfaDisable, "", OutcomeSuccess, nil)
	return nil
}

// RegenerateBackupCodes replaces the backup code set. Both the current
// password and a current TOTP code are required. The old codes stop working
// in the same store operation that installs the new ones.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, password, code string) ([]string, error) {
	if e == nil || e.mfa == nil {
		return nil, ErrEngineNotReady
	}

	if _, err := e.requirePassword(ctx, userID, password); err != nil {
		return nil, err
	}

	codes, err := e.mfa.RegenerateBackupCodes(ctx, userID, code)
	if err != nil {
		e.emitAudit(ctx, userID, auditActionBackupCodes, "", OutcomeFailure, nil)
		return nil, err
	}

	e.emitAudit(ctx, userID, auditActionBackupCodes, "", OutcomeSuccess, nil)
	return codes, nil
}

// requirePassword checks the password proof attached to sensitive MFA
// operations. Lookup misses and mismatches are indistinguishable.
func (e *Engine) requirePassword(ctx context.Context, userID, password string) (*identity.User, error) {
	if password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
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
	return user, nil
}
