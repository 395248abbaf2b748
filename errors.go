package authcore

import (
	"errors"

	"github.com/hexora/authcore/mfa"
	"github.com/hexora/authcore/session"
	"github.com/hexora/authcore/token"
)

// The client-facing error taxonomy. Every entry maps to a generic 401/403
// on the wire; the distinctions exist for server-side logs and audit events
// only. None of these reveal whether a username exists, how close a token
// came to matching, or which half of an MFA check failed.
var (
	// ErrInvalidCredentials covers both unknown username and wrong password,
	// indistinguishably.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenInvalid is an alias for the token package sentinel.
	ErrTokenInvalid = token.ErrInvalid
	// ErrTokenExpired is an alias for the token package sentinel.
	ErrTokenExpired = token.ErrExpired
	// ErrTokenTheftDetected is returned when an already-rotated refresh
	// token is replayed. The whole family has been revoked; log as a
	// security incident.
	ErrTokenTheftDetected = token.ErrReuseDetected
	// ErrInvalidMfaCode is an alias for the mfa package sentinel.
	ErrInvalidMfaCode = mfa.ErrInvalidCode
	// ErrCsrfMismatch is an alias for the session package sentinel.
	ErrCsrfMismatch = session.ErrCsrfMismatch
	// ErrForbidden is the RBAC deny.
	ErrForbidden = errors.New("forbidden")
	// ErrCryptoFailure is an alias for the session package sentinel. Always
	// a hard auth failure, never retryable.
	ErrCryptoFailure = session.ErrCryptoFailure

	// ErrEngineNotReady is returned from operations on a nil or unbuilt
	// engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrUserExists is returned when registration collides with an existing
	// username or email.
	ErrUserExists = errors.New("account already exists")
	// ErrMfaRequired signals that a password login needs a second factor;
	// the accompanying challenge token drives VerifyMfaLogin.
	ErrMfaRequired = errors.New("mfa verification required")
	// ErrLoginRateLimited is returned when the login budget is exhausted.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrMfaRateLimited is returned when the MFA verification budget is
	// exhausted.
	ErrMfaRateLimited = errors.New("mfa verification rate limited")
	// ErrRefreshRateLimited is returned when the refresh budget is
	// exhausted.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrSessionInvalid is returned when a session cookie does not resolve
	// to a live session.
	ErrSessionInvalid = session.ErrInvalid
)
