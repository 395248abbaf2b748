package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hexora/authcore/token"
)

var (
	// ErrInvalid is returned when a presented session cookie does not map to
	// a live, decryptable, inner-token-valid session. Callers see one
	// undifferentiated failure.
	ErrInvalid = errors.New("session invalid")
	// ErrCsrfMismatch is returned when a mutating request's CSRF header does
	// not match the session's stored token hash.
	ErrCsrfMismatch = errors.New("csrf token mismatch")
	// ErrNotFound is the store-level miss for session lookups.
	ErrNotFound = errors.New("session not found")
)

// Session is the persisted session row as the service sees it.
type Session struct {
	ID                   string
	SessionTokenHash     string
	UserID               string
	UserAgent            string
	IPAddress            string
	AccessTokenEncrypted []byte
	RefreshTokenID       string
	CreatedAt            time.Time
	ExpiresAt            time.Time
	LastActivityAt       time.Time
	IsRevoked            bool
	RevokedAt            *time.Time
	RevokedReason        string
	CsrfTokenHash        string
}

// Metadata captures the request context a session is created under.
type Metadata struct {
	UserAgent      string
	IPAddress      string
	RefreshTokenID string
}

// Store is the persistence capability the session service depends on.
//
// Touch must be monotonic: it may only move expires_at forward, never
// shorten a longer-lived session, while always updating last_activity_at.
type Store interface {
	Create(ctx context.Context, sess *Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	GetByID(ctx context.Context, id string) (*Session, error)
	Touch(ctx context.Context, id string, expiresAt, lastActivity time.Time) error
	Revoke(ctx context.Context, id, reason string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID, reason string, at time.Time) error
	DeleteDeadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	AbsoluteTTL   time.Duration
	SlidingWindow time.Duration
	KeyGrace      time.Duration
	CookieName    string
	CsrfCookie    string
	CsrfHeader    string
}

// Identity is the authenticated principal a resolved session yields.
type Identity struct {
	UserID      string
	SessionID   string
	AccessToken string
}

// Created is returned from session creation. Raw token values appear here
// exactly once; only hashes persist.
type Created struct {
	SessionID    string
	SessionToken string
	CsrfToken    string
	ExpiresAt    time.Time
}

// Service owns the session lifecycle: creation, resolution, sliding
// expiration, CSRF validation, revocation, and key rotation.
type Service struct {
	store   Store
	keyring *KeyRing
	tokens  *token.Manager
	config  Config
}

// NewService composes a session Service.
//
// NewService may return an error when input validation fails.
func NewService(store Store, keyStore KeyStore, tokens *token.Manager, cfg Config) (*Service, error) {
	if store == nil {
		return nil, errors.New("session store required")
	}
	if tokens == nil {
		return nil, errors.New("token manager required")
	}
	if cfg.AbsoluteTTL <= 0 || cfg.SlidingWindow <= 0 {
		return nil, errors.New("invalid session TTL configuration")
	}
	if cfg.KeyGrace <= 0 {
		return nil, errors.New("invalid key grace configuration")
	}
	if cfg.CookieName == "" || cfg.CsrfCookie == "" || cfg.CsrfHeader == "" {
		return nil, errors.New("cookie and header names required")
	}

	keyring, err := NewKeyRing(keyStore, cfg.KeyGrace)
	if err != nil {
		return nil, err
	}

	return &Service{
		store:   store,
		keyring: keyring,
		tokens:  tokens,
		config:  cfg,
	}, nil
}

// KeyRing exposes rotation and sweeping to maintenance callers.
func (s *Service) KeyRing() *KeyRing {
	return s.keyring
}

// Create opens a session for userID wrapping the given access token.
//
// The access token is sealed under the active encryption key; session and
// CSRF secrets are high-entropy values persisted only as hashes.
func (s *Service) Create(ctx context.Context, userID, accessToken string, meta Metadata) (*Created, error) {
	sessionRaw, sessionHash, err := newSecret()
	if err != nil {
		return nil, err
	}
	csrfRaw, csrfHash, err := newSecret()
	if err != nil {
		return nil, err
	}

	key, err := s.keyring.Active(ctx, KeyTypeEncryption)
	if err != nil {
		return nil, err
	}
	sealed, err := seal(key, []byte(accessToken))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &Session{
		ID:                   uuid.NewString(),
		SessionTokenHash:     sessionHash,
		UserID:               userID,
		UserAgent:            meta.UserAgent,
		IPAddress:            meta.IPAddress,
		AccessTokenEncrypted: sealed,
		RefreshTokenID:       meta.RefreshTokenID,
		CreatedAt:            now,
		ExpiresAt:            now.Add(s.config.AbsoluteTTL),
		LastActivityAt:       now,
		CsrfTokenHash:        csrfHash,
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, err
	}

	return &Created{
		SessionID:    sess.ID,
		SessionToken: sessionRaw,
		CsrfToken:    csrfRaw,
		ExpiresAt:    sess.ExpiresAt,
	}, nil
}

// Resolve authenticates a presented session cookie value.
//
// The stored access token is decrypted under the key recorded in its
// envelope (active or retired-in-grace) and then re-verified as a signed
// token; a session row that outlives its embedded credential does not grant
// access. Every failure surfaces as ErrInvalid.
func (s *Service) Resolve(ctx context.Context, cookieValue string) (*Identity, error) {
	tokenHash, err := hashSecret(cookieValue)
	if err != nil {
		return nil, ErrInvalid
	}

	sess, err := s.store.GetByTokenHash(ctx, tokenHash)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalid
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if sess.IsRevoked || now.After(sess.ExpiresAt) {
		return nil, ErrInvalid
	}

	kid, err := openKeyID(sess.AccessTokenEncrypted)
	if err != nil {
		return nil, ErrInvalid
	}
	key, err := s.keyring.Resolve(ctx, kid)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) || errors.Is(err, ErrKeyRetired) {
			return nil, ErrInvalid
		}
		return nil, err
	}
	accessToken, err := open(key, sess.AccessTokenEncrypted)
	if err != nil {
		return nil, ErrInvalid
	}

	claims, err := s.tokens.Parse(string(accessToken), token.TypeAccess)
	if err != nil {
		return nil, ErrInvalid
	}
	if claims.UID != sess.UserID {
		return nil, ErrInvalid
	}

	if err := s.Touch(ctx, sess.ID, s.config.SlidingWindow); err != nil {
		return nil, err
	}

	return &Identity{
		UserID:      sess.UserID,
		SessionID:   sess.ID,
		AccessToken: string(accessToken),
	}, nil
}

// Touch extends the session's expiry to now+extend if that is later than
// the current value, and records activity. Never shortens a session.
func (s *Service) Touch(ctx context.Context, sessionID string, extend time.Duration) error {
	now := time.Now()
	return s.store.Touch(ctx, sessionID, now.Add(extend), now)
}

// ValidateCSRF compares the echoed header value against the session's
// stored CSRF token hash in constant time.
func (s *Service) ValidateCSRF(ctx context.Context, sessionID, headerValue string) error {
	if headerValue == "" {
		return ErrCsrfMismatch
	}
	presented, err := hashSecret(headerValue)
	if err != nil {
		return ErrCsrfMismatch
	}

	sess, err := s.store.GetByID(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return ErrCsrfMismatch
	}
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare([]byte(presented), []byte(sess.CsrfTokenHash)) != 1 {
		return ErrCsrfMismatch
	}
	return nil
}

// Revoke ends one session.
func (s *Service) Revoke(ctx context.Context, sessionID, reason string) error {
	return s.store.Revoke(ctx, sessionID, reason, time.Now())
}

// RevokeByToken ends the session behind a presented cookie value and returns
// the row it revoked. Unlike Resolve it never touches the sliding window, so
// ending a session cannot extend it. Garbage and unknown values surface as
// ErrInvalid; an already-revoked session is returned as is.
func (s *Service) RevokeByToken(ctx context.Context, cookieValue, reason string) (*Session, error) {
	tokenHash, err := hashSecret(cookieValue)
	if err != nil {
		return nil, ErrInvalid
	}

	sess, err := s.store.GetByTokenHash(ctx, tokenHash)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalid
	}
	if err != nil {
		return nil, err
	}
	if sess.IsRevoked {
		return sess, nil
	}

	if err := s.store.Revoke(ctx, sess.ID, reason, time.Now()); err != nil {
		return nil, err
	}
	sess.IsRevoked = true
	return sess, nil
}

// RevokeAllForUser ends every session owned by userID. Used on logout
// everywhere, password change, and administrative action.
func (s *Service) RevokeAllForUser(ctx context.Context, userID, reason string) error {
	return s.store.RevokeAllForUser(ctx, userID, reason, time.Now())
}

// RotateKey rotates the active key of typ. Sessions sealed under the old
// key keep resolving until the grace deadline passes.
func (s *Service) RotateKey(ctx context.Context, typ KeyType) error {
	_, err := s.keyring.RotateKey(ctx, typ)
	return err
}

// Sweep purges expired/revoked sessions and retired keys past grace.
// Called by the background maintenance loop.
func (s *Service) Sweep(ctx context.Context) (sessions, keys int64, err error) {
	sessions, err = s.store.DeleteDeadBefore(ctx, time.Now())
	if err != nil {
		return 0, 0, err
	}
	keys, err = s.keyring.SweepKeys(ctx)
	if err != nil {
		return sessions, 0, err
	}
	return sessions, keys, nil
}

func newSecret() (raw string, hash string, err error) {
	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", "", err
	}
	sum := sha256.Sum256(secret[:])
	return base64.RawURLEncoding.EncodeToString(secret[:]), hex.EncodeToString(sum[:]), nil
}

func hashSecret(raw string) (string, error) {
	secret, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return "", err
	}
	if len(secret) != 32 {
		return "", errors.New("invalid secret size")
	}
	sum := sha256.Sum256(secret)
	return hex.EncodeToString(sum[:]), nil
}
