package token

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence capability the token service depends on.
//
// Rotate must execute its lookup/revoke/insert sequence inside a single
// transaction with row-level locking so two concurrent rotations of the same
// token serialize: the second must observe the revocation written by the
// first. On encountering an already-revoked row, implementations revoke the
// entire family within the same transaction and return ErrReuseDetected; an
// expired row returns ErrExpired without cascading; a missing row returns
// ErrInvalid.
//
// The next record passed to Rotate carries only its own hash, parent hash,
// and expiry; the implementation copies UserID and FamilyID from the row it
// revokes, inside the same transaction.
type Store interface {
	Create(ctx context.Context, rec *RefreshToken) error
	Rotate(ctx context.Context, presentedHash string, next *RefreshToken) (*RefreshToken, error)
	RevokeFamily(ctx context.Context, familyID string) error
	RevokeFamilyByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ServiceConfig defines a public type used by authcore APIs.
type ServiceConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Pair is one freshly issued access/refresh token pair. The refresh value is
// raw and must be delivered to the client immediately; it is not recoverable.
// RefreshID is the persisted row id, used to link sessions to the refresh
// token they were opened with.
type Pair struct {
	AccessToken  string
	RefreshToken string
	RefreshID    string
	ExpiresAt    time.Time
}

// Service issues access tokens and manages refresh token families.
//
// Service instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Service struct {
	manager *Manager
	store   Store
	config  ServiceConfig
}

// NewService composes a token Service from its manager, store, and config.
//
// NewService may return an error when input validation fails.
func NewService(manager *Manager, store Store, cfg ServiceConfig) (*Service, error) {
	if manager == nil {
		return nil, errors.New("token manager required")
	}
	if store == nil {
		return nil, errors.New("token store required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh TTL must exceed access TTL")
	}

	return &Service{manager: manager, store: store, config: cfg}, nil
}

// Manager exposes the signed-token manager for collaborators that only
// verify (middleware, session resolution).
func (s *Service) Manager() *Manager {
	return s.manager
}

// Issue mints a new token pair for userID, starting a fresh refresh family.
//
// Issue may return an error when randomness, signing, or persistence fails.
func (s *Service) Issue(ctx context.Context, userID string) (*Pair, error) {
	raw, hash, err := NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	rec := &RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: hash,
		FamilyID:  uuid.NewString(),
		ExpiresAt: time.Now().Add(s.config.RefreshTTL),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	access, err := s.manager.Issue(userID, TypeAccess, s.config.AccessTTL)
	if err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:  access,
		RefreshToken: raw,
		RefreshID:    rec.ID,
		ExpiresAt:    rec.ExpiresAt,
	}, nil
}

// Rotate exchanges a presented raw refresh token for a fresh pair.
//
// A replayed (already-rotated) token revokes its whole family and returns
// ErrReuseDetected; a merely expired token returns ErrExpired without
// cascading; an unknown token returns ErrInvalid.
func (s *Service) Rotate(ctx context.Context, presentedRaw string) (*Pair, error) {
	presentedHash, err := HashRefreshToken(presentedRaw)
	if err != nil {
		return nil, err
	}

	nextRaw, nextHash, err := NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	next := &RefreshToken{
		ID:              uuid.NewString(),
		TokenHash:       nextHash,
		ParentTokenHash: presentedHash,
		ExpiresAt:       time.Now().Add(s.config.RefreshTTL),
	}

	old, err := s.store.Rotate(ctx, presentedHash, next)
	if err != nil {
		return nil, err
	}

	access, err := s.manager.Issue(old.UserID, TypeAccess, s.config.AccessTTL)
	if err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:  access,
		RefreshToken: nextRaw,
		RefreshID:    next.ID,
		ExpiresAt:    next.ExpiresAt,
	}, nil
}

// Revoke invalidates the family of the presented raw token. Used on logout.
//
// Revoke is a no-op for tokens that do not resolve to a live row.
func (s *Service) Revoke(ctx context.Context, presentedRaw string) error {
	presentedHash, err := HashRefreshToken(presentedRaw)
	if err != nil {
		return err
	}
	return s.store.RevokeFamilyByHash(ctx, presentedHash)
}

// RevokeFamily invalidates every token sharing familyID.
func (s *Service) RevokeFamily(ctx context.Context, familyID string) error {
	return s.store.RevokeFamily(ctx, familyID)
}

// RevokeAllForUser invalidates every refresh family owned by userID. Used on
// password reset and explicit security actions.
func (s *Service) RevokeAllForUser(ctx context.Context, userID string) error {
	return s.store.RevokeAllForUser(ctx, userID)
}

// DeleteExpired purges refresh tokens whose expiry has passed. Called by the
// background maintenance loop.
func (s *Service) DeleteExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredBefore(ctx, time.Now())
}
