package stores

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/hexora/authcore/session"
)

// SessionStore is the GORM implementation of session.Store.
type SessionStore struct {
	db *gorm.DB
}

// NewSessionStore returns a session store over db.
func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Create persists a new session row.
func (s *SessionStore) Create(ctx context.Context, sess *session.Session) error {
	model := toSessionModel(sess)
	return s.db.WithContext(ctx).Create(&model).Error
}

// GetByTokenHash resolves a session token hash to its row.
func (s *SessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*session.Session, error) {
	var row SessionModel
	err := s.db.WithContext(ctx).First(&row, "session_token_hash = ?", tokenHash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromSessionModel(&row), nil
}

// GetByID resolves a session id to its row.
func (s *SessionStore) GetByID(ctx context.Context, id string) (*session.Session, error) {
	var row SessionModel
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromSessionModel(&row), nil
}

// Touch advances expires_at monotonically and records activity in a single
// statement, so a row never carries the activity update without the
// extension decision. The CASE keeps the monotonic guarantee without a read
// lock and works on both dialects.
func (s *SessionStore) Touch(ctx context.Context, id string, expiresAt, lastActivity time.Time) error {
	return s.db.WithContext(ctx).
		Model(&SessionModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"expires_at":       gorm.Expr("CASE WHEN expires_at < ? THEN ? ELSE expires_at END", expiresAt, expiresAt),
			"last_activity_at": lastActivity,
		}).Error
}

// Revoke marks one session revoked with its reason.
func (s *SessionStore) Revoke(ctx context.Context, id, reason string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&SessionModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_revoked":     true,
			"revoked_at":     at,
			"revoked_reason": reason,
		}).Error
}

// RevokeAllForUser marks every live session of userID revoked.
func (s *SessionStore) RevokeAllForUser(ctx context.Context, userID, reason string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&SessionModel{}).
		Where("user_id = ? AND is_revoked = ?", userID, false).
		Updates(map[string]interface{}{
			"is_revoked":     true,
			"revoked_at":     at,
			"revoked_reason": reason,
		}).Error
}

// DeleteDeadBefore removes expired and revoked rows in one batch.
func (s *SessionStore) DeleteDeadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ? OR is_revoked = ?", cutoff, true).
		Delete(&SessionModel{})
	return res.RowsAffected, res.Error
}

func toSessionModel(sess *session.Session) SessionModel {
	return SessionModel{
		ID:                   sess.ID,
		SessionTokenHash:     sess.SessionTokenHash,
		UserID:               sess.UserID,
		UserAgent:            sess.UserAgent,
		IPAddress:            sess.IPAddress,
		AccessTokenEncrypted: sess.AccessTokenEncrypted,
		RefreshTokenID:       sess.RefreshTokenID,
		CreatedAt:            sess.CreatedAt,
		ExpiresAt:            sess.ExpiresAt,
		LastActivityAt:       sess.LastActivityAt,
		IsRevoked:            sess.IsRevoked,
		RevokedAt:            sess.RevokedAt,
		RevokedReason:        sess.RevokedReason,
		CsrfTokenHash:        sess.CsrfTokenHash,
	}
}

func fromSessionModel(m *SessionModel) *session.Session {
	return &session.Session{
		ID:                   m.ID,
		SessionTokenHash:     m.SessionTokenHash,
		UserID:               m.UserID,
		UserAgent:            m.UserAgent,
		IPAddress:            m.IPAddress,
		AccessTokenEncrypted: m.AccessTokenEncrypted,
		RefreshTokenID:       m.RefreshTokenID,
		CreatedAt:            m.CreatedAt,
		ExpiresAt:            m.ExpiresAt,
		LastActivityAt:       m.LastActivityAt,
		IsRevoked:            m.IsRevoked,
		RevokedAt:            m.RevokedAt,
		RevokedReason:        m.RevokedReason,
		CsrfTokenHash:        m.CsrfTokenHash,
	}
}
