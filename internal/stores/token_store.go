package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hexora/authcore/token"
)

// TokenStore is the GORM implementation of token.Store.
type TokenStore struct {
	db *gorm.DB
}

// NewTokenStore returns a refresh-token store over db.
func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{db: db}
}

// Create persists a new refresh token row.
func (s *TokenStore) Create(ctx context.Context, rec *token.RefreshToken) error {
	model := toRefreshModel(rec)
	return s.db.WithContext(ctx).Create(&model).Error
}

// Rotate runs the detect-and-revoke exchange in one transaction.
//
// The presented row is read under a FOR UPDATE lock so a concurrent rotation
// of the same token serializes behind this one and observes revoked=true.
func (s *TokenStore) Rotate(
	ctx context.Context,
	presentedHash string,
	next *token.RefreshToken,
) (*token.RefreshToken, error) {
	var (
		rotated *token.RefreshToken
		reused  bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old RefreshTokenModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("token_hash = ?", presentedHash).
			First(&old).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return token.ErrInvalid
		}
		if err != nil {
			return err
		}

		if old.Revoked {
			// Replay of an already-rotated token: the lineage is compromised.
			// The cascade has to commit, so the callback returns nil and the
			// sentinel is surfaced after the transaction closes.
			if err := tx.Model(&RefreshTokenModel{}).
				Where("family_id = ?", old.FamilyID).
				Update("revoked", true).Error; err != nil {
				return err
			}
			reused = true
			return nil
		}

		if time.Now().After(old.ExpiresAt) {
			return token.ErrExpired
		}

		if err := tx.Model(&RefreshTokenModel{}).
			Where("id = ?", old.ID).
			Update("revoked", true).Error; err != nil {
			return err
		}

		child := toRefreshModel(next)
		child.UserID = old.UserID
		child.FamilyID = old.FamilyID
		if err := tx.Create(&child).Error; err != nil {
			return err
		}

		rotated = fromRefreshModel(&old)
		next.UserID = old.UserID
		next.FamilyID = old.FamilyID
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reused {
		return nil, token.ErrReuseDetected
	}

	return rotated, nil
}

// RevokeFamily marks every row sharing familyID revoked.
func (s *TokenStore) RevokeFamily(ctx context.Context, familyID string) error {
	return s.db.WithContext(ctx).
		Model(&RefreshTokenModel{}).
		Where("family_id = ?", familyID).
		Update("revoked", true).Error
}

// RevokeFamilyByHash resolves tokenHash to its family and revokes the whole
// family. Unknown hashes are a no-op.
func (s *TokenStore) RevokeFamilyByHash(ctx context.Context, tokenHash string) error {
	var rec RefreshTokenModel
	err := s.db.WithContext(ctx).
		Where("token_hash = ?", tokenHash).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.RevokeFamily(ctx, rec.FamilyID)
}

// RevokeAllForUser marks every row owned by userID revoked.
func (s *TokenStore) RevokeAllForUser(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).
		Model(&RefreshTokenModel{}).
		Where("user_id = ?", userID).
		Update("revoked", true).Error
}

// DeleteExpiredBefore removes rows expired before cutoff and returns the count.
func (s *TokenStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&RefreshTokenModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("refresh token sweep: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func toRefreshModel(rec *token.RefreshToken) RefreshTokenModel {
	return RefreshTokenModel{
		ID:              rec.ID,
		UserID:          rec.UserID,
		TokenHash:       rec.TokenHash,
		FamilyID:        rec.FamilyID,
		ParentTokenHash: rec.ParentTokenHash,
		ExpiresAt:       rec.ExpiresAt,
		Revoked:         rec.Revoked,
	}
}

func fromRefreshModel(m *RefreshTokenModel) *token.RefreshToken {
	return &token.RefreshToken{
		ID:              m.ID,
		UserID:          m.UserID,
		TokenHash:       m.TokenHash,
		FamilyID:        m.FamilyID,
		ParentTokenHash: m.ParentTokenHash,
		ExpiresAt:       m.ExpiresAt,
		Revoked:         m.Revoked,
	}
}
