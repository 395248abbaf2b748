package stores

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/hexora/authcore/session"
)

// KeyStore is the GORM implementation of session.KeyStore.
type KeyStore struct {
	db *gorm.DB
}

// NewKeyStore returns a session key store over db.
func NewKeyStore(db *gorm.DB) *KeyStore {
	return &KeyStore{db: db}
}

// ActiveKey returns the single active key of typ.
func (s *KeyStore) ActiveKey(ctx context.Context, typ session.KeyType) (*session.Key, error) {
	var row SessionKeyModel
	err := s.db.WithContext(ctx).
		Where("key_type = ? AND is_active = ?", string(typ), true).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, session.ErrNoActiveKey
	}
	if err != nil {
		return nil, err
	}
	return fromKeyModel(&row), nil
}

// KeyByID resolves a key id whether active or retired.
func (s *KeyStore) KeyByID(ctx context.Context, keyID string) (*session.Key, error) {
	var row SessionKeyModel
	err := s.db.WithContext(ctx).First(&row, "key_id = ?", keyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, session.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromKeyModel(&row), nil
}

// Create inserts a key row. An active row of a type that already has an
// active key violates the active_type unique index and fails.
func (s *KeyStore) Create(ctx context.Context, key *session.Key) error {
	model := toKeyModel(key)
	return s.db.WithContext(ctx).Create(&model).Error
}

// MintIfAbsent installs candidate as the active key of its type unless one
// already exists, in which case the existing key wins. A concurrent double
// mint loses the insert to the active_type unique index and resolves to the
// winner's row.
func (s *KeyStore) MintIfAbsent(ctx context.Context, candidate *session.Key) (*session.Key, error) {
	existing, err := s.ActiveKey(ctx, candidate.Type)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, session.ErrNoActiveKey) {
		return nil, err
	}

	model := toKeyModel(candidate)
	err = s.db.WithContext(ctx).Create(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return s.ActiveKey(ctx, candidate.Type)
	}
	if err != nil {
		return nil, err
	}
	return candidate, nil
}

// Rotate deactivates the active key of next's type (stamping its grace
// deadline) and inserts next as active, in one transaction. Readers never
// observe zero or two active keys.
func (s *KeyStore) Rotate(ctx context.Context, next *session.Key, graceDeadline time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&SessionKeyModel{}).
			Where("key_type = ? AND is_active = ?", string(next.Type), true).
			Updates(map[string]interface{}{
				"is_active":   false,
				"active_type": nil,
				"expires_at":  graceDeadline,
			}).Error; err != nil {
			return err
		}

		model := toKeyModel(next)
		return tx.Create(&model).Error
	})
}

// DeleteRetiredBefore purges inactive keys whose grace deadline passed.
func (s *KeyStore) DeleteRetiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at < ?", false, cutoff).
		Delete(&SessionKeyModel{})
	return res.RowsAffected, res.Error
}

func toKeyModel(key *session.Key) SessionKeyModel {
	model := SessionKeyModel{
		ID:          key.ID,
		KeyID:       key.KeyID,
		KeyMaterial: key.Material,
		KeyType:     string(key.Type),
		CreatedAt:   key.CreatedAt,
		ExpiresAt:   key.ExpiresAt,
		IsActive:    key.Active,
	}
	if key.Active {
		typ := string(key.Type)
		model.ActiveType = &typ
	}
	return model
}

func fromKeyModel(m *SessionKeyModel) *session.Key {
	return &session.Key{
		ID:        m.ID,
		KeyID:     m.KeyID,
		Material:  m.KeyMaterial,
		Type:      session.KeyType(m.KeyType),
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
		Active:    m.IsActive,
	}
}
