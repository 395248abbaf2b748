package stores

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/hexora/authcore/identity"
)

// UserStore is the GORM implementation of the credential view of the
// identity store. The wider user domain (profile, org units) lives outside
// this subsystem.
type UserStore struct {
	db *gorm.DB
}

// NewUserStore returns a user credential store over db.
func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// GetByUsername resolves a login name.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*identity.User, error) {
	var row UserModel
	err := s.db.WithContext(ctx).First(&row, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, identity.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromUserModel(&row), nil
}

// GetByID resolves a user id.
func (s *UserStore) GetByID(ctx context.Context, id string) (*identity.User, error) {
	var row UserModel
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, identity.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromUserModel(&row), nil
}

// Create inserts a new user credential row. A username or email collision
// surfaces as identity.ErrUserExists.
func (s *UserStore) Create(ctx context.Context, user *identity.User) error {
	err := s.db.WithContext(ctx).Create(&UserModel{
		ID:           user.ID,
		Username:     user.Username,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
	}).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return identity.ErrUserExists
	}
	return err
}

// UpdatePasswordHash swaps the stored hash.
func (s *UserStore) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return s.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("id = ?", userID).
		Update("password_hash", hash).Error
}

func fromUserModel(m *UserModel) *identity.User {
	return &identity.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		MfaEnabled:   m.MfaEnabled,
	}
}
