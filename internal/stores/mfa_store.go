package stores

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hexora/authcore/mfa"
)

// MfaStore is the GORM implementation of mfa.Store. User-side MFA state
// lives on the users table; pending setup secrets live in mfa_setup_tokens.
type MfaStore struct {
	db *gorm.DB
}

// NewMfaStore returns an MFA store over db.
func NewMfaStore(db *gorm.DB) *MfaStore {
	return &MfaStore{db: db}
}

// UserState loads the MFA view of a user.
func (s *MfaStore) UserState(ctx context.Context, userID string) (*mfa.UserState, error) {
	var user UserModel
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}

	hashes, err := decodeBackupCodes(user.MfaBackupCodes)
	if err != nil {
		return nil, err
	}

	return &mfa.UserState{
		Enabled:          user.MfaEnabled,
		Secret:           user.MfaSecret,
		BackupCodeHashes: hashes,
	}, nil
}

// Enable attaches the confirmed secret and backup code hashes to the user.
func (s *MfaStore) Enable(ctx context.Context, userID string, secret []byte, backupHashes []string) error {
	encoded, err := encodeBackupCodes(backupHashes)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"mfa_enabled":      true,
			"mfa_secret":       secret,
			"mfa_backup_codes": encoded,
		}).Error
}

// Disable clears the secret and backup codes.
func (s *MfaStore) Disable(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"mfa_enabled":      false,
			"mfa_secret":       nil,
			"mfa_backup_codes": "",
		}).Error
}

// ReplaceBackupCodes atomically swaps the whole backup code set.
func (s *MfaStore) ReplaceBackupCodes(ctx context.Context, userID string, backupHashes []string) error {
	encoded, err := encodeBackupCodes(backupHashes)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("id = ?", userID).
		Update("mfa_backup_codes", encoded).Error
}

// ConsumeBackupCode removes codeHash from the user's set if present. The
// read-modify-write runs under a row lock so the same code cannot be
// consumed twice by concurrent logins.
func (s *MfaStore) ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error) {
	var consumed bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user UserModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&user, "id = ?", userID).Error; err != nil {
			return err
		}

		hashes, err := decodeBackupCodes(user.MfaBackupCodes)
		if err != nil {
			return err
		}

		remaining := make([]string, 0, len(hashes))
		for _, h := range hashes {
			if h == codeHash && !consumed {
				consumed = true
				continue
			}
			remaining = append(remaining, h)
		}
		if !consumed {
			return nil
		}

		encoded, err := encodeBackupCodes(remaining)
		if err != nil {
			return err
		}
		return tx.Model(&UserModel{}).
			Where("id = ?", userID).
			Update("mfa_backup_codes", encoded).Error
	})
	if err != nil {
		return false, err
	}

	return consumed, nil
}

// CreateSetupToken persists a pending setup secret.
func (s *MfaStore) CreateSetupToken(ctx context.Context, st *mfa.SetupToken) error {
	return s.db.WithContext(ctx).Create(&MfaSetupTokenModel{
		ID:        st.ID,
		TokenHash: st.TokenHash,
		UserID:    st.UserID,
		Secret:    st.Secret,
		ExpiresAt: st.ExpiresAt,
	}).Error
}

// GetSetupToken resolves tokenHash to a live setup token. Missing and
// expired rows both surface as mfa.ErrSetupTokenInvalid; expired rows are
// deleted on observation.
func (s *MfaStore) GetSetupToken(ctx context.Context, tokenHash string) (*mfa.SetupToken, error) {
	var row MfaSetupTokenModel
	err := s.db.WithContext(ctx).First(&row, "token_hash = ?", tokenHash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, mfa.ErrSetupTokenInvalid
	}
	if err != nil {
		return nil, err
	}

	if time.Now().After(row.ExpiresAt) {
		_ = s.db.WithContext(ctx).Delete(&MfaSetupTokenModel{}, "id = ?", row.ID).Error
		return nil, mfa.ErrSetupTokenInvalid
	}

	return &mfa.SetupToken{
		ID:        row.ID,
		TokenHash: row.TokenHash,
		UserID:    row.UserID,
		Secret:    row.Secret,
		ExpiresAt: row.ExpiresAt,
	}, nil
}

// DeleteSetupToken removes a consumed setup token. Idempotent.
func (s *MfaStore) DeleteSetupToken(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&MfaSetupTokenModel{}, "id = ?", id).Error
}

// DeleteExpiredSetupTokens removes rows expired before cutoff.
func (s *MfaStore) DeleteExpiredSetupTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&MfaSetupTokenModel{})
	return res.RowsAffected, res.Error
}

func encodeBackupCodes(hashes []string) (string, error) {
	if len(hashes) == 0 {
		return "", nil
	}
	data, err := json.Marshal(hashes)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeBackupCodes(encoded string) ([]string, error) {
	if encoded == "" {
		return nil, nil
	}
	var hashes []string
	if err := json.Unmarshal([]byte(encoded), &hashes); err != nil {
		return nil, err
	}
	return hashes, nil
}
