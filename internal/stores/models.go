package stores

import (
	"time"

	"gorm.io/gorm"
)

// UserModel is the credential view of a user. The wider user record (names,
// org units, contact data) belongs to the identity domain and is out of
// scope here.
type UserModel struct {
	ID             string `gorm:"primaryKey;size:36"`
	Username       string `gorm:"uniqueIndex;size:128;not null"`
	Email          string `gorm:"uniqueIndex;size:256;not null"`
	PasswordHash   string `gorm:"size:512;not null"`
	MfaEnabled     bool   `gorm:"not null;default:false"`
	MfaSecret      []byte
	MfaBackupCodes string `gorm:"type:text"` // JSON array of code hashes
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (UserModel) TableName() string { return "users" }

// RefreshTokenModel persists one link of a rotation chain. The raw token
// value is never stored; token_hash is a SHA-256 hex digest.
type RefreshTokenModel struct {
	ID              string `gorm:"primaryKey;size:36"`
	UserID          string `gorm:"index;size:36;not null"`
	TokenHash       string `gorm:"uniqueIndex;size:64;not null"`
	FamilyID        string `gorm:"index;size:36;not null"`
	ParentTokenHash string `gorm:"size:64"`
	ExpiresAt       time.Time `gorm:"index;not null"`
	Revoked         bool      `gorm:"not null;default:false"`
	CreatedAt       time.Time
}

func (RefreshTokenModel) TableName() string { return "refresh_tokens" }

// SessionModel persists a cookie-backed session. The embedded access token
// is sealed with the active encryption key; session and CSRF tokens are
// stored only as hashes.
type SessionModel struct {
	ID                   string `gorm:"primaryKey;size:36"`
	SessionTokenHash     string `gorm:"uniqueIndex;size:64;not null"`
	UserID               string `gorm:"index;size:36;not null"`
	UserAgent            string `gorm:"size:512"`
	IPAddress            string `gorm:"size:64"`
	AccessTokenEncrypted []byte `gorm:"not null"`
	RefreshTokenID       string `gorm:"size:36"`
	CreatedAt            time.Time
	ExpiresAt            time.Time `gorm:"index;not null"`
	LastActivityAt       time.Time `gorm:"not null"`
	IsRevoked            bool      `gorm:"not null;default:false"`
	RevokedAt            *time.Time
	RevokedReason        string `gorm:"size:128"`
	CsrfTokenHash        string `gorm:"size:64;not null"`
}

func (SessionModel) TableName() string { return "sessions" }

// SessionKeyModel persists symmetric key material for session sealing and
// signing. At most one row per key_type is active; retired rows stay
// resolvable by key_id until their grace expiry.
//
// ActiveType mirrors KeyType while the row is active and is NULL once the
// row retires. Its unique index is what enforces the one-active-key-per-type
// rule against concurrent writers.
type SessionKeyModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	KeyID       string `gorm:"uniqueIndex;size:36;not null"`
	KeyMaterial []byte `gorm:"not null"`
	KeyType     string `gorm:"index;size:16;not null"`
	CreatedAt   time.Time
	ExpiresAt   *time.Time `gorm:"index"`
	IsActive    bool       `gorm:"index;not null;default:false"`
	ActiveType  *string    `gorm:"uniqueIndex;size:16"`
}

func (SessionKeyModel) TableName() string { return "session_keys" }

// MfaSetupTokenModel holds a pending TOTP secret between setup initiation
// and confirmation. Rows are short-lived and deleted on confirmation.
type MfaSetupTokenModel struct {
	ID        string `gorm:"primaryKey;size:36"`
	TokenHash string `gorm:"uniqueIndex;size:64;not null"`
	UserID    string `gorm:"index;size:36;not null"`
	Secret    []byte `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}

func (MfaSetupTokenModel) TableName() string { return "mfa_setup_tokens" }

// PolicyRuleModel is one (subject, object, action) permission triple.
type PolicyRuleModel struct {
	ID      uint   `gorm:"primaryKey"`
	Subject string `gorm:"uniqueIndex:idx_policy_triple;size:128;not null"`
	Object  string `gorm:"uniqueIndex:idx_policy_triple;size:128;not null"`
	Action  string `gorm:"uniqueIndex:idx_policy_triple;size:64;not null"`
}

func (PolicyRuleModel) TableName() string { return "policy_rules" }

// GroupingRuleModel is one subject→role membership edge.
type GroupingRuleModel struct {
	ID      uint   `gorm:"primaryKey"`
	Subject string `gorm:"uniqueIndex:idx_grouping_edge;size:128;not null"`
	Role    string `gorm:"uniqueIndex:idx_grouping_edge;size:128;not null"`
}

func (GroupingRuleModel) TableName() string { return "policy_groupings" }

// AutoMigrate creates or updates every table this subsystem owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&RefreshTokenModel{},
		&SessionModel{},
		&SessionKeyModel{},
		&MfaSetupTokenModel{},
		&PolicyRuleModel{},
		&GroupingRuleModel{},
	)
}
