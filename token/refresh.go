package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

const refreshSecretSize = 32

// NewRefreshSecret returns the raw refresh token value and its storage hash.
// The raw value is returned exactly once; only the hash is ever persisted.
func NewRefreshSecret() (raw string, hash string, err error) {
	var secret [refreshSecretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", "", err
	}
	return base64.RawURLEncoding.EncodeToString(secret[:]), hashSecret(secret[:]), nil
}

// HashRefreshToken maps a presented raw token to its storage hash. Returns
// ErrInvalid for values that cannot be a token we issued.
func HashRefreshToken(raw string) (string, error) {
	secret, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("%w: malformed refresh token", ErrInvalid)
	}
	if len(secret) != refreshSecretSize {
		return "", fmt.Errorf("%w: invalid refresh token size", ErrInvalid)
	}
	return hashSecret(secret), nil
}

func hashSecret(secret []byte) string {
	sum := sha256.Sum256(secret)
	return hex.EncodeToString(sum[:])
}

// RefreshToken is the persisted view of one link in a rotation chain. The raw
// token value never appears here.
type RefreshToken struct {
	ID              string
	UserID          string
	TokenHash       string
	FamilyID        string
	ParentTokenHash string
	ExpiresAt       time.Time
	Revoked         bool
}
