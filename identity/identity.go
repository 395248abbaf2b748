// Package identity defines the credential view of the external identity
// store. The full user domain (profiles, organizational units) is a
// collaborator outside this subsystem; authentication only reads and writes
// the fields below.
package identity

import (
	"context"
	"errors"
)

var (
	// ErrUserNotFound is an internal lookup miss. It must never surface to a
	// client distinguishably from a wrong password.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when registration collides with an existing
	// username or email.
	ErrUserExists = errors.New("user already exists")
)

// User is the credential view of an account.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	MfaEnabled   bool
}

// Store is the credential capability of the identity collaborator.
type Store interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}
