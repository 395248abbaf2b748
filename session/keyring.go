package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeyType distinguishes the two symmetric key roles.
type KeyType string

const (
	// KeyTypeSigning keys authenticate values the subsystem hands to
	// clients outside an AEAD envelope.
	KeyTypeSigning KeyType = "signing"
	// KeyTypeEncryption keys seal access tokens into session rows.
	KeyTypeEncryption KeyType = "encryption"
)

var (
	// ErrNoActiveKey is returned when no active key of the requested type
	// exists.
	ErrNoActiveKey = errors.New("no active session key")
	// ErrKeyNotFound is returned for unknown or purged key ids.
	ErrKeyNotFound = errors.New("session key not found")
	// ErrKeyRetired is returned for keys past their rotation grace window.
	ErrKeyRetired = errors.New("session key retired")
)

// Key is one symmetric key with its rotation metadata.
type Key struct {
	ID        string
	KeyID     string
	Material  []byte
	Type      KeyType
	CreatedAt time.Time
	ExpiresAt *time.Time // nil while active; grace deadline once retired
	Active    bool
}

// KeyStore is the persistence capability the key ring depends on.
//
// Rotate must deactivate the current active key of the new key's type
// (stamping its grace deadline) and insert the new key as active within a
// single transaction, so no reader ever observes zero or two active keys.
//
// MintIfAbsent must install candidate as the active key of its type only if
// none exists, and otherwise return the existing active key. Concurrent
// first-boot mints of the same type must converge on a single winner.
type KeyStore interface {
	ActiveKey(ctx context.Context, typ KeyType) (*Key, error)
	KeyByID(ctx context.Context, keyID string) (*Key, error)
	MintIfAbsent(ctx context.Context, candidate *Key) (*Key, error)
	Rotate(ctx context.Context, next *Key, graceDeadline time.Time) error
	DeleteRetiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// KeyRing manages active and retired session keys.
//
// KeyRing instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type KeyRing struct {
	store KeyStore
	grace time.Duration
}

// NewKeyRing returns a key ring whose retired keys stay resolvable for
// grace after rotation.
func NewKeyRing(store KeyStore, grace time.Duration) (*KeyRing, error) {
	if store == nil {
		return nil, errors.New("key store required")
	}
	if grace <= 0 {
		return nil, errors.New("key grace period must be positive")
	}
	return &KeyRing{store: store, grace: grace}, nil
}

// Active returns the active key of the given type, minting one if the store
// has none yet (first boot).
func (r *KeyRing) Active(ctx context.Context, typ KeyType) (*Key, error) {
	key, err := r.store.ActiveKey(ctx, typ)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrNoActiveKey) {
		return nil, err
	}

	fresh, err := newKey(typ)
	if err != nil {
		return nil, err
	}
	// A racing mint may already have installed a key of this type; the
	// store resolves both callers to the one that won.
	return r.store.MintIfAbsent(ctx, fresh)
}

// Resolve returns the key for keyID whether active or retired-in-grace.
// Keys past their grace deadline return ErrKeyRetired.
func (r *KeyRing) Resolve(ctx context.Context, keyID string) (*Key, error) {
	key, err := r.store.KeyByID(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if !key.Active && key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
		return nil, ErrKeyRetired
	}
	return key, nil
}

// RotateKey retires the active key of typ and activates a freshly generated
// one. The old key keeps decrypting until its grace deadline passes.
func (r *KeyRing) RotateKey(ctx context.Context, typ KeyType) (*Key, error) {
	fresh, err := newKey(typ)
	if err != nil {
		return nil, err
	}
	if err := r.store.Rotate(ctx, fresh, time.Now().Add(r.grace)); err != nil {
		return nil, err
	}
	return fresh, nil
}

// SweepKeys purges keys whose grace deadline has passed.
func (r *KeyRing) SweepKeys(ctx context.Context) (int64, error) {
	return r.store.DeleteRetiredBefore(ctx, time.Now())
}

func newKey(typ KeyType) (*Key, error) {
	if typ != KeyTypeSigning && typ != KeyTypeEncryption {
		return nil, fmt.Errorf("invalid key type %q", typ)
	}
	material := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(material); err != nil {
		return nil, err
	}
	return &Key{
		ID:        uuid.NewString(),
		KeyID:     uuid.NewString(),
		Material:  material,
		Type:      typ,
		CreatedAt: time.Now(),
		Active:    true,
	}, nil
}
