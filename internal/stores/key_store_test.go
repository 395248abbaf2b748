package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hexora/authcore/session"
)

func newKeyRow(typ session.KeyType, active bool) *session.Key {
	return &session.Key{
		ID:        uuid.NewString(),
		KeyID:     uuid.NewString(),
		Material:  []byte("0123456789abcdef0123456789abcdef"),
		Type:      typ,
		CreatedAt: time.Now(),
		Active:    active,
	}
}

func TestKeyStoreActiveKeyPerType(t *testing.T) {
	db := newTestDB(t)
	store := NewKeyStore(db)
	ctx := context.Background()

	if _, err := store.ActiveKey(ctx, session.KeyTypeEncryption); !errors.Is(err, session.ErrNoActiveKey) {
		t.Fatalf("expected ErrNoActiveKey on empty store, got %v", err)
	}

	enc := newKeyRow(session.KeyTypeEncryption, true)
	sig := newKeyRow(session.KeyTypeSigning, true)
	if err := store.Create(ctx, enc); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, sig); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.ActiveKey(ctx, session.KeyTypeEncryption)
	if err != nil {
		t.Fatalf("ActiveKey failed: %v", err)
	}
	if got.KeyID != enc.KeyID {
		t.Fatal("active key lookup must be type-scoped")
	}
}

func TestKeyStoreMintIfAbsentSingleWinner(t *testing.T) {
	db := newTestDB(t)
	store := NewKeyStore(db)
	ctx := context.Background()

	first := newKeyRow(session.KeyTypeEncryption, true)
	won, err := store.MintIfAbsent(ctx, first)
	if err != nil {
		t.Fatalf("MintIfAbsent failed: %v", err)
	}
	if won.KeyID != first.KeyID {
		t.Fatal("mint into an empty store must install the candidate")
	}

	// A second mint of the same type loses and gets the winner back.
	loser := newKeyRow(session.KeyTypeEncryption, true)
	won, err = store.MintIfAbsent(ctx, loser)
	if err != nil {
		t.Fatalf("MintIfAbsent failed: %v", err)
	}
	if won.KeyID != first.KeyID {
		t.Fatal("losing mint must resolve to the existing active key")
	}

	var activeCount int64
	db.Model(&SessionKeyModel{}).
		Where("key_type = ? AND is_active", string(session.KeyTypeEncryption)).
		Count(&activeCount)
	if activeCount != 1 {
		t.Fatalf("expected exactly one active key, got %d", activeCount)
	}

	// The constraint holds even against a raw insert that skipped the
	// pre-check, which is what two racing first-boot mints reduce to.
	if err := store.Create(ctx, newKeyRow(session.KeyTypeEncryption, true)); !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("second active insert must hit the unique index, got %v", err)
	}

	// A different type is unaffected.
	sig := newKeyRow(session.KeyTypeSigning, true)
	if _, err := store.MintIfAbsent(ctx, sig); err != nil {
		t.Fatalf("MintIfAbsent failed: %v", err)
	}
}

func TestKeyStoreRotateKeepsSingleActive(t *testing.T) {
	db := newTestDB(t)
	store := NewKeyStore(db)
	ctx := context.Background()

	first := newKeyRow(session.KeyTypeEncryption, true)
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	next := newKeyRow(session.KeyTypeEncryption, true)
	grace := time.Now().Add(time.Hour)
	if err := store.Rotate(ctx, next, grace); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	var activeCount int64
	db.Model(&SessionKeyModel{}).
		Where("key_type = ? AND is_active", string(session.KeyTypeEncryption)).
		Count(&activeCount)
	if activeCount != 1 {
		t.Fatalf("expected exactly one active key, got %d", activeCount)
	}

	// The retired key stays resolvable by id with its grace deadline set.
	retired, err := store.KeyByID(ctx, first.KeyID)
	if err != nil {
		t.Fatalf("KeyByID failed: %v", err)
	}
	if retired.Active {
		t.Fatal("rotated-out key must be inactive")
	}
	if retired.ExpiresAt == nil {
		t.Fatal("rotated-out key must carry a grace deadline")
	}
}

func TestKeyStoreDeleteRetiredBefore(t *testing.T) {
	db := newTestDB(t)
	store := NewKeyStore(db)
	ctx := context.Background()

	stale := newKeyRow(session.KeyTypeEncryption, false)
	past := time.Now().Add(-time.Hour)
	stale.ExpiresAt = &past

	inGrace := newKeyRow(session.KeyTypeEncryption, false)
	future := time.Now().Add(time.Hour)
	inGrace.ExpiresAt = &future

	active := newKeyRow(session.KeyTypeEncryption, true)

	for _, key := range []*session.Key{stale, inGrace, active} {
		if err := store.Create(ctx, key); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	n, err := store.DeleteRetiredBefore(ctx, time.Now())
	if err != nil {
		t.Fatalf("DeleteRetiredBefore failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged key, got %d", n)
	}

	if _, err := store.KeyByID(ctx, stale.KeyID); !errors.Is(err, session.ErrKeyNotFound) {
		t.Fatalf("expected stale key purged, got %v", err)
	}
	if _, err := store.KeyByID(ctx, inGrace.KeyID); err != nil {
		t.Fatalf("in-grace key must survive: %v", err)
	}
	if _, err := store.KeyByID(ctx, active.KeyID); err != nil {
		t.Fatalf("active key must survive: %v", err)
	}
}
