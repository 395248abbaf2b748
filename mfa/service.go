package mfa

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hexora/authcore/token"
)

var (
	// ErrInvalidCode is returned when neither the TOTP path nor the backup
	// code path accepts the presented code. Callers never learn which check
	// failed.
	ErrInvalidCode = errors.New("invalid mfa code")
	// ErrAlreadyEnabled is returned when setup is initiated for a user whose
	// MFA is already enabled.
	ErrAlreadyEnabled = errors.New("mfa already enabled")
	// ErrNotEnabled is returned when an MFA operation requires an enabled
	// state.
	ErrNotEnabled = errors.New("mfa not enabled")
	// ErrSetupTokenInvalid is returned for missing or expired setup tokens.
	ErrSetupTokenInvalid = errors.New("mfa setup token invalid or expired")
)

// UserState is the MFA view of a user.
type UserState struct {
	Enabled          bool
	Secret           []byte
	BackupCodeHashes []string
}

// SetupToken parks a pending TOTP secret between initiation and
// confirmation. The opaque token value is stored only as a hash.
type SetupToken struct {
	ID        string
	TokenHash string
	UserID    string
	Secret    []byte
	ExpiresAt time.Time
}

// Store is the persistence capability the MFA service depends on.
//
// ConsumeBackupCode must remove the matching hash atomically and report
// whether a hash was present, so a backup code can never be accepted twice.
type Store interface {
	UserState(ctx context.Context, userID string) (*UserState, error)
	Enable(ctx context.Context, userID string, secret []byte, backupHashes []string) error
	Disable(ctx context.Context, userID string) error
	ReplaceBackupCodes(ctx context.Context, userID string, backupHashes []string) error
	ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error)

	CreateSetupToken(ctx context.Context, st *SetupToken) error
	GetSetupToken(ctx context.Context, tokenHash string) (*SetupToken, error)
	DeleteSetupToken(ctx context.Context, id string) error
	DeleteExpiredSetupTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// ServiceConfig defines a public type used by authcore APIs.
type ServiceConfig struct {
	TOTP            TOTPConfig
	SetupTokenTTL   time.Duration
	ChallengeTTL    time.Duration
	BackupCodeCount int
}

// Provisioning is returned from setup initiation: everything the client
// needs to enroll an authenticator app and later confirm.
type Provisioning struct {
	Secret     string // base32, for manual entry
	URI        string // otpauth:// provisioning URI
	SetupToken string // opaque, returned once
}

// Service drives the per-user MFA state machine.
//
// Service instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Service struct {
	totp   *totpManager
	store  Store
	tokens *token.Manager
	config ServiceConfig
}

// NewService composes an MFA Service.
//
// NewService may return an error when input validation fails.
func NewService(store Store, tokens *token.Manager, cfg ServiceConfig) (*Service, error) {
	if store == nil {
		return nil, errors.New("mfa store required")
	}
	if tokens == nil {
		return nil, errors.New("token manager required")
	}
	if cfg.SetupTokenTTL <= 0 || cfg.ChallengeTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.BackupCodeCount <= 0 {
		return nil, errors.New("backup code count must be positive")
	}
	if cfg.TOTP.Digits < 6 || cfg.TOTP.Digits > 10 {
		return nil, errors.New("totp digits must be 6..10")
	}
	if cfg.TOTP.Period <= 0 || cfg.TOTP.Skew < 0 {
		return nil, errors.New("invalid totp window configuration")
	}

	return &Service{
		totp:   newTOTPManager(cfg.TOTP),
		store:  store,
		tokens: tokens,
		config: cfg,
	}, nil
}

// InitiateSetup generates a fresh secret for userID, parks it behind a
// short-lived setup token, and returns the provisioning material. The secret
// is not yet attached to the user.
func (s *Service) InitiateSetup(ctx context.Context, userID, account string) (*Provisioning, error) {
	state, err := s.store.UserState(ctx, userID)
	if err != nil {
		return nil, err
	}
	if state.Enabled {
		return nil, ErrAlreadyEnabled
	}

	secret, secretB32, err := s.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	raw, rawHash, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateSetupToken(ctx, &SetupToken{
		ID:        uuid.NewString(),
		TokenHash: rawHash,
		UserID:    userID,
		Secret:    secret,
		ExpiresAt: time.Now().Add(s.config.SetupTokenTTL),
	}); err != nil {
		return nil, err
	}

	return &Provisioning{
		Secret:     secretB32,
		URI:        s.totp.ProvisionURI(secretB32, account),
		SetupToken: raw,
	}, nil
}

// ConfirmSetup validates code against the pending secret referenced by
// setupToken and, on success, enables MFA and returns the user id plus the
// plaintext backup codes exactly once. The setup token is consumed.
func (s *Service) ConfirmSetup(ctx context.Context, setupToken, code string) (string, []string, error) {
	rawHash, err := hashOpaqueToken(setupToken)
	if err != nil {
		return "", nil, ErrSetupTokenInvalid
	}

	pending, err := s.store.GetSetupToken(ctx, rawHash)
	if err != nil {
		return "", nil, err
	}

	ok, err := s.totp.VerifyCode(pending.Secret, code, time.Now())
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, ErrInvalidCode
	}

	codes, hashes, err := newBackupCodes(s.config.BackupCodeCount)
	if err != nil {
		return "", nil, err
	}

	if err := s.store.Enable(ctx, pending.UserID, pending.Secret, hashes); err != nil {
		return "", nil, err
	}
	if err := s.store.DeleteSetupToken(ctx, pending.ID); err != nil {
		return "", nil, err
	}

	return pending.UserID, codes, nil
}

// ChallengeToken issues the short-lived token bridging a verified password
// and the pending code check at login.
func (s *Service) ChallengeToken(userID string) (string, error) {
	return s.tokens.Issue(userID, token.TypeMfaChallenge, s.config.ChallengeTTL)
}

// VerifyLogin validates the MFA challenge token, then tries code first as a
// TOTP code and second as a backup code. A matched backup code is removed
// atomically before success is reported.
//
// VerifyLogin returns the user id on success and ErrInvalidCode when neither
// path matches, without revealing which check failed.
func (s *Service) VerifyLogin(ctx context.Context, challengeToken, code string) (string, error) {
	claims, err := s.tokens.Parse(challengeToken, token.TypeMfaChallenge)
	if err != nil {
		return "", err
	}
	userID := claims.UID

	state, err := s.store.UserState(ctx, userID)
	if err != nil {
		return "", err
	}
	if !state.Enabled {
		return "", ErrInvalidCode
	}

	ok, err := s.totp.VerifyCode(state.Secret, code, time.Now())
	if err != nil {
		return "", err
	}
	if ok {
		return userID, nil
	}

	consumed, err := s.store.ConsumeBackupCode(ctx, userID, HashBackupCode(code))
	if err != nil {
		return "", err
	}
	if consumed {
		return userID, nil
	}

	return "", ErrInvalidCode
}

// VerifyCode checks a current TOTP code for an enabled user. Backup codes
// are not accepted here; sensitive operations (disable, regenerate) require
// possession of the authenticator itself.
func (s *Service) VerifyCode(ctx context.Context, userID, code string) error {
	state, err := s.store.UserState(ctx, userID)
	if err != nil {
		return err
	}
	if !state.Enabled {
		return ErrNotEnabled
	}

	ok, err := s.totp.VerifyCode(state.Secret, code, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode
	}
	return nil
}

// Disable clears the secret and backup codes after a valid current TOTP
// code. The caller is responsible for the accompanying password proof.
func (s *Service) Disable(ctx context.Context, userID, code string) error {
	if err := s.VerifyCode(ctx, userID, code); err != nil {
		return err
	}
	return s.store.Disable(ctx, userID)
}

// RegenerateBackupCodes replaces the whole backup code set after a valid
// current TOTP code. Old codes become invalid in the same store operation.
func (s *Service) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	if err := s.VerifyCode(ctx, userID, code); err != nil {
		return nil, err
	}

	codes, hashes, err := newBackupCodes(s.config.BackupCodeCount)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceBackupCodes(ctx, userID, hashes); err != nil {
		return nil, err
	}
	return codes, nil
}

// SweepSetupTokens deletes expired setup tokens. Called by the background
// maintenance loop.
func (s *Service) SweepSetupTokens(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredSetupTokens(ctx, time.Now())
}

func newOpaqueToken() (raw string, hash string, err error) {
	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", "", err
	}
	sum := sha256.Sum256(secret[:])
	return base64.RawURLEncoding.EncodeToString(secret[:]), hex.EncodeToString(sum[:]), nil
}

func hashOpaqueToken(raw string) (string, error) {
	secret, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return "", err
	}
	if len(secret) != 32 {
		return "", errors.New("invalid token size")
	}
	sum := sha256.Sum256(secret)
	return hex.EncodeToString(sum[:]), nil
}
