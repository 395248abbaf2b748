package authcore

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"time"
)

// authenticatorCode plays the role of the user's authenticator app: it
// derives the current 6-digit code from the provisioned base32 secret.
func authenticatorCode(t *testing.T, secretB32 string) string {
	t.Helper()
	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secretB32)
	if err != nil {
		t.Fatalf("decoding provisioned secret failed: %v", err)
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(time.Now().Unix()/30))
	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	return fmt.Sprintf("%06d", bin%1_000_000)
}

func enrollMfa(t *testing.T, e *Engine, userID string) (secretB32 string, backupCodes []string) {
	t.Helper()
	ctx := context.Background()

	prov, err := e.InitiateMfaSetup(ctx, userID, strongPassword)
	if err != nil {
		t.Fatalf("InitiateMfaSetup failed: %v", err)
	}

	codes, err := e.ConfirmMfaSetup(ctx, prov.SetupToken, authenticatorCode(t, prov.Secret))
	if err != nil {
		t.Fatalf("ConfirmMfaSetup failed: %v", err)
	}
	return prov.Secret, codes
}

func TestMfaSetupRequiresPassword(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	userID := registerUser(t, e, "alice")

	if _, err := e.InitiateMfaSetup(ctx, userID, otherPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := e.InitiateMfaSetup(ctx, userID, ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty password: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestMfaLoginFlow(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	userID := registerUser(t, e, "alice")
	secret, _ := enrollMfa(t, e, userID)

	res, err := e.Login(ctx, "alice", strongPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !res.MfaRequired {
		t.Fatal("expected an mfa challenge after enrollment")
	}
	if res.AccessToken != "" || res.RefreshToken != "" {
		t.Fatal("tokens must be withheld until the second factor")
	}

	completed, err := e.VerifyMfaLogin(ctx, res.MfaChallenge, authenticatorCode(t, secret))
	if err != nil {
		t.Fatalf("VerifyMfaLogin failed: %v", err)
	}
	if completed.AccessToken == "" || completed.RefreshToken == "" {
		t.Fatal("expected a token pair after mfa verification")
	}
	if completed.UserID != userID {
		t.Fatalf("expected %s, got %s", userID, completed.UserID)
	}
}

func TestMfaLoginWrongCode(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	userID := registerUser(t, e, "alice")
	enrollMfa(t, e, userID)

	res, err := e.Login(ctx, "alice", strongPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := e.VerifyMfaLogin(ctx, res.MfaChallenge, "000000"); !errors.Is(err, ErrInvalidMfaCode) {
		t.Fatalf("expected ErrInvalidMfaCode, got %v", err)
	}
}

func TestMfaLoginRejectsBogusChallenge(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.VerifyMfaLogin(context.Background(), "not-a-challenge", "000000"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestMfaBackupCodeLogin(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	userID := registerUser(t, e, "alice")
	_, codes := enrollMfa(t, e, userID)
	if len(codes) == 0 {
		t.Fatal("expected backup codes from enrollment")
	}

	res, err := e.Login(ctx, "alice", strongPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := e.VerifyMfaLogin(ctx, res.MfaChallenge, codes[0]); err != nil {
		t.Fatalf("backup code login failed: %v", err)
	}

	// One backup code, one login.
	res, err = e.Login(ctx, "alice", strongPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := e.VerifyMfaLogin(ctx, res.MfaChallenge, codes[0]); !errors.Is(err, ErrInvalidMfaCode) {
		t.Fatalf("expected ErrInvalidMfaCode for a spent code, got %v", err)
	}
}

func TestRegenerateBackupCodes(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	userID := registerUser(t, e, "alice")
	secret, oldCodes := enrollMfa(t, e, userID)

	newCodes, err := e.RegenerateBackupCodes(ctx, userID, strongPassword, authenticatorCode(t, secret))
	if err != nil {
		t.Fatalf("RegenerateBackupCodes failed: %v", err)
	}

	res, err := e.Login(ctx, "alice", strongPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := e.VerifyMfaLogin(ctx, res.MfaChallenge, oldCodes[0]); !errors.Is(err, ErrInvalidMfaCode) {
		t.Fatalf("old backup codes must be dead, got %v", err)
	}
	res, err = e.Login(ctx, "alice", strongPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := e.VerifyMfaLogin(ctx, res.MfaChallenge, newCodes[0]); err != nil {
		t.Fatalf("new backup code login failed: %v", err)
	}
}

func TestDisableMfa(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	userID := registerUser(t, e, "alice")
	secret, codes := enrollMfa(t, e, userID)

	// Disable demands both proofs; a backup code is not enough.
	if err := e.DisableMfa(ctx, userID, strongPassword, codes[0]); !errors.Is(err, ErrInvalidMfaCode) {
		t.Fatalf("backup code must not disable mfa, got %v", err)
	}
	if err := e.DisableMfa(ctx, userID, otherPassword, authenticatorCode(t, secret)); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password must not disable mfa, got %v", err)
	}

	if err := e.DisableMfa(ctx, userID, strongPassword, authenticatorCode(t, secret)); err != nil {
		t.Fatalf("DisableMfa failed: %v", err)
	}

	res, err := e.Login(ctx, "alice", strongPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.MfaRequired {
		t.Fatal("mfa must be off after disable")
	}
}
