package authcore

import (
	"context"
	"errors"
	"testing"
)

func sessionLogin(t *testing.T, e *Engine, username string) *SessionLoginResult {
	t.Helper()
	res, err := e.SessionLogin(context.Background(), username, strongPassword)
	if err != nil {
		t.Fatalf("SessionLogin failed: %v", err)
	}
	if res.Session == nil {
		t.Fatal("expected a created session")
	}
	return res
}

func TestSessionLoginAndResolve(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	userID := registerUser(t, e, "alice")
	res := sessionLogin(t, e, "alice")

	ident, err := e.ResolveSession(ctx, res.Session.SessionToken)
	if err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}
	if ident.UserID != userID {
		t.Fatalf("expected %s, got %s", userID, ident.UserID)
	}
	if ident.SessionID == "" {
		t.Fatal("a cookie-backed identity must carry its session id")
	}
}

func TestSessionLoginRecordsMetadata(t *testing.T) {
	e := newTestEngine(t)

	registerUser(t, e, "alice")
	ctx := WithUserAgent(WithClientIP(context.Background(), "203.0.113.9"), "test-agent")

	res, err := e.SessionLogin(ctx, "alice", strongPassword)
	if err != nil {
		t.Fatalf("SessionLogin failed: %v", err)
	}
	if _, err := e.ResolveSession(ctx, res.Session.SessionToken); err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}
}

func TestResolveSessionRejectsGarbage(t *testing.T) {
	e := newTestEngine(t)

	for _, value := range []string{"", "garbage", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"} {
		if _, err := e.ResolveSession(context.Background(), value); !errors.Is(err, ErrSessionInvalid) {
			t.Fatalf("value %q: expected ErrSessionInvalid, got %v", value, err)
		}
	}
}

func TestSessionLogout(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	registerUser(t, e, "alice")
	res := sessionLogin(t, e, "alice")

	if err := e.LogoutSession(ctx, res.Session.SessionToken); err != nil {
		t.Fatalf("LogoutSession failed: %v", err)
	}
	if _, err := e.ResolveSession(ctx, res.Session.SessionToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}

	// Logging out an already-dead cookie is a no-op.
	if err := e.LogoutSession(ctx, res.Session.SessionToken); err != nil {
		t.Fatalf("repeated LogoutSession failed: %v", err)
	}
}

func TestSessionCsrf(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	registerUser(t, e, "alice")
	res := sessionLogin(t, e, "alice")

	if err := e.ValidateCSRF(ctx, res.Session.SessionID, res.Session.CsrfToken); err != nil {
		t.Fatalf("ValidateCSRF failed: %v", err)
	}
	if err := e.ValidateCSRF(ctx, res.Session.SessionID, ""); !errors.Is(err, ErrCsrfMismatch) {
		t.Fatalf("expected ErrCsrfMismatch, got %v", err)
	}
	if err := e.ValidateCSRF(ctx, res.Session.SessionID, res.Session.SessionToken); !errors.Is(err, ErrCsrfMismatch) {
		t.Fatalf("session token is not a csrf token, got %v", err)
	}
}

func TestSessionSurvivesKeyRotation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	registerUser(t, e, "alice")
	before := sessionLogin(t, e, "alice")

	if err := e.RotateSessionKeys(ctx); err != nil {
		t.Fatalf("RotateSessionKeys failed: %v", err)
	}

	if _, err := e.ResolveSession(ctx, before.Session.SessionToken); err != nil {
		t.Fatalf("pre-rotation session must keep resolving: %v", err)
	}

	after := sessionLogin(t, e, "alice")
	if _, err := e.ResolveSession(ctx, after.Session.SessionToken); err != nil {
		t.Fatalf("post-rotation session failed to resolve: %v", err)
	}
}

func TestSessionMfaLogin(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	userID := registerUser(t, e, "alice")
	secret, _ := enrollMfa(t, e, userID)

	res, err := e.SessionLogin(ctx, "alice", strongPassword)
	if err != nil {
		t.Fatalf("SessionLogin failed: %v", err)
	}
	if !res.MfaRequired || res.Session != nil {
		t.Fatal("the session must be withheld until the second factor")
	}

	completed, err := e.VerifyMfaSessionLogin(ctx, res.MfaChallenge, authenticatorCode(t, secret))
	if err != nil {
		t.Fatalf("VerifyMfaSessionLogin failed: %v", err)
	}
	if completed.Session == nil {
		t.Fatal("expected a created session after mfa verification")
	}

	ident, err := e.ResolveSession(ctx, completed.Session.SessionToken)
	if err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}
	if ident.UserID != userID {
		t.Fatalf("expected %s, got %s", userID, ident.UserID)
	}
}

func TestSessionsDieWithPasswordChange(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	userID := registerUser(t, e, "alice")
	res := sessionLogin(t, e, "alice")

	if err := e.ChangePassword(ctx, userID, strongPassword, otherPassword); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if _, err := e.ResolveSession(ctx, res.Session.SessionToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestSessionCookies(t *testing.T) {
	e := newTestEngine(t)

	registerUser(t, e, "alice")
	res := sessionLogin(t, e, "alice")

	cookies := e.SessionCookies(res.Session)
	if len(cookies) != 2 {
		t.Fatalf("expected 2 cookies, got %d", len(cookies))
	}

	session := cookies[0]
	if session.Name != "__Host-session" {
		t.Fatalf("unexpected session cookie name %q", session.Name)
	}
	if !session.Secure || !session.HttpOnly {
		t.Fatal("session cookie must be Secure and HttpOnly")
	}
	if session.Value != res.Session.SessionToken {
		t.Fatal("session cookie must carry the raw session token")
	}

	csrf := cookies[1]
	if csrf.HttpOnly {
		t.Fatal("csrf cookie must be readable by scripts")
	}

	cleared := e.ClearSessionCookies()
	if len(cleared) != 2 {
		t.Fatalf("expected 2 clearing cookies, got %d", len(cleared))
	}
	for _, c := range cleared {
		if c.MaxAge != -1 {
			t.Fatalf("clearing cookie %s must set MaxAge -1", c.Name)
		}
	}
}
