package middleware

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	authcore "github.com/hexora/authcore"
)

const testPassword = "Tq9#mVx2&Lp8zWf"

func newTestEngine(t *testing.T) *authcore.Engine {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("opening sqlite failed: %v", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}

	cfg := authcore.DefaultConfig()
	cfg.Token.PrivateKey = priv
	cfg.Token.PublicKey = pub
	cfg.Password = authcore.PasswordConfig{
		Memory:              8 * 1024,
		Time:                1,
		Parallelism:         1,
		SaltLength:          16,
		KeyLength:           32,
		MaxConcurrentHashes: 2,
	}

	engine, err := authcore.New().WithConfig(cfg).WithDB(db).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

type fixture struct {
	engine  *authcore.Engine
	userID  string
	access  string
	session *authcore.SessionLoginResult
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine := newTestEngine(t)
	ctx := context.Background()

	userID, err := engine.Register(ctx, "alice", "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	login, err := engine.Login(ctx, "alice", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	sess, err := engine.SessionLogin(ctx, "alice", testPassword)
	if err != nil {
		t.Fatalf("SessionLogin failed: %v", err)
	}

	return &fixture{
		engine:  engine,
		userID:  userID,
		access:  login.AccessToken,
		session: sess,
	}
}

// okHandler records the identity the middleware attached.
func okHandler(captured **authcore.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := authcore.IdentityFromContext(r.Context()); ok {
			*captured = id
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticateBearer(t *testing.T) {
	f := newFixture(t)

	var captured *authcore.Identity
	handler := Authenticate(f.engine)(okHandler(&captured))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+f.access)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if captured == nil || captured.UserID != f.userID {
		t.Fatalf("expected identity for %s, got %+v", f.userID, captured)
	}
	if captured.SessionID != "" {
		t.Fatal("bearer identities must not carry a session id")
	}
}

func TestAuthenticateCookie(t *testing.T) {
	f := newFixture(t)

	var captured *authcore.Identity
	handler := Authenticate(f.engine)(okHandler(&captured))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{
		Name:  f.engine.Sessions().CookieName(),
		Value: f.session.Session.SessionToken,
	})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if captured == nil || captured.UserID != f.userID {
		t.Fatalf("expected identity for %s, got %+v", f.userID, captured)
	}
	if captured.SessionID == "" {
		t.Fatal("cookie identities must carry their session id")
	}
}

func TestAuthenticateRejections(t *testing.T) {
	f := newFixture(t)

	var captured *authcore.Identity
	handler := Authenticate(f.engine)(okHandler(&captured))

	build := map[string]func(*http.Request){
		"no credentials": func(r *http.Request) {},
		"garbage bearer": func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer garbage")
		},
		"empty bearer": func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer ")
		},
		"refresh as bearer": func(r *http.Request) {
			// Only access tokens authenticate requests.
			login, err := f.engine.Login(context.Background(), "alice", testPassword)
			if err != nil {
				t.Fatalf("Login failed: %v", err)
			}
			r.Header.Set("Authorization", "Bearer "+login.RefreshToken)
		},
		"bogus cookie": func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: f.engine.Sessions().CookieName(), Value: "bogus"})
		},
	}
	for name, mutate := range build {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		mutate(r)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, w.Code)
		}
	}
	if captured != nil {
		t.Fatal("no identity must reach the handler")
	}
}

func TestRequireCSRF(t *testing.T) {
	f := newFixture(t)

	chain := Authenticate(f.engine)(RequireCSRF(f.engine)(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) },
	)))

	withCookie := func(r *http.Request) {
		r.AddCookie(&http.Cookie{
			Name:  f.engine.Sessions().CookieName(),
			Value: f.session.Session.SessionToken,
		})
	}

	// Mutating request with the right header passes.
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	withCookie(r)
	r.Header.Set(f.engine.Sessions().CsrfHeader(), f.session.Session.CsrfToken)
	w := httptest.NewRecorder()
	chain.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("valid csrf: expected 200, got %d", w.Code)
	}

	// Missing header on a mutating request is rejected.
	r = httptest.NewRequest(http.MethodPost, "/", nil)
	withCookie(r)
	w = httptest.NewRecorder()
	chain.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("missing csrf: expected 403, got %d", w.Code)
	}

	// Safe verbs skip the check entirely.
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	withCookie(r)
	w = httptest.NewRecorder()
	chain.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("safe verb: expected 200, got %d", w.Code)
	}

	// Bearer-authenticated mutating requests skip the check too.
	r = httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Authorization", "Bearer "+f.access)
	w = httptest.NewRecorder()
	chain.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("bearer mutation: expected 200, got %d", w.Code)
	}
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.AddPolicyRule(ctx, f.userID, "reports", "read"); err != nil {
		t.Fatalf("AddPolicyRule failed: %v", err)
	}

	chain := Authenticate(f.engine)(Authorize(f.engine, "reports")(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) },
	)))

	// GET maps to read, which is granted.
	r := httptest.NewRequest(http.MethodGet, "/reports", nil)
	r.Header.Set("Authorization", "Bearer "+f.access)
	w := httptest.NewRecorder()
	chain.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("granted read: expected 200, got %d", w.Code)
	}

	// DELETE maps to delete, which is not.
	r = httptest.NewRequest(http.MethodDelete, "/reports", nil)
	r.Header.Set("Authorization", "Bearer "+f.access)
	w = httptest.NewRecorder()
	chain.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("denied delete: expected 403, got %d", w.Code)
	}
}

func TestAuthorizeWithoutIdentity(t *testing.T) {
	f := newFixture(t)

	handler := Authorize(f.engine, "reports")(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) },
	))

	r := httptest.NewRequest(http.MethodGet, "/reports", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthorizeAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.AddPolicyRule(ctx, f.userID, "reports", "export"); err != nil {
		t.Fatalf("AddPolicyRule failed: %v", err)
	}

	chain := Authenticate(f.engine)(AuthorizeAction(f.engine, "reports", "export")(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) },
	)))

	r := httptest.NewRequest(http.MethodPost, "/reports/export", nil)
	r.Header.Set("Authorization", "Bearer "+f.access)
	w := httptest.NewRecorder()
	chain.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
