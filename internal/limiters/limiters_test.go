package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, cfg), mr
}

func TestCheckLoginBudget(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxLoginAttempts: 3, LoginWindow: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckLogin(ctx, "alice"); err != nil {
			t.Fatalf("attempt %d unexpectedly limited: %v", i+1, err)
		}
	}
	if err := l.CheckLogin(ctx, "alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// Budgets are per identifier.
	if err := l.CheckLogin(ctx, "bob"); err != nil {
		t.Fatalf("unrelated identifier limited: %v", err)
	}
}

func TestWindowReset(t *testing.T) {
	l, mr := newTestLimiter(t, Config{MaxLoginAttempts: 1, LoginWindow: time.Minute})
	ctx := context.Background()

	if err := l.CheckLogin(ctx, "alice"); err != nil {
		t.Fatalf("first attempt limited: %v", err)
	}
	if err := l.CheckLogin(ctx, "alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if err := l.CheckLogin(ctx, "alice"); err != nil {
		t.Fatalf("attempt after window reset limited: %v", err)
	}
}

func TestFlowsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, Config{
		MaxLoginAttempts:   1,
		LoginWindow:        time.Minute,
		MaxMfaAttempts:     1,
		MfaWindow:          time.Minute,
		MaxRefreshAttempts: 1,
		RefreshWindow:      time.Minute,
	})
	ctx := context.Background()

	if err := l.CheckLogin(ctx, "id"); err != nil {
		t.Fatalf("CheckLogin failed: %v", err)
	}
	// The same identifier has untouched budgets in the other flows.
	if err := l.CheckMfa(ctx, "id"); err != nil {
		t.Fatalf("CheckMfa failed: %v", err)
	}
	if err := l.CheckRefresh(ctx, "id"); err != nil {
		t.Fatalf("CheckRefresh failed: %v", err)
	}

	if err := l.CheckMfa(ctx, "id"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestZeroBudgetDisablesCheck(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxLoginAttempts: 0, LoginWindow: time.Minute})
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if err := l.CheckLogin(ctx, "alice"); err != nil {
			t.Fatalf("disabled check limited: %v", err)
		}
	}
}

func TestNilRedisIsInert(t *testing.T) {
	l := New(nil, Config{MaxLoginAttempts: 1, LoginWindow: time.Minute})
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if err := l.CheckLogin(ctx, "alice"); err != nil {
			t.Fatalf("nil-redis limiter limited: %v", err)
		}
	}
}

func TestBackendFailureSurfaces(t *testing.T) {
	l, mr := newTestLimiter(t, Config{MaxLoginAttempts: 1, LoginWindow: time.Minute})
	mr.Close()

	err := l.CheckLogin(context.Background(), "alice")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}
