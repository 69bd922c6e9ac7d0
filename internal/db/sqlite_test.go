package db

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pysugar/gmail-agent-nexus/internal/db/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	gdb, err := InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	store := NewSQLiteStore(gdb)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}

func strPtr(s string) *string { return &s }

func TestUpsert_InsertThenUpdatePreservesRefreshToken(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	exp := time.Now().Add(time.Hour)
	first, err := store.Upsert(ctx, &models.AccountToken{
		Email:        strPtr("alice@example.com"),
		AccessToken:  "at-1",
		RefreshToken: strPtr("rt-1"),
		Scope:        "gmail.readonly",
		ExpiresAt:    &exp,
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected generated id")
	}
	if first.TokenType != models.DefaultTokenType {
		t.Fatalf("expected default token type, got %q", first.TokenType)
	}

	second, err := store.Upsert(ctx, &models.AccountToken{
		Email:       strPtr("alice@example.com"),
		AccessToken: "at-2",
		Scope:       "gmail.readonly openid",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same row, got %s and %s", first.ID, second.ID)
	}
	if second.AccessToken != "at-2" {
		t.Fatalf("access token not updated: %q", second.AccessToken)
	}
	if second.RefreshToken == nil || *second.RefreshToken != "rt-1" {
		t.Fatalf("refresh token should survive, got %v", second.RefreshToken)
	}
	if second.ExpiresAt != nil {
		t.Fatalf("expires_at should follow the latest write, got %v", second.ExpiresAt)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one row, got %d", len(all))
	}
}

func TestUpsert_NewRefreshTokenReplacesOld(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Upsert(ctx, &models.AccountToken{Email: strPtr("a@x.io"), AccessToken: "at", RefreshToken: strPtr("old")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := store.Upsert(ctx, &models.AccountToken{Email: strPtr("a@x.io"), AccessToken: "at", RefreshToken: strPtr("new")})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if *got.RefreshToken != "new" {
		t.Fatalf("expected new refresh token, got %q", *got.RefreshToken)
	}
}

func TestUpsert_NilEmailAlwaysInserts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < 2; i++ {
		if _, err := store.Upsert(ctx, &models.AccountToken{AccessToken: "at"}); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}
	// blank email is treated as unknown
	if _, err := store.Upsert(ctx, &models.AccountToken{Email: strPtr("  "), AccessToken: "at"}); err != nil {
		t.Fatalf("upsert blank email: %v", err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(all))
	}
	for _, acc := range all {
		if acc.Email != nil {
			t.Fatalf("expected nil email, got %q", *acc.Email)
		}
	}
}

func TestUpsert_RejectsEmptyAccessToken(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Upsert(context.Background(), &models.AccountToken{Email: strPtr("a@x.io")})
	if !errors.Is(err, ErrEmptyAccessToken) {
		t.Fatalf("expected ErrEmptyAccessToken, got %v", err)
	}
}

func TestUpsert_ConcurrentSameEmail(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Upsert(ctx, &models.AccountToken{Email: strPtr("race@x.io"), AccessToken: "at"})
		}()
	}
	wg.Wait()

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected a single row per email, got %d", len(all))
	}
}

func TestUpdateTokens(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	acc, err := store.Upsert(ctx, &models.AccountToken{
		Email:        strPtr("bob@example.com"),
		AccessToken:  "at-1",
		RefreshToken: strPtr("rt-1"),
		Scope:        "s1",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	exp := time.Now().Add(time.Hour).UTC()
	updated, err := store.UpdateTokens(ctx, acc.ID, TokenUpdate{AccessToken: "at-2", ExpiresAt: &exp})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.AccessToken != "at-2" {
		t.Fatalf("expected at-2, got %q", updated.AccessToken)
	}
	if updated.Scope != "s1" {
		t.Fatalf("scope should be unchanged, got %q", updated.Scope)
	}
	if updated.RefreshToken == nil || *updated.RefreshToken != "rt-1" {
		t.Fatalf("refresh token must not change on refresh")
	}
	if updated.ExpiresAt == nil || !updated.ExpiresAt.Equal(exp) {
		t.Fatalf("expected expires_at %v, got %v", exp, updated.ExpiresAt)
	}

	reloaded, err := store.GetByID(ctx, acc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reloaded.AccessToken != "at-2" {
		t.Fatalf("update not persisted")
	}

	if _, err := store.UpdateTokens(ctx, "missing", TokenUpdate{AccessToken: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.UpdateTokens(ctx, acc.ID, TokenUpdate{}); !errors.Is(err, ErrEmptyAccessToken) {
		t.Fatalf("expected ErrEmptyAccessToken, got %v", err)
	}
}

func TestLatestAndLookups(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t).WithClock(stepClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	if _, err := store.Latest(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}

	a, err := store.Upsert(ctx, &models.AccountToken{Email: strPtr("a@x.io"), AccessToken: "a"})
	if err != nil {
		t.Fatalf("upsert a: %v", err)
	}
	b, err := store.Upsert(ctx, &models.AccountToken{Email: strPtr("b@x.io"), AccessToken: "b"})
	if err != nil {
		t.Fatalf("upsert b: %v", err)
	}

	latest, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != b.ID {
		t.Fatalf("expected b as latest, got %s", latest.EmailOrEmpty())
	}

	// touching a moves it to the front
	if _, err := store.UpdateTokens(ctx, a.ID, TokenUpdate{AccessToken: "a2"}); err != nil {
		t.Fatalf("update a: %v", err)
	}
	latest, err = store.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != a.ID {
		t.Fatalf("expected a as latest, got %s", latest.EmailOrEmpty())
	}

	got, err := store.GetByEmail(ctx, "b@x.io")
	if err != nil || got.ID != b.ID {
		t.Fatalf("get by email: %v %v", got, err)
	}
	if _, err := store.GetByEmail(ctx, "nobody@x.io"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetByID(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdatedAtNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	future := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	store.WithClock(func() time.Time { return future })
	acc, err := store.Upsert(ctx, &models.AccountToken{Email: strPtr("c@x.io"), AccessToken: "c"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	store.WithClock(func() time.Time { return future.Add(-time.Hour) })
	updated, err := store.UpdateTokens(ctx, acc.ID, TokenUpdate{AccessToken: "c2"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.UpdatedAt.Before(acc.UpdatedAt) {
		t.Fatalf("updated_at went backwards: %v < %v", updated.UpdatedAt, acc.UpdatedAt)
	}
}

func TestSQLitePath(t *testing.T) {
	cases := map[string]string{
		"sqlite:///./app.db":         "./app.db",
		"sqlite:////var/lib/app.db":  "/var/lib/app.db",
		"sqlite://app.db":            "app.db",
		"file::memory:?cache=shared": "file::memory:?cache=shared",
		"/tmp/app.db":                "/tmp/app.db",
	}
	for in, want := range cases {
		if got := SQLitePath(in); got != want {
			t.Errorf("SQLitePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOpen_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "open.db")
	store, err := Open(context.Background(), "sqlite:///"+path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if _, ok := store.(*SQLiteStore); !ok {
		t.Fatalf("expected *SQLiteStore, got %T", store)
	}
}
