package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/meridianhq/corpweb/internal/apperror"
)

func newTestStore(t *testing.T) (Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb), mr
}

func testSession() *Session {
	return &Session{
		SubjectID:   "u-1",
		DisplayName: "Alice Smith",
		Username:    "alice",
		Role:        RoleUser,
		Permissions: NormalizePermissions([]string{"view_reports"}),
		Token:       "opaque-token",
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func assertUnauthorized(t *testing.T, err error) {
	t.Helper()
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != 401 {
		t.Errorf("expected 401, got %d", appErr.Code)
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, testSession(), time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(id) != 64 {
		t.Errorf("expected 64-char id, got %d", len(id))
	}

	// The raw ID must not appear in any Redis key.
	for _, k := range mr.Keys() {
		if strings.Contains(k, id) {
			t.Errorf("redis key %q contains raw session id", k)
		}
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SubjectID != "u-1" || got.Token != "opaque-token" {
		t.Errorf("unexpected session: %+v", got)
	}
	if !got.HasPermission("view_reports") {
		t.Error("expected permission to survive round trip")
	}
}

func TestStore_GetMissing(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	assertUnauthorized(t, err)

	_, err = store.Get(context.Background(), "")
	assertUnauthorized(t, err)
}

func TestStore_Expiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, testSession(), time.Minute)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	_, err = store.Get(ctx, id)
	assertUnauthorized(t, err)
}

func TestStore_ReplaceKeepsTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	s := testSession()
	s.MustChangePassword = true
	id, err := store.Create(ctx, s, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	mr.FastForward(30 * time.Minute)

	if err := store.Replace(ctx, id, s.WithPasswordChanged()); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MustChangePassword {
		t.Error("expected flag cleared after replace")
	}

	// 30 minutes had elapsed; the replacement must not reset the clock.
	mr.FastForward(31 * time.Minute)
	_, err = store.Get(ctx, id)
	assertUnauthorized(t, err)
}

func TestStore_ReplaceMissing(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Replace(context.Background(), "gone", testSession())
	assertUnauthorized(t, err)
}

func TestStore_Destroy(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, testSession(), time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Destroy(ctx, id); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	_, err = store.Get(ctx, id)
	assertUnauthorized(t, err)

	// Second destroy is a no-op.
	if err := store.Destroy(ctx, id); err != nil {
		t.Errorf("second destroy: %v", err)
	}
}
