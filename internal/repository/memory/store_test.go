package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"auth-api/internal/domain"
	"auth-api/internal/repository"
)

func TestStore_EnforcesUniquenessPerApp(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	if _, err := store.Create(ctx, repository.CreateUserRequest{ID: "u1", AppID: "a", Email: "m@x.com"}); err != nil {
		t.Fatalf("create u1: %v", err)
	}
	_, err := store.Create(ctx, repository.CreateUserRequest{ID: "u2", AppID: "a", Email: "m@x.com"})
	if !errors.Is(err, repository.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if _, err := store.Create(ctx, repository.CreateUserRequest{ID: "u3", AppID: "b", Email: "m@x.com"}); err != nil {
		t.Fatalf("same email on another app must be allowed: %v", err)
	}
}

func TestStore_RequiresIdentifyingAttribute(t *testing.T) {
	_, err := NewStore().Create(context.Background(), repository.CreateUserRequest{ID: "u1", AppID: "a"})
	if !errors.Is(err, repository.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestStore_FindByFieldPrefersOwnerOverTmpField(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	if _, err := store.Create(ctx, repository.CreateUserRequest{ID: "pending", AppID: "a", Username: "bob", Slug: "bob", TmpField: "m@x.com"}); err != nil {
		t.Fatalf("create pending: %v", err)
	}
	if _, err := store.Create(ctx, repository.CreateUserRequest{ID: "owner", AppID: "a", Email: "m@x.com"}); err != nil {
		t.Fatalf("create owner: %v", err)
	}

	got, err := store.FindByField(ctx, "a", repository.LookupEmail, "m@x.com", "")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != "owner" {
		t.Fatalf("expected owner, got %s", got.ID)
	}

	if err := store.Delete(ctx, "owner"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = store.FindByField(ctx, "a", repository.LookupEmail, "m@x.com", "")
	if err != nil || got.ID != "pending" {
		t.Fatalf("expected tmp field match, got %+v, %v", got, err)
	}
}

func TestStore_RefreshTokensLazyExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewStore()
	store.SetClock(func() time.Time { return now })

	if err := store.Replace(ctx, domain.RefreshToken{ID: "t1", UserID: "u1", AppID: "a", Token: "tok-1", ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := store.Replace(ctx, domain.RefreshToken{ID: "t2", UserID: "u1", AppID: "a", Token: "tok-2", ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if store.TokenCount() != 1 {
		t.Fatalf("expected a single live token per user and app, got %d", store.TokenCount())
	}

	now = now.Add(2 * time.Hour)
	if _, err := store.FindByUserID(ctx, "u1", "a"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected expired token reported as not found, got %v", err)
	}
	if store.TokenCount() != 0 {
		t.Fatalf("expected expired token removed on lookup")
	}
}

func TestStore_DeleteByTokenIsSingleUse(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.Replace(ctx, domain.RefreshToken{ID: "t1", UserID: "u1", AppID: "a", Token: "tok", ExpiresAt: time.Now().Add(time.Hour)})

	ok, err := store.DeleteByToken(ctx, "tok", "a")
	if err != nil || !ok {
		t.Fatalf("expected first delete to succeed, got %v, %v", ok, err)
	}
	ok, err = store.DeleteByToken(ctx, "tok", "a")
	if err != nil || ok {
		t.Fatalf("expected second delete to report false, got %v, %v", ok, err)
	}
}
