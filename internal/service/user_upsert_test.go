package service

import (
	"context"
	"errors"
	"testing"

	"auth-api/internal/domain"
	"auth-api/internal/repository/memory"
)

func TestUserUpserter_CreateDefaultsAndSlug(t *testing.T) {
	u := NewUserUpserter(memory.NewStore())
	res, err := u.Upsert(context.Background(), "", UserAttrs{AppID: "app", Username: ptr("Mario Rossi"), Email: ptr("m@x.com")})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !res.WasCreated || res.WasConfirmed {
		t.Fatalf("expected created, got %+v", res)
	}
	if res.User.ID == "" || res.User.Role != domain.RoleUser || res.User.Slug != "mariorossi" {
		t.Fatalf("unexpected user: %+v", res.User)
	}
}

func TestUserUpserter_RequiresIdentity(t *testing.T) {
	u := NewUserUpserter(memory.NewStore())
	_, err := u.Upsert(context.Background(), "", UserAttrs{AppID: "app", RefID: ptr("fb-1")})
	if !errors.Is(err, ErrIdentityRequired) {
		t.Fatalf("expected ErrIdentityRequired, got %v", err)
	}
	_, err = u.Upsert(context.Background(), "", UserAttrs{AppID: "app", Username: ptr("???")})
	if !errors.Is(err, ErrIdentityRequired) {
		t.Fatalf("expected unsluggable username to be rejected, got %v", err)
	}
}

func TestUserUpserter_ExplicitIDCreatesThenMerges(t *testing.T) {
	ctx := context.Background()
	u := NewUserUpserter(memory.NewStore())

	res, err := u.Upsert(ctx, "fixed-id", UserAttrs{AppID: "app", Username: ptr("anna"), Phone: ptr("+39333"), Picture: ptr("p.png")})
	if err != nil {
		t.Fatalf("create with id: %v", err)
	}
	if !res.WasCreated || res.User.ID != "fixed-id" {
		t.Fatalf("expected pass-through id, got %+v", res)
	}

	res, err = u.Upsert(ctx, "fixed-id", UserAttrs{AppID: "app", Email: ptr("a@x.com"), Role: ptr(domain.RoleOwner)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.WasCreated || !res.WasConfirmed {
		t.Fatalf("expected update to be confirmed, got %+v", res)
	}
	got := res.User
	if got.Username != "anna" || got.Phone != "+39333" || got.Picture != "p.png" {
		t.Fatalf("update must not touch fields the caller did not mention: %+v", got)
	}
	if got.Email != "a@x.com" || got.Role != domain.RoleOwner {
		t.Fatalf("expected merged fields, got %+v", got)
	}

	res, err = u.Upsert(ctx, "fixed-id", UserAttrs{AppID: "app", Username: ptr("Anna_B")})
	if err != nil || res.User.Slug != "anna-b" {
		t.Fatalf("expected slug recomputed, got %+v, %v", res.User, err)
	}

	if _, err := u.Upsert(ctx, "fixed-id", UserAttrs{AppID: "other"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected users of other apps to be invisible, got %v", err)
	}
}

func TestUserUpserter_ConflictIsReported(t *testing.T) {
	ctx := context.Background()
	u := NewUserUpserter(memory.NewStore())
	if _, err := u.Upsert(ctx, "", UserAttrs{AppID: "app", Email: ptr("m@x.com")}); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := u.Upsert(ctx, "", UserAttrs{AppID: "app", Email: ptr("m@x.com")}); !errors.Is(err, ErrUserAlreadyRegistered) {
		t.Fatalf("expected ErrUserAlreadyRegistered, got %v", err)
	}
}
