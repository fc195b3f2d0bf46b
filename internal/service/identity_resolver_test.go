package service

import (
	"context"
	"testing"

	"auth-api/internal/repository"
	"auth-api/internal/repository/memory"
)

func TestClassifyKey(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		provider  string
		wantField repository.LookupField
		wantValue string
	}{
		{name: "email", key: " M@X.com ", wantField: repository.LookupEmail, wantValue: "m@x.com"},
		{name: "email wins over provider", key: "m@x.com", provider: "firebase", wantField: repository.LookupEmail, wantValue: "m@x.com"},
		{name: "at without dot is not email", key: "ann@home", wantField: repository.LookupSlug, wantValue: "ann-home"},
		{name: "phone", key: "+393331112222", wantField: repository.LookupPhone, wantValue: "+393331112222"},
		{name: "ref id", key: "uid-123", provider: "firebase", wantField: repository.LookupRefID, wantValue: "uid-123"},
		{name: "email provider falls back to slug", key: "Mario Rossi", provider: "email", wantField: repository.LookupSlug, wantValue: "mariorossi"},
		{name: "username", key: "mario_rossi", wantField: repository.LookupSlug, wantValue: "mario-rossi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field, value := ClassifyKey(tt.key, tt.provider)
			if field != tt.wantField || value != tt.wantValue {
				t.Fatalf("expected %s=%q, got %s=%q", tt.wantField, tt.wantValue, field, value)
			}
		})
	}
}

func TestIdentityResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	_, err := store.Create(ctx, repository.CreateUserRequest{
		ID: "u1", AppID: "app", Username: "Mario", Slug: "mario", Email: "m@x.com",
		Phone: "+39333", RefID: "fb-1", Provider: "firebase",
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	r := NewIdentityResolver(store)

	for _, key := range []string{"m@x.com", "+39333", "MARIO"} {
		user, found, err := r.Resolve(ctx, key, "app", "")
		if err != nil || !found || user.ID != "u1" {
			t.Fatalf("resolve %q: expected u1, got %+v found=%v err=%v", key, user, found, err)
		}
	}

	if _, found, _ := r.Resolve(ctx, "fb-1", "app", "firebase"); !found {
		t.Fatalf("expected ref id lookup to match provider")
	}
	if _, found, _ := r.Resolve(ctx, "fb-1", "app", "google"); found {
		t.Fatalf("ref id lookup must filter by provider")
	}
	if _, found, _ := r.Resolve(ctx, "m@x.com", "other-app", ""); found {
		t.Fatalf("lookups must be scoped to the app")
	}
	if _, found, _ := r.Resolve(ctx, "   ", "app", ""); found {
		t.Fatalf("blank key must not match")
	}
}
