package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"auth-api/internal/domain"
	"auth-api/internal/repository/memory"
	"auth-api/internal/service"
)

func newProtectedRouter(t *testing.T, app string) (*gin.Engine, *service.TokenService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memory.NewStore()
	tokens := service.NewTokenService("secret", "auth-api", 15*time.Minute, 30*24*time.Hour, store, store)

	r := gin.New()
	r.GET("/protected", func(c *gin.Context) {
		c.Set(appPolicyKey, domain.AppRegistration{AppID: app})
		c.Next()
	}, JWTAuthMiddleware(tokens), func(c *gin.Context) {
		claims, ok := GetAuthClaims(c)
		if !ok || claims.UserID != "u1" {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.Status(http.StatusOK)
	})
	return r, tokens
}

func accessTokenFor(t *testing.T, tokens *service.TokenService, app string) string {
	t.Helper()
	user := domain.User{ID: "u1", AppID: app, Email: "user@example.com", CreatedAt: time.Now().UTC()}
	pair, err := tokens.IssuePair(context.Background(), user, domain.AppRegistration{AppID: app})
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	return pair.AccessToken
}

func TestJWTAuthMiddleware_AllowsValidAccessToken(t *testing.T) {
	r, tokens := newProtectedRouter(t, "https://app.example")

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+accessTokenFor(t, tokens, "https://app.example"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestJWTAuthMiddleware_Rejects(t *testing.T) {
	r, tokens := newProtectedRouter(t, "https://app.example")

	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"no bearer prefix", accessTokenFor(t, tokens, "https://app.example")},
		{"garbage", "Bearer not-a-jwt"},
		{"other app", "Bearer " + accessTokenFor(t, tokens, "https://other.example")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}
