package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"auth-api/internal/domain"
	"auth-api/internal/repository/memory"
	"auth-api/internal/service"
)

const (
	testOrigin      = "https://app.example"
	revocableOrigin = "https://revocable.example"
)

type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func (s *captureSender) SendVerificationOTP(_ context.Context, to, code string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[to] = code
	return nil
}

func (s *captureSender) code(to string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[to]
}

type testServer struct {
	router *gin.Engine
	store  *memory.Store
	sender *captureSender
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore(
		domain.AppRegistration{AppID: testOrigin},
		domain.AppRegistration{AppID: revocableOrigin, Revocable: true, AccessTokenMinutesExp: 5, RefreshTokenDaysExp: 1},
	)
	logger := zap.NewNop()
	sender := &captureSender{codes: make(map[string]string)}
	registry := service.NewAppRegistry(store, time.Minute, time.Second, logger)
	tokens := service.NewTokenService("test-secret", "auth-api", 0, 0, store, store)
	auth := service.NewAuthService(service.AuthDeps{
		Logger:      logger,
		Apps:        registry,
		Users:       store,
		Tokens:      store,
		TokenIssuer: tokens,
		Hasher:      service.NewBcryptHasher(bcrypt.MinCost),
		Sender:      sender,
	})

	router := NewRouter(logger, registry, tokens, NewAuthHandler(logger, auth), NewGoogleHandler(logger, auth))
	return &testServer{router: router, store: store, sender: sender}
}

func (s *testServer) do(t *testing.T, method, path, origin string, body any, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func userField(t *testing.T, body map[string]any, field string) any {
	t.Helper()
	user, ok := body["user"].(map[string]any)
	if !ok {
		t.Fatalf("response has no user: %v", body)
	}
	return user[field]
}

func TestRouter_SignupScenario(t *testing.T) {
	s := newTestServer(t)
	req := map[string]string{"username": "mario_rossi", "email": "m@x.com", "password": "secret123"}

	rec, body := s.do(t, http.MethodPost, "/api/auth/signup", testOrigin, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rec.Code, body)
	}
	if userField(t, body, "slug") != "mario-rossi" || userField(t, body, "wasCreated") != true {
		t.Fatalf("unexpected user: %v", body["user"])
	}
	if body["accessToken"] == "" || body["refreshToken"] == "" {
		t.Fatalf("expected tokens for a non revocable app: %v", body)
	}

	rec, body = s.do(t, http.MethodPost, "/api/auth/signup", testOrigin, map[string]string{"email": "m@x.com", "password": "x"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if body["error"] != true || body["message"] != "user already registered" || body["status"] != float64(http.StatusConflict) {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestRouter_OriginGuard(t *testing.T) {
	s := newTestServer(t)
	req := map[string]string{"email": "m@x.com", "password": "secret123"}

	rec, body := s.do(t, http.MethodPost, "/api/auth/signup", "", req)
	if rec.Code != http.StatusBadRequest || body["message"] != "missing Origin header" {
		t.Fatalf("expected 400 for missing origin, got %d: %v", rec.Code, body)
	}

	rec, body = s.do(t, http.MethodPost, "/api/auth/login", "https://evil.example", req)
	if rec.Code != http.StatusForbidden || body["message"] != "application not authorized" {
		t.Fatalf("expected 403 for unknown origin, got %d: %v", rec.Code, body)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unknown origins must not get CORS headers")
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodOptions, "/api/auth/login", testOrigin, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != testOrigin {
		t.Fatalf("expected origin to be reflected, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestRouter_Healthz(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected healthz response %d: %v", rec.Code, body)
	}
}

func TestRouter_SignupRejectsLongPassword(t *testing.T) {
	s := newTestServer(t)
	req := map[string]string{"username": "mario", "password": strings.Repeat("p", 100)}

	rec, body := s.do(t, http.MethodPost, "/api/auth/signup", testOrigin, req)
	if rec.Code != http.StatusBadRequest || body["message"] != "password exceeds 72 bytes" {
		t.Fatalf("expected 400 for a long password, got %d: %v", rec.Code, body)
	}
}

func TestRouter_PasswordlessRejectsPasswordAccountTakeover(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/auth/signup", testOrigin, map[string]string{"username": "mario_rossi", "email": "m@x.com", "password": "secret123"})

	rec, body := s.do(t, http.MethodPost, "/api/auth/passwordless", testOrigin, map[string]string{"username": "mario_rossi", "email": "evil@x.com", "provider": "email"})
	if rec.Code != http.StatusConflict || body["message"] != "username already in use by another account" {
		t.Fatalf("expected 409, got %d: %v", rec.Code, body)
	}
	rec, _ = s.do(t, http.MethodPost, "/api/auth/email-signup", testOrigin, map[string]string{"username": "mario_rossi", "email": "evil@x.com"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on email signup, got %d", rec.Code)
	}

	rec, body = s.do(t, http.MethodPost, "/api/auth/login", testOrigin, map[string]string{"username": "mario_rossi", "password": "secret123"})
	if rec.Code != http.StatusOK || userField(t, body, "provider") != "password" || userField(t, body, "email") != "m@x.com" {
		t.Fatalf("password account must be untouched, got %d: %v", rec.Code, body)
	}
}

func TestRouter_InvalidBody(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString("{not json"))
	req.Header.Set("Origin", testOrigin)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRouter_LoginIsGeneric(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/auth/signup", testOrigin, map[string]string{"username": "anna", "email": "a@x.com", "password": "secret123"})

	cases := []map[string]string{
		{"email": "nobody@x.com", "password": "secret123"},
		{"email": "a@x.com", "password": "wrong"},
	}
	for _, c := range cases {
		rec, body := s.do(t, http.MethodPost, "/api/auth/login", testOrigin, c)
		if rec.Code != http.StatusUnauthorized || body["message"] != "invalid credentials" {
			t.Fatalf("expected generic 401 for %v, got %d: %v", c, rec.Code, body)
		}
	}
}

func TestRouter_RevocableLoginAndRefresh(t *testing.T) {
	s := newTestServer(t)
	creds := map[string]string{"email": "m@x.com", "password": "secret123"}
	rec, body := s.do(t, http.MethodPost, "/api/auth/signup", revocableOrigin, creds)
	if rec.Code != http.StatusOK {
		t.Fatalf("signup: %d %v", rec.Code, body)
	}

	rec, body = s.do(t, http.MethodPost, "/api/auth/login", revocableOrigin, creds)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %v", rec.Code, body)
	}
	if body["accessToken"] == "" || body["refreshToken"] != "" {
		t.Fatalf("revocable apps must only return the access token: %v", body)
	}
	userID := userField(t, body, "id").(string)
	old, err := s.store.FindByUserID(context.Background(), userID, revocableOrigin)
	if err != nil {
		t.Fatalf("stored token: %v", err)
	}

	rec, body = s.do(t, http.MethodPost, "/api/auth/refresh", revocableOrigin, map[string]string{"userId": userID})
	if rec.Code != http.StatusOK || body["accessToken"] == "" {
		t.Fatalf("refresh: %d %v", rec.Code, body)
	}
	rec, _ = s.do(t, http.MethodPost, "/api/auth/refresh", revocableOrigin, map[string]string{"refreshToken": old.Token})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected old refresh token rejected, got %d", rec.Code)
	}

	for i := 0; i < 2; i++ {
		rec, body = s.do(t, http.MethodPost, "/api/auth/logout", revocableOrigin, map[string]string{"userId": userID})
		if rec.Code != http.StatusOK || body["error"] != false {
			t.Fatalf("logout %d: %d %v", i, rec.Code, body)
		}
	}
	rec, _ = s.do(t, http.MethodPost, "/api/auth/refresh", revocableOrigin, map[string]string{"userId": userID})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected refresh after logout rejected, got %d", rec.Code)
	}
}

func TestRouter_EmailPasswordlessFlow(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodPost, "/api/auth/email-signup", testOrigin, map[string]string{"username": "anna", "email": "a@x.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("email signup: %d %v", rec.Code, body)
	}
	if exp, ok := body["otpExpiresAt"].(float64); !ok || int64(exp) <= time.Now().UnixMilli() {
		t.Fatalf("expected otpExpiresAt in the future: %v", body)
	}

	code := s.sender.code("a@x.com")
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	rec, body = s.do(t, http.MethodPost, "/api/auth/otp-confirmation", testOrigin, map[string]string{"otp": wrong, "email": "a@x.com"})
	if rec.Code != http.StatusBadRequest || body["message"] != "invalid OTP" {
		t.Fatalf("expected invalid OTP, got %d: %v", rec.Code, body)
	}

	rec, body = s.do(t, http.MethodPost, "/api/auth/otp-confirmation", testOrigin, map[string]string{"otp": code, "email": "a@x.com"})
	if rec.Code != http.StatusOK || body["userId"] == "" {
		t.Fatalf("otp confirmation: %d %v", rec.Code, body)
	}
	userID := body["userId"]

	rec, body = s.do(t, http.MethodPost, "/api/auth/passwordless", testOrigin, map[string]string{"username": "anna", "email": "a@x.com", "provider": "email"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for an existing user, got %d: %v", rec.Code, body)
	}
	if userField(t, body, "id") != userID || userField(t, body, "wasConfirmed") != true {
		t.Fatalf("unexpected user: %v", body["user"])
	}

	rec, body = s.do(t, http.MethodPost, "/api/auth/passwordless", testOrigin, map[string]string{"username": "luca", "phone": "+39333", "refId": "fb-1", "provider": "firebase"})
	if rec.Code != http.StatusCreated || userField(t, body, "wasCreated") != true {
		t.Fatalf("expected 201 for a new user, got %d: %v", rec.Code, body)
	}
}

func TestRouter_CheckUsernameAndDelete(t *testing.T) {
	s := newTestServer(t)
	_, body := s.do(t, http.MethodPost, "/api/auth/signup", testOrigin, map[string]string{"username": "mario", "email": "m@x.com", "password": "secret123"})
	userID := userField(t, body, "id").(string)

	rec, body := s.do(t, http.MethodPost, "/api/auth/check-username", testOrigin, map[string]string{"username": "mario", "email": "m@x.com"})
	if rec.Code != http.StatusOK || body["error"] != false {
		t.Fatalf("own data must be accepted, got %d: %v", rec.Code, body)
	}
	rec, _ = s.do(t, http.MethodPost, "/api/auth/check-username", testOrigin, map[string]string{"username": "other", "email": "m@x.com"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	rec, _ = s.do(t, http.MethodPost, "/api/auth/delete-user", revocableOrigin, map[string]string{"userId": userID})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("users of other apps must be invisible, got %d", rec.Code)
	}
	rec, body = s.do(t, http.MethodPost, "/api/auth/delete-user", testOrigin, map[string]string{"userId": userID})
	if rec.Code != http.StatusOK || body["userId"] != userID {
		t.Fatalf("delete: %d %v", rec.Code, body)
	}
	rec, _ = s.do(t, http.MethodPost, "/api/auth/delete-user", testOrigin, map[string]string{"userId": userID})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestRouter_GoogleExchange(t *testing.T) {
	s := newTestServer(t)
	profile := map[string]string{"refId": "g-1", "email": "g@x.com", "name": "Giulia", "picture": "p.png"}

	rec, body := s.do(t, http.MethodPost, "/api/google/signup", testOrigin, profile)
	if rec.Code != http.StatusOK || body["token"] == "" {
		t.Fatalf("google signup: %d %v", rec.Code, body)
	}
	token := body["token"]

	rec, body = s.do(t, http.MethodPost, "/api/google/user", revocableOrigin, map[string]any{"token": token})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("exchange token must be bound to its app, got %d: %v", rec.Code, body)
	}
	rec, _ = s.do(t, http.MethodPost, "/api/google/user", testOrigin, map[string]any{"token": token})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("a token presented to the wrong app is burned, got %d", rec.Code)
	}

	_, body = s.do(t, http.MethodPost, "/api/google/signup", testOrigin, profile)
	token = body["token"]
	rec, body = s.do(t, http.MethodPost, "/api/google/user", testOrigin, map[string]any{"token": token})
	if rec.Code != http.StatusOK {
		t.Fatalf("google user: %d %v", rec.Code, body)
	}
	if userField(t, body, "provider") != "google" || userField(t, body, "refId") != "g-1" || userField(t, body, "picture") != "p.png" {
		t.Fatalf("unexpected google user: %v", body["user"])
	}
	if userField(t, body, "wasCreated") != false || userField(t, body, "wasConfirmed") != true {
		t.Fatalf("second google signup must link the existing user: %v", body["user"])
	}

	rec, _ = s.do(t, http.MethodPost, "/api/google/user", testOrigin, map[string]any{"token": token})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("exchange token must be single use, got %d", rec.Code)
	}

	_, body = s.do(t, http.MethodPost, "/api/google/signup", testOrigin, profile)
	token = body["token"]
	rec, body = s.do(t, http.MethodGet, "/api/google/user?token="+url.QueryEscape(token.(string)), testOrigin, nil)
	if rec.Code != http.StatusOK || userField(t, body, "refId") != "g-1" {
		t.Fatalf("google user via query: %d %v", rec.Code, body)
	}
	rec, _ = s.do(t, http.MethodGet, "/api/google/user", testOrigin, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing query token must be rejected, got %d", rec.Code)
	}
}

func TestRouter_Me(t *testing.T) {
	s := newTestServer(t)
	_, body := s.do(t, http.MethodPost, "/api/auth/signup", testOrigin, map[string]string{"username": "mario", "email": "m@x.com", "password": "secret123"})
	access := body["accessToken"].(string)

	rec, body := s.do(t, http.MethodGet, "/api/auth/me", testOrigin, nil, "Authorization", "Bearer "+access)
	if rec.Code != http.StatusOK || userField(t, body, "slug") != "mario" {
		t.Fatalf("me: %d %v", rec.Code, body)
	}

	rec, _ = s.do(t, http.MethodGet, "/api/auth/me", revocableOrigin, nil, "Authorization", "Bearer "+access)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("tokens of other apps must be rejected, got %d", rec.Code)
	}
}
