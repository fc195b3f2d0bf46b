package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"auth-api/internal/domain"
	"auth-api/internal/repository"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// TokenService emite, verifica y revoca pares de tokens segun la politica de cada app.
type TokenService struct {
	secret            []byte
	issuer            string
	defaultAccessTTL  time.Duration
	defaultRefreshTTL time.Duration
	tokens            repository.RefreshTokenRepository
	users             repository.UserRepository
	now               func() time.Time
}

// TokenPair es lo que recibe el cliente. En apps revocables RefreshToken siempre es "".
type TokenPair struct {
	AccessToken            string `json:"accessToken"`
	RefreshToken           string `json:"refreshToken"`
	RefreshTokenExpiration int64  `json:"refreshTokenExpiration"`
}

type Claims struct {
	UserID    string `json:"userId"`
	Username  string `json:"username,omitempty"`
	Slug      string `json:"slug,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	AppID     string `json:"appId"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

func NewTokenService(secret, issuer string, accessTTL, refreshTTL time.Duration, tokens repository.RefreshTokenRepository, users repository.UserRepository) *TokenService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	if issuer == "" {
		issuer = "auth-api"
	}
	return &TokenService{
		secret:            []byte(secret),
		issuer:            issuer,
		defaultAccessTTL:  accessTTL,
		defaultRefreshTTL: refreshTTL,
		tokens:            tokens,
		users:             users,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

func (s *TokenService) ttls(policy domain.AppRegistration) (time.Duration, time.Duration) {
	access := time.Duration(policy.AccessTokenMinutesExp) * time.Minute
	if access <= 0 {
		access = s.defaultAccessTTL
	}
	refresh := time.Duration(policy.RefreshTokenDaysExp) * 24 * time.Hour
	if refresh <= 0 {
		refresh = s.defaultRefreshTTL
	}
	return access, refresh
}

// IssuePair firma un par nuevo. En apps revocables el refresh token reemplaza al anterior
// de (usuario, app) y no se devuelve al cliente.
func (s *TokenService) IssuePair(ctx context.Context, user domain.User, policy domain.AppRegistration) (TokenPair, error) {
	if len(s.secret) == 0 {
		return TokenPair{}, ErrJWTInvalid
	}
	now := s.now()
	accessTTL, refreshTTL := s.ttls(policy)

	access, err := s.sign(Claims{
		UserID:    user.ID,
		Username:  user.Username,
		Slug:      user.Slug,
		Phone:     user.Phone,
		Email:     user.Email,
		AppID:     user.AppID,
		TokenType: tokenTypeAccess,
	}, now, accessTTL, "")
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	jti := uuid.NewString()
	refresh, err := s.sign(Claims{
		UserID:    user.ID,
		AppID:     user.AppID,
		TokenType: tokenTypeRefresh,
	}, now, refreshTTL, jti)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	pair := TokenPair{
		AccessToken:            access,
		RefreshToken:           refresh,
		RefreshTokenExpiration: int64(refreshTTL.Seconds()),
	}
	if !policy.Revocable {
		return pair, nil
	}

	err = s.tokens.Replace(ctx, domain.RefreshToken{
		ID:        jti,
		UserID:    user.ID,
		AppID:     user.AppID,
		Token:     refresh,
		ExpiresAt: now.Add(refreshTTL),
		CreatedAt: now,
	})
	if err != nil {
		return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}
	pair.RefreshToken = ""
	return pair, nil
}

// Refresh valida el refresh token presentado (o el guardado para userID en apps revocables)
// y emite un par nuevo. En apps revocables el token usado se consume antes de emitir.
func (s *TokenService) Refresh(ctx context.Context, policy domain.AppRegistration, presented, userID string) (TokenPair, domain.User, error) {
	presented = strings.TrimSpace(presented)
	userID = strings.TrimSpace(userID)

	if policy.Revocable {
		var (
			stored domain.RefreshToken
			err    error
		)
		switch {
		case userID != "":
			stored, err = s.tokens.FindByUserID(ctx, userID, policy.AppID)
		case presented != "":
			stored, err = s.tokens.FindByToken(ctx, presented, policy.AppID)
		default:
			return TokenPair{}, domain.User{}, ErrInvalidRefreshToken
		}
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return TokenPair{}, domain.User{}, ErrInvalidRefreshToken
			}
			return TokenPair{}, domain.User{}, fmt.Errorf("find refresh token: %w", err)
		}
		presented = stored.Token
	}
	if presented == "" {
		return TokenPair{}, domain.User{}, ErrInvalidRefreshToken
	}

	claims, err := s.parse(presented)
	if err != nil || claims.TokenType != tokenTypeRefresh || !s.isValidClaims(claims) {
		return TokenPair{}, domain.User{}, ErrInvalidRefreshToken
	}
	if claims.AppID != policy.AppID || (userID != "" && claims.UserID != userID) {
		return TokenPair{}, domain.User{}, ErrRefreshTokenWrongApp
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return TokenPair{}, domain.User{}, ErrUserNotFound
		}
		return TokenPair{}, domain.User{}, fmt.Errorf("find user: %w", err)
	}
	if user.AppID != policy.AppID {
		return TokenPair{}, domain.User{}, ErrUserNotFound
	}

	if policy.Revocable {
		consumed, err := s.tokens.DeleteByToken(ctx, presented, policy.AppID)
		if err != nil {
			return TokenPair{}, domain.User{}, fmt.Errorf("consume refresh token: %w", err)
		}
		if !consumed {
			return TokenPair{}, domain.User{}, ErrInvalidRefreshToken
		}
	}

	pair, err := s.IssuePair(ctx, user, policy)
	if err != nil {
		return TokenPair{}, domain.User{}, err
	}
	return pair, user, nil
}

// RevokeAll borra el refresh token de (userID, appID). No encontrar nada no es error.
func (s *TokenService) RevokeAll(ctx context.Context, userID, appID string) error {
	if err := s.tokens.DeleteByUserID(ctx, userID, appID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}

func (s *TokenService) RevokeOne(ctx context.Context, token, appID string) error {
	if _, err := s.tokens.DeleteByToken(ctx, token, appID); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (s *TokenService) ParseAccessToken(accessToken string) (Claims, error) {
	if len(s.secret) == 0 {
		return Claims{}, ErrJWTInvalid
	}
	if strings.TrimSpace(accessToken) == "" {
		return Claims{}, ErrJWTInvalid
	}
	claims, err := s.parse(accessToken)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != tokenTypeAccess || !s.isValidClaims(claims) {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *TokenService) sign(claims Claims, now time.Time, ttl time.Duration, jti string) (string, error) {
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        jti,
		Issuer:    s.issuer,
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *TokenService) parse(tokenString string) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrJWTExpired
		}
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *TokenService) isValidClaims(claims Claims) bool {
	if strings.TrimSpace(claims.UserID) == "" || strings.TrimSpace(claims.AppID) == "" {
		return false
	}
	if claims.Subject != claims.UserID {
		return false
	}
	return claims.Issuer == s.issuer
}
