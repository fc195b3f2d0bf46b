package http

import (
	"strings"

	"github.com/gin-gonic/gin"

	"auth-api/internal/service"
)

const authClaimsKey = "auth_claims"

// AccessTokenParser valida access tokens firmados por el servicio.
type AccessTokenParser interface {
	ParseAccessToken(token string) (service.Claims, error)
}

// JWTAuthMiddleware valida el Bearer token y exige que haya sido emitido para la app del
// Origin. Debe ir detras de originGuard.
func JWTAuthMiddleware(parser AccessTokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "bearer ") {
			rejectToken(c, service.ErrJWTInvalid)
			return
		}

		token := strings.TrimSpace(header[len("Bearer "):])
		claims, err := parser.ParseAccessToken(token)
		if err != nil {
			rejectToken(c, err)
			return
		}
		if claims.AppID != appID(c) {
			rejectToken(c, service.ErrJWTInvalid)
			return
		}

		c.Set(authClaimsKey, claims)
		c.Next()
	}
}

func rejectToken(c *gin.Context, err error) {
	status, msg := statusFor(err)
	abortWithStatus(c, status, msg)
}

// GetAuthClaims obtiene claims de JWT desde el contexto.
func GetAuthClaims(c *gin.Context) (service.Claims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := val.(service.Claims)
	return claims, ok
}
