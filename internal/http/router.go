package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"auth-api/internal/domain"
)

const appPolicyKey = "app_policy"

// OriginPolicies resuelve el Origin de la peticion a la politica de su app.
type OriginPolicies interface {
	Lookup(ctx context.Context, appID string) (domain.AppRegistration, error)
	IsAllowedOrigin(ctx context.Context, origin string) bool
}

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	apps OriginPolicies,
	tokens AccessTokenParser,
	authH *AuthHandler,
	googleH *GoogleHandler,
) *gin.Engine {
	r := gin.New()

	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), corsMiddleware(apps))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api", originGuard(logger, apps), jsonContentTypeMiddleware())

	auth := api.Group("/auth")
	auth.POST("/signup", authH.Signup)
	auth.POST("/email-signup", authH.EmailSignup)
	auth.POST("/otp-confirmation", authH.OTPConfirmation)
	auth.POST("/passwordless", authH.Passwordless)
	auth.POST("/login", authH.Login)
	auth.POST("/refresh", authH.Refresh)
	auth.POST("/logout", authH.Logout)
	auth.POST("/check-username", authH.CheckUsername)
	auth.POST("/delete-user", authH.DeleteUser)
	auth.GET("/me", JWTAuthMiddleware(tokens), authH.Me)

	google := api.Group("/google")
	google.POST("/signup", googleH.Signup)
	google.GET("/user", googleH.User)
	google.POST("/user", googleH.User)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.String("origin", c.GetHeader("Origin")),
		)
	}
}

// corsMiddleware solo refleja origenes registrados y contesta los preflight.
func corsMiddleware(apps OriginPolicies) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && apps.IsAllowedOrigin(c.Request.Context(), origin) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// originGuard exige un Origin registrado y deja su politica en el contexto.
func originGuard(logger *zap.Logger, apps OriginPolicies) gin.HandlerFunc {
	return func(c *gin.Context) {
		policy, err := apps.Lookup(c.Request.Context(), strings.TrimSpace(c.GetHeader("Origin")))
		if err != nil {
			abortWithError(c, logger, "origin check", err)
			return
		}
		c.Set(appPolicyKey, policy)
		c.Next()
	}
}

// appID devuelve la app resuelta por originGuard.
func appID(c *gin.Context) string {
	val, ok := c.Get(appPolicyKey)
	if !ok {
		return ""
	}
	policy, _ := val.(domain.AppRegistration)
	return policy.AppID
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
