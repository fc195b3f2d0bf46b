package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"auth-api/internal/service"
)

// GoogleHandler cubre el alta con Google en dos pasos: signup devuelve un token de
// intercambio de un solo uso y user lo canjea por el par de tokens.
type GoogleHandler struct {
	logger *zap.Logger
	auth   *service.AuthService
}

func NewGoogleHandler(logger *zap.Logger, auth *service.AuthService) *GoogleHandler {
	return &GoogleHandler{logger: logger, auth: auth}
}

// Signup maneja POST /api/google/signup.
func (h *GoogleHandler) Signup(c *gin.Context) {
	var req struct {
		RefID   string `json:"refId"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if !bindJSON(c, h.logger, "google signup", &req) {
		return
	}

	token, err := h.auth.GoogleSignup(c.Request.Context(), appID(c), service.GoogleProfile{
		RefID:   req.RefID,
		Email:   req.Email,
		Name:    req.Name,
		Picture: req.Picture,
	})
	if err != nil {
		abortWithError(c, h.logger, "google signup", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"error": false, "token": token})
}

// User maneja GET /api/google/user?token= (redirect del callback) y POST /api/google/user.
func (h *GoogleHandler) User(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	if c.Request.Method == http.MethodGet {
		req.Token = c.Query("token")
	} else if !bindJSON(c, h.logger, "google user", &req) {
		return
	}

	res, err := h.auth.GoogleUser(c.Request.Context(), appID(c), req.Token)
	if err != nil {
		abortWithError(c, h.logger, "google user", err)
		return
	}
	c.JSON(http.StatusOK, toTokenBody(res))
}
