package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"auth-api/internal/domain"
	"auth-api/internal/service"
)

// AuthHandler expone los flujos de credenciales bajo /api/auth.
type AuthHandler struct {
	logger *zap.Logger
	auth   *service.AuthService
}

// NewAuthHandler crea una instancia de AuthHandler con dependencias necesarias.
func NewAuthHandler(logger *zap.Logger, auth *service.AuthService) *AuthHandler {
	return &AuthHandler{logger: logger, auth: auth}
}

type userBody struct {
	ID       string      `json:"id"`
	Username string      `json:"username"`
	Slug     string      `json:"slug"`
	Email    string      `json:"email"`
	Phone    string      `json:"phone"`
	Role     domain.Role `json:"role"`
	RefID    string      `json:"refId"`
	AppID    string      `json:"appId"`
	Provider string      `json:"provider"`
	Picture  string      `json:"picture,omitempty"`
}

type authUserBody struct {
	userBody
	WasCreated   bool `json:"wasCreated"`
	WasConfirmed bool `json:"wasConfirmed"`
}

type tokenBody struct {
	AccessToken            string        `json:"accessToken"`
	RefreshToken           string        `json:"refreshToken"`
	RefreshTokenExpiration int64         `json:"refreshTokenExpiration"`
	User                   *authUserBody `json:"user,omitempty"`
}

func toUserBody(u domain.User) userBody {
	return userBody{
		ID:       u.ID,
		Username: u.Username,
		Slug:     u.Slug,
		Email:    u.Email,
		Phone:    u.Phone,
		Role:     u.Role,
		RefID:    u.RefID,
		AppID:    u.AppID,
		Provider: u.Provider,
		Picture:  u.Picture,
	}
}

func toTokenBody(res service.AuthResult) tokenBody {
	return tokenBody{
		AccessToken:            res.AccessToken,
		RefreshToken:           res.RefreshToken,
		RefreshTokenExpiration: res.RefreshTokenExpiration,
		User: &authUserBody{
			userBody:     toUserBody(res.User),
			WasCreated:   res.WasCreated,
			WasConfirmed: res.WasConfirmed,
		},
	}
}

// bindJSON parsea el body; un body vacio o malformado es un 400.
func bindJSON(c *gin.Context, logger *zap.Logger, op string, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		logger.Warn("invalid "+op+" request", zap.Error(err))
		abortWithStatus(c, http.StatusBadRequest, "invalid request")
		return false
	}
	return true
}

// Signup maneja POST /api/auth/signup.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !bindJSON(c, h.logger, "signup", &req) {
		return
	}

	res, err := h.auth.Signup(c.Request.Context(), appID(c), service.SignupInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		abortWithError(c, h.logger, "signup", err)
		return
	}
	c.JSON(http.StatusOK, toTokenBody(res))
}

// EmailSignup maneja POST /api/auth/email-signup.
func (h *AuthHandler) EmailSignup(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if !bindJSON(c, h.logger, "email signup", &req) {
		return
	}

	expiresAt, err := h.auth.EmailSignup(c.Request.Context(), appID(c), req.Username, req.Email)
	if err != nil {
		abortWithError(c, h.logger, "email signup", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"error": false, "otpExpiresAt": expiresAt.UnixMilli()})
}

// OTPConfirmation maneja POST /api/auth/otp-confirmation.
func (h *AuthHandler) OTPConfirmation(c *gin.Context) {
	var req struct {
		OTP      string `json:"otp"`
		Email    string `json:"email"`
		Username string `json:"username"`
	}
	if !bindJSON(c, h.logger, "otp confirmation", &req) {
		return
	}

	userID, err := h.auth.OTPConfirmation(c.Request.Context(), appID(c), service.OTPConfirmationInput{
		OTP:      req.OTP,
		Email:    req.Email,
		Username: req.Username,
	})
	if err != nil {
		abortWithError(c, h.logger, "otp confirmation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"error": false, "userId": userID})
}

// Passwordless maneja POST /api/auth/passwordless. Devuelve 201 cuando crea el usuario.
func (h *AuthHandler) Passwordless(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Phone    string `json:"phone"`
		RefID    string `json:"refId"`
		UserID   string `json:"userId"`
		Provider string `json:"provider"`
	}
	if !bindJSON(c, h.logger, "passwordless", &req) {
		return
	}

	res, err := h.auth.Passwordless(c.Request.Context(), appID(c), service.PasswordlessInput{
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Phone,
		RefID:    req.RefID,
		UserID:   req.UserID,
		Provider: req.Provider,
	})
	if err != nil {
		abortWithError(c, h.logger, "passwordless", err)
		return
	}
	status := http.StatusOK
	if res.WasCreated {
		status = http.StatusCreated
	}
	c.JSON(status, toTokenBody(res))
}

// Login maneja POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if !bindJSON(c, h.logger, "login", &req) {
		return
	}

	res, err := h.auth.Login(c.Request.Context(), appID(c), service.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		abortWithError(c, h.logger, "login", err)
		return
	}
	c.JSON(http.StatusOK, toTokenBody(res))
}

type sessionRequest struct {
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
}

// Refresh maneja POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req sessionRequest
	if !bindJSON(c, h.logger, "refresh", &req) {
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), appID(c), req.RefreshToken, req.UserID)
	if err != nil {
		abortWithError(c, h.logger, "refresh", err)
		return
	}
	c.JSON(http.StatusOK, tokenBody{
		AccessToken:            pair.AccessToken,
		RefreshToken:           pair.RefreshToken,
		RefreshTokenExpiration: pair.RefreshTokenExpiration,
	})
}

// Logout maneja POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req sessionRequest
	if !bindJSON(c, h.logger, "logout", &req) {
		return
	}

	if err := h.auth.Logout(c.Request.Context(), appID(c), req.RefreshToken, req.UserID); err != nil {
		abortWithError(c, h.logger, "logout", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"error": false})
}

// CheckUsername maneja POST /api/auth/check-username.
func (h *AuthHandler) CheckUsername(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Phone    string `json:"phone"`
		Email    string `json:"email"`
		Provider string `json:"provider"`
	}
	if !bindJSON(c, h.logger, "check username", &req) {
		return
	}

	err := h.auth.CheckUsername(c.Request.Context(), appID(c), service.CheckUsernameInput{
		Username: req.Username,
		Phone:    req.Phone,
		Email:    req.Email,
		Provider: req.Provider,
	})
	if err != nil {
		abortWithError(c, h.logger, "check username", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"error": false})
}

// DeleteUser maneja POST /api/auth/delete-user.
func (h *AuthHandler) DeleteUser(c *gin.Context) {
	var req struct {
		UserID string `json:"userId"`
	}
	if !bindJSON(c, h.logger, "delete user", &req) {
		return
	}

	user, err := h.auth.DeleteUser(c.Request.Context(), appID(c), req.UserID)
	if err != nil {
		abortWithError(c, h.logger, "delete user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"error": false, "userId": user.ID, "refId": user.RefID})
}

// Me maneja GET /api/auth/me con el usuario del access token.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		abortWithStatus(c, http.StatusUnauthorized, service.ErrJWTInvalid.Error())
		return
	}

	user, err := h.auth.CurrentUser(c.Request.Context(), claims.AppID, claims.UserID)
	if err != nil {
		abortWithError(c, h.logger, "me", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"error": false, "user": toUserBody(user)})
}
