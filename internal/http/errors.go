package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"auth-api/internal/service"
)

type errorStatus struct {
	err    error
	status int
}

// errorStatuses traduce los errores del servicio a codigos HTTP. El orden no importa: los
// sentinelas son disjuntos.
var errorStatuses = []errorStatus{
	{service.ErrMissingOrigin, http.StatusBadRequest},
	{service.ErrEmailOrUsernameRequired, http.StatusBadRequest},
	{service.ErrPasswordRequired, http.StatusBadRequest},
	{service.ErrPasswordTooLong, http.StatusBadRequest},
	{service.ErrUsernameAndEmailRequired, http.StatusBadRequest},
	{service.ErrUsernameAndPhoneRequired, http.StatusBadRequest},
	{service.ErrUsernameRequired, http.StatusBadRequest},
	{service.ErrInvalidUsername, http.StatusBadRequest},
	{service.ErrContactRequired, http.StatusBadRequest},
	{service.ErrIdentityRequired, http.StatusBadRequest},
	{service.ErrUserIDRequired, http.StatusBadRequest},
	{service.ErrInvalidEmail, http.StatusBadRequest},
	{service.ErrInvalidPhone, http.StatusBadRequest},
	{service.ErrGoogleProfileInvalid, http.StatusBadRequest},
	{service.ErrOTPInvalid, http.StatusBadRequest},
	{service.ErrOTPExpired, http.StatusBadRequest},
	{service.ErrOTPPending, http.StatusBadRequest},

	{service.ErrAppNotAuthorized, http.StatusForbidden},

	{service.ErrUsernameTaken, http.StatusConflict},
	{service.ErrUserAlreadyRegistered, http.StatusConflict},
	{service.ErrEmailInUse, http.StatusConflict},
	{service.ErrPhoneInUse, http.StatusConflict},
	{service.ErrUsernameInUseOtherAccount, http.StatusConflict},

	{service.ErrInvalidCredentials, http.StatusUnauthorized},
	{service.ErrInvalidRefreshToken, http.StatusUnauthorized},
	{service.ErrRefreshTokenWrongApp, http.StatusUnauthorized},
	{service.ErrInvalidExchangeToken, http.StatusUnauthorized},
	{service.ErrJWTInvalid, http.StatusUnauthorized},
	{service.ErrJWTExpired, http.StatusUnauthorized},

	{service.ErrUserNotFound, http.StatusNotFound},
	{service.ErrEmailSendFailure, http.StatusServiceUnavailable},
}

const internalErrorMessage = "internal server error"

// statusFor devuelve el codigo y el mensaje publico para err.
func statusFor(err error) (int, string) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status, e.err.Error()
		}
	}
	return http.StatusInternalServerError, internalErrorMessage
}

// abortWithError escribe {error, message, status} y corta la cadena de handlers.
func abortWithError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(op+" failed", zap.Error(err))
	} else {
		logger.Debug(op+" rejected", zap.Int("status", status), zap.Error(err))
	}
	abortWithStatus(c, status, msg)
}

func abortWithStatus(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": true, "message": msg, "status": status})
}
