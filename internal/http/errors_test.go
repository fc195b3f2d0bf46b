package http

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"auth-api/internal/service"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{service.ErrMissingOrigin, http.StatusBadRequest, "missing Origin header"},
		{service.ErrOTPExpired, http.StatusBadRequest, "OTP expired"},
		{fmt.Errorf("hash password: %w", service.ErrPasswordTooLong), http.StatusBadRequest, "password exceeds 72 bytes"},
		{service.ErrAppNotAuthorized, http.StatusForbidden, "application not authorized"},
		{service.ErrUserAlreadyRegistered, http.StatusConflict, "user already registered"},
		{fmt.Errorf("signup: %w", service.ErrInvalidCredentials), http.StatusUnauthorized, "invalid credentials"},
		{service.ErrUserNotFound, http.StatusNotFound, "user not found"},
		{service.ErrEmailSendFailure, http.StatusServiceUnavailable, "email send failed"},
		{errors.New("connection reset by peer"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		status, msg := statusFor(tc.err)
		if status != tc.status || msg != tc.msg {
			t.Fatalf("statusFor(%v) = %d %q, want %d %q", tc.err, status, msg, tc.status, tc.msg)
		}
	}
}
