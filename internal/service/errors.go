package service

import "errors"

// Errores de validacion (400).
var (
	ErrMissingOrigin            = errors.New("missing Origin header")
	ErrEmailOrUsernameRequired  = errors.New("email or username is required")
	ErrPasswordRequired         = errors.New("password is required")
	ErrPasswordTooLong          = errors.New("password exceeds 72 bytes")
	ErrUsernameAndEmailRequired = errors.New("username and email are required")
	ErrUsernameAndPhoneRequired = errors.New("username and phone are required")
	ErrUsernameRequired         = errors.New("username is required")
	ErrInvalidUsername          = errors.New("invalid username")
	ErrContactRequired          = errors.New("phone or email is required")
	ErrIdentityRequired         = errors.New("username, email or phone is required")
	ErrUserIDRequired           = errors.New("userId is required")
	ErrInvalidEmail             = errors.New("invalid email")
	ErrInvalidPhone             = errors.New("invalid phone")
	ErrGoogleProfileInvalid     = errors.New("refId and email are required")
)

// Errores de OTP (400).
var (
	ErrOTPInvalid = errors.New("invalid OTP")
	ErrOTPExpired = errors.New("OTP expired")
	ErrOTPPending = errors.New("OTP confirmation pending")
)

var ErrAppNotAuthorized = errors.New("application not authorized")

// Conflictos (409).
var (
	ErrUsernameTaken             = errors.New("username already in use")
	ErrUserAlreadyRegistered     = errors.New("user already registered")
	ErrEmailInUse                = errors.New("email already in use by another account")
	ErrPhoneInUse                = errors.New("phone already in use by another account")
	ErrUsernameInUseOtherAccount = errors.New("username already in use by another account")
)

// Errores de autenticacion (401).
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidRefreshToken  = errors.New("invalid or expired refresh token")
	ErrRefreshTokenWrongApp = errors.New("refresh token not valid for this application")
	ErrInvalidExchangeToken = errors.New("invalid or expired exchange token")
	ErrJWTInvalid           = errors.New("jwt invalid")
	ErrJWTExpired           = errors.New("jwt expired")
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrEmailSendFailure = errors.New("email send failed")
)
