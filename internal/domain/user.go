package domain

import "time"

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleOwner   Role = "owner"
	RoleUser    Role = "user"
)

// Proveedores con los que se da de alta una identidad.
const (
	ProviderPassword = "password"
	ProviderEmail    = "email"
	ProviderFirebase = "firebase"
	ProviderGoogle   = "google"
)

// User es una identidad dentro de una app. Los campos vacios significan "no definido".
type User struct {
	ID           string     `json:"id"`
	AppID        string     `json:"app_id"`
	Username     string     `json:"username,omitempty"`
	Slug         string     `json:"slug,omitempty"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	RefID        string     `json:"ref_id,omitempty"`
	Provider     string     `json:"provider,omitempty"`
	Picture      string     `json:"picture,omitempty"`
	OtpCodeHash  string     `json:"-"`
	OtpExpiresAt *time.Time `json:"otp_expires_at,omitempty"`
	TmpField     string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// HasPendingOTP indica si hay un codigo sin confirmar.
func (u User) HasPendingOTP() bool {
	return u.OtpCodeHash != "" && u.OtpExpiresAt != nil
}

// IsPasswordlessProvider reports whether provider belongs to an OTP or federated phone flow
// where the contact method of an existing username may change.
func IsPasswordlessProvider(provider string) bool {
	return provider == ProviderEmail || provider == ProviderFirebase
}
