package domain

// AppRegistration describe la politica de tokens de una app cliente (AppID == Origin).
type AppRegistration struct {
	AppID                 string `json:"app_id"`
	Revocable             bool   `json:"revocable"`
	AccessTokenMinutesExp int    `json:"access_token_minutes_exp"`
	RefreshTokenDaysExp   int    `json:"refresh_token_days_exp"`
}
