package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims, access token'ın payload'ı.
// UserID identity provider'ın verdiği kalıcı kullanıcı kimliğidir; tüm ledger
// kayıtları bu ID ile anahtarlanır.
type TokenClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// AuthTokens, login/register/refresh sonrası client'a dönen token çifti.
type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"` // saniye
	User         *User  `json:"user"`
}

// Session, refresh token kaydı.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// RefreshRequest, refresh endpoint body'si.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}
