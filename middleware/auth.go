// Package middleware, HTTP request pipeline'ına eklenen ara katmanları barındırır.
//
// Go'da middleware bir fonksiyondur:
//
//	func(next http.Handler) http.Handler
//
// Middleware kendi işini yapar (ör: token doğrula), sonra next'i çağırır.
// Hata varsa next'i çağırmaz ve request burada durur.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/akinalp/pano/handlers"
	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/pkg"
)

// Authenticator, middleware'in ihtiyaç duyduğu iki auth işlemi.
// services.AuthService bunu karşılar.
type Authenticator interface {
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// AuthMiddleware, access token doğrulayıp actor'ü context'e koyar.
type AuthMiddleware struct {
	auth Authenticator
}

// NewAuthMiddleware, constructor.
func NewAuthMiddleware(auth Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// Require, geçerli bir token zorunlu kılar; yoksa 401.
//
// Token geçerli olsa bile kullanıcı silinmiş olabilir, bu yüzden kullanıcı
// DB'den okunur. Sonraki tüm ledger yazmaları bu kullanıcının ID'si ile yapılır.
func (m *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			pkg.Error(w, err)
			return
		}

		claims, err := m.auth.ValidateAccessToken(token)
		if err != nil {
			pkg.Error(w, err)
			return
		}

		actor, err := m.auth.GetUser(r.Context(), claims.UserID)
		if err != nil {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found")
			return
		}
		actor.PasswordHash = ""

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), handlers.UserContextKey, actor)))
	})
}

// bearerToken, "Authorization: Bearer <token>" header'ını okur.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("%w: authorization header required", pkg.ErrUnauthorized)
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: use Authorization: Bearer <token>", pkg.ErrUnauthorized)
	}
	return strings.TrimSpace(token), nil
}
