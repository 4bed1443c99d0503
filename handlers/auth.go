// Package handlers, HTTP request/response işlemlerini yönetir.
//
// Handler'ın görevi çok basit ve "ince" (thin) olmalı:
// 1. Request body'yi parse et (JSON → struct)
// 2. Service katmanını çağır
// 3. Sonucu HTTP response olarak döndür
//
// Handler ASLA iş mantığı (business logic) içermez.
// Handler ASLA doğrudan DB'ye erişmez.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/pkg"
	"github.com/akinalp/pano/pkg/ratelimit"
	"github.com/akinalp/pano/services"
)

// AuthHandler, auth endpoint'lerini yöneten struct.
type AuthHandler struct {
	authService  services.AuthService
	loginLimiter *ratelimit.KeyedLimiter
}

// NewAuthHandler, constructor.
// loginLimiter: IP bazlı brute-force koruması. nil ise rate limiting devre dışı kalır.
func NewAuthHandler(authService services.AuthService, loginLimiter *ratelimit.KeyedLimiter) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		loginLimiter: loginLimiter,
	}
}

// Register godoc
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if !decode(w, r, &req) {
		return
	}
	h.respondTokens(w, http.StatusCreated)(h.authService.Register(r.Context(), &req))
}

// Login godoc
// POST /api/auth/login
//
// Başarılı login IP sayacını sıfırlar; meşru kullanıcı bir sonraki
// oturumunda limite takılmaz.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ip := ratelimit.ExtractIP(r)
	if h.throttled(w, ip) {
		return
	}

	var req models.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	tokens, err := h.authService.Login(r.Context(), &req)
	if err == nil && h.loginLimiter != nil {
		h.loginLimiter.Reset(ip)
	}
	h.respondTokens(w, http.StatusOK)(tokens, err)
}

// Refresh godoc
// POST /api/auth/refresh
// Body: { "refresh_token": "..." }
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := refreshTokenFrom(w, r)
	if !ok {
		return
	}
	h.respondTokens(w, http.StatusOK)(h.authService.RefreshToken(r.Context(), token))
}

// Logout godoc
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := refreshTokenFrom(w, r)
	if !ok {
		return
	}
	if err := h.authService.Logout(r.Context(), token); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Me godoc
// GET /api/users/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	if user, ok := currentUser(w, r); ok {
		pkg.JSON(w, http.StatusOK, user)
	}
}

// throttled, IP login limitini aşmışsa 429 + Retry-After yazar.
func (h *AuthHandler) throttled(w http.ResponseWriter, ip string) bool {
	if h.loginLimiter == nil || h.loginLimiter.Allow(ip) {
		return false
	}
	retryAfter := h.loginLimiter.RetryAfterSeconds(ip)
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	pkg.ErrorWithMessage(w, http.StatusTooManyRequests,
		fmt.Sprintf("too many login attempts, please try again in %s",
			ratelimit.FormatRetryMessage(retryAfter)))
	return true
}

func (h *AuthHandler) respondTokens(w http.ResponseWriter, status int) func(*models.AuthTokens, error) {
	return func(tokens *models.AuthTokens, err error) {
		if err != nil {
			pkg.Error(w, err)
			return
		}
		pkg.JSON(w, status, tokens)
	}
}

func refreshTokenFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req models.RefreshRequest
	if !decode(w, r, &req) {
		return "", false
	}
	if req.RefreshToken == "" {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "refresh_token is required")
		return "", false
	}
	return req.RefreshToken, true
}

// ─── Ortak yardımcılar ───

// contextKey, context.Value çakışmalarını önlemek için özel key tipi.
type contextKey string

// UserContextKey, AuthMiddleware'in doğrulanmış kullanıcıyı koyduğu key.
const UserContextKey contextKey = "user"

// currentUser, context'teki kullanıcıyı okur. Yoksa 401 yazar ve false döner.
func currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return nil, false
	}
	return user, true
}

// queryLimit, ?limit= parametresini okur; geçersiz veya yoksa fallback.
func queryLimit(r *http.Request, fallback int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

// decode, JSON body'yi okur. Hatalıysa 400 yazar ve false döner.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
