package pkg

import (
	"encoding/json"
	"errors"
	"net/http"
)

// APIResponse, tüm API yanıtları için standart zarf (envelope).
// Client SDK da aynı yapıyı decode eder.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	// Code, client'ın hatayı sınıflandırması için makine-okunur kısa kod.
	// "permission_denied", "transient", "not_found" ...
	Code string `json:"code,omitempty"`
}

// JSON, başarılı bir yanıt gönderir.
func JSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, APIResponse{Success: true, Data: data})
}

// Error, hata yanıtı gönderir.
// Domain error'ları otomatik olarak uygun HTTP status code'a çevrilir.
func Error(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeEnvelope(w, status, APIResponse{Success: false, Error: err.Error(), Code: code})
}

// ErrorWithMessage, özel mesajlı hata yanıtı gönderir.
func ErrorWithMessage(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, APIResponse{Success: false, Error: message})
}

func writeEnvelope(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// classify, domain error'ları HTTP status code + makine kodu ikilisine eşler.
// errors.Is wrap edilmiş error'ları da yakalar.
//
// Sıra önemli: PermissionError hem ErrPermissionDenied hem ErrForbidden ile eşleşir,
// bu yüzden önce daha spesifik olan kontrol edilir.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied"
	case errors.Is(err, ErrTransient):
		return http.StatusServiceUnavailable, "transient"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// Code, hatanın makine-okunur kodunu döner. WebSocket error event'leri de
// HTTP ile aynı kodları kullanır.
func Code(err error) string {
	_, code := classify(err)
	return code
}
