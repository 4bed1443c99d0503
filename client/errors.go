package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/akinalp/pano/pkg"
)

// APIError, sunucunun {success:false} zarfıyla döndüğü hata.
//
// errors.Is ile pkg sentinel'lerine eşleşir:
//   - 403           → pkg.ErrPermissionDenied (geri alınır, tekrar denenmez)
//   - 5xx           → pkg.ErrTransient (geri alınır, farklı mesaj)
//   - 429, 404, 401, 400, 409 → ilgili sentinel
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Is(target error) bool {
	return sentinelFor(e.Status, e.Code) == target
}

// sentinelFor, status/code ikilisini pkg sentinel'ine çevirir.
// WebSocket error event'lerinde status yoktur; sadece code kullanılır.
func sentinelFor(status int, code string) error {
	switch code {
	case "permission_denied":
		return pkg.ErrPermissionDenied
	case "transient":
		return pkg.ErrTransient
	case "rate_limited":
		return pkg.ErrRateLimited
	case "not_found":
		return pkg.ErrNotFound
	case "unauthorized":
		return pkg.ErrUnauthorized
	case "bad_request":
		return pkg.ErrBadRequest
	case "already_exists":
		return pkg.ErrAlreadyExists
	}

	switch {
	case status == http.StatusForbidden:
		return pkg.ErrPermissionDenied
	case status >= 500:
		return pkg.ErrTransient
	case status == http.StatusTooManyRequests:
		return pkg.ErrRateLimited
	case status == http.StatusNotFound:
		return pkg.ErrNotFound
	case status == http.StatusUnauthorized:
		return pkg.ErrUnauthorized
	case status == http.StatusConflict:
		return pkg.ErrAlreadyExists
	case status == http.StatusBadRequest:
		return pkg.ErrBadRequest
	}
	return nil
}

// errorFromEvent, WS error event'ini API hatalarıyla aynı sınıflandırmaya sokar.
func errorFromEvent(code, message string) error {
	return &APIError{Code: code, Message: message}
}

// transportError, istek sunucuya ulaşamadığında (bağlantı, timeout) döner.
// Rollback açısından 5xx ile aynıdır.
func transportError(op string, err error) error {
	return &pkg.TransientError{Op: op, Attempts: 1, Err: err}
}

// FailureMessage, primary aksiyon başarısız olduğunda kullanıcıya gösterilecek metin.
func FailureMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, pkg.ErrPermissionDenied):
		return "You don't have permission to do that."
	case errors.Is(err, pkg.ErrRateLimited):
		return "You're doing that too fast. Please wait a moment."
	case errors.Is(err, pkg.ErrTransient):
		return "Couldn't reach the server. Your change was undone, please try again."
	case errors.Is(err, pkg.ErrNotFound):
		return "This item no longer exists."
	case errors.Is(err, pkg.ErrUnauthorized):
		return "Your session has expired. Please sign in again."
	default:
		return "Something went wrong."
	}
}
