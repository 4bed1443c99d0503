// Package pkg, projede paylaşılan utility'leri barındırır.
// Bu dosya domain-level error tanımlarını içerir.
//
// Sentinel error'lar errors.Is ile karşılaştırılır:
//
//	if errors.Is(err, pkg.ErrNotFound) { ... }
//
// Bunlara ek olarak iki yapısal (structured) error tipi var:
// PermissionError ve TransientError. İkisi de sentinel'lerle errors.Is üzerinden eşleşir,
// ama ek bağlam taşırlar (hangi operasyon, hangi path, kaç deneme).
package pkg

import (
	"errors"
	"fmt"
)

// Domain-level error'lar.
// Handler katmanı bu error'ları HTTP status code'larına map'ler.
var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrAlreadyExists = errors.New("already exists")
	ErrBadRequest    = errors.New("bad request")
	ErrInternal      = errors.New("internal error")
	ErrRateLimited   = errors.New("rate limited")

	// ErrPermissionDenied, actor'ün denediği yazma işlemine yetkisi olmadığını belirtir.
	// Otomatik retry YAPILMAZ; client optimistic state'i geri alır.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrTransient, store'un retry politikası tükendikten sonra kalan geçici hatadır.
	// Rollback açısından PermissionDenied ile aynı muamele görür, mesajı farklıdır.
	ErrTransient = errors.New("transient store failure")
)

// PermissionError, yetki reddini hangi operasyon ve hangi doküman path'i için
// olduğu bilgisiyle birlikte taşır.
//
//	&PermissionError{Op: "vote", Path: "targets/abc/votes/u1", Reason: "target is locked"}
type PermissionError struct {
	Op     string
	Path   string
	Reason string
}

func (e *PermissionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("permission denied: op=%s path=%s", e.Op, e.Path)
	}
	return fmt.Sprintf("permission denied: op=%s path=%s: %s", e.Op, e.Path, e.Reason)
}

// Is, hem ErrPermissionDenied hem ErrForbidden ile eşleşir.
// Böylece mevcut mapErrorToStatus 403'e çevirir.
func (e *PermissionError) Is(target error) bool {
	return target == ErrPermissionDenied || target == ErrForbidden
}

// Denied, PermissionError oluşturmak için kısayol.
func Denied(op, path, reason string) error {
	return &PermissionError{Op: op, Path: path, Reason: reason}
}

// TransientError, tüm retry denemeleri tükendikten sonra dönen hata.
type TransientError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient store failure: op=%s attempts=%d: %v", e.Op, e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) Is(target error) bool {
	return target == ErrTransient
}
