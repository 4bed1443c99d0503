// Package ratelimit, key bazlı (kullanıcı ID'si veya IP) token bucket rate limiting sağlar.
//
// Her key için ayrı bir golang.org/x/time/rate Limiter tutulur. Uzun süre
// kullanılmayan limiter'lar arka plan goroutine'i ile temizlenir.
//
// Kullanım alanları:
//   - Login: IP bazlı brute-force koruması
//   - Mesaj gönderimi: kullanıcı bazlı spam koruması
//   - Typing event'leri: WebSocket üzerinden gelen keystroke sinyalleri
//
// pkg/ratelimit hiçbir proje içi pakete bağımlı değildir (leaf dependency).
package ratelimit

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type keyedEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter, key başına token bucket.
//
//	limiter := ratelimit.New(2, 5, 10*time.Minute) // saniyede 2, burst 5
//	if !limiter.Allow(userID) { return 429 }
type KeyedLimiter struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// New, yeni bir KeyedLimiter oluşturur.
// perSecond <= 0 ise limiter devre dışıdır (her şeye izin verir).
// idleTTL > 0 ise bu süre boyunca kullanılmayan key'ler periyodik olarak silinir.
func New(perSecond float64, burst int, idleTTL time.Duration) *KeyedLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}

	l := &KeyedLimiter{
		entries:     make(map[string]*keyedEntry),
		limit:       limit,
		burst:       burst,
		idleTTL:     idleTTL,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	if idleTTL > 0 {
		go l.cleanupLoop()
	}

	return l
}

// Allow, key için bir token tüketir. Token yoksa false; caller 429 dönmeli.
func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	return l.entry(key, now).limiter.AllowN(now, 1)
}

// RetryAfterSeconds, bir sonraki token'ın ne zaman hazır olacağını saniye cinsinden döner.
// HTTP Retry-After header değeri olarak kullanılır. Token hazırsa 0.
func (l *KeyedLimiter) RetryAfterSeconds(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e := l.entry(key, now)
	if e.limiter.TokensAt(now) >= 1 || l.limit == rate.Inf || l.limit == 0 {
		return 0
	}

	missing := 1 - e.limiter.TokensAt(now)
	return int(math.Ceil(missing / float64(l.limit)))
}

// Reset, key'in bucket'ını siler. Başarılı login sonrası sayaç sıfırlamak için.
func (l *KeyedLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, key)
}

// Close, cleanup goroutine'ini durdurur.
func (l *KeyedLimiter) Close() {
	l.closeOnce.Do(func() { close(l.stopCleanup) })
}

func (l *KeyedLimiter) entry(key string, now time.Time) *keyedEntry {
	e, ok := l.entries[key]
	if !ok {
		e = &keyedEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e
}

func (l *KeyedLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.idleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

func (l *KeyedLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idleTTL)
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}

// ExtractIP, request'ten gerçek client IP'sini çıkarır.
// Öncelik: X-Forwarded-For (ilk değer) → X-Real-IP → RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// FormatRetryMessage, kalan süreyi okunabilir formata çevirir.
// Örn: 120 → "2 minute(s)", 45 → "45 second(s)"
func FormatRetryMessage(seconds int) string {
	if seconds >= 60 {
		return fmt.Sprintf("%d minute(s)", seconds/60)
	}
	return fmt.Sprintf("%d second(s)", seconds)
}
