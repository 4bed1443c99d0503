// Package push, cihaz token'larına bildirim teslim eden soyutlama katmanıdır.
//
// Sender interface'i tek bir sözleşme sunar: token listesi + payload al,
// token başına başarılı/başarısız sonucu dön. Başarısız token'ları budamak
// (prune) caller'ın sorumluluğudur.
//
// Token formatı "scheme:value" şeklindedir:
//   - "mailto:ali@example.com" → Resend ile email
//   - "log:dev-phone"          → sadece log (development)
//
// MultiSender token'ları scheme'e göre doğru Sender'a yönlendirir.
package push

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Payload, kullanıcıya gösterilecek bildirim içeriği.
type Payload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Result, tek bir token için teslim sonucu.
type Result struct {
	Token   string `json:"token"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Sender, push teslimat collaborator'ı.
type Sender interface {
	SendToTokens(ctx context.Context, tokens []string, payload Payload) ([]Result, error)
}

// FailedTokens, sonuç listesinden başarısız token'ları çıkarır.
func FailedTokens(results []Result) []string {
	var failed []string
	for _, r := range results {
		if !r.Success {
			failed = append(failed, r.Token)
		}
	}
	return failed
}

// SplitToken, "scheme:value" formatındaki token'ı ayırır.
// Scheme yoksa ("abc") scheme boş döner.
func SplitToken(token string) (scheme, value string) {
	scheme, value, ok := strings.Cut(token, ":")
	if !ok {
		return "", token
	}
	return scheme, value
}

// ─── MultiSender ───

type multiSender struct {
	routes map[string]Sender
}

// NewMultiSender, scheme → Sender eşlemesiyle yönlendirici oluşturur.
// Bilinmeyen scheme'li token'lar başarısız sayılır (ve böylece budanır).
func NewMultiSender(routes map[string]Sender) Sender {
	return &multiSender{routes: routes}
}

func (m *multiSender) SendToTokens(ctx context.Context, tokens []string, payload Payload) ([]Result, error) {
	grouped := make(map[string][]string)
	var results []Result

	for _, tok := range tokens {
		scheme, _ := SplitToken(tok)
		if _, ok := m.routes[scheme]; !ok {
			results = append(results, Result{Token: tok, Success: false, Error: "unsupported token scheme"})
			continue
		}
		grouped[scheme] = append(grouped[scheme], tok)
	}

	for scheme, group := range grouped {
		res, err := m.routes[scheme].SendToTokens(ctx, group, payload)
		if err != nil {
			return nil, fmt.Errorf("push via %s: %w", scheme, err)
		}
		results = append(results, res...)
	}

	return results, nil
}

// ─── LogSender ───

type logSender struct{}

// NewLogSender, payload'ı sadece log'a yazan Sender. Development ortamı için.
func NewLogSender() Sender {
	return logSender{}
}

func (logSender) SendToTokens(_ context.Context, tokens []string, payload Payload) ([]Result, error) {
	results := make([]Result, 0, len(tokens))
	for _, tok := range tokens {
		log.Printf("[push] token=%s title=%q body=%q", tok, payload.Title, payload.Body)
		results = append(results, Result{Token: tok, Success: true})
	}
	return results, nil
}
