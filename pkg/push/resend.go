package push

import (
	"context"
	"fmt"
	"html"

	"github.com/resend/resend-go/v3"
)

// emailClient, resend client'ının kullandığımız tek metodu.
// Test'lerde sahte implementasyon verilebilmesi için interface.
type emailClient interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

type resendSender struct {
	emails    emailClient
	fromEmail string
	appName   string
}

// NewResendSender, "mailto:" token'larına Resend API üzerinden email gönderen Sender.
//
// apiKey: Resend dashboard'dan alınan API key (re_xxxxxxxx).
// fromEmail: Resend'de doğrulanmış domain altında gönderici adresi.
func NewResendSender(apiKey, fromEmail, appName string) Sender {
	client := resend.NewClient(apiKey)
	return &resendSender{
		emails:    client.Emails,
		fromEmail: fromEmail,
		appName:   appName,
	}
}

// SendToTokens, her token için ayrı bir email gönderir.
// Bir token'ın başarısız olması diğerlerini durdurmaz; sonuç token başına raporlanır.
func (s *resendSender) SendToTokens(ctx context.Context, tokens []string, payload Payload) ([]Result, error) {
	results := make([]Result, 0, len(tokens))

	for _, tok := range tokens {
		_, addr := SplitToken(tok)
		if addr == "" {
			results = append(results, Result{Token: tok, Success: false, Error: "empty address"})
			continue
		}

		params := &resend.SendEmailRequest{
			From:    fmt.Sprintf("%s <%s>", s.appName, s.fromEmail),
			To:      []string{addr},
			Subject: payload.Title,
			Html:    fmt.Sprintf("<p>%s</p>", html.EscapeString(payload.Body)),
			Text:    payload.Body,
		}

		if _, err := s.emails.SendWithContext(ctx, params); err != nil {
			results = append(results, Result{Token: tok, Success: false, Error: err.Error()})
			continue
		}
		results = append(results, Result{Token: tok, Success: true})
	}

	return results, nil
}
