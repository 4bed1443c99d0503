// Package main: Service katmanı başlatma.
//
// initServices, tüm service'leri bağımlılık sırasıyla oluşturur:
// notification → interaction/content/conversation → reconcile/subscription.
package main

import (
	"log"
	"time"

	"github.com/akinalp/pano/config"
	"github.com/akinalp/pano/pkg/push"
	"github.com/akinalp/pano/services"
)

// Services, tüm service instance'larını tutan container struct.
type Services struct {
	Auth          services.AuthService
	Notifications services.NotificationService
	Interactions  services.InteractionService
	Content       services.ContentService
	Conversations services.ConversationService
	Presence      *services.Presence
	Reconcile     services.ReconcileService
	Subscriptions services.SubscriptionService
}

func initServices(a *App) *Services {
	cfg := a.cfg

	authService := services.NewAuthService(a.store, services.AuthSettings{
		Secret:     cfg.JWT.Secret,
		AccessTTL:  time.Duration(cfg.JWT.AccessTokenExpiry) * time.Minute,
		RefreshTTL: time.Duration(cfg.JWT.RefreshTokenExpiry) * 24 * time.Hour,
	})

	notificationService := services.NewNotificationService(
		a.store, a.queue, a.bridge, initPushSender(cfg.Push),
		a.titles, a.names, cfg.Notify.PlaceholderTitle,
	)

	conversationService, presence := services.NewConversationService(
		a.store, a.bridge, notificationService, a.queue, services.RealTimers,
		services.PresenceSettings{
			QuietPeriod:   cfg.Presence.TypingQuietPeriod,
			SendLimiter:   a.sendLimiter,
			TypingLimiter: a.typingLimiter,
		},
	)

	return &Services{
		Auth:          authService,
		Notifications: notificationService,
		Interactions:  services.NewInteractionService(a.store, a.bridge, notificationService),
		Content:       services.NewContentService(a.store, a.bridge, notificationService),
		Conversations: conversationService,
		Presence:      presence,
		Reconcile:     services.NewReconcileService(a.store, a.bridge),
		Subscriptions: services.NewSubscriptionService(a.store, a.bridge),
	}
}

// initPushSender, token scheme'lerine göre sender yönlendiricisi kurar.
// Resend API key yoksa "mailto:" token'ları da log sender'a düşer.
func initPushSender(cfg config.PushConfig) push.Sender {
	logSender := push.NewLogSender()
	routes := map[string]push.Sender{"log": logSender}

	if cfg.ResendAPIKey != "" {
		routes["mailto"] = push.NewResendSender(cfg.ResendAPIKey, cfg.FromEmail, cfg.AppName)
		log.Printf("[push] resend delivery enabled (from=%s)", cfg.FromEmail)
	} else {
		routes["mailto"] = logSender
		log.Println("[push] RESEND_API_KEY not set, push payloads are only logged")
	}

	return push.NewMultiSender(routes)
}
