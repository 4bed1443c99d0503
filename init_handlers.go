// Package main: Handler katmanı başlatma.
//
// Her handler, ihtiyaç duyduğu service interface'lerini constructor'dan alır.
package main

import (
	"github.com/akinalp/pano/handlers"
	"github.com/akinalp/pano/ws"
)

// Handlers, tüm handler instance'larını tutan container struct.
type Handlers struct {
	Auth         *handlers.AuthHandler
	Target       *handlers.TargetHandler
	Interaction  *handlers.InteractionHandler
	Notification *handlers.NotificationHandler
	Conversation *handlers.ConversationHandler
	WS           *ws.Handler
}

func initHandlers(a *App, svc *Services, hub *ws.Hub) *Handlers {
	return &Handlers{
		Auth:         handlers.NewAuthHandler(svc.Auth, a.loginLimiter),
		Target:       handlers.NewTargetHandler(svc.Content),
		Interaction:  handlers.NewInteractionHandler(svc.Interactions),
		Notification: handlers.NewNotificationHandler(svc.Notifications),
		Conversation: handlers.NewConversationHandler(svc.Conversations),
		WS:           ws.NewHandler(hub, svc.Auth, originChecker(a.cfg.Server.CORSOrigins)),
	}
}
