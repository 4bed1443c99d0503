// Package main: HTTP route registration.
//
// Route sıralama kuralı: Go 1.22 ServeMux en spesifik pattern'i seçer, ama
// okunabilirlik için literal path'ler parametrik olanlardan önce yazılır.
package main

import (
	"net/http"
	"slices"

	"github.com/rs/cors"

	"github.com/akinalp/pano/middleware"
	"github.com/akinalp/pano/services"
)

// initRoutes, middleware chain'i kurar ve tüm endpoint'leri mux'a bağlar.
func initRoutes(mux *http.ServeMux, h *Handlers, authService services.AuthService) {
	authMw := middleware.NewAuthMiddleware(authService)
	auth := func(handler http.HandlerFunc) http.Handler {
		return authMw.Require(handler)
	}

	// ─── Auth ───
	mux.HandleFunc("POST /api/auth/register", h.Auth.Register)
	mux.HandleFunc("POST /api/auth/login", h.Auth.Login)
	mux.HandleFunc("POST /api/auth/refresh", h.Auth.Refresh)
	mux.HandleFunc("POST /api/auth/logout", h.Auth.Logout)
	mux.Handle("GET /api/users/me", auth(h.Auth.Me))

	// ─── Posts & comments ───
	mux.Handle("GET /api/posts", auth(h.Target.ListPosts))
	mux.Handle("POST /api/posts", auth(h.Target.CreatePost))
	mux.Handle("GET /api/posts/{id}", auth(h.Target.GetPost))
	mux.Handle("GET /api/posts/{id}/comments", auth(h.Target.ListComments))
	mux.Handle("POST /api/posts/{id}/comments", auth(h.Target.CreateComment))
	mux.Handle("DELETE /api/targets/{id}", auth(h.Target.Delete))
	mux.Handle("POST /api/targets/{id}/lock", auth(h.Target.Lock))

	// ─── Votes & reactions ───
	mux.Handle("PUT /api/targets/{id}/vote", auth(h.Interaction.SetVote))
	mux.Handle("POST /api/targets/{id}/vote/toggle", auth(h.Interaction.ToggleVote))
	mux.Handle("PUT /api/targets/{id}/reaction", auth(h.Interaction.SetReaction))
	mux.Handle("POST /api/targets/{id}/reaction/toggle", auth(h.Interaction.ToggleReaction))

	// ─── Notifications & devices ───
	mux.Handle("GET /api/notifications", auth(h.Notification.List))
	mux.Handle("GET /api/notifications/unread-count", auth(h.Notification.UnreadCount))
	mux.Handle("POST /api/notifications/read-all", auth(h.Notification.MarkAllRead))
	mux.Handle("POST /api/notifications/{id}/read", auth(h.Notification.MarkRead))
	mux.Handle("POST /api/devices", auth(h.Notification.RegisterDevice))
	mux.Handle("DELETE /api/devices", auth(h.Notification.UnregisterDevice))

	// ─── Conversations ───
	mux.Handle("GET /api/conversations", auth(h.Conversation.List))
	mux.Handle("POST /api/conversations", auth(h.Conversation.Start))
	mux.Handle("GET /api/conversations/{id}/messages", auth(h.Conversation.Messages))
	mux.Handle("POST /api/conversations/{id}/messages", auth(h.Conversation.Send))
	mux.Handle("POST /api/conversations/{id}/read", auth(h.Conversation.MarkRead))
	mux.Handle("POST /api/conversations/{id}/typing", auth(h.Conversation.Typing))
	mux.Handle("PATCH /api/messages/{id}", auth(h.Conversation.EditMessage))
	mux.Handle("DELETE /api/messages/{id}", auth(h.Conversation.DeleteMessage))
	mux.Handle("POST /api/messages/{id}/reactions", auth(h.Conversation.ToggleReaction))

	// WebSocket: tarayıcılar upgrade sırasında header gönderemez,
	// token query parameter ile gelir ve handler kendisi doğrular.
	mux.HandleFunc("GET /ws", h.WS.HandleConnection)
}

// withCORS, mux'ı rs/cors ile sarar.
func withCORS(mux http.Handler, origins []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(mux)
}

// originChecker, WS upgrade için CORS ile aynı origin listesini uygular.
// Origin header'ı olmayan istekler (native client'lar, testler) kabul edilir.
func originChecker(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin)
	}
}
