// Package main: WebSocket Hub callback wire-up.
//
// Hub ws paketinde yaşıyor, typing durumu ise conversation service'te.
// Hub'ın service'lere bağımlı olmaması için köprü burada kurulur.
package main

import (
	"context"

	"github.com/akinalp/pano/services"
	"github.com/akinalp/pano/ws"
)

// registerHubCallbacks, WS "typing" op'unu presence state machine'ine bağlar.
// Bağlantı koptuğunda client typing=false gönderir; bu da aynı yoldan geçer.
func registerHubCallbacks(hub *ws.Hub, conversations services.ConversationService) {
	hub.OnTyping(func(ctx context.Context, userID, convID string, typing bool) error {
		return conversations.SetTyping(ctx, convID, userID, typing)
	})
}
