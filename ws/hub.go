package ws

import (
	"context"
	"log"
	"sync"

	"github.com/akinalp/pano/realtime"
)

// Subscriber, hub'ın realtime aboneliklerini açtığı taraf.
// services.SubscriptionService bu interface'i karşılar; yetki kontrolü orada yapılır.
//
// ws paketi services'i import etmez; bağımlılık main.go'da enjekte edilir.
type Subscriber interface {
	Subscribe(ctx context.Context, viewerID string, q realtime.Query, onChange func(realtime.Update)) (func(), error)
}

// TypingHandler, WS üzerinden gelen typing sinyalini presence engine'e iletir.
type TypingHandler func(ctx context.Context, userID, conversationID string, typing bool) error

// Hub, tüm WebSocket bağlantılarını yöneten merkezi yapıdır.
//
// Bağlantılar userID → Client set olarak tutulur (bir kullanıcının birden fazla
// sekmesi olabilir). Kayıt/çıkış Run goroutine'i üzerinden channel'larla yapılır;
// clients map'i okuma ağırlıklı olduğu için RWMutex ile korunur.
type Hub struct {
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	stopOnce   sync.Once

	subscriber Subscriber
	onTyping   TypingHandler
}

// NewHub, yeni bir Hub oluşturur.
func NewHub(subscriber Subscriber) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		subscriber: subscriber,
	}
}

// OnTyping, typing callback'ini ayarlar (init_callbacks.go'da).
func (h *Hub) OnTyping(fn TypingHandler) {
	h.onTyping = fn
}

// Run, Hub'ın ana event loop'udur. main.go'da `go hub.Run()` ile başlatılır.
// Shutdown çağrılınca döner.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case <-h.quit:
			return
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]bool)
	}
	h.clients[client.userID][client] = true

	log.Printf("[ws] client connected: user=%s (total connections for user: %d)",
		client.userID, len(h.clients[client.userID]))
}

// removeClient, client'ı Hub'dan çıkarır ve tüm aboneliklerini kapatır.
// Abonelikler kapatıldıktan sonra bu bağlantı için hiçbir update yazılmaz.
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	clients, ok := h.clients[client.userID]
	if ok {
		if _, exists := clients[client]; !exists {
			ok = false
		} else {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.clients, client.userID)
			}
		}
	}
	remaining := len(h.clients[client.userID])
	h.mu.Unlock()

	if !ok {
		return
	}

	client.close()
	log.Printf("[ws] client disconnected: user=%s (remaining: %d)", client.userID, remaining)
}

// disconnect, client'ı Run loop'u bloklamadan çıkış kuyruğuna atar.
func (h *Hub) disconnect(client *Client) {
	go func() {
		select {
		case h.unregister <- client:
		case <-h.quit:
		}
	}()
}

// IsOnline, kullanıcının en az bir açık bağlantısı olup olmadığını söyler.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// ConnectionCount, toplam açık bağlantı sayısı.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, clients := range h.clients {
		n += len(clients)
	}
	return n
}

// Shutdown, Run loop'unu durdurur ve tüm bağlantıları kapatır (graceful shutdown).
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() { close(h.quit) })

	h.mu.Lock()
	all := h.clients
	h.clients = make(map[string]map[*Client]bool)
	h.mu.Unlock()

	for _, clients := range all {
		for client := range clients {
			client.close()
		}
	}
	log.Println("[ws] hub shut down, all connections closed")
}
