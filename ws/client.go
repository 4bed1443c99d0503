package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akinalp/pano/pkg"
	"github.com/akinalp/pano/realtime"
)

// WebSocket bağlantı sabitleri
const (
	// writeWait: Bir mesajı yazmak için maksimum bekleme süresi.
	writeWait = 10 * time.Second

	// pongWait: Client'ın heartbeat göndermesi için beklenen maksimum süre.
	// 3 heartbeat kaçırma = 30s × 3 = 90s.
	pongWait = 90 * time.Second

	// maxMessageSize: Client'ın gönderebileceği maksimum mesaj boyutu (byte).
	maxMessageSize = 4096

	// sendBufferSize: Her client'ın send channel'ının buffer boyutu.
	// Buffer doluysa (client yavaş) bağlantı kapatılır.
	sendBufferSize = 256

	// maxSubscriptions: Tek bağlantının açabileceği abonelik sayısı.
	maxSubscriptions = 100
)

// Client, tek bir WebSocket bağlantısını ve o bağlantının aboneliklerini temsil eder.
//
// Her bağlantı için iki goroutine vardır:
//   - ReadPump: client'tan gelen event'leri okur (subscribe, typing ...)
//   - WritePump: send channel'ındaki mesajları WS'e yazar
//
// gorilla/websocket aynı anda tek okuyucu ve tek yazıcı destekler.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string

	send chan []byte
	// done kapandığında WritePump çıkar ve send'e yazma durur.
	// send channel'ı hiç kapatılmaz; böylece geç gelen bir yazma panic'e yol açmaz.
	done      chan struct{}
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc

	mu  sync.Mutex // conn yazmalarını korur
	seq atomic.Int64

	subsMu sync.Mutex
	subs   map[string]func() // sub_id → unsubscribe
	typing map[string]bool   // typing=true gönderilmiş konuşmalar
}

func newClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]func()),
		typing: make(map[string]bool),
	}
}

// ReadPump, bağlantı kapanana kadar client event'lerini okur ve işler.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
			c.close()
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("[ws] failed to set read deadline for user %s: %v", c.userID, err)
		return
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] unexpected close for user %s: %v", c.userID, err)
			}
			return
		}

		var event inboundEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			log.Printf("[ws] invalid message from user %s: %v", c.userID, err)
			continue
		}
		c.handleEvent(event)
	}
}

func (c *Client) handleEvent(event inboundEvent) {
	switch event.Op {
	case OpHeartbeat:
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("[ws] failed to set read deadline for user %s: %v", c.userID, err)
			return
		}
		c.sendEvent(Event{Op: OpHeartbeatAck})

	case OpSubscribe:
		var data SubscribeData
		if err := json.Unmarshal(event.Data, &data); err != nil || data.SubID == "" {
			c.sendError(event.Op, data.SubID, fmt.Errorf("%w: sub_id and path are required", pkg.ErrBadRequest))
			return
		}
		c.handleSubscribe(data)

	case OpUnsubscribe:
		var data UnsubscribeData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return
		}
		c.handleUnsubscribe(data.SubID)

	case OpTyping:
		var data TypingData
		if err := json.Unmarshal(event.Data, &data); err != nil || data.ConversationID == "" {
			return
		}
		c.handleTyping(data)

	default:
		log.Printf("[ws] unknown op from user %s: %s", c.userID, event.Op)
	}
}

// ─── Subscriptions ───

func (c *Client) handleSubscribe(data SubscribeData) {
	q, err := realtime.ParseQuery(data.Path)
	if err != nil {
		c.sendError(OpSubscribe, data.SubID, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error()))
		return
	}

	c.subsMu.Lock()
	_, exists := c.subs[data.SubID]
	full := len(c.subs) >= maxSubscriptions
	c.subsMu.Unlock()
	if exists {
		c.sendError(OpSubscribe, data.SubID, fmt.Errorf("%w: sub_id already in use", pkg.ErrAlreadyExists))
		return
	}
	if full {
		c.sendError(OpSubscribe, data.SubID, fmt.Errorf("%w: too many subscriptions", pkg.ErrBadRequest))
		return
	}

	subID := data.SubID
	unsubscribe, err := c.hub.subscriber.Subscribe(c.ctx, c.userID, q, func(u realtime.Update) {
		c.sendEvent(Event{Op: OpUpdate, Data: UpdateData{
			SubID:    subID,
			Path:     u.Query.String(),
			Seq:      u.Seq,
			Snapshot: u.Snapshot,
			Changes:  u.Changes,
		}})
	})
	if err != nil {
		c.sendError(OpSubscribe, subID, err)
		return
	}

	c.subsMu.Lock()
	if c.subs == nil {
		// close() araya girdi; abonelik hemen kapatılır.
		c.subsMu.Unlock()
		unsubscribe()
		return
	}
	c.subs[subID] = unsubscribe
	c.subsMu.Unlock()
}

func (c *Client) handleUnsubscribe(subID string) {
	c.subsMu.Lock()
	unsubscribe, ok := c.subs[subID]
	delete(c.subs, subID)
	c.subsMu.Unlock()

	if ok {
		unsubscribe()
	}
}

// ─── Typing ───

func (c *Client) handleTyping(data TypingData) {
	if c.hub.onTyping == nil {
		return
	}

	c.subsMu.Lock()
	if c.typing != nil {
		if data.Typing {
			c.typing[data.ConversationID] = true
		} else {
			delete(c.typing, data.ConversationID)
		}
	}
	c.subsMu.Unlock()

	if err := c.hub.onTyping(c.ctx, c.userID, data.ConversationID, data.Typing); err != nil {
		c.sendError(OpTyping, "", err)
	}
}

// ─── Lifecycle ───

// close, tüm abonelikleri kapatır, yarım kalan typing durumlarını temizler
// ve WritePump'ı durdurur. Birden fazla çağrı güvenlidir.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.cancel()

		c.subsMu.Lock()
		subs := c.subs
		typing := c.typing
		c.subs = nil
		c.typing = nil
		c.subsMu.Unlock()

		// unsubscribe, devam eden callback'in bitmesini bekler; döndükten sonra
		// bu abonelik için sendEvent çağrılmaz.
		for _, unsubscribe := range subs {
			unsubscribe()
		}

		if c.hub.onTyping != nil {
			for convID := range typing {
				if err := c.hub.onTyping(context.Background(), c.userID, convID, false); err != nil {
					log.Printf("[ws] failed to clear typing user=%s conv=%s: %v", c.userID, convID, err)
				}
			}
		}

		close(c.done)
	})
}

// ─── Writing ───

func (c *Client) sendError(op, subID string, err error) {
	c.sendEvent(Event{Op: OpError, Data: ErrorData{
		SubID:   subID,
		Op:      op,
		Code:    pkg.Code(err),
		Message: err.Error(),
	}})
}

// sendEvent, event'i send buffer'ına ekler. Asla bloklamaz:
// bağlantı kapanıyorsa event düşer, buffer doluysa bağlantı kapatılır.
func (c *Client) sendEvent(event Event) {
	event.Seq = c.seq.Add(1)
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[ws] failed to marshal event for user %s: %v", c.userID, err)
		return
	}

	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- data:
	case <-c.done:
	default:
		log.Printf("[ws] send buffer full for user %s, dropping connection", c.userID)
		c.hub.disconnect(c)
	}
}

// WritePump, send channel'ındaki mesajları WebSocket bağlantısına yazar.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		select {
		case message := <-c.send:
			if err := c.writeMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-c.done:
			c.writeMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
