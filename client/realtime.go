package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akinalp/pano/realtime"
)

const (
	heartbeatInterval = 30 * time.Second
	writeWait         = 10 * time.Second
)

// ErrRealtimeClosed, kapatılmış bağlantı üzerinde Subscribe çağrılınca döner.
var ErrRealtimeClosed = errors.New("realtime connection closed")

// Change, sunucudan gelen tek bir doküman değişikliği. Data ham JSON'dur;
// koleksiyona göre (models.Target, models.Message ...) çözülür.
type Change struct {
	Type    realtime.ChangeType `json:"type"`
	ID      string              `json:"id"`
	Data    json.RawMessage     `json:"data"`
	Version int64               `json:"version,omitempty"`
}

// Update, bir aboneye teslim edilen snapshot veya değişiklik grubu.
type Update struct {
	Path     string   `json:"path"`
	Seq      uint64   `json:"seq"`
	Snapshot bool     `json:"snapshot"`
	Changes  []Change `json:"changes"`

	sub *clientSub
	rt  *Realtime
}

// Stop, aboneliği sonlandırır; callback içinden de güvenle çağrılır.
// Döndükten sonra aynı abonelik için yeni callback başlamaz.
func (u Update) Stop() {
	if u.sub == nil {
		return
	}
	u.sub.active.Store(false)
	u.rt.forget(u.sub)
}

type clientSub struct {
	id       string
	path     string
	onChange func(Update)

	// mu, callback çalışırken tutulur; unsubscribe bunu alarak devam eden
	// callback'in bitmesini bekler.
	mu     sync.Mutex
	active atomic.Bool

	ready     chan error
	readyOnce sync.Once
}

func (s *clientSub) resolve(err error) {
	s.readyOnce.Do(func() {
		s.ready <- err
	})
}

// Realtime, tek bir WebSocket bağlantısı üzerinden çoklu abonelik yönetir.
//
// Callback'ler okuma goroutine'inde sırayla çalışır; bu yüzden bir abonelik
// içinde değişiklikler sunucunun gönderdiği sırayla gelir.
type Realtime struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu     sync.Mutex
	subs   map[string]*clientSub
	closed bool

	nextID atomic.Int64
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// DialRealtime, baseURL'in ws karşılığına token ile bağlanır ve "ready" bekler.
//
//	rt, err := client.DialRealtime(ctx, "http://localhost:9090", token)
func DialRealtime(ctx context.Context, baseURL, token string) (*Realtime, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/ws")
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"token": {token}}.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: "websocket handshake rejected"}
		}
		return nil, transportError("dial realtime", err)
	}

	var ready struct {
		Op string `json:"op"`
	}
	if err := conn.ReadJSON(&ready); err != nil || ready.Op != "ready" {
		conn.Close()
		return nil, transportError("dial realtime", fmt.Errorf("expected ready event: %v", err))
	}

	rt := &Realtime{
		conn: conn,
		subs: make(map[string]*clientSub),
		done: make(chan struct{}),
	}
	rt.wg.Add(2)
	go rt.readLoop()
	go rt.heartbeatLoop()
	return rt, nil
}

// Subscribe, path'e ("target/<id>", "messages/<conv>" ...) abone olur ve
// ilk snapshot teslim edilene kadar bekler. Sunucu reddederse hata döner.
//
// Dönen unsubscribe fonksiyonu döndükten sonra onChange bir daha çağrılmaz.
// Callback içinden aboneliği bitirmek için Update.Stop kullanılmalıdır.
func (rt *Realtime) Subscribe(ctx context.Context, path string, onChange func(Update)) (func(), error) {
	sub := &clientSub{
		id:       "s" + strconv.FormatInt(rt.nextID.Add(1), 10),
		path:     path,
		onChange: onChange,
		ready:    make(chan error, 1),
	}
	sub.active.Store(true)

	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil, ErrRealtimeClosed
	}
	rt.subs[sub.id] = sub
	rt.mu.Unlock()

	if err := rt.send("subscribe", map[string]string{"sub_id": sub.id, "path": path}); err != nil {
		rt.forget(sub)
		return nil, transportError("subscribe", err)
	}

	unsubscribe := func() { rt.unsubscribe(sub) }

	select {
	case err := <-sub.ready:
		if err != nil {
			rt.forget(sub)
			return nil, err
		}
		return unsubscribe, nil
	case <-ctx.Done():
		unsubscribe()
		return nil, ctx.Err()
	case <-rt.done:
		return nil, ErrRealtimeClosed
	}
}

func (rt *Realtime) unsubscribe(sub *clientSub) {
	sub.mu.Lock()
	sub.active.Store(false)
	sub.mu.Unlock()

	rt.forget(sub)
}

// forget, aboneliği map'ten çıkarır ve sunucuya bildirir. Birden fazla çağrı güvenlidir.
func (rt *Realtime) forget(sub *clientSub) {
	rt.mu.Lock()
	_, ok := rt.subs[sub.id]
	delete(rt.subs, sub.id)
	closed := rt.closed
	rt.mu.Unlock()

	if ok && !closed {
		if err := rt.send("unsubscribe", map[string]string{"sub_id": sub.id}); err != nil {
			log.Printf("[realtime] failed to send unsubscribe for %s: %v", sub.path, err)
		}
	}
}

func (rt *Realtime) send(op string, data any) error {
	rt.writeMu.Lock()
	defer rt.writeMu.Unlock()

	if err := rt.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return rt.conn.WriteJSON(map[string]any{"op": op, "d": data})
}

type inbound struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d"`
}

type inboundUpdate struct {
	SubID string `json:"sub_id"`
	Update
}

type inboundError struct {
	SubID   string `json:"sub_id"`
	Op      string `json:"op"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (rt *Realtime) readLoop() {
	defer rt.wg.Done()
	defer rt.shutdown()

	for {
		var ev inbound
		if err := rt.conn.ReadJSON(&ev); err != nil {
			select {
			case <-rt.done:
			default:
				log.Printf("[realtime] connection lost: %v", err)
			}
			return
		}

		switch ev.Op {
		case "update":
			var u inboundUpdate
			if err := json.Unmarshal(ev.Data, &u); err != nil {
				log.Printf("[realtime] invalid update: %v", err)
				continue
			}
			rt.deliver(u.SubID, u.Update)

		case "error":
			var e inboundError
			if err := json.Unmarshal(ev.Data, &e); err != nil {
				continue
			}
			rt.fail(e)
		}
	}
}

func (rt *Realtime) deliver(subID string, u Update) {
	rt.mu.Lock()
	sub := rt.subs[subID]
	rt.mu.Unlock()
	if sub == nil {
		return
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()

	if !sub.active.Load() {
		return
	}
	u.sub = sub
	u.rt = rt
	sub.onChange(u)
	sub.resolve(nil)
}

func (rt *Realtime) fail(e inboundError) {
	if e.SubID == "" {
		log.Printf("[realtime] server error op=%s code=%s: %s", e.Op, e.Code, e.Message)
		return
	}

	rt.mu.Lock()
	sub := rt.subs[e.SubID]
	rt.mu.Unlock()
	if sub != nil {
		sub.resolve(errorFromEvent(e.Code, e.Message))
	}
}

func (rt *Realtime) heartbeatLoop() {
	defer rt.wg.Done()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := rt.send("heartbeat", nil); err != nil {
				return
			}
		case <-rt.done:
			return
		}
	}
}

// SetTyping, konuşmada typing sinyali gönderir (fire-and-forget).
func (rt *Realtime) SetTyping(conversationID string, typing bool) error {
	return rt.send("typing", map[string]any{"conversation_id": conversationID, "typing": typing})
}

func (rt *Realtime) shutdown() {
	rt.once.Do(func() {
		rt.mu.Lock()
		rt.closed = true
		subs := rt.subs
		rt.subs = make(map[string]*clientSub)
		rt.mu.Unlock()

		close(rt.done)
		for _, sub := range subs {
			sub.resolve(ErrRealtimeClosed)
		}
	})
}

// Close, bağlantıyı kapatır ve arka plan goroutine'lerinin bitmesini bekler.
// Close döndükten sonra hiçbir callback çalışmaz.
func (rt *Realtime) Close() error {
	rt.shutdown()

	rt.writeMu.Lock()
	_ = rt.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = rt.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	rt.writeMu.Unlock()

	err := rt.conn.Close()
	rt.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
