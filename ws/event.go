// Package ws, WebSocket bağlantı yönetimi ve realtime aboneliklerin
// istemciye taşınmasını sağlar.
//
// Mimari:
//   - Hub: tüm bağlantıları kullanıcı ID'sine göre tutar
//   - Client: tek bir WebSocket bağlantısı + o bağlantının abonelikleri
//   - Event: client-server arası iletilen mesaj formatı
//
// Akış:
//  1. Client { op: "subscribe", d: { sub_id: "s1", path: "target/abc" } } gönderir
//  2. Hub'ın Subscriber'ı yetkiyi kontrol eder ve realtime bridge'e abone olur
//  3. Önce snapshot, sonra her değişiklik { op: "update" } olarak yazılır
//  4. Client "unsubscribe" gönderdiğinde veya bağlantı koptuğunda abonelik
//     kapatılır; bundan sonra o abonelik için tek bir event bile yazılmaz
package ws

import "encoding/json"

// Event, WebSocket üzerinden iletilen bir mesajı temsil eder.
//
// Op (operation): Event türü: "update", "heartbeat" vb.
// Data: Event'e özgü payload.
// Seq: Bağlantı başına artan sayaç; client eksik event tespiti için takip eder.
type Event struct {
	Op   string `json:"op"`
	Data any    `json:"d,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
}

// inboundEvent, client'tan gelen ham event. Data op'a göre ayrıca decode edilir.
type inboundEvent struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d"`
}

// ────────────────────────────────────────────
// Operation sabitleri
// ────────────────────────────────────────────

// Client → Server operasyonları
const (
	OpHeartbeat   = "heartbeat"   // Client her 30sn'de gönderir
	OpSubscribe   = "subscribe"   // Bir koleksiyona abone ol
	OpUnsubscribe = "unsubscribe" // Aboneliği kapat
	OpTyping      = "typing"      // Konuşmada yazıyor / yazmayı bıraktı
)

// Server → Client operasyonları
const (
	OpReady        = "ready"         // Bağlantı kurulduğunda ilk gönderilen
	OpHeartbeatAck = "heartbeat_ack" // Heartbeat'e yanıt
	OpUpdate       = "update"        // Abonelik snapshot'ı veya değişiklik
	OpError        = "error"         // Reddedilen istek (yetki, geçersiz path ...)
)

// ────────────────────────────────────────────
// Payload tipleri
// ────────────────────────────────────────────

// ReadyData, bağlantı kurulunca gönderilir.
type ReadyData struct {
	UserID string `json:"user_id"`
}

// SubscribeData, client → server: { sub_id, path }.
// SubID client tarafından seçilir ve o bağlantı içinde tekil olmalıdır.
type SubscribeData struct {
	SubID string `json:"sub_id"`
	Path  string `json:"path"`
}

// UnsubscribeData, client → server.
type UnsubscribeData struct {
	SubID string `json:"sub_id"`
}

// TypingData, client → server.
type TypingData struct {
	ConversationID string `json:"conversation_id"`
	Typing         bool   `json:"typing"`
}

// UpdateData, server → client: bridge'den gelen Update'in tel formatı.
type UpdateData struct {
	SubID    string `json:"sub_id"`
	Path     string `json:"path"`
	Seq      uint64 `json:"seq"`
	Snapshot bool   `json:"snapshot"`
	Changes  any    `json:"changes"`
}

// ErrorData, server → client. Code, HTTP API ile aynı makine kodlarıdır.
type ErrorData struct {
	SubID   string `json:"sub_id,omitempty"`
	Op      string `json:"op"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
