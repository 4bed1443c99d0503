package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Conversation, iki kullanıcı arasındaki 1:1 konuşma.
//
// ID katılımcı ID'lerinden deterministik türetilir (bkz. ConversationID);
// aynı çift için hangi giriş noktasından başlatılırsa başlatılsın aynı ID çıkar.
type Conversation struct {
	ID            string        `json:"id"`
	Participants  []Participant `json:"participants"`
	LastMessage   string        `json:"last_message"`
	LastMessageAt *time.Time    `json:"last_message_at"`
	Version       int64         `json:"version"`
	CreatedAt     time.Time     `json:"created_at"`
}

// DocVersion, önizleme, unread veya typing değiştikçe artan versiyon.
func (c *Conversation) DocVersion() int64 { return c.Version }

// Participant, konuşmadaki bir kullanıcının denormalize durumu.
type Participant struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	UnreadCount int    `json:"unread_count"`
	IsTyping    bool   `json:"is_typing"`
}

// Participant, verilen kullanıcının katılımcı kaydını döner.
func (c *Conversation) Participant(userID string) (*Participant, bool) {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i], true
		}
	}
	return nil, false
}

// Other, userID'nin karşısındaki katılımcı.
func (c *Conversation) Other(userID string) (*Participant, bool) {
	for i := range c.Participants {
		if c.Participants[i].UserID != userID {
			return &c.Participants[i], true
		}
	}
	return nil, false
}

// IsOtherTyping, viewer'ın karşısındaki katılımcının yazıyor olup olmadığı.
func (c *Conversation) IsOtherTyping(viewerID string) bool {
	other, ok := c.Other(viewerID)
	return ok && other.IsTyping
}

// HasParticipant, userID'nin bu konuşmanın tarafı olup olmadığını söyler.
func (c *Conversation) HasParticipant(userID string) bool {
	_, ok := c.Participant(userID)
	return ok
}

// ConversationID, iki kullanıcı ID'sinden sıralı birleştirme ile konuşma ID'si üretir.
func ConversationID(a, b string) string {
	lo, hi := SortPair(a, b)
	return lo + "_" + hi
}

// SortPair, iki ID'yi alfabetik sıraya koyar.
func SortPair(a, b string) (string, string) {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0], pair[1]
}

// Message, bir konuşmadaki mesaj.
//
// Soft delete: Content boşaltılır ve IsDeleted işaretlenir; ReadBy ve Reactions
// dokunulmadan kalır. Mesajlar asla fiziksel olarak silinmez.
type Message struct {
	ID             string              `json:"id"`
	ConversationID string              `json:"conversation_id"`
	SenderID       string              `json:"sender_id"`
	Content        string              `json:"content"`
	IsEdited       bool                `json:"is_edited"`
	IsDeleted      bool                `json:"is_deleted"`
	ReadBy         []string            `json:"read_by"`
	Reactions      map[string][]string `json:"reactions"` // emoji → kullanıcı ID'leri
	CreatedAt      time.Time           `json:"created_at"`
}

// IsReadBy, userID'nin bu mesajı okuyup okumadığını söyler.
func (m *Message) IsReadBy(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// StartConversationRequest, konuşma başlatma isteği.
// UserID doğrudan profil sayfasından, Username arama akışından gelir.
// İki yol da aynı deterministik ID'ye çıkar.
type StartConversationRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Validate, tam olarak bir alanın dolu olduğunu kontrol eder.
func (r *StartConversationRequest) Validate() error {
	r.UserID = strings.TrimSpace(r.UserID)
	r.Username = strings.TrimSpace(r.Username)
	if (r.UserID == "") == (r.Username == "") {
		return fmt.Errorf("exactly one of user_id or username is required")
	}
	return nil
}

// SendMessageRequest, mesaj gönderme/düzenleme body'si.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// Validate, içeriğin boş olmadığını ve uzunluk sınırını kontrol eder.
func (r *SendMessageRequest) Validate() error {
	r.Content = strings.TrimSpace(r.Content)
	if r.Content == "" {
		return fmt.Errorf("message content is required")
	}
	if utf8.RuneCountInString(r.Content) > 4000 {
		return fmt.Errorf("message must be at most 4000 characters")
	}
	return nil
}

// MessageReactionRequest, mesaj reaksiyonu toggle body'si.
type MessageReactionRequest struct {
	Emoji string `json:"emoji"`
}

// Validate, emoji'nin boş olmadığını ve makul uzunlukta olduğunu kontrol eder.
func (r *MessageReactionRequest) Validate() error {
	r.Emoji = strings.TrimSpace(r.Emoji)
	if r.Emoji == "" || utf8.RuneCountInString(r.Emoji) > 16 {
		return fmt.Errorf("invalid emoji")
	}
	return nil
}

// TypingRequest, HTTP üzerinden typing sinyali (WS alternatifi).
type TypingRequest struct {
	Typing bool `json:"typing"`
}

// PreviewOf, konuşma listesinde gösterilecek kısaltılmış mesaj önizlemesi.
func PreviewOf(content string) string {
	const max = 100
	if utf8.RuneCountInString(content) <= max {
		return content
	}
	runes := []rune(content)
	return string(runes[:max]) + "…"
}
