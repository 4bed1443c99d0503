package models

import "time"

// NotificationType, bildirimi tetikleyen etkileşim.
type NotificationType string

const (
	NotificationVote     NotificationType = "vote"
	NotificationReaction NotificationType = "reaction"
	NotificationComment  NotificationType = "comment"
	NotificationMessage  NotificationType = "message"
)

// Notification, bir alıcıya ait bildirim kaydı.
//
// ActorName ve PostTitle oluşturma anındaki snapshot'lardır (canlı join değil).
// Oluşturulduktan sonra sadece IsRead değişir.
type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipient_id"`
	Type        NotificationType `json:"type"`
	ActorID     string           `json:"actor_id"`
	ActorName   string           `json:"actor_name"`
	TargetID    string           `json:"target_id"`
	TargetType  string           `json:"target_type"`
	PostID      string           `json:"post_id,omitempty"`
	PostTitle   string           `json:"post_title,omitempty"`
	Preview     string           `json:"preview,omitempty"`
	IsRead      bool             `json:"is_read"`
	CreatedAt   time.Time        `json:"created_at"`
}

// RegisterDeviceRequest, cihaz token kaydı body'si.
type RegisterDeviceRequest struct {
	Token string `json:"token"`
}
