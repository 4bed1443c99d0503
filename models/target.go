package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// TargetKind, etkileşim alabilen içerik türü.
type TargetKind string

const (
	TargetPost    TargetKind = "post"
	TargetComment TargetKind = "comment"
)

// Target, oy ve reaksiyon alabilen bir post veya comment.
//
// VoteCount ve ReactionCounts ledger'dan türetilen cache değerlerdir:
// VoteCount = bu target'taki tüm oy değerlerinin toplamı,
// ReactionCounts[t] = t tipindeki reaksiyon kayıtlarının sayısı.
// Sadece interaction service (ve reconcile) tarafından değiştirilir.
type Target struct {
	ID             string               `json:"id"`
	Kind           TargetKind           `json:"kind"`
	CommunityID    string               `json:"community_id"`
	PostID         *string              `json:"post_id,omitempty"`   // comment ise ait olduğu post
	ParentID       *string              `json:"parent_id,omitempty"` // reply ise üst comment
	AuthorID       string               `json:"author_id"`
	Title          string               `json:"title,omitempty"`
	Body           string               `json:"body"`
	VoteCount      int                  `json:"vote_count"`
	ReactionCounts map[ReactionType]int `json:"reaction_counts"`
	Locked         bool                 `json:"locked"`
	Version        int64                `json:"version"` // her aggregate/kilit değişiminde +1
	CreatedAt      time.Time            `json:"created_at"`
}

// DocVersion, realtime bridge'in eski yayınları ayıklamak için okuduğu versiyon.
func (t *Target) DocVersion() int64 { return t.Version }

// RootPostID, target'ın bağlı olduğu post'un ID'si (post ise kendisi).
func (t *Target) RootPostID() string {
	if t.Kind == TargetComment && t.PostID != nil {
		return *t.PostID
	}
	return t.ID
}

// CreatePostRequest, yeni post isteği.
type CreatePostRequest struct {
	CommunityID string `json:"community_id"`
	Title       string `json:"title"`
	Body        string `json:"body"`
}

// Validate, başlık ve gövde uzunluklarını kontrol eder.
func (r *CreatePostRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	r.CommunityID = strings.TrimSpace(r.CommunityID)
	if r.Title == "" {
		return fmt.Errorf("title is required")
	}
	if utf8.RuneCountInString(r.Title) > 300 {
		return fmt.Errorf("title must be at most 300 characters")
	}
	if utf8.RuneCountInString(r.Body) > 40000 {
		return fmt.Errorf("body must be at most 40000 characters")
	}
	return nil
}

// CreateCommentRequest, yeni comment isteği. ParentID nil ise post'a doğrudan yanıt.
type CreateCommentRequest struct {
	ParentID *string `json:"parent_id"`
	Body     string  `json:"body"`
}

// Validate, comment gövdesini kontrol eder.
func (r *CreateCommentRequest) Validate() error {
	r.Body = strings.TrimSpace(r.Body)
	if r.Body == "" {
		return fmt.Errorf("comment body is required")
	}
	if utf8.RuneCountInString(r.Body) > 10000 {
		return fmt.Errorf("comment must be at most 10000 characters")
	}
	if r.ParentID != nil && strings.TrimSpace(*r.ParentID) == "" {
		r.ParentID = nil
	}
	return nil
}
