package models

import "fmt"

// VoteValue, bir actor'ün bir target üzerindeki oyu: -1, 0 veya +1.
// 0 "oy yok" demektir ve ledger'da satır olarak SAKLANMAZ.
type VoteValue int

const (
	VoteDown VoteValue = -1
	VoteNone VoteValue = 0
	VoteUp   VoteValue = 1
)

// Validate, değerin {-1, 0, 1} kümesinde olduğunu kontrol eder.
func (v VoteValue) Validate() error {
	if v < VoteDown || v > VoteUp {
		return fmt.Errorf("vote value must be -1, 0 or 1")
	}
	return nil
}

// Toggle, mevcut oy ve istenen yön verildiğinde hedef durumu hesaplar:
// aynı yöne tekrar basmak oyu kaldırır, diğer durumlarda yön uygulanır.
func (v VoteValue) Toggle(direction VoteValue) VoteValue {
	if v == direction {
		return VoteNone
	}
	return direction
}

// ReactionType, sabit reaksiyon kümesinden biri.
type ReactionType string

const (
	ReactionLike  ReactionType = "like"
	ReactionLove  ReactionType = "love"
	ReactionHaha  ReactionType = "haha"
	ReactionWow   ReactionType = "wow"
	ReactionSad   ReactionType = "sad"
	ReactionAngry ReactionType = "angry"
)

// ReactionTypes, izin verilen reaksiyonlar (gösterim sırası).
var ReactionTypes = []ReactionType{
	ReactionLike, ReactionLove, ReactionHaha, ReactionWow, ReactionSad, ReactionAngry,
}

// Valid, tipin sabit kümede olup olmadığını söyler.
func (r ReactionType) Valid() bool {
	for _, t := range ReactionTypes {
		if t == r {
			return true
		}
	}
	return false
}

// ToggleReaction, mevcut reaksiyon ve basılan tip verildiğinde hedef durumu döner.
// Aynı tipe tekrar basmak kaldırır (nil), farklı tip eskisinin yerine geçer.
func ToggleReaction(current *ReactionType, pressed ReactionType) *ReactionType {
	if current != nil && *current == pressed {
		return nil
	}
	return &pressed
}

// VoteRequest, PUT /vote (istenen mutlak durum) ve POST /vote/toggle (yön) body'si.
type VoteRequest struct {
	Value VoteValue `json:"value"`
}

// ReactionRequest, PUT /reaction ve POST /reaction/toggle body'si.
// PUT'ta Type nil ise reaksiyon kaldırılır.
type ReactionRequest struct {
	Type *ReactionType `json:"type"`
}

// Validate, tip verilmişse geçerli olduğunu kontrol eder.
func (r *ReactionRequest) Validate() error {
	if r.Type != nil && !r.Type.Valid() {
		return fmt.Errorf("unknown reaction type %q", *r.Type)
	}
	return nil
}

// VoteResult, ApplyVote'un sonucu.
// Delta aggregate'e uygulanan değişim, Value actor'ün yeni ledger durumu,
// VoteCount commit sonrası cache değeri.
type VoteResult struct {
	TargetID  string    `json:"target_id"`
	Delta     int       `json:"delta"`
	Previous  VoteValue `json:"previous"`
	Value     VoteValue `json:"value"`
	VoteCount int       `json:"vote_count"`
	Version   int64     `json:"version"` // target'ın bu işlemden sonraki versiyonu
}

// Added, işlemin yeni bir upvote oluşturup oluşturmadığını söyler.
// Notification fan-out sadece bu durumda tetiklenir.
func (r *VoteResult) Added() bool {
	return r.Value == VoteUp && r.Previous != VoteUp
}

// ReactionResult, ApplyReaction'ın sonucu.
// Delta tip başına bağımsız değişimi taşır (eski tip -1, yeni tip +1).
type ReactionResult struct {
	TargetID       string               `json:"target_id"`
	Delta          map[ReactionType]int `json:"delta"`
	Previous       *ReactionType        `json:"previous"`
	Reaction       *ReactionType        `json:"reaction"`
	ReactionCounts map[ReactionType]int `json:"reaction_counts"`
	Version        int64                `json:"version"`
}

// Added, yeni (veya farklı) bir reaksiyon eklendiğini söyler.
func (r *ReactionResult) Added() bool {
	if r.Reaction == nil {
		return false
	}
	return r.Previous == nil || *r.Previous != *r.Reaction
}

// ViewerState, bir kullanıcının bir target üzerindeki ledger durumu.
type ViewerState struct {
	Vote     VoteValue     `json:"vote"`
	Reaction *ReactionType `json:"reaction"`
}
