// Package display, cache'lenmiş aggregate'lerden ve viewer'ın ledger durumundan
// türetilen görünüm modellerini üretir. Gizli state tutmaz; her aggregate
// değişikliğinde baştan hesaplanır.
package display

import (
	"sort"

	"github.com/akinalp/pano/models"
)

// Pill, tek bir reaksiyon tipinin gösterimi.
type Pill struct {
	Type  models.ReactionType `json:"type"`
	Count int                 `json:"count"`
	Mine  bool                `json:"mine"`
}

// ReactionPills, sayıya göre azalan, eşitlikte tip sırasına göre sıralı pill listesi.
// Sıfır (veya negatif) sayılar gösterilmez.
func ReactionPills(counts map[models.ReactionType]int, mine *models.ReactionType) []Pill {
	pills := make([]Pill, 0, len(counts))
	for t, n := range counts {
		if n <= 0 {
			continue
		}
		pills = append(pills, Pill{Type: t, Count: n, Mine: mine != nil && *mine == t})
	}

	sort.Slice(pills, func(i, j int) bool {
		if pills[i].Count != pills[j].Count {
			return pills[i].Count > pills[j].Count
		}
		return reactionOrder(pills[i].Type) < reactionOrder(pills[j].Type)
	})
	return pills
}

// reactionOrder, sabit kümedeki sıra; bilinmeyen tipler sona.
func reactionOrder(t models.ReactionType) int {
	for i, rt := range models.ReactionTypes {
		if rt == t {
			return i
		}
	}
	return len(models.ReactionTypes)
}

// Votes, oy toplamı ve viewer'ın oyu.
type Votes struct {
	Count     int              `json:"count"`
	Mine      models.VoteValue `json:"mine"`
	Upvoted   bool             `json:"upvoted"`
	Downvoted bool             `json:"downvoted"`
}

// VoteSummary, oy gösterimi.
func VoteSummary(count int, mine models.VoteValue) Votes {
	return Votes{
		Count:     count,
		Mine:      mine,
		Upvoted:   mine == models.VoteUp,
		Downvoted: mine == models.VoteDown,
	}
}

// TargetView, bir target'ın viewer'a özel görünümü.
type TargetView struct {
	Target    models.Target `json:"target"`
	Votes     Votes         `json:"votes"`
	Reactions []Pill        `json:"reactions"`
}

// ViewOf, target + viewer durumundan TargetView üretir.
func ViewOf(t models.Target, viewer models.ViewerState) TargetView {
	return TargetView{
		Target:    t,
		Votes:     VoteSummary(t.VoteCount, viewer.Vote),
		Reactions: ReactionPills(t.ReactionCounts, viewer.Reaction),
	}
}
