package handlers

import (
	"fmt"
	"net/http"

	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/pkg"
	"github.com/akinalp/pano/services"
)

// InteractionHandler, oy ve reaksiyon endpoint'lerini yöneten struct.
//
// İki stil desteklenir:
//   - PUT: istenen mutlak durum ("oyum +1 olsun"). Client optimistic state'inden hesaplar.
//   - POST .../toggle: yön ("upvote'a bastım"). Hedef durum sunucuda ledger'dan hesaplanır.
type InteractionHandler struct {
	interactionService services.InteractionService
}

// NewInteractionHandler, constructor.
func NewInteractionHandler(interactionService services.InteractionService) *InteractionHandler {
	return &InteractionHandler{interactionService: interactionService}
}

// SetVote godoc
// PUT /api/targets/{id}/vote
// Body: { "value": -1 | 0 | 1 }
func (h *InteractionHandler) SetVote(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.VoteRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := h.interactionService.ApplyVote(r.Context(), r.PathValue("id"), user.ID, req.Value)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, result)
}

// ToggleVote godoc
// POST /api/targets/{id}/vote/toggle
// Body: { "value": -1 | 1 }
func (h *InteractionHandler) ToggleVote(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.VoteRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Value == models.VoteNone {
		pkg.Error(w, fmt.Errorf("%w: toggle direction must be -1 or 1", pkg.ErrBadRequest))
		return
	}

	result, err := h.interactionService.ToggleVote(r.Context(), r.PathValue("id"), user.ID, req.Value)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, result)
}

// SetReaction godoc
// PUT /api/targets/{id}/reaction
// Body: { "type": "like" } veya { "type": null } (kaldır)
func (h *InteractionHandler) SetReaction(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.ReactionRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := h.interactionService.ApplyReaction(r.Context(), r.PathValue("id"), user.ID, req.Type)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, result)
}

// ToggleReaction godoc
// POST /api/targets/{id}/reaction/toggle
// Body: { "type": "wow" }
func (h *InteractionHandler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.ReactionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Type == nil {
		pkg.Error(w, fmt.Errorf("%w: reaction type is required", pkg.ErrBadRequest))
		return
	}

	result, err := h.interactionService.ToggleReaction(r.Context(), r.PathValue("id"), user.ID, *req.Type)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, result)
}
