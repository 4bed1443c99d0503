package handlers

import (
	"net/http"

	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/pkg"
	"github.com/akinalp/pano/services"
)

// ConversationHandler, birebir konuşma endpoint'lerini yöneten struct.
type ConversationHandler struct {
	conversationService services.ConversationService
}

// NewConversationHandler, constructor.
func NewConversationHandler(conversationService services.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversationService: conversationService}
}

// List godoc
// GET /api/conversations
// Kullanıcının konuşmaları, son mesaja göre sıralı.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	list, err := h.conversationService.List(r.Context(), user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, list)
}

// Start godoc
// POST /api/conversations
// Body: { "user_id": "..." } veya { "username": "..." }
//
// İki yol da aynı deterministik konuşma ID'sine çıkar; mevcut konuşma varsa o döner.
func (h *ConversationHandler) Start(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.StartConversationRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		conv *models.Conversation
		err  error
	)
	if req.UserID != "" {
		conv, err = h.conversationService.GetOrCreate(r.Context(), user.ID, req.UserID)
	} else {
		conv, err = h.conversationService.StartFromSearch(r.Context(), user.ID, req.Username)
	}
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, conv)
}

// Messages godoc
// GET /api/conversations/{id}/messages?before=&limit=
// Mesajları görüntülemek okundu bilgisi de üretir.
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	messages, err := h.conversationService.Messages(r.Context(), user.ID, r.PathValue("id"),
		queryLimit(r, 50), r.URL.Query().Get("before"))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, messages)
}

// Send godoc
// POST /api/conversations/{id}/messages
// Body: { "content": "..." }
func (h *ConversationHandler) Send(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.SendMessageRequest
	if !decode(w, r, &req) {
		return
	}

	msg, err := h.conversationService.Send(r.Context(), r.PathValue("id"), user.ID, req.Content)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusCreated, msg)
}

// MarkRead godoc
// POST /api/conversations/{id}/read
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	n, err := h.conversationService.MarkRead(r.Context(), r.PathValue("id"), user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]int{"marked": n})
}

// Typing godoc
// POST /api/conversations/{id}/typing
// Body: { "typing": true }
// WebSocket "typing" op'unun HTTP karşılığı.
func (h *ConversationHandler) Typing(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.TypingRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.conversationService.SetTyping(r.Context(), r.PathValue("id"), user.ID, req.Typing); err != nil {
		pkg.Error(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// EditMessage godoc
// PATCH /api/messages/{id}
// Body: { "content": "..." }
func (h *ConversationHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.SendMessageRequest
	if !decode(w, r, &req) {
		return
	}

	msg, err := h.conversationService.Edit(r.Context(), r.PathValue("id"), user.ID, req.Content)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, msg)
}

// DeleteMessage godoc
// DELETE /api/messages/{id}
// Soft delete: okuyucular ve reaksiyonlar korunur.
func (h *ConversationHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	msg, err := h.conversationService.Delete(r.Context(), r.PathValue("id"), user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, msg)
}

// ToggleReaction godoc
// POST /api/messages/{id}/reactions
// Body: { "emoji": "👍" }
// Emoji URL path yerine body'de gönderilir (encoding sorunları).
func (h *ConversationHandler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.MessageReactionRequest
	if !decode(w, r, &req) {
		return
	}

	msg, err := h.conversationService.ToggleMessageReaction(r.Context(), r.PathValue("id"), user.ID, req.Emoji)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, msg)
}
