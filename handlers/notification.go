package handlers

import (
	"fmt"
	"net/http"

	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/pkg"
	"github.com/akinalp/pano/services"
)

// NotificationHandler, bildirim ve push cihaz token endpoint'lerini yöneten struct.
type NotificationHandler struct {
	notificationService services.NotificationService
}

// NewNotificationHandler, constructor.
func NewNotificationHandler(notificationService services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// List godoc
// GET /api/notifications?before=&limit=
// En yeniden eskiye, cursor-based pagination.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	list, err := h.notificationService.List(r.Context(), user.ID, queryLimit(r, 50), r.URL.Query().Get("before"))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, list)
}

// UnreadCount godoc
// GET /api/notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	count, err := h.notificationService.UnreadCount(r.Context(), user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]int{"count": count})
}

// MarkRead godoc
// POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.notificationService.MarkRead(r.Context(), user.ID, r.PathValue("id")); err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]string{"message": "notification marked as read"})
}

// MarkAllRead godoc
// POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	n, err := h.notificationService.MarkAllRead(r.Context(), user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]int{"updated": n})
}

// RegisterDevice godoc
// POST /api/devices
// Body: { "token": "mailto:user@example.com" }
func (h *NotificationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	h.device(w, r, true)
}

// UnregisterDevice godoc
// DELETE /api/devices
// Body: { "token": "..." }
func (h *NotificationHandler) UnregisterDevice(w http.ResponseWriter, r *http.Request) {
	h.device(w, r, false)
}

func (h *NotificationHandler) device(w http.ResponseWriter, r *http.Request, register bool) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.RegisterDeviceRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Token == "" {
		pkg.Error(w, fmt.Errorf("%w: token is required", pkg.ErrBadRequest))
		return
	}

	if register {
		if err := h.notificationService.RegisterDevice(r.Context(), user.ID, req.Token); err != nil {
			pkg.Error(w, err)
			return
		}
		pkg.JSON(w, http.StatusCreated, map[string]string{"message": "device registered"})
		return
	}

	if err := h.notificationService.UnregisterDevice(r.Context(), user.ID, req.Token); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]string{"message": "device unregistered"})
}
