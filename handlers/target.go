package handlers

import (
	"net/http"

	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/pkg"
	"github.com/akinalp/pano/services"
)

// TargetHandler, post ve comment endpoint'lerini yöneten struct.
type TargetHandler struct {
	contentService services.ContentService
}

// NewTargetHandler, constructor.
func NewTargetHandler(contentService services.ContentService) *TargetHandler {
	return &TargetHandler{contentService: contentService}
}

// CreatePost godoc
// POST /api/posts
// Body: { "community_id": "...", "title": "...", "body": "..." }
func (h *TargetHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.CreatePostRequest
	if !decode(w, r, &req) {
		return
	}

	post, err := h.contentService.CreatePost(r.Context(), user.ID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusCreated, post)
}

// ListPosts godoc
// GET /api/posts?community=&limit=
func (h *TargetHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	views, err := h.contentService.ListPosts(r.Context(), r.URL.Query().Get("community"), user.ID, queryLimit(r, 25))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, views)
}

// GetPost godoc
// GET /api/posts/{id}
// Target + reaction pill'leri + izleyicinin kendi oy/reaksiyon durumu.
func (h *TargetHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	view, err := h.contentService.GetPostView(r.Context(), r.PathValue("id"), user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, view)
}

// CreateComment godoc
// POST /api/posts/{id}/comments
// Body: { "parent_id": null | "...", "body": "..." }
func (h *TargetHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.CreateCommentRequest
	if !decode(w, r, &req) {
		return
	}

	comment, err := h.contentService.CreateComment(r.Context(), r.PathValue("id"), user.ID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusCreated, comment)
}

// ListComments godoc
// GET /api/posts/{id}/comments
// Yorum ağacını (kökler + çocuklar) döner.
func (h *TargetHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	tree, err := h.contentService.ListComments(r.Context(), r.PathValue("id"), user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, tree)
}

// Delete godoc
// DELETE /api/targets/{id}
// Sadece yazar silebilir. Ledger kayıtları yerinde bırakılır.
func (h *TargetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.contentService.DeleteTarget(r.Context(), r.PathValue("id"), user.ID); err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]string{"message": "target deleted"})
}

// Lock godoc
// POST /api/targets/{id}/lock
// Body: { "locked": true }
func (h *TargetHandler) Lock(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Locked bool `json:"locked"`
	}
	if !decode(w, r, &req) {
		return
	}

	target, err := h.contentService.LockTarget(r.Context(), r.PathValue("id"), user.ID, req.Locked)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, target)
}
