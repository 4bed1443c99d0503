package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/akinalp/pano/display"
	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/pkg"
	"github.com/akinalp/pano/realtime"
	"github.com/akinalp/pano/repository"
)

// ContentService, post ve comment yaşam döngüsü.
//
// Aggregate'lere (vote_count, reaction counts) DOKUNMAZ; onlar sadece
// InteractionService ve ReconcileService tarafından değiştirilir.
type ContentService interface {
	CreatePost(ctx context.Context, authorID string, req *models.CreatePostRequest) (*models.Target, error)
	// CreateComment, comment'i ve bildirim kayıtlarını tek batch'te yazar.
	CreateComment(ctx context.Context, postID, authorID string, req *models.CreateCommentRequest) (*models.Target, error)
	GetTarget(ctx context.Context, id string) (*models.Target, error)
	GetPostView(ctx context.Context, postID, viewerID string) (*display.TargetView, error)
	ListPosts(ctx context.Context, communityID, viewerID string, limit int) ([]display.TargetView, error)
	ListComments(ctx context.Context, postID, viewerID string) ([]*display.ThreadNode, error)
	DeleteTarget(ctx context.Context, id, actorID string) error
	LockTarget(ctx context.Context, id, actorID string, locked bool) (*models.Target, error)
}

type contentService struct {
	store     *Store
	publisher Publisher
	notifier  NotificationService
}

// NewContentService, constructor.
func NewContentService(store *Store, publisher Publisher, notifier NotificationService) ContentService {
	return &contentService{store: store, publisher: publisher, notifier: notifier}
}

func (s *contentService) CreatePost(ctx context.Context, authorID string, req *models.CreatePostRequest) (*models.Target, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	post := &models.Target{
		Kind:        models.TargetPost,
		CommunityID: req.CommunityID,
		AuthorID:    authorID,
		Title:       req.Title,
		Body:        req.Body,
	}
	if err := s.store.Repos().Targets.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *contentService) CreateComment(ctx context.Context, postID, authorID string, req *models.CreateCommentRequest) (*models.Target, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	reads := s.store.Repos()
	post, err := reads.Targets.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Kind != models.TargetPost {
		return nil, fmt.Errorf("%w: comments can only be added to posts", pkg.ErrBadRequest)
	}

	var parent *models.Target
	if req.ParentID != nil {
		parent, err = reads.Targets.GetByID(ctx, *req.ParentID)
		if err != nil {
			if errors.Is(err, pkg.ErrNotFound) {
				return nil, fmt.Errorf("%w: parent comment not found", pkg.ErrBadRequest)
			}
			return nil, err
		}
		if parent.Kind != models.TargetComment || parent.PostID == nil || *parent.PostID != post.ID {
			return nil, fmt.Errorf("%w: parent comment belongs to another post", pkg.ErrBadRequest)
		}
	}

	comment := &models.Target{
		Kind:        models.TargetComment,
		CommunityID: post.CommunityID,
		PostID:      &post.ID,
		ParentID:    req.ParentID,
		AuthorID:    authorID,
		Body:        req.Body,
	}

	// Bildirim bağlamı (başlık, actor adı) transaction'dan ÖNCE, best-effort.
	recipients := []string{post.AuthorID}
	if parent != nil && parent.AuthorID != post.AuthorID {
		recipients = append(recipients, parent.AuthorID)
	}
	var drafts []*models.Notification
	for _, recipient := range recipients {
		if recipient == authorID {
			continue
		}
		drafts = append(drafts, s.notifier.Build(ctx, NotifyRequest{
			RecipientID: recipient,
			ActorID:     authorID,
			Type:        models.NotificationComment,
			PostID:      post.ID,
			TargetType:  string(models.TargetComment),
			Preview:     models.PreviewOf(req.Body),
		}))
	}

	err = s.store.Tx(ctx, "comment", func(r *repository.Set) error {
		p, err := r.Targets.GetByID(ctx, post.ID)
		if err != nil {
			return err
		}
		if p.Locked {
			return pkg.Denied("comment", "targets/"+post.ID+"/comments", "post is locked")
		}

		c := *comment
		if err := r.Targets.Create(ctx, &c); err != nil {
			return err
		}
		for _, n := range drafts {
			n.ID = ""
			n.TargetID = c.ID
			if err := r.Notifications.Create(ctx, n); err != nil {
				return err
			}
		}
		*comment = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(query(CollectionComments, post.ID), added(comment.ID, comment))
	s.notifier.Delivered(drafts...)
	return comment, nil
}

func (s *contentService) GetTarget(ctx context.Context, id string) (*models.Target, error) {
	return s.store.Repos().Targets.GetByID(ctx, id)
}

func (s *contentService) GetPostView(ctx context.Context, postID, viewerID string) (*display.TargetView, error) {
	post, err := s.store.Repos().Targets.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}

	states, err := s.viewerStates(ctx, viewerID, []string{post.ID})
	if err != nil {
		return nil, err
	}

	view := display.ViewOf(*post, states[post.ID])
	return &view, nil
}

func (s *contentService) ListPosts(ctx context.Context, communityID, viewerID string, limit int) ([]display.TargetView, error) {
	posts, err := s.store.Repos().Targets.ListPosts(ctx, communityID, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
	}
	states, err := s.viewerStates(ctx, viewerID, ids)
	if err != nil {
		return nil, err
	}

	views := make([]display.TargetView, len(posts))
	for i := range posts {
		views[i] = display.ViewOf(posts[i], states[posts[i].ID])
	}
	return views, nil
}

func (s *contentService) ListComments(ctx context.Context, postID, viewerID string) ([]*display.ThreadNode, error) {
	comments, err := s.store.Repos().Targets.ListComments(ctx, postID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(comments))
	for i := range comments {
		ids[i] = comments[i].ID
	}
	states, err := s.viewerStates(ctx, viewerID, ids)
	if err != nil {
		return nil, err
	}

	return display.BuildCommentTree(comments).Nested(states), nil
}

func (s *contentService) viewerStates(ctx context.Context, viewerID string, ids []string) (map[string]models.ViewerState, error) {
	if viewerID == "" {
		return map[string]models.ViewerState{}, nil
	}
	return s.store.Repos().Ledger.ViewerStates(ctx, viewerID, ids)
}

// DeleteTarget, sadece yazar silebilir. Ledger satırları öksüz bırakılır.
func (s *contentService) DeleteTarget(ctx context.Context, id, actorID string) error {
	var deleted *models.Target
	err := s.store.Tx(ctx, "delete", func(r *repository.Set) error {
		t, err := r.Targets.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if t.AuthorID != actorID {
			return pkg.Denied("delete", "targets/"+id, "only the author can delete")
		}
		deleted = t
		return r.Targets.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	removed := realtime.Change{Type: realtime.Removed, ID: id}
	s.publisher.Publish(query(CollectionTarget, id), removed)
	if deleted.Kind == models.TargetComment && deleted.PostID != nil {
		s.publisher.Publish(query(CollectionComments, *deleted.PostID), removed)
	} else {
		s.notifier.ForgetPost(id)
	}
	return nil
}

// LockTarget, yazarın target'ı yeni oy/reaksiyon/comment'e kapatması.
func (s *contentService) LockTarget(ctx context.Context, id, actorID string, locked bool) (*models.Target, error) {
	var target *models.Target
	err := s.store.Tx(ctx, "lock", func(r *repository.Set) error {
		t, err := r.Targets.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if t.AuthorID != actorID {
			return pkg.Denied("lock", "targets/"+id, "only the author can lock")
		}
		if err := r.Targets.SetLocked(ctx, id, locked); err != nil {
			return err
		}
		target, err = r.Targets.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(query(CollectionTarget, id), modified(id, target))
	return target, nil
}
