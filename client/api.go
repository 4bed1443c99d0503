// Package client, pano sunucusunun Go istemcisidir.
//
// Üç katman vardır:
//   - API: REST çağrıları (JSON zarfı, hata sınıflandırma)
//   - Realtime: WebSocket abonelikleri (snapshot + değişiklikler)
//   - Reconciler: oy/reaksiyon için optimistic state ve rollback
//
// Session bu üçünü tek bir yaşam döngüsü altında toplar.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/akinalp/pano/display"
	"github.com/akinalp/pano/models"
)

// API, REST endpoint'lerini saran HTTP istemcisi. Eşzamanlı kullanım güvenlidir.
type API struct {
	baseURL string
	http    *http.Client

	mu     sync.RWMutex
	tokens *models.AuthTokens
}

// NewAPI, baseURL (ör: "http://localhost:9090") için istemci oluşturur.
// httpClient nil ise 15sn timeout'lu varsayılan kullanılır.
func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &API{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// envelope, pkg.APIResponse'un decode tarafı. Data ayrıca çözülür.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

// do, isteği gönderir ve zarfı çözer. out nil ise data yok sayılır.
func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	op := method + " " + path

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := a.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return transportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 500 {
			return transportError(op, fmt.Errorf("status %d", resp.StatusCode))
		}
		return fmt.Errorf("failed to decode response for %s: %w", op, err)
	}

	if !env.Success || resp.StatusCode >= 400 {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Error}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode data for %s: %w", op, err)
		}
	}
	return nil
}

// AccessToken, mevcut access token (yoksa boş).
func (a *API) AccessToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.tokens == nil {
		return ""
	}
	return a.tokens.AccessToken
}

// Me, login olmuş kullanıcı (yoksa nil).
func (a *API) Me() *models.User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.tokens == nil {
		return nil
	}
	return a.tokens.User
}

func (a *API) setTokens(t *models.AuthTokens) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokens = t
}

// ─── Auth ───

func (a *API) Register(ctx context.Context, req *models.CreateUserRequest) (*models.AuthTokens, error) {
	var tokens models.AuthTokens
	if err := a.do(ctx, http.MethodPost, "/api/auth/register", req, &tokens); err != nil {
		return nil, err
	}
	a.setTokens(&tokens)
	return &tokens, nil
}

func (a *API) Login(ctx context.Context, username, password string) (*models.AuthTokens, error) {
	var tokens models.AuthTokens
	req := models.LoginRequest{Username: username, Password: password}
	if err := a.do(ctx, http.MethodPost, "/api/auth/login", req, &tokens); err != nil {
		return nil, err
	}
	a.setTokens(&tokens)
	return &tokens, nil
}

// Logout, refresh token'ı sunucuda iptal eder ve yerel token'ları siler.
func (a *API) Logout(ctx context.Context) error {
	a.mu.RLock()
	var refresh string
	if a.tokens != nil {
		refresh = a.tokens.RefreshToken
	}
	a.mu.RUnlock()

	if refresh == "" {
		return nil
	}
	err := a.do(ctx, http.MethodPost, "/api/auth/logout", models.RefreshRequest{RefreshToken: refresh}, nil)
	a.setTokens(nil)
	return err
}

// ─── Content ───

func (a *API) CreatePost(ctx context.Context, req *models.CreatePostRequest) (*models.Target, error) {
	var post models.Target
	if err := a.do(ctx, http.MethodPost, "/api/posts", req, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (a *API) GetPost(ctx context.Context, postID string) (*display.TargetView, error) {
	var view display.TargetView
	if err := a.do(ctx, http.MethodGet, "/api/posts/"+url.PathEscape(postID), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (a *API) CreateComment(ctx context.Context, postID string, req *models.CreateCommentRequest) (*models.Target, error) {
	var comment models.Target
	if err := a.do(ctx, http.MethodPost, "/api/posts/"+url.PathEscape(postID)+"/comments", req, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// ─── Interactions ───

// ApplyVote, istenen mutlak oy durumunu gönderir (PUT).
func (a *API) ApplyVote(ctx context.Context, targetID string, desired models.VoteValue) (*models.VoteResult, error) {
	var result models.VoteResult
	path := "/api/targets/" + url.PathEscape(targetID) + "/vote"
	if err := a.do(ctx, http.MethodPut, path, models.VoteRequest{Value: desired}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ApplyReaction, istenen reaksiyonu gönderir (PUT). desired nil ise kaldırır.
func (a *API) ApplyReaction(ctx context.Context, targetID string, desired *models.ReactionType) (*models.ReactionResult, error) {
	var result models.ReactionResult
	path := "/api/targets/" + url.PathEscape(targetID) + "/reaction"
	if err := a.do(ctx, http.MethodPut, path, models.ReactionRequest{Type: desired}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ─── Conversations ───

func (a *API) StartConversation(ctx context.Context, req models.StartConversationRequest) (*models.Conversation, error) {
	var conv models.Conversation
	if err := a.do(ctx, http.MethodPost, "/api/conversations", req, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (a *API) Conversations(ctx context.Context) ([]models.Conversation, error) {
	var list []models.Conversation
	if err := a.do(ctx, http.MethodGet, "/api/conversations", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Messages, mesajları döner; sunucu bu isteği okundu bilgisi olarak da işler.
func (a *API) Messages(ctx context.Context, convID string, limit int) ([]models.Message, error) {
	var list []models.Message
	path := "/api/conversations/" + url.PathEscape(convID) + "/messages?limit=" + strconv.Itoa(limit)
	if err := a.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (a *API) SendMessage(ctx context.Context, convID, content string) (*models.Message, error) {
	var msg models.Message
	path := "/api/conversations/" + url.PathEscape(convID) + "/messages"
	if err := a.do(ctx, http.MethodPost, path, models.SendMessageRequest{Content: content}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (a *API) MarkRead(ctx context.Context, convID string) (int, error) {
	var out struct {
		Marked int `json:"marked"`
	}
	path := "/api/conversations/" + url.PathEscape(convID) + "/read"
	if err := a.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return 0, err
	}
	return out.Marked, nil
}

// ─── Notifications ───

func (a *API) Notifications(ctx context.Context, limit int) ([]models.Notification, error) {
	var list []models.Notification
	if err := a.do(ctx, http.MethodGet, "/api/notifications?limit="+strconv.Itoa(limit), nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (a *API) UnreadNotifications(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/notifications/unread-count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// compile-time kontrol: API, Reconciler'ın beklediği Applier'ı karşılar.
var _ Applier = (*API)(nil)
