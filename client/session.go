package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/realtime"
)

// Config, Session açmak için gereken bilgiler.
type Config struct {
	BaseURL  string
	Username string
	Password string

	// HTTPClient nil ise varsayılan kullanılır.
	HTTPClient *http.Client
	// OnTargetChange, optimistic veya otoriter her state değişiminde çağrılır.
	OnTargetChange func(targetID string, state TargetState)
}

// Session, bir kullanıcı oturumunun tüm client kaynaklarını sahiplenir:
// REST API, realtime bağlantısı ve optimistic reconciler.
//
// Open ile kurulur, Close ile kapatılır. Global durum yoktur; her bileşen
// Session üzerinden erişilir.
type Session struct {
	API        *API
	Realtime   *Realtime
	Reconciler *Reconciler

	mu       sync.Mutex
	watching map[string]func()
	closed   bool
}

// Open, login olur, realtime bağlantısını kurar ve reconciler'ı hazırlar.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	api := NewAPI(cfg.BaseURL, cfg.HTTPClient)
	if _, err := api.Login(ctx, cfg.Username, cfg.Password); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	rt, err := DialRealtime(ctx, cfg.BaseURL, api.AccessToken())
	if err != nil {
		return nil, fmt.Errorf("realtime connect failed: %w", err)
	}

	return &Session{
		API:        api,
		Realtime:   rt,
		Reconciler: NewReconciler(api, cfg.OnTargetChange),
		watching:   make(map[string]func()),
	}, nil
}

// WatchTarget, target'ın güncel görünümünü yükler, reconciler'a seed eder ve
// "target/<id>" aboneliğiyle otoriter aggregate'leri reconciler'a akıtır.
// Aynı target için ikinci çağrı etkisizdir.
func (s *Session) WatchTarget(ctx context.Context, targetID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrRealtimeClosed
	}
	if _, ok := s.watching[targetID]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	view, err := s.API.GetPost(ctx, targetID)
	if err != nil {
		return err
	}
	s.Reconciler.Seed(targetID, StateOf(view))

	q := realtime.Query{Collection: "target", Key: targetID}
	unsubscribe, err := s.Realtime.Subscribe(ctx, q.String(), func(u Update) {
		for _, c := range u.Changes {
			if c.Type == realtime.Removed || len(c.Data) == 0 {
				continue
			}
			var t models.Target
			if err := json.Unmarshal(c.Data, &t); err != nil {
				log.Printf("[session] invalid target payload: %v", err)
				continue
			}
			s.Reconciler.Observe(&t)
		}
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		unsubscribe()
		return ErrRealtimeClosed
	}
	if _, dup := s.watching[targetID]; dup {
		unsubscribe()
		return nil
	}
	s.watching[targetID] = unsubscribe
	return nil
}

// Unwatch, WatchTarget aboneliğini kapatır.
func (s *Session) Unwatch(targetID string) {
	s.mu.Lock()
	unsubscribe, ok := s.watching[targetID]
	delete(s.watching, targetID)
	s.mu.Unlock()

	if ok {
		unsubscribe()
	}
}

// Close, bekleyen optimistic işlemlerin sonuçlanmasını bekler, abonelikleri
// ve realtime bağlantısını kapatır, sunucuda oturumu sonlandırır.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	watching := s.watching
	s.watching = nil
	s.mu.Unlock()

	s.Reconciler.Wait()

	for _, unsubscribe := range watching {
		unsubscribe()
	}

	return errors.Join(s.Realtime.Close(), s.API.Logout(ctx))
}
