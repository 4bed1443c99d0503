// Package main, pano sunucusunun giriş noktasıdır.
//
// Bu dosyanın görevi Dependency Injection "wire-up":
//  1. Config'i yükle
//  2. Database'i başlat (embedded migration'lar)
//  3. Store, work queue, realtime bridge, cache ve limiter'ları oluştur
//  4. Service'leri oluştur
//  5. WebSocket Hub'ı başlat, callback'leri bağla
//  6. Handler'ları ve route'ları kur, CORS ekle
//  7. HTTP Server'ı başlat, graceful shutdown
//
// Global değişken YOK; her şey App içinde oluşturulup birbirine bağlanıyor.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/akinalp/pano/config"
	"github.com/akinalp/pano/database"
	"github.com/akinalp/pano/pkg/cache"
	"github.com/akinalp/pano/pkg/ratelimit"
	"github.com/akinalp/pano/pkg/workqueue"
	"github.com/akinalp/pano/realtime"
	"github.com/akinalp/pano/services"
	"github.com/akinalp/pano/ws"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "pano",
		Short:        "Community board server: posts, votes, reactions, conversations, notifications",
		SilenceUsage: true,
		RunE:         runServe,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP + WebSocket server",
		RunE:  runServe,
	}

	var targetID string
	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute cached vote/reaction aggregates from the ledger and report drift",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReconcile(cmd.Context(), targetID)
		},
	}
	reconcile.Flags().StringVar(&targetID, "target", "", "reconcile a single target by ID")

	root.AddCommand(serve, reconcile)
	return root
}

// ─── App ───

// App, sunucunun tüm uzun ömürlü kaynaklarını sahiplenir.
// Close, bunları oluşturulma sırasının tersine kapatır.
type App struct {
	cfg    *config.Config
	db     *database.DB
	store  *services.Store
	queue  *workqueue.Queue
	bridge *realtime.Bridge
	hub    *ws.Hub

	titles *cache.TTLCache[string, string]
	names  *cache.TTLCache[string, string]

	sendLimiter   *ratelimit.KeyedLimiter
	typingLimiter *ratelimit.KeyedLimiter
	loginLimiter  *ratelimit.KeyedLimiter

	svc *Services

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup
}

func newApp(cfg *config.Config) (*App, error) {
	db, err := database.New(cfg.Database.Path, cfg.Database.BusyTimeoutMs, database.Migrations())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		cfg:    cfg,
		db:     db,
		bridge: realtime.NewBridge(),
		queue:  workqueue.New(cfg.Notify.Workers, nil),
		titles: cache.New[string, string](cfg.Notify.TitleCacheTTL, time.Minute),
		names:  cache.New[string, string](cfg.Notify.TitleCacheTTL, time.Minute),

		sendLimiter:   ratelimit.New(cfg.RateLimit.MessagesPerSecond, cfg.RateLimit.MessageBurst, 10*time.Minute),
		typingLimiter: ratelimit.New(cfg.RateLimit.TypingPerSecond, cfg.RateLimit.TypingBurst, 10*time.Minute),
		// Login: dakikada 1 token, 5 deneme burst (IP bazlı).
		loginLimiter: ratelimit.New(1.0/60, 5, 30*time.Minute),

		ctx:    ctx,
		cancel: cancel,
	}
	a.store = initStore(db, cfg.Database)
	a.queue.Start(ctx)
	a.svc = initServices(a)

	return a, nil
}

// goBackground, App.Close'un bekleyeceği bir arka plan işi başlatır.
func (a *App) goBackground(fn func(ctx context.Context)) {
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		fn(a.ctx)
	}()
}

// Close, kaynakları ters sırayla kapatır:
// WS client'ları (abonelikler + typing temizliği) → presence timer'ları →
// bekleyen arka plan işleri → bridge → cache/limiter → DB.
func (a *App) Close() {
	if a.hub != nil {
		a.hub.Shutdown()
	}
	a.svc.Presence.Close()

	a.cancel()
	a.bg.Wait()
	a.queue.Close()
	if n := a.queue.Failures(); n > 0 {
		log.Printf("[main] background tasks failed during run: %d", n)
	}
	a.bridge.Close()

	a.titles.Close()
	a.names.Close()
	a.sendLimiter.Close()
	a.typingLimiter.Close()
	a.loginLimiter.Close()

	if err := a.db.Close(); err != nil {
		log.Printf("[main] failed to close database: %v", err)
	}
}

// ─── serve ───

func runServe(_ *cobra.Command, _ []string) error {
	log.Println("[main] pano server starting...")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log.Printf("[main] config loaded (port=%d)", cfg.Server.Port)

	app, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	// WebSocket Hub: register/unregister event loop'u ayrı goroutine'de.
	app.hub = ws.NewHub(app.svc.Subscriptions)
	registerHubCallbacks(app.hub, app.svc.Conversations)
	go app.hub.Run()

	startJobs(app)

	mux := http.NewServeMux()
	initRoutes(mux, initHandlers(app, app.svc, app.hub), app.svc.Auth)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      withCORS(mux, cfg.Server.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("[main] server listening on %s", cfg.Server.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-done:
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	}
	log.Printf("[main] shutting down... (open websocket connections: %d)", app.hub.ConnectionCount())

	// HTTP server yeni request kabul etmeyi durdurur, mevcutların bitmesini
	// 5sn bekler. WS bağlantıları App.Close içinde hub.Shutdown ile kapanır.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[main] forced shutdown: %v", err)
	}

	log.Println("[main] server stopped gracefully")
	return nil
}

// startJobs, periyodik bakım işlerini başlatır.
func startJobs(a *App) {
	if interval := a.cfg.Reconcile.Interval; interval > 0 {
		a.goBackground(func(ctx context.Context) {
			a.svc.Reconcile.Run(ctx, interval)
		})
		log.Printf("[main] periodic reconcile enabled (interval=%s)", interval)
	}

	a.goBackground(func(ctx context.Context) {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				n, err := a.svc.Auth.PurgeExpiredSessions(ctx)
				if err != nil {
					log.Printf("[main] failed to purge expired sessions: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("[main] purged %d expired sessions", n)
				}
			case <-ctx.Done():
				return
			}
		}
	})
}

// ─── reconcile ───

func runReconcile(ctx context.Context, targetID string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if targetID != "" {
		drift, err := app.svc.Reconcile.ReconcileTarget(ctx, targetID)
		if err != nil {
			return err
		}
		printDrift(*drift)
		return nil
	}

	drifts, err := app.svc.Reconcile.ReconcileAll(ctx)
	if err != nil {
		return err
	}
	for _, d := range drifts {
		printDrift(d)
	}
	fmt.Printf("%d target(s) repaired\n", len(drifts))
	return nil
}

func printDrift(d services.Drift) {
	status := "ok"
	if d.Changed() {
		status = "repaired"
	}
	fmt.Printf("%s\t%s\tvotes %d -> %d\treactions %v -> %v\n",
		d.TargetID, status, d.CachedVotes, d.LedgerVotes, d.CachedReactions, d.LedgerReactions)
}
