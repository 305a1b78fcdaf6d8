package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/milanh34/linkUp/internal/auth"
	"github.com/milanh34/linkUp/internal/blob"
	"github.com/milanh34/linkUp/internal/config"
	"github.com/milanh34/linkUp/internal/handler"
	"github.com/milanh34/linkUp/internal/limiter"
	limitermem "github.com/milanh34/linkUp/internal/limiter/memory"
	limiterredis "github.com/milanh34/linkUp/internal/limiter/redis"
	"github.com/milanh34/linkUp/internal/logger"
	"github.com/milanh34/linkUp/internal/middleware"
	"github.com/milanh34/linkUp/internal/startup"
	"github.com/milanh34/linkUp/internal/store"
	storemem "github.com/milanh34/linkUp/internal/store/memory"
	storepg "github.com/milanh34/linkUp/internal/store/postgres"
	"github.com/milanh34/linkUp/internal/ws"
	"github.com/milanh34/linkUp/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	inmemory := flag.Bool("inmemory", false, "run with the in-memory store (no DB at all)")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		logger.Error("ACCESS_TOKEN_SECRET is not set")
		os.Exit(1)
	}

	var chats store.ChatStore
	var users store.UserDirectory
	if *inmemory {
		chats = storemem.New()
		users = storemem.NewDirectory()
		logger.Info("using in-memory store")
	} else {
		var embeddedDB *embeddedpostgres.EmbeddedPostgres
		if *dev {
			var err error
			embeddedDB, err = startEmbeddedPostgres(&cfg)
			if err != nil {
				logger.Errorf("embedded postgres: %v", err)
				os.Exit(1)
			}
			defer func() {
				logger.Info("stopping embedded postgres...")
				if err := embeddedDB.Stop(); err != nil {
					logger.Errorf("embedded postgres stop: %v", err)
				}
			}()
		}

		poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			logger.Errorf("parse db config: %v", err)
			os.Exit(1)
		}
		poolCfg.MaxConns = cfg.Database.MaxConnections

		pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
		defer pool.Close()

		runMigrations(pool)
		if *migrate && !*dev {
			return
		}
		logger.Info("database connected, migrations applied")

		chats = storepg.New(pool)
		users = storepg.NewDirectory(pool)
	}

	var limitStore limiter.Store
	if cfg.RedisURL != "" {
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Errorf("parse redis url: %v", err)
			os.Exit(1)
		}
		limitStore = limiterredis.New(goredis.NewClient(opts))
		logger.Info("rate limiting backed by redis")
	} else {
		limitStore = limitermem.New()
	}

	verifier := auth.NewVerifier(cfg.JWTSecret)
	blobs := blob.NewDiskStore(cfg.UploadDir, cfg.MaxUploadSize, "/media")

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(chats, cfg.WS.MaxConnections)

	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	chatH := handler.NewChatHandler(chats, users, hub)
	groupH := handler.NewGroupHandler(chats, users, hub, blobs)
	mediaH := handler.NewMediaHandler(blobs, cfg.MaxUploadSize)
	wsH := handler.NewWSHandler(hub, verifier, cfg.CORSAllowedOrigins)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Do not compress WebSocket upgrades: the wrapped ResponseWriter would
	// not implement http.Hijacker and the upgrade fails with 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.RateLimitAPI(limitStore))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/media/{filename}", mediaH.Serve)
	r.Get("/ws", wsH.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(verifier))
		r.Post("/api/messages", chatH.SendMessage)
		r.Get("/api/chats", chatH.ListChats)
		r.Get("/api/chats/{id}", chatH.GetChatDetail)
		r.Post("/api/chats/{id}/read", chatH.MarkAsRead)
		r.Post("/api/groups", groupH.CreateGroup)
		r.Put("/api/groups/{id}", groupH.EditGroupSettings)
		r.Post("/api/groups/{id}/participants", groupH.AddParticipants)
		r.Delete("/api/groups/{id}/participants/{participantId}", groupH.RemoveParticipant)
		r.Delete("/api/groups/{id}", groupH.DeleteGroup)
		r.Post("/api/media/upload", mediaH.Upload)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		logger.Errorf("read migrations: %v", err)
		os.Exit(1)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			logger.Errorf("read migration %s: %v", name, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", name, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "linkup"
		password = "linkup_secret"
		database = "linkup"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
