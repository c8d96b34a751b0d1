package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"boardroom/api/internal/app"
	"boardroom/api/internal/archive"
	"boardroom/api/internal/authpw"
	"boardroom/api/internal/config"
	"boardroom/api/internal/export"
	"boardroom/api/internal/portraits"
	"boardroom/api/internal/realtime"
	"boardroom/api/internal/search"
	"boardroom/api/internal/session"
	"boardroom/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.MinutesDir, 0o755); err != nil {
		log.Fatalf("failed to create minutes dir: %v", err)
	}

	bus, err := realtime.NewRedisBus(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer bus.Close()

	sessionStore, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis session store failed: %v", err)
	}
	defer sessionStore.Close()

	dataStore := store.NewPostgresStore(db, bus)
	authService := authpw.NewService(dataStore)
	archiveService := archive.New(cfg.MinutesDir)
	exportService := export.NewService()

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
		go searchService.ReindexAllFromPG(ctx)
	}

	var portraitService *portraits.Service
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		portraitService, err = portraits.New(ctx, portraits.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		})
		if err != nil {
			log.Fatalf("portrait storage failed: %v", err)
		}
		log.Printf("Portrait storage enabled at %s", cfg.MinioEndpoint)
	} else {
		log.Printf("Portrait storage disabled (MINIO_ENDPOINT unset)")
	}

	service := app.New(cfg, dataStore, sessionStore, authService, searchService, portraitService, archiveService, exportService, bus)
	defer service.CloseAllCoordinators()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No write timeout: the event streams stay open for the life
		// of the session.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Boardroom API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
