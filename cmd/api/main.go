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

	"cellar/api/internal/app"
	"cellar/api/internal/artifact"
	"cellar/api/internal/config"
	"cellar/api/internal/fanout"
	"cellar/api/internal/search"
	"cellar/api/internal/snapshot"
	"cellar/api/internal/store"
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

	if err := os.MkdirAll(cfg.SnapshotsDir, 0o755); err != nil {
		log.Fatalf("failed to create snapshots dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	opts := app.Options{
		Snapshots: snapshot.New(cfg.SnapshotsDir),
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	opts.Search = search.NewService(meiliClient, search.NewMemory())

	if strings.TrimSpace(cfg.RedisURL) != "" {
		broker, err := fanout.NewBroker(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer broker.Close()
		opts.Broker = broker
	} else {
		log.Printf("REDIS_URL not set, live event streaming disabled")
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		artifacts, err := artifact.NewStore(ctx, artifact.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("artifact store init failed: %v", err)
		}
		opts.Artifacts = artifacts
	} else {
		log.Printf("MINIO_ENDPOINT not set, artifact storage disabled")
	}

	service := app.New(cfg, dataStore, opts)
	if strings.TrimSpace(cfg.BootstrapAPIKey) != "" {
		if err := service.APIKeyService().Bootstrap(ctx, cfg.BootstrapAPIKey); err != nil {
			log.Printf("WARNING: bootstrap api key rejected: %v", err)
		}
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Cellar API listening on %s", cfg.Addr)
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
