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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/app"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/config"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/email"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/export"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/metrics"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/search"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/session"
	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/store"
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
	dataStore := store.NewPostgresStore(db)

	sessions, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer sessions.Close()

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, search.NewPgSearch(db))
	defer searchService.Close()

	var archiver export.Archiver
	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		s3, err := export.NewS3Archiver(export.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			log.Fatalf("report archive: %v", err)
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			log.Printf("WARNING: report archive unavailable: %v", err)
		} else {
			archiver = s3
		}
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		log.Printf("SMTP not configured; notification mail is disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	service := app.New(cfg, app.Deps{
		Store:    dataStore,
		Sessions: sessions,
		Search:   searchService,
		Reports:  export.NewService(archiver),
		Mail:     mailer,
		Metrics:  metrics.New(registry),
	})
	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Feedback portal API listening on %s", cfg.Addr)
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
