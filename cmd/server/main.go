package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/postreach/postreach/internal/config"
	"github.com/postreach/postreach/internal/database"
	"github.com/postreach/postreach/internal/email"
	"github.com/postreach/postreach/internal/handler"
	"github.com/postreach/postreach/internal/logger"
	"github.com/postreach/postreach/internal/middleware"
	"github.com/postreach/postreach/internal/repository"
	"github.com/postreach/postreach/internal/router"
	"github.com/postreach/postreach/internal/service"
	"github.com/postreach/postreach/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().
		Str("version", "0.1.0").
		Bool("storage_csv", cfg.Storage.CSV.Enabled).
		Bool("storage_db", cfg.Storage.DB.Enabled).
		Msg("starting postreach server")

	if !cfg.Storage.CSV.Enabled && !cfg.Storage.DB.Enabled {
		log.Warn().Msg("no storage backend is enabled; enable storage.csv or storage.db")
	}

	// Storage backends stay nil interfaces when disabled
	var (
		db         *database.Postgres
		dbBackend  storage.Backend
		csvBackend storage.Backend
		statusRepo *repository.EmailStatusRepository
		statuses   service.StatusStore
		lookup     handler.StatusLookup
	)

	if cfg.Storage.DB.Enabled {
		db, err = database.NewPostgres(cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		log.Info().Msg("connected to PostgreSQL")

		dbBackend = repository.NewPostRepository(db)
		statusRepo = repository.NewEmailStatusRepository(db)
		statuses = statusRepo
		lookup = statusRepo
	}

	if cfg.Storage.CSV.Enabled {
		path := filepath.Join(cfg.Storage.CSV.Dir, cfg.Storage.CSV.PostsFile)
		csvBackend = storage.NewCSVBackend(path)
		log.Info().Str("path", path).Msg("csv storage enabled")
	}

	// Redis only backs rate limiting
	var rdb *database.Redis
	if cfg.Redis.Enabled {
		rdb, err = database.NewRedis(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer rdb.Close()
		log.Info().Msg("connected to Redis")
	}

	// Initialize services
	sentLog := storage.NewSentLog(cfg.Email.SentLogFile)
	transport := newMailTransport(context.Background(), cfg.Email, log)

	storageSvc := service.NewStorageService(dbBackend, csvBackend, statuses, log)
	dispatcher := service.NewDispatcher(cfg.Email, transport, sentLog, statuses, log)
	if err := dispatcher.Validate(); err != nil {
		log.Warn().Err(err).Msg("email sending disabled until configured")
	}
	emailJob := service.NewEmailJob(storageSvc, dispatcher, log)

	// Initialize handlers
	h := handler.New(storageSvc, dispatcher, emailJob, lookup, db, rdb, log, cfg)

	// Initialize middleware
	mw := middleware.New(rdb, log, cfg)

	// Set up router
	r := router.New(h, mw)

	// Create HTTP server. Synchronous sends can take a while, so the write
	// timeout is generous.
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// A running email job is not interrupted; its progress is in the sent log
	if status, ok := emailJob.Status(); ok && !status.IsTerminal() {
		log.Info().Str("job_id", status.ID).Msg("waiting for email job to finish")
		emailJob.Wait()
	}

	log.Info().Msg("server stopped")
}

// newMailTransport builds the configured provider. It returns nil when the
// sender is incomplete; the dispatcher reports why on every send attempt.
func newMailTransport(ctx context.Context, cfg config.EmailConfig, log *logger.Logger) email.Transport {
	switch cfg.Provider {
	case "gmail":
		t, err := email.NewGmailTransport(ctx, email.GmailConfig{
			CredentialsJSON: cfg.Gmail.CredentialsJSON,
			ClientID:        cfg.Gmail.ClientID,
			ClientSecret:    cfg.Gmail.ClientSecret,
			RefreshToken:    cfg.Gmail.RefreshToken,
			SenderAddress:   cfg.SenderAddress,
			SenderName:      cfg.SenderName,
		})
		if err != nil {
			log.Warn().Err(err).Msg("gmail transport unavailable")
			return nil
		}
		return t
	default:
		t, err := email.NewSMTPTransport(email.SMTPConfig{
			Addr:          cfg.SMTP.Addr(),
			ServerName:    cfg.SMTP.Host,
			Username:      cfg.SMTP.Username,
			Password:      cfg.SMTP.Password,
			SenderAddress: cfg.SenderAddress,
			SenderName:    cfg.SenderName,
			ImplicitTLS:   cfg.SMTP.Port == 465,
		})
		if err != nil {
			log.Warn().Err(err).Msg("smtp transport unavailable")
			return nil
		}
		return t
	}
}
