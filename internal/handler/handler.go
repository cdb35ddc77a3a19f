package handler

import (
	"context"

	"github.com/postreach/postreach/internal/config"
	"github.com/postreach/postreach/internal/database"
	"github.com/postreach/postreach/internal/logger"
	"github.com/postreach/postreach/internal/model"
	"github.com/postreach/postreach/internal/service"
)

// StatusLookup reads the recorded delivery state of one recipient
type StatusLookup interface {
	GetByRecipient(ctx context.Context, email string) (*model.EmailStatus, error)
}

// Handler holds all HTTP handlers
type Handler struct {
	storage    *service.StorageService
	dispatcher *service.Dispatcher
	job        *service.EmailJob
	statuses   StatusLookup
	db         *database.Postgres
	rdb        *database.Redis
	log        *logger.Logger
	cfg        *config.Config
}

// New creates a new Handler instance.
// statuses, db and rdb are nil when the matching backend is disabled.
func New(
	storage *service.StorageService,
	dispatcher *service.Dispatcher,
	job *service.EmailJob,
	statuses StatusLookup,
	db *database.Postgres,
	rdb *database.Redis,
	log *logger.Logger,
	cfg *config.Config,
) *Handler {
	return &Handler{
		storage:    storage,
		dispatcher: dispatcher,
		job:        job,
		statuses:   statuses,
		db:         db,
		rdb:        rdb,
		log:        log.WithComponent("handler"),
		cfg:        cfg,
	}
}
