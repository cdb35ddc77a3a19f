package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/postreach/postreach/internal/logger"
	"github.com/postreach/postreach/internal/metrics"
	"github.com/postreach/postreach/internal/model"
	"github.com/postreach/postreach/internal/storage"
)

// StatusStore keeps the current delivery state per recipient
type StatusStore interface {
	Upsert(ctx context.Context, s *model.EmailStatus) error
}

// StorageService decides which posts are new and mirrors them to every enabled backend
type StorageService struct {
	db       storage.Backend
	csv      storage.Backend
	statuses StatusStore
	log      *logger.Logger
	now      func() time.Time
}

// NewStorageService creates a new StorageService.
// A nil backend is treated as disabled.
func NewStorageService(db, csv storage.Backend, statuses StatusStore, log *logger.Logger) *StorageService {
	return &StorageService{
		db:       db,
		csv:      csv,
		statuses: statuses,
		log:      log.WithComponent("storage_service"),
		now:      time.Now,
	}
}

// Enabled returns ErrNoStorageBackend when nothing is configured
func (s *StorageService) Enabled() error {
	if s.db == nil && s.csv == nil {
		return ErrNoStorageBackend
	}
	return nil
}

// DBEnabled reports whether the table backend is active
func (s *StorageService) DBEnabled() bool {
	return s.db != nil
}

// CSVEnabled reports whether the file backend is active
func (s *StorageService) CSVEnabled() bool {
	return s.csv != nil
}

// backends returns the enabled backends in write order
func (s *StorageService) backends() []storage.Backend {
	var out []storage.Backend
	if s.db != nil {
		out = append(out, s.db)
	}
	if s.csv != nil {
		out = append(out, s.csv)
	}
	return out
}

// ProcessBatch stores the posts that are not already known.
// The table backend decides what is known whenever it is enabled.
func (s *StorageService) ProcessBatch(ctx context.Context, batchNumber int, inputs []model.PostInput) (*model.BatchResult, error) {
	if err := s.Enabled(); err != nil {
		return nil, err
	}
	if batchNumber < 1 {
		return nil, ErrInvalidBatch
	}

	result := &model.BatchResult{TotalReceived: len(inputs)}
	if len(inputs) == 0 {
		return result, nil
	}

	// File-only mode checks against a snapshot taken once per batch
	var known map[string]struct{}
	if s.db == nil {
		hashes, err := s.csv.ExistingHashes(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load existing hashes: %w", err)
		}
		known = hashes
	}

	createdAt := s.now().UTC()
	seen := make(map[string]struct{}, len(inputs))
	accepted := make([]model.Post, 0, len(inputs))

	for _, in := range inputs {
		hash := storage.Fingerprint(in.Author, in.Content)

		if _, dup := seen[hash]; dup {
			result.DuplicatesSkipped++
			continue
		}

		var exists bool
		if known != nil {
			_, exists = known[hash]
		} else {
			var err error
			exists, err = s.db.Exists(ctx, hash)
			if err != nil {
				return nil, fmt.Errorf("failed to check for duplicate: %w", err)
			}
		}
		if exists {
			result.DuplicatesSkipped++
			continue
		}

		seen[hash] = struct{}{}
		accepted = append(accepted, model.Post{
			Author:         in.Author,
			Timestamp:      in.Timestamp,
			Emails:         in.Emails,
			ContactNumbers: in.ContactNumbers,
			ApplyLinks:     in.ApplyLinks,
			Content:        in.Content,
			ContentHash:    hash,
			BatchNumber:    batchNumber,
			CreatedAt:      createdAt,
		})
	}
	result.NewPosts = len(accepted)

	stored := map[string]int{}
	if len(accepted) > 0 {
		backends := s.backends()
		failures := 0
		for _, b := range backends {
			n, err := b.Append(ctx, accepted)
			if err != nil {
				failures++
				if result.BackendErrors == nil {
					result.BackendErrors = map[string]string{}
				}
				result.BackendErrors[b.Name()] = err.Error()
				metrics.IncrementStorageWriteError(b.Name())
				s.log.Error().Err(err).
					Str("backend", b.Name()).
					Int("batch_number", batchNumber).
					Msg("failed to write batch")
				continue
			}
			stored[b.Name()] = n
			switch b.Name() {
			case storage.BackendDB:
				result.SavedToDB = n
			case storage.BackendCSV:
				result.SavedToCSV = n
			}
		}
		if failures == len(backends) {
			return result, fmt.Errorf("%w: every backend failed", ErrStorageWrite)
		}
	}

	metrics.RecordBatch(result.TotalReceived, result.DuplicatesSkipped, stored)
	s.log.Info().
		Int("batch_number", batchNumber).
		Int("received", result.TotalReceived).
		Int("new", result.NewPosts).
		Int("duplicates", result.DuplicatesSkipped).
		Msg("batch processed")

	return result, nil
}

// AllPosts reads every stored post, preferring the table backend.
// Read failures fall back to the file backend and finally to nothing.
func (s *StorageService) AllPosts(ctx context.Context) []model.Post {
	if s.db != nil {
		posts, err := s.db.AllPosts(ctx)
		if err == nil {
			return posts
		}
		s.log.Warn().Err(err).Msg("database read failed, falling back to csv")
	}
	if s.csv != nil {
		posts, err := s.csv.AllPosts(ctx)
		if err == nil {
			return posts
		}
		s.log.Warn().Err(err).Msg("csv read failed")
	}
	return []model.Post{}
}

// RecordEmailStatus upserts the delivery state for one recipient
func (s *StorageService) RecordEmailStatus(ctx context.Context, upd model.EmailStatusUpdate) (*model.EmailStatus, error) {
	if s.statuses == nil {
		return nil, ErrStatusStoreDisabled
	}

	recipient := strings.ToLower(strings.TrimSpace(upd.RecipientEmail))
	if !strings.Contains(recipient, "@") {
		return nil, fmt.Errorf("%w: recipient_email must be an email address", ErrInvalidEmailStatus)
	}
	status := strings.ToLower(strings.TrimSpace(upd.Status))
	if !model.ValidEmailStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmailStatus, upd.Status)
	}

	rec := &model.EmailStatus{
		RecipientEmail: recipient,
		Status:         status,
		Author:         upd.Author,
		ErrorMessage:   upd.ErrorMessage,
		UpdatedAt:      s.now().UTC(),
	}
	if err := s.statuses.Upsert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
