package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/postreach/postreach/internal/database"
	"github.com/postreach/postreach/internal/model"
)

// EmailStatusRepository keeps one delivery state row per recipient
type EmailStatusRepository struct {
	db *database.Postgres
}

// NewEmailStatusRepository creates a new EmailStatusRepository
func NewEmailStatusRepository(db *database.Postgres) *EmailStatusRepository {
	return &EmailStatusRepository{db: db}
}

// Upsert inserts a status row or overwrites the existing one for the recipient
func (r *EmailStatusRepository) Upsert(ctx context.Context, s *model.EmailStatus) error {
	s.RecipientEmail = strings.ToLower(strings.TrimSpace(s.RecipientEmail))
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO email_statuses (recipient_email, status, author, error_message, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (recipient_email) DO UPDATE
		SET status = EXCLUDED.status,
		    author = EXCLUDED.author,
		    error_message = EXCLUDED.error_message,
		    updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		s.RecipientEmail,
		s.Status,
		s.Author,
		s.ErrorMessage,
		s.UpdatedAt,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert email status: %w", err)
	}
	return nil
}

// GetByRecipient returns the current status for an address
func (r *EmailStatusRepository) GetByRecipient(ctx context.Context, email string) (*model.EmailStatus, error) {
	query := `
		SELECT id, recipient_email, status, author, error_message, updated_at
		FROM email_statuses
		WHERE recipient_email = $1
	`
	var (
		s      model.EmailStatus
		errMsg sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))).Scan(
		&s.ID, &s.RecipientEmail, &s.Status, &s.Author, &errMsg, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get email status: %w", err)
	}
	if errMsg.Valid {
		s.ErrorMessage = &errMsg.String
	}
	return &s, nil
}
