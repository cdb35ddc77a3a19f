package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/postreach/postreach/internal/database"
	"github.com/postreach/postreach/internal/model"
	"github.com/postreach/postreach/internal/storage"
)

// PostRepository stores posts in the linkedin_posts table
type PostRepository struct {
	db *database.Postgres
}

// NewPostRepository creates a new PostRepository
func NewPostRepository(db *database.Postgres) *PostRepository {
	return &PostRepository{db: db}
}

// Name returns the backend name
func (r *PostRepository) Name() string {
	return storage.BackendDB
}

// Exists reports whether a post with the given hash is stored
func (r *PostRepository) Exists(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM linkedin_posts WHERE content_hash = $1)`, hash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check post hash: %w", err)
	}
	return exists, nil
}

// ExistingHashes returns every stored content hash
func (r *PostRepository) ExistingHashes(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT content_hash FROM linkedin_posts`)
	if err != nil {
		return nil, fmt.Errorf("failed to list post hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan post hash: %w", err)
		}
		hashes[h] = struct{}{}
	}
	return hashes, rows.Err()
}

// Append inserts all posts in one transaction
func (r *PostRepository) Append(ctx context.Context, posts []model.Post) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO linkedin_posts (author, timestamp, emails, contact_numbers, apply_links,
		    content, content_hash, batch_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare post insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range posts {
			_, err := stmt.ExecContext(ctx,
				p.Author,
				p.Timestamp,
				p.Emails,
				p.ContactNumbers,
				p.ApplyLinks,
				p.Content,
				p.ContentHash,
				nullableBatch(p.BatchNumber),
				p.CreatedAt,
			)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("post %s: %w", p.ContentHash, ErrDuplicate)
				}
				return fmt.Errorf("failed to insert post: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(posts), nil
}

// AllPosts returns every post in insertion order
func (r *PostRepository) AllPosts(ctx context.Context) ([]model.Post, error) {
	query := `
		SELECT id, author, timestamp, emails, contact_numbers, apply_links,
		       content, content_hash, batch_number, created_at
		FROM linkedin_posts
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	posts := []model.Post{}
	for rows.Next() {
		var (
			p     model.Post
			ts    sql.NullString
			batch sql.NullInt64
		)
		if err := rows.Scan(
			&p.ID, &p.Author, &ts, &p.Emails, &p.ContactNumbers, &p.ApplyLinks,
			&p.Content, &p.ContentHash, &batch, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		p.Timestamp = ts.String
		p.BatchNumber = int(batch.Int64)
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}
	return posts, nil
}

func nullableBatch(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n > 0}
}
