package storage

import (
	"context"

	"github.com/postreach/postreach/internal/model"
)

// Backend names, used as keys in batch results and metrics
const (
	BackendDB  = "db"
	BackendCSV = "csv"
)

// Backend is one storage medium for posts.
// Append does not deduplicate; callers filter first.
type Backend interface {
	Name() string
	Exists(ctx context.Context, hash string) (bool, error)
	ExistingHashes(ctx context.Context) (map[string]struct{}, error)
	Append(ctx context.Context, posts []model.Post) (int, error)
	AllPosts(ctx context.Context) ([]model.Post, error)
}
