package storage

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/postreach/postreach/internal/model"
)

var postColumns = []string{
	"author", "timestamp", "emails", "contact_numbers", "apply_links",
	"content", "content_hash", "batch_number", "created_at",
}

const utf8BOM = "\ufeff"

// CSVBackend stores posts in an append-only CSV file
type CSVBackend struct {
	path string
	mu   sync.Mutex
}

// NewCSVBackend creates a CSVBackend writing to path.
// The file and its directory are created on first use.
func NewCSVBackend(path string) *CSVBackend {
	return &CSVBackend{path: path}
}

// Name returns the backend name
func (b *CSVBackend) Name() string {
	return BackendCSV
}

// Exists reports whether a post with the given hash was stored
func (b *CSVBackend) Exists(ctx context.Context, hash string) (bool, error) {
	hashes, err := b.ExistingHashes(ctx)
	if err != nil {
		return false, err
	}
	_, ok := hashes[hash]
	return ok, nil
}

// ExistingHashes returns every content hash in the file
func (b *CSVBackend) ExistingHashes(ctx context.Context) (map[string]struct{}, error) {
	posts, err := b.AllPosts(ctx)
	if err != nil {
		return nil, err
	}
	hashes := make(map[string]struct{}, len(posts))
	for _, p := range posts {
		if p.ContentHash != "" {
			hashes[p.ContentHash] = struct{}{}
		}
	}
	return hashes, nil
}

// Append writes posts to the end of the file
func (b *CSVBackend) Append(ctx context.Context, posts []model.Post) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureFile(); err != nil {
		return 0, err
	}

	f, err := os.OpenFile(b.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open posts file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, p := range posts {
		if err := w.Write(postRecord(p)); err != nil {
			return 0, fmt.Errorf("failed to write post: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("failed to flush posts file: %w", err)
	}
	return len(posts), nil
}

// AllPosts returns every stored post in file order
func (b *CSVBackend) AllPosts(ctx context.Context) ([]model.Post, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureFile(); err != nil {
		return nil, err
	}

	f, err := os.Open(b.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open posts file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(skipBOM(f))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return []model.Post{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read posts header: %w", err)
	}
	idx := columnIndex(header)

	posts := []model.Post{}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read posts file: %w", err)
		}
		posts = append(posts, parsePost(rec, idx))
	}
	return posts, nil
}

// ensureFile creates the directory and a header-only file if missing
func (b *CSVBackend) ensureFile() error {
	info, err := os.Stat(b.path)
	if err == nil && info.Size() > 0 {
		return nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat posts file: %w", err)
	}

	if dir := filepath.Dir(b.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create posts directory: %w", err)
		}
	}

	f, err := os.OpenFile(b.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create posts file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(postColumns); err != nil {
		return fmt.Errorf("failed to write posts header: %w", err)
	}
	w.Flush()
	return w.Error()
}

func postRecord(p model.Post) []string {
	return []string{
		p.Author,
		p.Timestamp,
		p.Emails,
		p.ContactNumbers,
		p.ApplyLinks,
		p.Content,
		p.ContentHash,
		strconv.Itoa(p.BatchNumber),
		p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// columnIndex maps column names to positions so reordered files still parse
func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return idx
}

func parsePost(rec []string, idx map[string]int) model.Post {
	field := func(name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	p := model.Post{
		Author:         field("author"),
		Timestamp:      field("timestamp"),
		Emails:         field("emails"),
		ContactNumbers: field("contact_numbers"),
		ApplyLinks:     field("apply_links"),
		Content:        field("content"),
		ContentHash:    field("content_hash"),
	}
	if p.Author == "" {
		p.Author = model.DefaultAuthor
	}
	if n, err := strconv.Atoi(field("batch_number")); err == nil {
		p.BatchNumber = n
	}
	if t, err := time.Parse(time.RFC3339, field("created_at")); err == nil {
		p.CreatedAt = t
	}
	return p
}

// skipBOM drops a leading UTF-8 byte order mark left by spreadsheet tools
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && string(b) == utf8BOM {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}
