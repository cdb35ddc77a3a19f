package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/postreach/postreach/internal/config"
	"github.com/postreach/postreach/internal/email"
	"github.com/postreach/postreach/internal/logger"
	"github.com/postreach/postreach/internal/model"
	"github.com/postreach/postreach/internal/storage"
)

// memBackend is an in-memory storage.Backend
type memBackend struct {
	name      string
	mu        sync.Mutex
	posts     []model.Post
	appendErr error
	readErr   error
	existsErr error
	panicRead bool
}

func newMemBackend(name string, posts ...model.Post) *memBackend {
	return &memBackend{name: name, posts: posts}
}

func (b *memBackend) Name() string { return b.name }

func (b *memBackend) Exists(ctx context.Context, hash string) (bool, error) {
	if b.existsErr != nil {
		return false, b.existsErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.posts {
		if p.ContentHash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (b *memBackend) ExistingHashes(ctx context.Context) (map[string]struct{}, error) {
	if b.readErr != nil {
		return nil, b.readErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := map[string]struct{}{}
	for _, p := range b.posts {
		out[p.ContentHash] = struct{}{}
	}
	return out, nil
}

func (b *memBackend) Append(ctx context.Context, posts []model.Post) (int, error) {
	if b.appendErr != nil {
		return 0, b.appendErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.posts = append(b.posts, posts...)
	return len(posts), nil
}

func (b *memBackend) AllPosts(ctx context.Context) ([]model.Post, error) {
	if b.panicRead {
		panic("backend exploded")
	}
	if b.readErr != nil {
		return nil, b.readErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Post(nil), b.posts...), nil
}

func (b *memBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.posts)
}

// memHistory is an in-memory HistoryStore
type memHistory struct {
	mu        sync.Mutex
	records   []model.SentEmail
	readErr   error
	appendErr error
}

func newMemHistory(addrs ...string) *memHistory {
	h := &memHistory{}
	for _, a := range addrs {
		h.records = append(h.records, model.SentEmail{RecipientEmail: a})
	}
	return h
}

func (h *memHistory) All(ctx context.Context) ([]model.SentEmail, error) {
	if h.readErr != nil {
		return nil, h.readErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.SentEmail(nil), h.records...), nil
}

func (h *memHistory) Append(ctx context.Context, rec model.SentEmail) error {
	if h.appendErr != nil {
		return h.appendErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

func (h *memHistory) addresses() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, r := range h.records {
		out = append(out, r.RecipientEmail)
	}
	return out
}

// memStatuses is an in-memory StatusStore
type memStatuses struct {
	mu   sync.Mutex
	rows map[string]model.EmailStatus
	err  error
}

func newMemStatuses() *memStatuses {
	return &memStatuses{rows: map[string]model.EmailStatus{}}
}

func (s *memStatuses) Upsert(ctx context.Context, st *model.EmailStatus) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[st.RecipientEmail] = *st
	return nil
}

func (s *memStatuses) get(addr string) (model.EmailStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rows[addr]
	return st, ok
}

// fakeTransport records deliveries and fails on demand
type fakeTransport struct {
	mu sync.Mutex

	openErr error
	// reject maps recipients to a per-recipient failure
	reject map[string]string
	// breakAfter makes the session fail at the transport level after that many sends
	breakAfter int
	// gate, when set, blocks every send until closed
	gate chan struct{}

	opens     int
	delivered []*email.Message
}

func (t *fakeTransport) Open(ctx context.Context) (email.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opens++
	if t.openErr != nil {
		return nil, t.openErr
	}
	return &fakeSession{t: t}, nil
}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

func (t *fakeTransport) recipients() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, m := range t.delivered {
		out = append(out, m.To)
	}
	return out
}

type fakeSession struct {
	t     *fakeTransport
	sends int
}

func (s *fakeSession) Send(ctx context.Context, msg *email.Message) error {
	if s.t.gate != nil {
		<-s.t.gate
	}
	s.t.mu.Lock()
	defer s.t.mu.Unlock()

	s.sends++
	if s.t.breakAfter > 0 && s.sends > s.t.breakAfter {
		return fmt.Errorf("%w: connection reset", email.ErrTransport)
	}
	if reason, ok := s.t.reject[msg.To]; ok {
		return &email.RecipientError{Recipient: msg.To, Err: fmt.Errorf("%s", reason)}
	}
	s.t.delivered = append(s.t.delivered, msg)
	return nil
}

func (s *fakeSession) Close() error { return nil }

// mailConfig writes a template and one attachment and returns a complete SMTP config
func mailConfig(t *testing.T) config.EmailConfig {
	t.Helper()
	dir := t.TempDir()
	tpl := filepath.Join(dir, "template", "email_body.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(tpl), 0o755))
	require.NoError(t, os.WriteFile(tpl, []byte("Subject: Hello there\nI would like to apply."), 0o644))

	att := filepath.Join(dir, "resume")
	require.NoError(t, os.MkdirAll(att, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(att, "cv.pdf"), []byte("%PDF"), 0o644))

	return config.EmailConfig{
		Provider:      "smtp",
		SenderAddress: "dev@example.com",
		TemplateFile:  tpl,
		AttachmentDir: att,
		SMTP:          config.SMTPConfig{Host: "localhost", Port: 587, Password: "secret"},
	}
}

func post(author, content, emails string) model.Post {
	return model.Post{
		Author:      author,
		Content:     content,
		Emails:      emails,
		ContentHash: storage.Fingerprint(author, content),
		BatchNumber: 1,
	}
}

func input(author, content string) model.PostInput {
	return model.PostInput{Author: author, Timestamp: "1d", Content: content}
}

func nopLog() *logger.Logger {
	return logger.Nop()
}
