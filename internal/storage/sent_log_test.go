package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postreach/postreach/internal/model"
)

func TestSentLog_MissingFileIsEmpty(t *testing.T) {
	log := NewSentLog(filepath.Join(t.TempDir(), "sent.csv"))
	records, err := log.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSentLog_AppendWritesHeaderOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sent-mails", "sent-mails.csv")
	log := NewSentLog(path)

	sentAt := time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local)
	require.NoError(t, log.Append(ctx, model.SentEmail{RecipientEmail: " HR@Acme.io ", SentAt: sentAt, Author: "Jane"}))
	require.NoError(t, log.Append(ctx, model.SentEmail{RecipientEmail: "ops@acme.io", SentAt: sentAt}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Recipient Email,Date Sent,Author,Contact Numbers,Apply Links,Content", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "hr@acme.io,2024-05-01 09:30:00,Jane"))

	records, err := log.All(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "hr@acme.io", records[0].RecipientEmail)
	assert.True(t, sentAt.Equal(records[0].SentAt))
	assert.Equal(t, "ops@acme.io", records[1].RecipientEmail)
}

func TestSentLog_HeaderlessFileKeepsFirstRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.csv")
	require.NoError(t, os.WriteFile(path, []byte("a@x.com,2024-01-01 00:00:00\nb@y.com,2024-01-02 00:00:00\n"), 0o644))

	records, err := NewSentLog(path).All(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a@x.com", records[0].RecipientEmail)
}
