package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postreach/postreach/internal/model"
	"github.com/postreach/postreach/internal/storage"
)

func TestStorageService_NoBackend(t *testing.T) {
	svc := NewStorageService(nil, nil, nil, nopLog())

	_, err := svc.ProcessBatch(context.Background(), 1, []model.PostInput{input("a", "b")})
	assert.ErrorIs(t, err, ErrNoStorageBackend)
	assert.ErrorIs(t, svc.Enabled(), ErrNoStorageBackend)
	assert.Empty(t, svc.AllPosts(context.Background()))
}

func TestStorageService_InvalidBatchNumber(t *testing.T) {
	svc := NewStorageService(nil, newMemBackend(storage.BackendCSV), nil, nopLog())
	_, err := svc.ProcessBatch(context.Background(), 0, nil)
	assert.ErrorIs(t, err, ErrInvalidBatch)
}

func TestStorageService_EmptyBatch(t *testing.T) {
	csv := newMemBackend(storage.BackendCSV)
	svc := NewStorageService(nil, csv, nil, nopLog())

	res, err := svc.ProcessBatch(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Zero(t, res.TotalReceived)
	assert.Zero(t, csv.count())
}

func TestStorageService_SameBatchTwice(t *testing.T) {
	ctx := context.Background()
	csv := storage.NewCSVBackend(filepath.Join(t.TempDir(), "posts.csv"))
	svc := NewStorageService(nil, csv, nil, nopLog())

	batch := []model.PostInput{input("Jane", "Hiring Go devs"), input("John", "Hiring Rust devs")}

	first, err := svc.ProcessBatch(ctx, 1, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, first.TotalReceived)
	assert.Equal(t, 2, first.NewPosts)
	assert.Equal(t, 0, first.DuplicatesSkipped)
	assert.Equal(t, 2, first.SavedToCSV)

	second, err := svc.ProcessBatch(ctx, 2, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewPosts)
	assert.Equal(t, 2, second.DuplicatesSkipped)

	posts, err := csv.AllPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, 1, posts[0].BatchNumber)
	assert.False(t, posts[0].CreatedAt.IsZero())
}

func TestStorageService_IntraBatchDuplicates(t *testing.T) {
	tests := []struct {
		name string
		db   bool
	}{
		{"file only", false},
		{"table authoritative", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			csv := newMemBackend(storage.BackendCSV)
			var db *memBackend
			svc := NewStorageService(nil, csv, nil, nopLog())
			if tt.db {
				db = newMemBackend(storage.BackendDB)
				svc = NewStorageService(db, csv, nil, nopLog())
			}

			res, err := svc.ProcessBatch(context.Background(), 1, []model.PostInput{
				input("Jane", "Hiring"),
				input(" JANE ", "hiring  "),
			})
			require.NoError(t, err)
			assert.Equal(t, 1, res.NewPosts)
			assert.Equal(t, 1, res.DuplicatesSkipped)
			assert.Equal(t, 1, csv.count())
			if db != nil {
				assert.Equal(t, 1, db.count())
				assert.Equal(t, 1, res.SavedToDB)
			}
		})
	}
}

func TestStorageService_TableTakesPrecedence(t *testing.T) {
	ctx := context.Background()
	onlyInDB := post("Jane", "Hiring Go devs", "")
	onlyInCSV := post("John", "Hiring Rust devs", "")

	db := newMemBackend(storage.BackendDB, onlyInDB)
	csv := newMemBackend(storage.BackendCSV, onlyInCSV)
	svc := NewStorageService(db, csv, nil, nopLog())

	res, err := svc.ProcessBatch(ctx, 1, []model.PostInput{
		input("Jane", "Hiring Go devs"),
		input("John", "Hiring Rust devs"),
	})
	require.NoError(t, err)

	// The table knows Jane's post; the file's copy of John's post is ignored
	assert.Equal(t, 1, res.DuplicatesSkipped)
	assert.Equal(t, 1, res.NewPosts)
	assert.Equal(t, 1, res.SavedToDB)
	assert.Equal(t, 1, res.SavedToCSV)
	assert.Equal(t, 2, db.count())
	assert.Equal(t, 2, csv.count())
}

func TestStorageService_OneBackendFails(t *testing.T) {
	db := newMemBackend(storage.BackendDB)
	db.appendErr = errors.New("connection lost")
	csv := newMemBackend(storage.BackendCSV)
	svc := NewStorageService(db, csv, nil, nopLog())

	res, err := svc.ProcessBatch(context.Background(), 1, []model.PostInput{input("Jane", "Hiring")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewPosts)
	assert.Equal(t, 0, res.SavedToDB)
	assert.Equal(t, 1, res.SavedToCSV)
	assert.Equal(t, "connection lost", res.BackendErrors[storage.BackendDB])
}

func TestStorageService_AllBackendsFail(t *testing.T) {
	csv := newMemBackend(storage.BackendCSV)
	csv.appendErr = errors.New("disk full")
	svc := NewStorageService(nil, csv, nil, nopLog())

	res, err := svc.ProcessBatch(context.Background(), 1, []model.PostInput{input("Jane", "Hiring")})
	assert.ErrorIs(t, err, ErrStorageWrite)
	require.NotNil(t, res)
	assert.Contains(t, res.BackendErrors, storage.BackendCSV)
}

func TestStorageService_DuplicateCheckFailure(t *testing.T) {
	db := newMemBackend(storage.BackendDB)
	db.existsErr = errors.New("timeout")
	svc := NewStorageService(db, nil, nil, nopLog())

	_, err := svc.ProcessBatch(context.Background(), 1, []model.PostInput{input("Jane", "Hiring")})
	assert.Error(t, err)
	assert.Zero(t, db.count())
}

func TestStorageService_AllPostsFallback(t *testing.T) {
	ctx := context.Background()
	db := newMemBackend(storage.BackendDB, post("db", "from table", ""))
	csv := newMemBackend(storage.BackendCSV, post("csv", "from file", ""))
	svc := NewStorageService(db, csv, nil, nopLog())

	posts := svc.AllPosts(ctx)
	require.Len(t, posts, 1)
	assert.Equal(t, "db", posts[0].Author)

	db.readErr = errors.New("down")
	posts = svc.AllPosts(ctx)
	require.Len(t, posts, 1)
	assert.Equal(t, "csv", posts[0].Author)

	csv.readErr = errors.New("unreadable")
	assert.Empty(t, svc.AllPosts(ctx))
}

func TestStorageService_RecordEmailStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled without database", func(t *testing.T) {
		svc := NewStorageService(nil, newMemBackend(storage.BackendCSV), nil, nopLog())
		_, err := svc.RecordEmailStatus(ctx, model.EmailStatusUpdate{RecipientEmail: "a@b.com", Status: "sent"})
		assert.ErrorIs(t, err, ErrStatusStoreDisabled)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		svc := NewStorageService(newMemBackend(storage.BackendDB), nil, newMemStatuses(), nopLog())
		_, err := svc.RecordEmailStatus(ctx, model.EmailStatusUpdate{RecipientEmail: "a@b.com", Status: "opened"})
		assert.ErrorIs(t, err, ErrInvalidEmailStatus)
	})

	t.Run("rejects bad address", func(t *testing.T) {
		svc := NewStorageService(newMemBackend(storage.BackendDB), nil, newMemStatuses(), nopLog())
		_, err := svc.RecordEmailStatus(ctx, model.EmailStatusUpdate{RecipientEmail: "nobody", Status: "sent"})
		assert.ErrorIs(t, err, ErrInvalidEmailStatus)
	})

	t.Run("upserts latest state", func(t *testing.T) {
		statuses := newMemStatuses()
		svc := NewStorageService(newMemBackend(storage.BackendDB), nil, statuses, nopLog())

		_, err := svc.RecordEmailStatus(ctx, model.EmailStatusUpdate{RecipientEmail: "HR@acme.io", Status: "sent"})
		require.NoError(t, err)
		msg := "mailbox full"
		rec, err := svc.RecordEmailStatus(ctx, model.EmailStatusUpdate{RecipientEmail: "hr@acme.io", Status: "Bounced", ErrorMessage: &msg})
		require.NoError(t, err)
		assert.Equal(t, model.EmailStatusBounced, rec.Status)

		st, ok := statuses.get("hr@acme.io")
		require.True(t, ok)
		assert.Equal(t, model.EmailStatusBounced, st.Status)
		assert.Equal(t, "mailbox full", *st.ErrorMessage)
	})
}
