package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/postreach/postreach/internal/model"
)

var sentLogColumns = []string{
	"Recipient Email", "Date Sent", "Author", "Contact Numbers", "Apply Links", "Content",
}

// sentLogTimeLayout matches the timestamps already present in existing logs
const sentLogTimeLayout = "2006-01-02 15:04:05"

// SentLog is the append-only history of delivered messages
type SentLog struct {
	path string
	mu   sync.Mutex
}

// NewSentLog creates a SentLog stored at path
func NewSentLog(path string) *SentLog {
	return &SentLog{path: path}
}

// Append adds one record to the log
func (l *SentLog) Append(ctx context.Context, rec model.SentEmail) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create sent log directory: %w", err)
		}
	}

	writeHeader := false
	if info, err := os.Stat(l.path); errors.Is(err, os.ErrNotExist) || (err == nil && info.Size() == 0) {
		writeHeader = true
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open sent log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(sentLogColumns); err != nil {
			return fmt.Errorf("failed to write sent log header: %w", err)
		}
	}
	sentAt := rec.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	if err := w.Write([]string{
		strings.ToLower(strings.TrimSpace(rec.RecipientEmail)),
		sentAt.Format(sentLogTimeLayout),
		rec.Author,
		rec.ContactNumbers,
		rec.ApplyLinks,
		rec.Content,
	}); err != nil {
		return fmt.Errorf("failed to write sent log: %w", err)
	}
	w.Flush()
	return w.Error()
}

// All returns every record in the log. A missing log is empty.
func (l *SentLog) All(ctx context.Context) ([]model.SentEmail, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return []model.SentEmail{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open sent log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(skipBOM(f))
	r.FieldsPerRecord = -1

	records := []model.SentEmail{}
	first := true
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read sent log: %w", err)
		}
		if len(row) == 0 {
			continue
		}
		// The header is the only first row without an address in it
		if first {
			first = false
			if !strings.Contains(row[0], "@") {
				continue
			}
		}
		records = append(records, parseSentRow(row))
	}
	return records, nil
}

func parseSentRow(row []string) model.SentEmail {
	col := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	rec := model.SentEmail{
		RecipientEmail: strings.ToLower(strings.TrimSpace(col(0))),
		Author:         col(2),
		ContactNumbers: col(3),
		ApplyLinks:     col(4),
		Content:        col(5),
	}
	if t, err := time.ParseInLocation(sentLogTimeLayout, col(1), time.Local); err == nil {
		rec.SentAt = t
	}
	return rec
}
