package email

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/postreach/postreach/internal/model"
)

// ErrTemplateUnavailable is returned when the template is missing or has no subject
var ErrTemplateUnavailable = errors.New("email template unavailable")

const (
	portfolioRule = "★"
	referenceRule = "="
	ruleWidth     = 50
)

// Template is the subject and body every outbound message starts from
type Template struct {
	Subject string
	Body    string
}

// ReadTemplate loads a template file. Line one is the subject, optionally
// prefixed with "Subject:", and the rest is the body.
func ReadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateUnavailable, err)
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimPrefix(text, "\ufeff")
	first, rest, _ := strings.Cut(text, "\n")

	subject := strings.TrimSpace(first)
	if len(subject) >= len("subject:") && strings.EqualFold(subject[:len("subject:")], "subject:") {
		subject = strings.TrimSpace(subject[len("subject:"):])
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: %s has no subject line", ErrTemplateUnavailable, path)
	}

	return &Template{Subject: subject, Body: strings.TrimSpace(rest)}, nil
}

// LoadAttachments reads every regular file in dir, sorted by name.
// A missing directory means no attachments.
func LoadAttachments(dir string) ([]Attachment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var attachments []Attachment
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %s: %w", e.Name(), err)
		}
		ct := mime.TypeByExtension(filepath.Ext(e.Name()))
		if ct == "" {
			ct = "application/octet-stream"
		}
		attachments = append(attachments, Attachment{Filename: e.Name(), ContentType: ct, Data: data})
	}
	return attachments, nil
}

// ComposeBody appends the portfolio footer and the post reference block
func ComposeBody(body, portfolioLink string, meta *model.PostMetadata) string {
	var b strings.Builder
	b.WriteString(body)

	if portfolioLink != "" {
		stars := strings.Repeat(portfolioRule, ruleWidth)
		b.WriteString("\n\n" + stars)
		b.WriteString("\n\n📌 MY PORTFOLIO: " + portfolioLink + "\n")
		b.WriteString(stars)
	}

	if !meta.IsEmpty() {
		rule := strings.Repeat(referenceRule, ruleWidth)
		b.WriteString("\n\n" + rule)
		b.WriteString("\n[Reference - LinkedIn Post Details]")
		b.WriteString("\n" + rule)
		if meta.Author != "" {
			b.WriteString("\nPosted by: " + meta.Author)
		}
		if meta.Content != "" {
			b.WriteString("\n\nPost Content:\n" + meta.Content)
		}
		if meta.ContactNumbers != "" {
			b.WriteString("\n\nContact Numbers: " + meta.ContactNumbers)
		}
		if meta.ApplyLinks != "" {
			b.WriteString("\n\nApply Links: " + meta.ApplyLinks)
		}
		b.WriteString("\n" + rule)
	}

	return b.String()
}
