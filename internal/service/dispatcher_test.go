package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postreach/postreach/internal/config"
	"github.com/postreach/postreach/internal/email"
	"github.com/postreach/postreach/internal/model"
)

func TestDispatcher_Validate(t *testing.T) {
	tr := &fakeTransport{}
	tests := []struct {
		name    string
		mutate  func(c *config.EmailConfig)
		tr      email.Transport
		wantMsg string
	}{
		{"complete", func(c *config.EmailConfig) {}, tr, ""},
		{"missing sender", func(c *config.EmailConfig) { c.SenderAddress = "" }, tr, "SENDER_EMAIL is not set in .env"},
		{"missing password", func(c *config.EmailConfig) { c.SMTP.Password = "" }, tr, "SENDER_PASSWORD is not set in .env"},
		{"gmail without credentials", func(c *config.EmailConfig) { c.Provider = "gmail" }, tr, "gmail credentials are not set"},
		{"gmail with refresh token", func(c *config.EmailConfig) {
			c.Provider = "gmail"
			c.Gmail.RefreshToken = "token"
		}, tr, ""},
		{"no transport", func(c *config.EmailConfig) {}, nil, "mail transport is unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := mailConfig(t)
			tt.mutate(&cfg)
			d := NewDispatcher(cfg, tt.tr, newMemHistory(), nil, nopLog())

			err := d.Validate()
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrMailNotConfigured)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestDispatcher_Send(t *testing.T) {
	ctx := context.Background()
	cfg := mailConfig(t)
	cfg.PortfolioLink = "https://me.dev"
	history := newMemHistory("old@acme.io")
	statuses := newMemStatuses()
	tr := &fakeTransport{reject: map[string]string{"bad@other.io": "550 mailbox unavailable"}}
	d := NewDispatcher(cfg, tr, history, statuses, nopLog())

	res, err := d.Send(ctx, model.SendRequest{
		Emails:         []string{"new@startup.io", "bad@other.io", "old@acme.io", "hr@acme.io", "x"},
		SkipDuplicates: true,
		Author:         "Jane",
		Content:        "We are hiring",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []model.FailedSend{{Email: "bad@other.io", Error: "550 mailbox unavailable"}}, res.FailedDetails)
	assert.Equal(t, 1, res.DuplicatesSkipped)
	assert.Equal(t, 1, res.CompanyMatchesSkipped)
	assert.Equal(t, "Successfully sent 1 email(s).", res.Message)
	assert.Equal(t, 1, tr.openCount())

	require.Equal(t, []string{"new@startup.io"}, tr.recipients())
	msg := tr.delivered[0]
	assert.Equal(t, "Hello there", msg.Subject)
	assert.True(t, strings.HasPrefix(msg.Body, "I would like to apply."))
	assert.Contains(t, msg.Body, "MY PORTFOLIO: https://me.dev")
	assert.Contains(t, msg.Body, "Posted by: Jane")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "cv.pdf", msg.Attachments[0].Filename)

	assert.Equal(t, []string{"old@acme.io", "new@startup.io"}, history.addresses())

	st, ok := statuses.get("new@startup.io")
	require.True(t, ok)
	assert.Equal(t, model.EmailStatusSent, st.Status)
	st, ok = statuses.get("bad@other.io")
	require.True(t, ok)
	assert.Equal(t, model.EmailStatusFailed, st.Status)
}

func TestDispatcher_SendWithoutDedup(t *testing.T) {
	tr := &fakeTransport{}
	d := NewDispatcher(mailConfig(t), tr, newMemHistory("old@acme.io"), nil, nopLog())

	res, err := d.Send(context.Background(), model.SendRequest{Emails: []string{"old@acme.io"}, SkipDuplicates: false})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, []string{"old@acme.io"}, tr.recipients())
}

func TestDispatcher_SendNoRecipients(t *testing.T) {
	tr := &fakeTransport{}
	d := NewDispatcher(mailConfig(t), tr, newMemHistory("old@acme.io"), nil, nopLog())

	res, err := d.Send(context.Background(), model.SendRequest{Emails: []string{"old@acme.io"}, SkipDuplicates: true})
	require.NoError(t, err)
	assert.Equal(t, "No new recipients to send to.", res.Message)
	assert.Equal(t, 1, res.DuplicatesSkipped)
	assert.Zero(t, tr.openCount())
}

func TestDispatcher_SendEmptyList(t *testing.T) {
	tr := &fakeTransport{}
	cfg := mailConfig(t)
	cfg.TemplateFile = filepath.Join(t.TempDir(), "missing.txt")
	d := NewDispatcher(cfg, tr, newMemHistory(), nil, nopLog())

	res, err := d.Send(context.Background(), model.SendRequest{SkipDuplicates: true})
	require.NoError(t, err)
	assert.Equal(t, "No emails provided.", res.Message)
	assert.Zero(t, tr.openCount())
}

func TestDispatcher_SendTransportFailure(t *testing.T) {
	tr := &fakeTransport{breakAfter: 1}
	history := newMemHistory()
	d := NewDispatcher(mailConfig(t), tr, history, nil, nopLog())

	_, err := d.Send(context.Background(), model.SendRequest{
		Emails:         []string{"a@one.io", "b@two.io", "c@three.io"},
		SkipDuplicates: true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, email.ErrTransport)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 1, te.Result.Sent)
	assert.Equal(t, 0, te.Result.Failed)
	assert.True(t, strings.HasPrefix(te.Error(), "SMTP connection failed: "))
	assert.Equal(t, []string{"a@one.io"}, history.addresses())
}

func TestDispatcher_SendOpenFailure(t *testing.T) {
	tr := &fakeTransport{openErr: fmt.Errorf("%w: auth rejected", email.ErrTransport)}
	d := NewDispatcher(mailConfig(t), tr, newMemHistory(), nil, nopLog())

	_, err := d.Send(context.Background(), model.SendRequest{Emails: []string{"a@one.io"}, SkipDuplicates: true})
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Zero(t, te.Result.Sent)
}

func TestDispatcher_SendMissingTemplate(t *testing.T) {
	cfg := mailConfig(t)
	cfg.TemplateFile = filepath.Join(t.TempDir(), "missing.txt")
	tr := &fakeTransport{}
	d := NewDispatcher(cfg, tr, newMemHistory(), nil, nopLog())

	_, err := d.Send(context.Background(), model.SendRequest{Emails: []string{"a@one.io"}, SkipDuplicates: true})
	assert.ErrorIs(t, err, email.ErrTemplateUnavailable)
	assert.Zero(t, tr.openCount())
}

func TestDispatcher_HistoryAppendFailureStillCountsAsSent(t *testing.T) {
	history := newMemHistory()
	history.appendErr = errors.New("read-only filesystem")
	tr := &fakeTransport{}
	d := NewDispatcher(mailConfig(t), tr, history, nil, nopLog())

	res, err := d.Send(context.Background(), model.SendRequest{Emails: []string{"a@one.io"}, SkipDuplicates: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
}
