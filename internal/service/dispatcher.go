package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/postreach/postreach/internal/config"
	"github.com/postreach/postreach/internal/email"
	"github.com/postreach/postreach/internal/logger"
	"github.com/postreach/postreach/internal/metrics"
	"github.com/postreach/postreach/internal/model"
)

// Metric labels for the two send paths
const (
	sendPathSync = "sync"
	sendPathJob  = "job"
)

// delivery is one queued recipient and the post that surfaced it
type delivery struct {
	Email string
	Meta  *model.PostMetadata
}

// deliveryHooks report progress while a queue is worked through
type deliveryHooks struct {
	// OnAttempt runs before each send with the 1-based queue position
	OnAttempt func(index int, recipient string)
	// OnResult runs after each send; err is nil on success
	OnResult func(recipient string, err error)
}

// Dispatcher composes and sends templated mail
type Dispatcher struct {
	cfg       config.EmailConfig
	transport email.Transport
	history   HistoryStore
	dedup     *RecipientDeduplicator
	statuses  StatusStore
	log       *logger.Logger
}

// NewDispatcher creates a new Dispatcher.
// transport may be nil when mail is not configured; statuses may be nil
// when the database backend is off.
func NewDispatcher(
	cfg config.EmailConfig,
	transport email.Transport,
	history HistoryStore,
	statuses StatusStore,
	log *logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		transport: transport,
		history:   history,
		dedup:     NewRecipientDeduplicator(history),
		statuses:  statuses,
		log:       log.WithComponent("email_dispatcher"),
	}
}

// Deduplicator returns the recipient filter used by this dispatcher
func (d *Dispatcher) Deduplicator() *RecipientDeduplicator {
	return d.dedup
}

// Validate reports whether the sender is fully configured
func (d *Dispatcher) Validate() error {
	if d.cfg.SenderAddress == "" {
		return fmt.Errorf("%w: SENDER_EMAIL is not set in .env", ErrMailNotConfigured)
	}
	switch d.cfg.Provider {
	case "gmail":
		g := d.cfg.Gmail
		if g.CredentialsJSON == "" && g.RefreshToken == "" {
			return fmt.Errorf("%w: gmail credentials are not set", ErrMailNotConfigured)
		}
	default:
		if d.cfg.SMTP.Password == "" {
			return fmt.Errorf("%w: SENDER_PASSWORD is not set in .env", ErrMailNotConfigured)
		}
	}
	if d.transport == nil {
		return fmt.Errorf("%w: mail transport is unavailable", ErrMailNotConfigured)
	}
	return nil
}

// prepare loads the template and attachments shared by every message in a run
func (d *Dispatcher) prepare() (*email.Template, []email.Attachment, error) {
	tpl, err := email.ReadTemplate(d.cfg.TemplateFile)
	if err != nil {
		return nil, nil, err
	}
	atts, err := email.LoadAttachments(d.cfg.AttachmentDir)
	if err != nil {
		return nil, nil, err
	}
	return tpl, atts, nil
}

// Send delivers to the requested addresses in one session
func (d *Dispatcher) Send(ctx context.Context, req model.SendRequest) (*model.SendResult, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if len(req.Emails) == 0 {
		return &model.SendResult{Message: "No emails provided.", FailedDetails: []model.FailedSend{}}, nil
	}

	tpl, atts, err := d.prepare()
	if err != nil {
		return nil, err
	}

	part, err := d.dedup.Partition(ctx, req.Emails, !req.SkipDuplicates)
	if err != nil {
		return nil, err
	}

	result := &model.SendResult{
		FailedDetails:         []model.FailedSend{},
		DuplicatesSkipped:     len(part.Duplicates),
		CompanyMatchesSkipped: len(part.CompanyMatches),
	}
	if len(part.Clean) == 0 {
		result.Message = "No new recipients to send to."
		return result, nil
	}

	meta := req.Metadata()
	queue := make([]delivery, 0, len(part.Clean))
	for _, e := range part.Clean {
		queue = append(queue, delivery{Email: e, Meta: meta})
	}

	sent, failed, err := d.deliver(ctx, sendPathSync, tpl, atts, queue, deliveryHooks{})
	result.Sent = sent
	result.Failed = len(failed)
	result.FailedDetails = failed
	if err != nil {
		return nil, &TransportError{Result: result, Err: err}
	}

	result.Message = fmt.Sprintf("Successfully sent %d email(s).", sent)
	return result, nil
}

// deliver works through queue over one session. A transport failure stops
// the run and is returned together with the counts reached so far.
func (d *Dispatcher) deliver(
	ctx context.Context,
	path string,
	tpl *email.Template,
	atts []email.Attachment,
	queue []delivery,
	hooks deliveryHooks,
) (int, []model.FailedSend, error) {
	failed := []model.FailedSend{}

	sess, err := d.transport.Open(ctx)
	if err != nil {
		return 0, failed, err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			d.log.Debug().Err(err).Msg("failed to close mail session")
		}
	}()

	sent := 0
	for i, item := range queue {
		if hooks.OnAttempt != nil {
			hooks.OnAttempt(i+1, item.Email)
		}

		err := sess.Send(ctx, &email.Message{
			To:          item.Email,
			Subject:     tpl.Subject,
			Body:        email.ComposeBody(tpl.Body, d.cfg.PortfolioLink, item.Meta),
			Attachments: atts,
		})
		if errors.Is(err, email.ErrTransport) {
			d.log.Error().Err(err).Str("recipient", item.Email).Msg("mail transport failed")
			return sent, failed, err
		}

		d.log.SendAttempt(item.Email, i+1, len(queue), err)
		if err != nil {
			failed = append(failed, model.FailedSend{Email: item.Email, Error: err.Error()})
			metrics.IncrementEmail(path, model.EmailStatusFailed)
			d.recordStatus(ctx, item, err)
		} else {
			sent++
			metrics.IncrementEmail(path, model.EmailStatusSent)
			d.recordSent(ctx, item)
			d.recordStatus(ctx, item, nil)
		}

		if hooks.OnResult != nil {
			hooks.OnResult(item.Email, err)
		}
	}
	return sent, failed, nil
}

// recordSent appends to the send history before the next recipient is tried
func (d *Dispatcher) recordSent(ctx context.Context, item delivery) {
	rec := model.SentEmail{RecipientEmail: item.Email, SentAt: time.Now()}
	if item.Meta != nil {
		rec.Author = item.Meta.Author
		rec.ContactNumbers = item.Meta.ContactNumbers
		rec.ApplyLinks = item.Meta.ApplyLinks
		rec.Content = item.Meta.Content
	}
	if err := d.history.Append(ctx, rec); err != nil {
		d.log.Error().Err(err).Str("recipient", item.Email).Msg("failed to append send history")
	}
}

func (d *Dispatcher) recordStatus(ctx context.Context, item delivery, sendErr error) {
	if d.statuses == nil {
		return
	}
	st := &model.EmailStatus{
		RecipientEmail: item.Email,
		Status:         model.EmailStatusSent,
		UpdatedAt:      time.Now().UTC(),
	}
	if item.Meta != nil {
		st.Author = item.Meta.Author
	}
	if sendErr != nil {
		msg := sendErr.Error()
		st.Status = model.EmailStatusFailed
		st.ErrorMessage = &msg
	}
	if err := d.statuses.Upsert(ctx, st); err != nil {
		d.log.Warn().Err(err).Str("recipient", item.Email).Msg("failed to record email status")
	}
}
