package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/postreach/postreach/internal/email"
	"github.com/postreach/postreach/internal/logger"
	"github.com/postreach/postreach/internal/metrics"
	"github.com/postreach/postreach/internal/model"
)

// EmailJob runs the background send over every stored post.
// At most one run is active at a time.
type EmailJob struct {
	storage    *StorageService
	dispatcher *Dispatcher
	log        *logger.Logger

	// mu guards status; it is never held across I/O
	mu     sync.Mutex
	status *model.JobStatus
	wg     sync.WaitGroup
}

// NewEmailJob creates a new EmailJob
func NewEmailJob(storage *StorageService, dispatcher *Dispatcher, log *logger.Logger) *EmailJob {
	return &EmailJob{
		storage:    storage,
		dispatcher: dispatcher,
		log:        log.WithComponent("email_job"),
	}
}

// Trigger starts a run in the background and returns immediately
func (j *EmailJob) Trigger(ctx context.Context) error {
	if err := j.dispatcher.Validate(); err != nil {
		return err
	}
	if err := j.storage.Enabled(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != nil && j.status.Status == model.JobRunning {
		return ErrJobRunning
	}

	j.status = &model.JobStatus{
		ID:            uuid.New().String(),
		Status:        model.JobRunning,
		Phase:         model.PhaseStarting,
		Message:       "Email job started.",
		StartedAt:     time.Now().UTC(),
		FailedDetails: []model.FailedSend{},
	}
	j.log.Info().Str("job_id", j.status.ID).Msg("email job started")

	// The run outlives the triggering request
	runCtx := context.WithoutCancel(ctx)
	j.wg.Add(1)
	go j.run(runCtx, j.status.ID)

	return nil
}

// Status returns a snapshot of the current or last run.
// ok is false when no run has ever been triggered.
func (j *EmailJob) Status() (model.JobStatus, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status == nil {
		return model.JobStatus{}, false
	}
	return j.status.Clone(), true
}

// Wait blocks until the active run, if any, has finished
func (j *EmailJob) Wait() {
	j.wg.Wait()
}

func (j *EmailJob) update(fn func(s *model.JobStatus)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != nil {
		fn(j.status)
	}
}

func (j *EmailJob) finish(result, message string) {
	now := time.Now().UTC()
	j.update(func(s *model.JobStatus) {
		s.Status = result
		s.Phase = model.PhaseDone
		s.Message = message
		s.FinishedAt = &now
	})
	metrics.IncrementJobRun(result)

	if result == model.JobFailed {
		j.log.Error().Str("result", result).Msg(message)
		return
	}
	j.log.Info().Str("result", result).Msg(message)
}

func (j *EmailJob) run(ctx context.Context, id string) {
	defer j.wg.Done()
	log := j.log.With().Str("job_id", id).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("email job panicked")
			j.finish(model.JobFailed, fmt.Sprintf("Unexpected error: %v", r))
		}
	}()

	j.update(func(s *model.JobStatus) { s.Phase = model.PhaseReadingPosts })
	posts := j.storage.AllPosts(ctx)
	log.Info().Int("posts", len(posts)).Msg("read stored posts")
	if len(posts) == 0 {
		j.finish(model.JobCompleted, "No posts found in storage. Scrape some LinkedIn posts first.")
		return
	}

	j.update(func(s *model.JobStatus) { s.Phase = model.PhaseExtractingEmails })
	candidates := extractCandidates(posts)
	j.update(func(s *model.JobStatus) { s.TotalEmailsFound = len(candidates) })
	if len(candidates) == 0 {
		j.finish(model.JobCompleted, "No emails found in stored posts.")
		return
	}

	j.update(func(s *model.JobStatus) { s.Phase = model.PhaseDeduplicating })
	addrs := make([]string, len(candidates))
	for i, c := range candidates {
		addrs[i] = c.Email
	}
	part, err := j.dispatcher.Deduplicator().Partition(ctx, addrs, false)
	if err != nil {
		j.finish(model.JobFailed, fmt.Sprintf("Could not read send history: %v", err))
		return
	}

	clean := make(map[string]struct{}, len(part.Clean))
	for _, e := range part.Clean {
		clean[e] = struct{}{}
	}
	queue := make([]delivery, 0, len(part.Clean))
	for _, c := range candidates {
		if _, ok := clean[c.Email]; ok {
			queue = append(queue, c)
		}
	}

	j.update(func(s *model.JobStatus) {
		s.TotalToSend = len(queue)
		s.DuplicatesSkipped = len(part.Duplicates)
		s.CompanyMatchesSkipped = len(part.CompanyMatches)
	})
	log.Info().
		Int("to_send", len(queue)).
		Int("duplicates", len(part.Duplicates)).
		Int("company_matches", len(part.CompanyMatches)).
		Msg("recipients deduplicated")
	if len(queue) == 0 {
		j.finish(model.JobCompleted, "All emails already sent. No new recipients.")
		return
	}

	tpl, atts, err := j.dispatcher.prepare()
	if err != nil {
		if errors.Is(err, email.ErrTemplateUnavailable) {
			j.finish(model.JobFailed, "Could not read email template from "+j.dispatcher.cfg.TemplateFile)
		} else {
			j.finish(model.JobFailed, fmt.Sprintf("Could not read attachments: %v", err))
		}
		return
	}

	j.update(func(s *model.JobStatus) { s.Phase = model.PhaseSending })
	hooks := deliveryHooks{
		OnAttempt: func(index int, recipient string) {
			j.update(func(s *model.JobStatus) {
				s.Current = index
				s.CurrentEmail = recipient
			})
		},
		OnResult: func(recipient string, err error) {
			j.update(func(s *model.JobStatus) {
				if err != nil {
					s.Failed++
					s.FailedDetails = append(s.FailedDetails, model.FailedSend{Email: recipient, Error: err.Error()})
					return
				}
				s.Sent++
			})
		},
	}

	sent, failed, err := j.dispatcher.deliver(ctx, sendPathJob, tpl, atts, queue, hooks)
	if err != nil {
		j.finish(model.JobFailed, fmt.Sprintf("SMTP connection failed: %v", err))
		return
	}
	j.finish(model.JobCompleted, fmt.Sprintf("Job complete. Sent %d email(s), %d failed.", sent, len(failed)))
}

// extractCandidates returns one delivery per unique address across posts.
// The first post mentioning an address supplies its metadata.
func extractCandidates(posts []model.Post) []delivery {
	seen := make(map[string]struct{})
	var out []delivery
	for _, p := range posts {
		if strings.TrimSpace(p.Emails) == "" {
			continue
		}
		meta := p.Metadata()
		for _, raw := range strings.Split(p.Emails, ",") {
			e, ok := normalizeEmail(raw)
			if !ok {
				continue
			}
			if _, dup := seen[e]; dup {
				continue
			}
			seen[e] = struct{}{}
			out = append(out, delivery{Email: e, Meta: meta})
		}
	}
	return out
}
