package model

import "time"

// Job lifecycle states
const (
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Job phases, meaningful while running
const (
	PhaseStarting         = "starting"
	PhaseReadingPosts     = "reading_posts"
	PhaseExtractingEmails = "extracting_emails"
	PhaseDeduplicating    = "deduplicating"
	PhaseSending          = "sending"
	PhaseDone             = "done"
)

// JobStatus is the observable state of the background email job
type JobStatus struct {
	ID                    string       `json:"id"`
	Status                string       `json:"status"`
	Phase                 string       `json:"phase"`
	Message               string       `json:"message"`
	StartedAt             time.Time    `json:"started_at"`
	FinishedAt            *time.Time   `json:"finished_at"`
	TotalEmailsFound      int          `json:"total_emails_found"`
	TotalToSend           int          `json:"total_to_send"`
	DuplicatesSkipped     int          `json:"duplicates_skipped"`
	CompanyMatchesSkipped int          `json:"company_matches_skipped"`
	Sent                  int          `json:"sent"`
	Failed                int          `json:"failed"`
	FailedDetails         []FailedSend `json:"failed_details"`
	Current               int          `json:"current"`
	CurrentEmail          string       `json:"current_email"`
}

// Clone returns a deep copy safe to hand to another goroutine
func (s *JobStatus) Clone() JobStatus {
	c := *s
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		c.FinishedAt = &t
	}
	c.FailedDetails = append([]FailedSend(nil), s.FailedDetails...)
	if c.FailedDetails == nil {
		c.FailedDetails = []FailedSend{}
	}
	return c
}

// IsTerminal reports whether the job has finished
func (s *JobStatus) IsTerminal() bool {
	return s.Status == JobCompleted || s.Status == JobFailed
}
