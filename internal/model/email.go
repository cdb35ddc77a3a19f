package model

import (
	"encoding/json"
	"time"
)

// SentEmail is one row of the append-only send history.
// Any row for an address marks it as contacted.
type SentEmail struct {
	RecipientEmail string    `json:"recipient_email"`
	SentAt         time.Time `json:"sent_at"`
	Author         string    `json:"author"`
	ContactNumbers string    `json:"contact_numbers"`
	ApplyLinks     string    `json:"apply_links"`
	Content        string    `json:"content"`
}

// Email delivery states
const (
	EmailStatusSent      = "sent"
	EmailStatusFailed    = "failed"
	EmailStatusBounced   = "bounced"
	EmailStatusDelivered = "delivered"
)

// ValidEmailStatus reports whether s is a known delivery state
func ValidEmailStatus(s string) bool {
	switch s {
	case EmailStatusSent, EmailStatusFailed, EmailStatusBounced, EmailStatusDelivered:
		return true
	}
	return false
}

// EmailStatus is the current delivery state for one recipient
type EmailStatus struct {
	ID             int64     `json:"id,omitempty"`
	RecipientEmail string    `json:"recipient_email"`
	Status         string    `json:"status"`
	Author         string    `json:"author"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// EmailStatusUpdate is the body of a status upsert
type EmailStatusUpdate struct {
	RecipientEmail string  `json:"recipient_email"`
	Status         string  `json:"status"`
	Author         string  `json:"author"`
	ErrorMessage   *string `json:"error_message"`
}

// SendRequest asks for a synchronous send to a list of addresses
type SendRequest struct {
	Emails         []string `json:"emails"`
	SkipDuplicates bool     `json:"skip_duplicates"`
	Author         string   `json:"author"`
	Content        string   `json:"content"`
	ContactNumbers string   `json:"contact_numbers"`
	ApplyLinks     string   `json:"apply_links"`
}

// UnmarshalJSON defaults skip_duplicates to true
func (r *SendRequest) UnmarshalJSON(data []byte) error {
	type alias SendRequest
	in := alias{SkipDuplicates: true}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = SendRequest(in)
	return nil
}

// Metadata returns the reference details supplied with the request, or nil
func (r SendRequest) Metadata() *PostMetadata {
	m := &PostMetadata{
		Author:         r.Author,
		Content:        r.Content,
		ContactNumbers: r.ContactNumbers,
		ApplyLinks:     r.ApplyLinks,
	}
	if m.IsEmpty() {
		return nil
	}
	return m
}

// FailedSend records one recipient that could not be delivered to
type FailedSend struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// SendResult summarises a synchronous send
type SendResult struct {
	Message               string       `json:"message"`
	Sent                  int          `json:"sent"`
	Failed                int          `json:"failed"`
	FailedDetails         []FailedSend `json:"failed_details"`
	DuplicatesSkipped     int          `json:"duplicates_skipped"`
	CompanyMatchesSkipped int          `json:"company_matches_skipped"`
}

// CompanyMatch is a candidate suppressed because its domain was contacted before
type CompanyMatch struct {
	Email    string `json:"email"`
	Previous string `json:"previous"`
}
