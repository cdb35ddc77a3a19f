package email

import (
	"context"
	"errors"
)

// ErrTransport marks a failure of the mail connection itself.
// It aborts the rest of a batch; any other send error only affects one recipient.
var ErrTransport = errors.New("mail transport failure")

// Transport opens authenticated sessions with a mail provider.
// Implementations exist for SMTP submission and the Gmail API.
type Transport interface {
	// Open connects and authenticates. Failures wrap ErrTransport.
	Open(ctx context.Context) (Session, error)
}

// Session delivers messages over one open connection.
// It is not safe for concurrent use.
type Session interface {
	Send(ctx context.Context, msg *Message) error
	Close() error
}

// Message represents an email message to be sent.
type Message struct {
	To          string       // recipient email address
	Subject     string       // email subject
	Body        string       // plain-text body
	Attachments []Attachment // files attached to the message
}

// Attachment is a file carried with every outbound message
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// RecipientError is a delivery failure scoped to one address
type RecipientError struct {
	Recipient string
	Err       error
}

func (e *RecipientError) Error() string {
	return e.Err.Error()
}

func (e *RecipientError) Unwrap() error {
	return e.Err
}
