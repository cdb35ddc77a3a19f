package service

import (
	"errors"

	"github.com/postreach/postreach/internal/model"
)

// Service errors
var (
	ErrNoStorageBackend    = errors.New("no storage backend enabled; enable storage.csv or storage.db")
	ErrInvalidBatch        = errors.New("batch_number must be at least 1")
	ErrStorageWrite        = errors.New("failed to store batch")
	ErrMailNotConfigured   = errors.New("mail sender is not configured")
	ErrJobRunning          = errors.New("an email job is already running")
	ErrStatusStoreDisabled = errors.New("email status tracking requires the database backend")
	ErrInvalidEmailStatus  = errors.New("invalid email status")
)

// TransportError reports a mail connection failure that cut a send short.
// Result holds what was delivered before the failure.
type TransportError struct {
	Result *model.SendResult
	Err    error
}

func (e *TransportError) Error() string {
	return "SMTP connection failed: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
