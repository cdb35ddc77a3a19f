package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// smtpServiceNotAvailable is the reply code a server uses when it is closing the channel
const smtpServiceNotAvailable = 421

// SMTPConfig holds the configuration for the SMTP transport.
type SMTPConfig struct {
	// Addr is the submission endpoint, host:port
	Addr string
	// ServerName is checked against the server certificate
	ServerName string
	// Username and Password authenticate with SASL PLAIN
	Username string
	Password string
	// SenderAddress is the email address emails are sent from.
	SenderAddress string
	// SenderName is the display name for the sender.
	SenderName string
	// ImplicitTLS dials TLS directly instead of upgrading with STARTTLS
	ImplicitTLS bool
	// TLSConfig overrides the default client TLS settings
	TLSConfig *tls.Config
}

// SMTPTransport implements Transport over an SMTP submission server.
type SMTPTransport struct {
	cfg  SMTPConfig
	from *mail.Address
}

// NewSMTPTransport creates a new SMTPTransport.
func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("smtp: server address is required")
	}
	if cfg.SenderAddress == "" {
		return nil, fmt.Errorf("smtp: sender address is required")
	}
	if cfg.Username == "" {
		cfg.Username = cfg.SenderAddress
	}
	return &SMTPTransport{
		cfg:  cfg,
		from: &mail.Address{Name: cfg.SenderName, Address: cfg.SenderAddress},
	}, nil
}

// Open dials the server, secures the connection and logs in
func (t *SMTPTransport) Open(ctx context.Context) (Session, error) {
	tlsConfig := t.cfg.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: t.cfg.ServerName}
	}

	var (
		c   *smtp.Client
		err error
	)
	if t.cfg.ImplicitTLS {
		c, err = smtp.DialTLS(t.cfg.Addr, tlsConfig)
	} else {
		c, err = smtp.DialStartTLS(t.cfg.Addr, tlsConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %v", ErrTransport, t.cfg.Addr, err)
	}

	if t.cfg.Password != "" {
		if err := c.Auth(sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)); err != nil {
			c.Close()
			return nil, fmt.Errorf("%w: authenticate: %v", ErrTransport, err)
		}
	}

	return &smtpSession{client: c, from: t.from}, nil
}

type smtpSession struct {
	client *smtp.Client
	from   *mail.Address
}

func (s *smtpSession) Send(ctx context.Context, msg *Message) error {
	raw, err := Compose(s.from, msg)
	if err != nil {
		return &RecipientError{Recipient: msg.To, Err: err}
	}

	err = s.client.SendMail(s.from.Address, []string{msg.To}, bytes.NewReader(raw))
	if err == nil {
		return nil
	}

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) && smtpErr.Code != smtpServiceNotAvailable {
		// The server refused this message only; clear the transaction and carry on
		if rerr := s.client.Reset(); rerr != nil {
			return fmt.Errorf("%w: reset after %v: %v", ErrTransport, err, rerr)
		}
		return &RecipientError{Recipient: msg.To, Err: err}
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

func (s *smtpSession) Close() error {
	if err := s.client.Quit(); err != nil {
		return s.client.Close()
	}
	return nil
}
