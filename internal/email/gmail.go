package email

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/emersion/go-message/mail"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GmailConfig holds the configuration for the Gmail transport.
type GmailConfig struct {
	// CredentialsJSON is a service account credentials JSON with domain-wide delegation.
	CredentialsJSON string
	// ClientID, ClientSecret and RefreshToken are used instead for a personal mailbox.
	ClientID     string
	ClientSecret string
	RefreshToken string
	// SenderAddress is the email address emails are sent from.
	SenderAddress string
	// SenderName is the display name for the sender.
	SenderName string
}

// GmailTransport implements Transport using the Gmail API.
type GmailTransport struct {
	service *gmail.Service
	from    *mail.Address
}

// NewGmailTransport creates a GmailTransport from either a service account
// or an OAuth2 client with a refresh token, whichever is configured.
func NewGmailTransport(ctx context.Context, cfg GmailConfig) (*GmailTransport, error) {
	if cfg.SenderAddress == "" {
		return nil, fmt.Errorf("gmail: sender address is required")
	}

	var client *http.Client
	switch {
	case cfg.CredentialsJSON != "":
		jwtConfig, err := google.JWTConfigFromJSON([]byte(cfg.CredentialsJSON), gmail.GmailSendScope)
		if err != nil {
			return nil, fmt.Errorf("gmail: failed to parse credentials: %w", err)
		}
		// Impersonate the sender mailbox
		jwtConfig.Subject = cfg.SenderAddress
		client = jwtConfig.Client(ctx)
	case cfg.RefreshToken != "":
		oauthCfg := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gmail.GmailSendScope},
		}
		client = oauthCfg.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	default:
		return nil, fmt.Errorf("gmail: credentials JSON or refresh token is required")
	}

	return newGmailTransport(ctx, cfg, option.WithHTTPClient(client))
}

func newGmailTransport(ctx context.Context, cfg GmailConfig, opts ...option.ClientOption) (*GmailTransport, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to create service: %w", err)
	}
	return &GmailTransport{
		service: svc,
		from:    &mail.Address{Name: cfg.SenderName, Address: cfg.SenderAddress},
	}, nil
}

// Open returns a session over the shared API client.
// Authentication happens lazily on the first send.
func (g *GmailTransport) Open(ctx context.Context) (Session, error) {
	return &gmailSession{service: g.service, from: g.from}, nil
}

type gmailSession struct {
	service *gmail.Service
	from    *mail.Address
}

func (s *gmailSession) Send(ctx context.Context, msg *Message) error {
	raw, err := Compose(s.from, msg)
	if err != nil {
		return &RecipientError{Recipient: msg.To, Err: err}
	}

	gmailMsg := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}

	_, err = s.service.Users.Messages.Send("me", gmailMsg).Context(ctx).Do()
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && isRecipientStatus(apiErr.Code) {
		return &RecipientError{Recipient: msg.To, Err: fmt.Errorf("gmail: %w", err)}
	}
	return fmt.Errorf("%w: gmail: %v", ErrTransport, err)
}

func (s *gmailSession) Close() error {
	return nil
}

// isRecipientStatus reports whether an API status only concerns the message at hand.
// Auth failures and throttling affect every later message too.
func isRecipientStatus(code int) bool {
	return code >= 400 && code < 500 &&
		code != http.StatusUnauthorized &&
		code != http.StatusTooManyRequests
}
