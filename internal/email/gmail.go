package email

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailConfig holds the configuration for the Gmail API dialer.
type GmailConfig struct {
	// CredentialsJSON is a service account JSON with domain-wide delegation.
	CredentialsJSON string
	// ClientID, ClientSecret and RefreshToken authorize a personal mailbox instead.
	ClientID     string
	ClientSecret string
	RefreshToken string
	// SenderAddress is the mailbox messages are sent from.
	SenderAddress string
}

// GmailDialer implements Dialer using the Gmail API.
type GmailDialer struct {
	cfg GmailConfig
}

// NewGmailDialer creates a new GmailDialer.
func NewGmailDialer(cfg GmailConfig) (*GmailDialer, error) {
	if cfg.SenderAddress == "" {
		return nil, errors.New("gmail: sender address is required")
	}
	if cfg.CredentialsJSON == "" && cfg.RefreshToken == "" {
		return nil, errors.New("gmail: credentials JSON or refresh token is required")
	}
	return &GmailDialer{cfg: cfg}, nil
}

// Dial builds an authorized Gmail client and checks the credentials by
// reading the sender's profile.
func (d *GmailDialer) Dial(ctx context.Context) (Conn, error) {
	svc, err := d.service(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := svc.Users.GetProfile("me").Context(ctx).Do(); err != nil {
		return nil, fmt.Errorf("gmail: failed to authorize sender: %w", err)
	}

	return &gmailConn{service: svc}, nil
}

func (d *GmailDialer) service(ctx context.Context) (*gmail.Service, error) {
	if d.cfg.CredentialsJSON != "" {
		// Service account with domain-wide delegation, impersonating the sender
		jwtConfig, err := google.JWTConfigFromJSON([]byte(d.cfg.CredentialsJSON), gmail.GmailSendScope, gmail.GmailReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("gmail: failed to parse credentials: %w", err)
		}
		jwtConfig.Subject = d.cfg.SenderAddress

		svc, err := gmail.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
		if err != nil {
			return nil, fmt.Errorf("gmail: failed to create service: %w", err)
		}
		return svc, nil
	}

	oauthCfg := &oauth2.Config{
		ClientID:     d.cfg.ClientID,
		ClientSecret: d.cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailSendScope, gmail.GmailReadonlyScope},
	}
	client := oauthCfg.Client(ctx, &oauth2.Token{RefreshToken: d.cfg.RefreshToken})

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to create service: %w", err)
	}
	return svc, nil
}

type gmailConn struct {
	service *gmail.Service
}

// Send uploads the raw message; the envelope addresses come from its headers.
func (c *gmailConn) Send(ctx context.Context, _, _ string, raw []byte) error {
	gmailMsg := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}

	if _, err := c.service.Users.Messages.Send("me", gmailMsg).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gmail: failed to send email: %w", err)
	}
	return nil
}

func (c *gmailConn) Close() error {
	return nil
}
