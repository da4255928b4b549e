package email

import (
	"fmt"

	"github.com/mailmerge/mailmerge/internal/config"
)

// NewDialer builds the Dialer selected by cfg.Provider
func NewDialer(cfg config.MailConfig) (Dialer, error) {
	switch cfg.Provider {
	case "", "smtp":
		return NewSMTPDialer(SMTPConfig{
			Host:        cfg.SMTP.Host,
			Port:        cfg.SMTP.Port,
			Username:    cfg.Address,
			Password:    cfg.Password,
			Timeout:     cfg.SMTP.Timeout,
			ImplicitTLS: cfg.SMTP.TLSMode == "implicit",
		})
	case "gmail":
		return NewGmailDialer(GmailConfig{
			CredentialsJSON: cfg.Gmail.CredentialsJSON,
			ClientID:        cfg.Gmail.ClientID,
			ClientSecret:    cfg.Gmail.ClientSecret,
			RefreshToken:    cfg.Gmail.RefreshToken,
			SenderAddress:   cfg.Address,
		})
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}
