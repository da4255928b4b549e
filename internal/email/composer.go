package email

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/mailmerge/mailmerge/internal/logger"
	"github.com/mailmerge/mailmerge/internal/model"
)

// ErrAttachmentUnreadable is returned by a strict Composer when the attachment cannot be read
var ErrAttachmentUnreadable = errors.New("attachment cannot be read")

// Template is the per-mailing input shared by every recipient
type Template struct {
	Subject        string
	Body           string
	AttachmentPath string
	AttachmentName string
}

// ComposerConfig configures a Composer
type ComposerConfig struct {
	FromAddress string
	FromName    string
	// Strict makes an unreadable attachment fail the message instead of dropping the attachment
	Strict bool
}

// Composer builds one personalized Message per recipient
type Composer struct {
	fs  afero.Fs
	cfg ComposerConfig
	log *logger.Logger
	now func() time.Time
}

// NewComposer creates a new Composer reading attachments from fs
func NewComposer(fs afero.Fs, cfg ComposerConfig, log *logger.Logger) *Composer {
	return &Composer{
		fs:  fs,
		cfg: cfg,
		log: log.WithComponent("composer"),
		now: time.Now,
	}
}

// Compose renders tmpl for rec. Template problems fall back to the raw body;
// attachment problems drop the attachment unless the Composer is strict.
func (c *Composer) Compose(rec model.Recipient, tmpl Template) (*Message, error) {
	to := rec.Email()

	msg := &Message{
		From:      c.cfg.FromAddress,
		FromName:  c.cfg.FromName,
		To:        to,
		Subject:   tmpl.Subject,
		TextBody:  c.renderBody(to, tmpl.Body, rec),
		MessageID: c.messageID(),
		Date:      c.now(),
	}

	data, err := afero.ReadFile(c.fs, tmpl.AttachmentPath)
	if err != nil {
		if c.cfg.Strict {
			return nil, fmt.Errorf("%w: %v", ErrAttachmentUnreadable, err)
		}
		c.log.Error().Err(err).
			Str("recipient", to).
			Str("attachment", tmpl.AttachmentName).
			Msg("attachment unreadable, sending without it")
		return msg, nil
	}

	msg.Attachments = []Attachment{{Filename: tmpl.AttachmentName, Data: data}}
	return msg, nil
}

func (c *Composer) renderBody(to, body string, rec model.Recipient) string {
	rendered, err := Render(body, rec)
	switch {
	case err == nil:
		return rendered
	case errors.Is(err, ErrMissingField):
		c.log.Warn().Err(err).Str("recipient", to).Msg("personalization field missing, using raw template")
	default:
		c.log.Error().Err(err).Str("recipient", to).Msg("personalization failed, using raw template")
	}
	return body
}

func (c *Composer) messageID() string {
	domain := "localhost"
	if at := strings.LastIndexByte(c.cfg.FromAddress, '@'); at >= 0 && at+1 < len(c.cfg.FromAddress) {
		domain = c.cfg.FromAddress[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
