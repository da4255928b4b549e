package email

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailmerge/mailmerge/internal/logger"
	"github.com/mailmerge/mailmerge/internal/model"
)

func newTestComposer(t *testing.T, strict bool) (*Composer, afero.Fs, *bytes.Buffer) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/user_1_1/attachment-offer.pdf", []byte("%PDF-1.4"), 0o644))

	var logs bytes.Buffer
	c := NewComposer(fs, ComposerConfig{
		FromAddress: "sender@example.com",
		FromName:    "Sender",
		Strict:      strict,
	}, logger.NewWriter(&logs))
	return c, fs, &logs
}

func TestComposer_Personalizes(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestComposer(t, false)

	msg, err := c.Compose(model.Recipient{"Name": "Alex", "Email": "a@x.com"}, Template{
		Subject:        "Offer",
		Body:           "Hi {Name}",
		AttachmentPath: "/data/user_1_1/attachment-offer.pdf",
		AttachmentName: "offer.pdf",
	})
	require.NoError(t, err)

	assert.Equal(t, "a@x.com", msg.To)
	assert.Equal(t, "sender@example.com", msg.From)
	assert.Equal(t, "Offer", msg.Subject, "subject is not personalized")
	assert.Equal(t, "Hi Alex", msg.TextBody)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "offer.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, []byte("%PDF-1.4"), msg.Attachments[0].Data)
	assert.True(t, strings.HasSuffix(msg.MessageID, "@example.com>"))
}

func TestComposer_MissingFieldFallsBackToRawBody(t *testing.T) {
	t.Parallel()
	c, _, logs := newTestComposer(t, false)

	msg, err := c.Compose(model.Recipient{"Email": "a@x.com"}, Template{
		Subject:        "Offer",
		Body:           "Hi {FirstName}",
		AttachmentPath: "/data/user_1_1/attachment-offer.pdf",
		AttachmentName: "offer.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi {FirstName}", msg.TextBody)
	assert.Contains(t, logs.String(), `"level":"warn"`)
}

func TestComposer_MalformedTemplateFallsBackToRawBody(t *testing.T) {
	t.Parallel()
	c, _, logs := newTestComposer(t, false)

	msg, err := c.Compose(model.Recipient{"Email": "a@x.com"}, Template{
		Body:           "Hi {0}",
		AttachmentPath: "/data/user_1_1/attachment-offer.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi {0}", msg.TextBody)
	assert.Contains(t, logs.String(), `"level":"error"`)
}

func TestComposer_UnreadableAttachment(t *testing.T) {
	t.Parallel()
	tmpl := Template{
		Subject:        "Offer",
		Body:           "Hi",
		AttachmentPath: "/data/user_1_1/attachment-gone.pdf",
		AttachmentName: "gone.pdf",
	}
	rec := model.Recipient{"Email": "a@x.com"}

	t.Run("lenient sends without attachment", func(t *testing.T) {
		c, _, logs := newTestComposer(t, false)
		msg, err := c.Compose(rec, tmpl)
		require.NoError(t, err)
		assert.Empty(t, msg.Attachments)
		assert.Contains(t, logs.String(), "attachment unreadable")
	})

	t.Run("strict fails the message", func(t *testing.T) {
		c, _, _ := newTestComposer(t, true)
		_, err := c.Compose(rec, tmpl)
		assert.ErrorIs(t, err, ErrAttachmentUnreadable)
	})
}
