package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"
)

// Message represents one outgoing email
type Message struct {
	From        string // sender address
	FromName    string // optional display name
	To          string // recipient address
	Subject     string
	TextBody    string
	Attachments []Attachment
	MessageID   string
	Date        time.Time
}

// Attachment is a file carried by a Message
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Bytes renders the message as multipart/mixed MIME
func (m *Message) Bytes() ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	// Text part
	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=utf-8")
	textHeader.Set("Content-Transfer-Encoding", "quoted-printable")
	textPart, err := writer.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	qp := quotedprintable.NewWriter(textPart)
	if _, err := qp.Write([]byte(m.TextBody)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}

	// Attachment parts
	for _, att := range m.Attachments {
		attHeader := textproto.MIMEHeader{}
		attHeader.Set("Content-Type", attachmentType(att))
		attHeader.Set("Content-Transfer-Encoding", "base64")
		attHeader.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename}))

		attPart, err := writer.CreatePart(attHeader)
		if err != nil {
			return nil, err
		}

		encoded := base64.StdEncoding.EncodeToString(att.Data)
		// Write in 76-character lines per RFC 2045
		for i := 0; i < len(encoded); i += 76 {
			end := i + 76
			if end > len(encoded) {
				end = len(encoded)
			}
			if _, err := attPart.Write([]byte(encoded[i:end] + "\r\n")); err != nil {
				return nil, err
			}
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	from := (&mail.Address{Name: m.FromName, Address: m.From}).String()
	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "From: %s\r\n", from)
	fmt.Fprintf(&out, "To: %s\r\n", sanitizeHeader(m.To))
	fmt.Fprintf(&out, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&out, "Date: %s\r\n", date.Format(time.RFC1123Z))
	if m.MessageID != "" {
		fmt.Fprintf(&out, "Message-ID: %s\r\n", sanitizeHeader(m.MessageID))
	}
	out.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&out, "Content-Type: multipart/mixed; boundary=%s\r\n", writer.Boundary())
	out.WriteString("\r\n")
	out.Write(body.Bytes())

	return out.Bytes(), nil
}

func attachmentType(att Attachment) string {
	if att.ContentType != "" {
		return att.ContentType
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(att.Filename))); t != "" {
		return t
	}
	return "application/octet-stream"
}

// sanitizeHeader drops line breaks so a value cannot inject headers
func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
