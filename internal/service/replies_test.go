package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mailmerge/mailmerge/internal/model"
)

func TestReportText(t *testing.T) {
	t.Parallel()

	r := model.NewDispatchReport(3)
	r.RecordSuccess()
	r.RecordSuccess()
	r.RecordFailure("not-an-email")

	got := reportText(r)
	assert.Equal(t, "✅ MAILING COMPLETE!\n\n👥 Total: 3\n✅ Sent: 2\n❌ Errors: 1\n\n"+
		"❌ Invalid emails (1):\n  • not-an-email", got)
}

func TestReportText_NoErrors(t *testing.T) {
	t.Parallel()
	r := model.NewDispatchReport(1)
	r.RecordSuccess()
	assert.NotContains(t, reportText(r), "Invalid emails")
}

func TestReportText_Overflow(t *testing.T) {
	t.Parallel()
	r := model.NewDispatchReport(8)
	for _, addr := range []string{"", "b", "c", "d", "e", "f", "g", "h"} {
		r.RecordFailure(addr)
	}

	got := reportText(r)
	assert.Contains(t, got, "Invalid emails (5):")
	assert.Contains(t, got, "  • (empty)\n")
	assert.Contains(t, got, "  • e\n... and 3 more")
	assert.NotContains(t, got, "• f")
}

func TestSummaryPreview(t *testing.T) {
	t.Parallel()
	s := &model.Session{
		SpreadsheetFilename: "contacts.xlsx",
		RecipientCount:      2,
		AttachmentFilename:  "offer.pdf",
		Subject:             strings.Repeat("s", 60),
		Body:                "short body",
	}

	got := summaryReply(s, testSender).Text
	assert.Contains(t, got, "Subject: "+strings.Repeat("s", 50)+"...\n")
	assert.Contains(t, got, "Body: short body\n")
	assert.Equal(t, "ééé...", preview("éééé", 3))
}
