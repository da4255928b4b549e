package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_AdvancesInOrder(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewSession(42, now)
	require.Equal(t, StageAwaitingSpreadsheet, s.Stage)

	want := []Stage{
		StageAwaitingAttachment,
		StageAwaitingSubject,
		StageAwaitingBody,
		StageAwaitingConfirmation,
	}
	for _, st := range want {
		require.True(t, s.Advance(now.Add(time.Minute)))
		assert.Equal(t, st, s.Stage)
	}

	assert.False(t, s.Advance(now), "confirmation is the last stage")
	assert.Equal(t, StageAwaitingConfirmation, s.Stage)
	assert.Equal(t, now.Add(time.Minute), s.UpdatedAt)
}

func TestStage_Valid(t *testing.T) {
	assert.True(t, StageAwaitingBody.Valid())
	assert.False(t, Stage("sending").Valid())
	assert.False(t, Stage("").Valid())
}

func TestSession_ReadyToSend(t *testing.T) {
	s := &Session{
		Stage:           StageAwaitingConfirmation,
		WorkingDir:      "/data/user_1_1",
		SpreadsheetPath: "/data/user_1_1/recipients.xlsx",
		AttachmentPath:  "/data/user_1_1/attachment-offer.pdf",
		Subject:         "Offer",
		Body:            "Hi {Name}",
	}
	assert.True(t, s.ReadyToSend())

	s.Body = ""
	assert.False(t, s.ReadyToSend())

	s.Body = "Hi"
	s.Stage = StageAwaitingBody
	assert.False(t, s.ReadyToSend())
}

func TestRecipientTable_HasColumnIsCaseSensitive(t *testing.T) {
	table := &RecipientTable{Columns: []string{"Name", "Email"}}
	assert.True(t, table.HasColumn("Email"))
	assert.False(t, table.HasColumn("email"))
	assert.Equal(t, "a@x.com", Recipient{"Email": "a@x.com"}.Email())
}

func TestDispatchReport_Displayed(t *testing.T) {
	r := NewDispatchReport(8)
	r.RecordSuccess()
	for _, addr := range []string{"a", "", "c", "d", "e", "f", "g"} {
		r.RecordFailure(addr)
	}

	shown, more := r.Displayed()
	assert.Equal(t, []string{"a", EmptyAddress, "c", "d", "e"}, shown)
	assert.Equal(t, 2, more)
	assert.True(t, r.Balanced())
}

func TestDispatchReport_DisplayedUnderCap(t *testing.T) {
	r := NewDispatchReport(3)
	r.RecordSuccess()
	r.RecordSuccess()
	r.RecordFailure("not-an-email")

	shown, more := r.Displayed()
	assert.Equal(t, []string{"not-an-email"}, shown)
	assert.Zero(t, more)
	assert.True(t, r.Balanced())
}
