package model

import (
	"time"
)

// Stage represents the step of the mailing conversation a user is in
type Stage string

const (
	StageAwaitingSpreadsheet  Stage = "awaiting_spreadsheet"
	StageAwaitingAttachment   Stage = "awaiting_attachment"
	StageAwaitingSubject      Stage = "awaiting_subject"
	StageAwaitingBody         Stage = "awaiting_body"
	StageAwaitingConfirmation Stage = "awaiting_confirmation"
)

// stageOrder is the only order in which a session may advance
var stageOrder = []Stage{
	StageAwaitingSpreadsheet,
	StageAwaitingAttachment,
	StageAwaitingSubject,
	StageAwaitingBody,
	StageAwaitingConfirmation,
}

// Next returns the stage that follows s, or false for the last stage
func (s Stage) Next() (Stage, bool) {
	for i, st := range stageOrder {
		if st == s && i+1 < len(stageOrder) {
			return stageOrder[i+1], true
		}
	}
	return "", false
}

// Valid reports whether s is a known stage
func (s Stage) Valid() bool {
	for _, st := range stageOrder {
		if st == s {
			return true
		}
	}
	return false
}

// Session is the per-user state of one mailing conversation.
// Fields are filled stage by stage and are only meaningful once their stage has passed.
type Session struct {
	UserID int64 `json:"userId"`
	Stage  Stage `json:"stage"`

	// Set when the spreadsheet is accepted
	WorkingDir          string `json:"workingDir,omitempty"`
	SpreadsheetPath     string `json:"spreadsheetPath,omitempty"`
	SpreadsheetFilename string `json:"spreadsheetFilename,omitempty"`
	RecipientCount      int    `json:"recipientCount,omitempty"`

	// Set when the attachment is accepted
	AttachmentPath     string `json:"attachmentPath,omitempty"`
	AttachmentFilename string `json:"attachmentFilename,omitempty"`

	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewSession creates a session at the first stage
func NewSession(userID int64, now time.Time) *Session {
	return &Session{
		UserID:    userID,
		Stage:     StageAwaitingSpreadsheet,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves the session to the stage after its current one
func (s *Session) Advance(now time.Time) bool {
	next, ok := s.Stage.Next()
	if !ok {
		return false
	}
	s.Stage = next
	s.UpdatedAt = now
	return true
}

// HasSpreadsheet reports whether the spreadsheet stage has completed
func (s *Session) HasSpreadsheet() bool {
	return s.SpreadsheetPath != "" && s.WorkingDir != ""
}

// HasAttachment reports whether the attachment stage has completed
func (s *Session) HasAttachment() bool {
	return s.AttachmentPath != ""
}

// ReadyToSend reports whether every input the dispatch needs is present
func (s *Session) ReadyToSend() bool {
	return s.Stage == StageAwaitingConfirmation &&
		s.HasSpreadsheet() &&
		s.HasAttachment() &&
		s.Subject != "" &&
		s.Body != ""
}
