package service

import (
	"context"
	"io"
)

// EventKind identifies what a chat update carries
type EventKind int

const (
	EventCommand EventKind = iota + 1
	EventDocument
	EventText
	EventCallback
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventDocument:
		return "document"
	case EventText:
		return "text"
	case EventCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// Chat commands
const (
	CommandStart  = "start"
	CommandHelp   = "help"
	CommandSend   = "send"
	CommandCancel = "cancel"
)

// Callback identifiers carried by the confirmation buttons
const (
	CallbackConfirm = "confirm_send"
	CallbackCancel  = "cancel"
)

// Document is the metadata of an uploaded file
type Document struct {
	FileID   string
	FileName string
	MimeType string
	Size     int64
}

// Event is one chat update reduced to what the conversation needs
type Event struct {
	UserID   int64
	UserName string
	Kind     EventKind

	Command      string    // without the leading slash, for EventCommand
	Text         string    // for EventText
	Document     *Document // for EventDocument
	CallbackData string    // for EventCallback
}

// Button is an inline action attached to a reply
type Button struct {
	Text string
	Data string
}

// Reply is an outgoing chat message
type Reply struct {
	Text    string
	Buttons []Button
}

// Responder answers the chat the event came from
type Responder interface {
	// Reply sends a new message
	Reply(ctx context.Context, reply Reply) error
	// Edit replaces the text of the message that carried the pressed button
	Edit(ctx context.Context, text string) error
}

// FileFetcher downloads uploaded documents
type FileFetcher interface {
	Fetch(ctx context.Context, fileID string) (io.ReadCloser, error)
}
