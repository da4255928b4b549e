package email

import (
	"context"
	"errors"
)

// Transport errors
var (
	ErrHostPortRequired    = errors.New("mail host and port are required")
	ErrStartTLSUnsupported = errors.New("mail server does not support STARTTLS")
	ErrAuthUnsupported     = errors.New("mail server does not support AUTH")
)

// Dialer opens connections to an outbound mail relay.
// This abstraction allows swapping providers (SMTP, Gmail API) without
// changing the dispatch loop.
type Dialer interface {
	// Dial connects and authenticates. A returned error means no message can be sent.
	Dial(ctx context.Context) (Conn, error)
}

// Conn is one authenticated relay connection.
// A failed Send leaves the connection usable for the next message.
type Conn interface {
	Send(ctx context.Context, from, to string, raw []byte) error
	Close() error
}
