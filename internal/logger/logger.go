package logger

import (
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mailmerge/mailmerge/internal/config"
)

// Logger wraps zerolog.Logger with application-specific methods
type Logger struct {
	zerolog.Logger
}

// New creates a new Logger instance writing to stdout and, when configured, to a rotating file
func New(cfg config.LogConfig) *Logger {
	lvl, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var stdout io.Writer = os.Stdout
	if cfg.Format == "text" || cfg.Format == "console" {
		// Human-readable output for development
		stdout = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	out := stdout
	if cfg.File != "" {
		out = zerolog.MultiLevelWriter(stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
	}

	return &Logger{Logger: zerolog.New(out).With().Timestamp().Caller().Logger()}
}

// NewWriter creates a Logger over an arbitrary writer. Tests pass io.Discard or a buffer.
func NewWriter(w io.Writer) *Logger {
	return &Logger{Logger: zerolog.New(w).With().Timestamp().Logger()}
}

// Nop returns a Logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// WithUpdateID returns a new logger with the chat update ID attached
func (l *Logger) WithUpdateID(updateID string) *Logger {
	return &Logger{
		Logger: l.With().Str("update_id", updateID).Logger(),
	}
}

// WithUserID returns a new logger with the chat user ID attached
func (l *Logger) WithUserID(userID int64) *Logger {
	return &Logger{
		Logger: l.With().Str("user_id", strconv.FormatInt(userID, 10)).Logger(),
	}
}

// WithComponent returns a new logger with the component name attached
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.With().Str("component", component).Logger(),
	}
}

// Update logs one handled chat update
func (l *Logger) Update(kind string, userID int64, duration time.Duration) {
	l.Info().
		Str("kind", kind).
		Int64("user_id", userID).
		Dur("duration", duration).
		Msg("chat update")
}

// AuditLog records a mailing run outcome
func (l *Logger) AuditLog(userID int64, action, spreadsheet string, metadata map[string]interface{}) {
	event := l.Info().
		Str("audit", "true").
		Int64("user_id", userID).
		Str("action", action).
		Str("spreadsheet", spreadsheet)

	if metadata != nil {
		event.Interface("metadata", metadata)
	}

	event.Msg("audit log")
}
