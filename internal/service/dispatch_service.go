package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mailmerge/mailmerge/internal/config"
	"github.com/mailmerge/mailmerge/internal/email"
	"github.com/mailmerge/mailmerge/internal/logger"
	"github.com/mailmerge/mailmerge/internal/model"
	"github.com/mailmerge/mailmerge/internal/spreadsheet"
)

// Dispatch errors
var (
	ErrConnection = errors.New("mail server connection failed")
	ErrProtocol   = errors.New("session is not ready to send")
)

// DispatchService sends one personalized email per spreadsheet row
type DispatchService struct {
	reader   *spreadsheet.Reader
	dialer   email.Dialer
	composer *email.Composer
	cfg      config.DispatchConfig
	log      *logger.Logger
	sleep    func(time.Duration)
}

// NewDispatchService creates a new DispatchService
func NewDispatchService(
	reader *spreadsheet.Reader,
	dialer email.Dialer,
	composer *email.Composer,
	cfg config.DispatchConfig,
	log *logger.Logger,
) *DispatchService {
	return &DispatchService{
		reader:   reader,
		dialer:   dialer,
		composer: composer,
		cfg:      cfg,
		log:      log.WithComponent("dispatch_service"),
		sleep:    time.Sleep,
	}
}

// Run re-reads the session's spreadsheet and mails every row in order.
// Per-row failures are counted in the report. A spreadsheet or connection
// failure aborts the run before any row is processed and returns no report.
func (s *DispatchService) Run(ctx context.Context, sess *model.Session) (*model.DispatchReport, error) {
	if !sess.ReadyToSend() {
		return nil, fmt.Errorf("%w: stage %s", ErrProtocol, sess.Stage)
	}
	log := s.log.WithUserID(sess.UserID)

	table, err := s.reader.Load(sess.SpreadsheetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipients: %w", err)
	}

	conn, err := s.dialer.Dial(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to mail server")
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close mail connection")
		}
	}()
	log.Info().Int("recipients", table.Len()).Msg("connected to mail server")

	tmpl := email.Template{
		Subject:        sess.Subject,
		Body:           sess.Body,
		AttachmentPath: sess.AttachmentPath,
		AttachmentName: sess.AttachmentFilename,
	}

	report := model.NewDispatchReport(table.Len())
	for _, rec := range table.Rows {
		addr := rec.Email()
		if err := s.deliver(ctx, conn, rec, tmpl); err != nil {
			log.Warn().Err(err).Str("recipient", addr).Msg("recipient skipped")
			report.RecordFailure(addr)
		} else {
			log.Info().Str("recipient", addr).Msg("email sent")
			report.RecordSuccess()
		}
		s.sleep(s.cfg.SendDelay)
	}

	log.AuditLog(sess.UserID, "dispatch", sess.SpreadsheetFilename, map[string]interface{}{
		"total":   report.Total,
		"success": report.SuccessCount,
		"errors":  report.ErrorCount,
	})
	return report, nil
}

var errInvalidAddress = errors.New("invalid email address")

func (s *DispatchService) deliver(ctx context.Context, conn email.Conn, rec model.Recipient, tmpl email.Template) error {
	addr := rec.Email()
	if !email.ValidAddress(addr) {
		return fmt.Errorf("%w: %q", errInvalidAddress, addr)
	}

	msg, err := s.composer.Compose(rec, tmpl)
	if err != nil {
		return err
	}
	raw, err := msg.Bytes()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return conn.Send(ctx, msg.From, addr, raw)
}
