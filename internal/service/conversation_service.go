package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mailmerge/mailmerge/internal/config"
	"github.com/mailmerge/mailmerge/internal/logger"
	"github.com/mailmerge/mailmerge/internal/model"
	"github.com/mailmerge/mailmerge/internal/spreadsheet"
	"github.com/mailmerge/mailmerge/internal/storage"
)

// Stored file names inside a working directory
const (
	spreadsheetBaseName = "recipients"
	attachmentPrefix    = "attachment-"
)

// Dispatcher runs a mailing for a confirmed session
type Dispatcher interface {
	Run(ctx context.Context, sess *model.Session) (*model.DispatchReport, error)
}

// ConversationService drives a user through the mailing stages
type ConversationService struct {
	sessions  *SessionService
	dispatch  Dispatcher
	fetcher   FileFetcher
	workspace *storage.Workspace
	reader    *spreadsheet.Reader
	cfg       config.DispatchConfig
	sender    string
	log       *logger.Logger
}

// NewConversationService creates a new ConversationService.
// sender is the address shown to users as the origin of the mailing.
func NewConversationService(
	sessions *SessionService,
	dispatch Dispatcher,
	fetcher FileFetcher,
	workspace *storage.Workspace,
	reader *spreadsheet.Reader,
	cfg config.DispatchConfig,
	sender string,
	log *logger.Logger,
) *ConversationService {
	return &ConversationService{
		sessions:  sessions,
		dispatch:  dispatch,
		fetcher:   fetcher,
		workspace: workspace,
		reader:    reader,
		cfg:       cfg,
		sender:    sender,
		log:       log.WithComponent("conversation_service"),
	}
}

// Handle processes one chat event. Calls for the same user must not overlap.
// Recoverable problems are answered through out and reported as nil; the
// returned error means the event could not be handled at all.
func (s *ConversationService) Handle(ctx context.Context, ev Event, out Responder) error {
	switch ev.Kind {
	case EventCommand:
		return s.handleCommand(ctx, ev, out)
	case EventDocument:
		return s.withSession(ctx, ev, out, replyNoSession, s.handleDocument)
	case EventText:
		return s.withSession(ctx, ev, out, replyNotInFlow, s.handleText)
	case EventCallback:
		return s.handleCallback(ctx, ev, out)
	default:
		return fmt.Errorf("unsupported event kind %d", ev.Kind)
	}
}

func (s *ConversationService) handleCommand(ctx context.Context, ev Event, out Responder) error {
	switch ev.Command {
	case CommandStart:
		return reply(ctx, out, welcomeText(ev.UserName, s.sender))
	case CommandSend:
		if _, err := s.sessions.Begin(ctx, ev.UserID); err != nil {
			return err
		}
		return reply(ctx, out, askSpreadsheetText(s.cfg.MaxFileSize, s.cfg.MaxContacts))
	case CommandCancel:
		if err := s.sessions.Cleanup(ctx, ev.UserID); err != nil {
			return err
		}
		return reply(ctx, out, replyCancelled)
	default:
		return reply(ctx, out, helpText())
	}
}

type stageHandler func(ctx context.Context, sess *model.Session, ev Event, out Responder) error

// withSession loads the user's session and ends the conversation with noSession when there is none
func (s *ConversationService) withSession(ctx context.Context, ev Event, out Responder, noSession string, next stageHandler) error {
	sess, err := s.sessions.Get(ctx, ev.UserID)
	if errors.Is(err, ErrNoSession) {
		return reply(ctx, out, noSession)
	}
	if err != nil {
		return err
	}
	return next(ctx, sess, ev, out)
}

func (s *ConversationService) handleDocument(ctx context.Context, sess *model.Session, ev Event, out Responder) error {
	if ev.Document == nil {
		return reply(ctx, out, promptFor(sess.Stage))
	}

	switch sess.Stage {
	case model.StageAwaitingSpreadsheet:
		return s.acceptSpreadsheet(ctx, sess, ev.Document, out)
	case model.StageAwaitingAttachment:
		return s.acceptAttachment(ctx, sess, ev.Document, out)
	default:
		return reply(ctx, out, promptFor(sess.Stage))
	}
}

func (s *ConversationService) acceptSpreadsheet(ctx context.Context, sess *model.Session, doc *Document, out Responder) error {
	log := s.log.WithUserID(sess.UserID)
	log.Info().Str("file", doc.FileName).Int64("size", doc.Size).Msg("spreadsheet received")

	if !spreadsheet.SupportedExtension(doc.FileName) {
		return reply(ctx, out, replyUnsupportedFormat)
	}
	if s.tooLarge(doc) {
		return reply(ctx, out, tooLargeText(s.cfg.MaxFileSize))
	}

	ext := strings.ToLower(filepath.Ext(doc.FileName))
	path, err := s.download(ctx, sess, doc, spreadsheetBaseName+ext)
	if err != nil {
		log.Error().Err(err).Str("file", doc.FileName).Msg("failed to store spreadsheet")
		return reply(ctx, out, replyUploadFailed)
	}

	table, err := s.reader.LoadLimited(path, s.cfg.MaxContacts)
	if err != nil {
		log.Warn().Err(err).Str("file", doc.FileName).Msg("spreadsheet rejected")
		if rmErr := s.workspace.Remove(path); rmErr != nil {
			log.Error().Err(rmErr).Str("path", path).Msg("failed to remove rejected spreadsheet")
		}
		return reply(ctx, out, spreadsheetErrorText(err, s.cfg.MaxContacts))
	}

	sess.SpreadsheetPath = path
	sess.SpreadsheetFilename = doc.FileName
	sess.RecipientCount = table.Len()
	if err := s.sessions.Advance(ctx, sess); err != nil {
		return err
	}

	log.Info().Str("file", doc.FileName).Int("contacts", table.Len()).Msg("spreadsheet accepted")
	return reply(ctx, out, spreadsheetAcceptedText(table.Len()))
}

func spreadsheetErrorText(err error, maxContacts int) string {
	switch {
	case errors.Is(err, spreadsheet.ErrMissingColumn):
		return replyMissingEmail
	case errors.Is(err, spreadsheet.ErrTooManyRows):
		return tooManyContactsText(maxContacts)
	case errors.Is(err, spreadsheet.ErrUnsupportedExtension):
		return replyUnsupportedFormat
	default:
		return replyUnreadable
	}
}

func (s *ConversationService) acceptAttachment(ctx context.Context, sess *model.Session, doc *Document, out Responder) error {
	log := s.log.WithUserID(sess.UserID)

	if s.tooLarge(doc) {
		return reply(ctx, out, tooLargeText(s.cfg.MaxFileSize))
	}

	name := filepath.Base(doc.FileName)
	if doc.FileName == "" || name == "." || name == string(filepath.Separator) {
		name = "attachment"
	}

	path, err := s.download(ctx, sess, doc, attachmentPrefix+name)
	if err != nil {
		log.Error().Err(err).Str("file", doc.FileName).Msg("failed to store attachment")
		return reply(ctx, out, replyUploadFailed)
	}

	sess.AttachmentPath = path
	sess.AttachmentFilename = name
	if err := s.sessions.Advance(ctx, sess); err != nil {
		return err
	}

	log.Info().Str("file", name).Msg("attachment accepted")
	return reply(ctx, out, replyAskSubject)
}

func (s *ConversationService) tooLarge(doc *Document) bool {
	return s.cfg.MaxFileSize > 0 && doc.Size > s.cfg.MaxFileSize
}

// download stores the document in the session's working directory under name
func (s *ConversationService) download(ctx context.Context, sess *model.Session, doc *Document, name string) (string, error) {
	dir, err := s.sessions.WorkingDir(ctx, sess)
	if err != nil {
		return "", err
	}

	rc, err := s.fetcher.Fetch(ctx, doc.FileID)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", doc.FileName, err)
	}
	defer rc.Close()

	return s.workspace.Save(dir, name, rc)
}

func (s *ConversationService) handleText(ctx context.Context, sess *model.Session, ev Event, out Responder) error {
	switch sess.Stage {
	case model.StageAwaitingSubject:
		sess.Subject = ev.Text
		if err := s.sessions.Advance(ctx, sess); err != nil {
			return err
		}
		return reply(ctx, out, replyAskBody)
	case model.StageAwaitingBody:
		sess.Body = ev.Text
		if err := s.sessions.Advance(ctx, sess); err != nil {
			return err
		}
		return out.Reply(ctx, summaryReply(sess, s.sender))
	default:
		return reply(ctx, out, promptFor(sess.Stage))
	}
}

func (s *ConversationService) handleCallback(ctx context.Context, ev Event, out Responder) error {
	sess, err := s.sessions.Get(ctx, ev.UserID)
	if errors.Is(err, ErrNoSession) {
		return out.Edit(ctx, replySessionExpired)
	}
	if err != nil {
		return err
	}
	if sess.Stage != model.StageAwaitingConfirmation {
		return reply(ctx, out, promptFor(sess.Stage))
	}

	switch ev.CallbackData {
	case CallbackCancel:
		if err := s.sessions.Cleanup(ctx, ev.UserID); err != nil {
			return err
		}
		return out.Edit(ctx, replyCancelled)
	case CallbackConfirm:
		return s.confirm(ctx, sess, out)
	default:
		s.log.Warn().Int64("user_id", ev.UserID).Str("data", ev.CallbackData).Msg("unknown callback")
		return nil
	}
}

// confirm runs the mailing and always ends the session
func (s *ConversationService) confirm(ctx context.Context, sess *model.Session, out Responder) (err error) {
	defer func() {
		if cleanupErr := s.sessions.Cleanup(ctx, sess.UserID); cleanupErr != nil {
			err = errors.Join(err, cleanupErr)
		}
	}()

	if err := out.Edit(ctx, replySending); err != nil {
		s.log.Warn().Err(err).Int64("user_id", sess.UserID).Msg("failed to edit confirmation message")
	}

	report, runErr := s.dispatch.Run(ctx, sess)
	switch {
	case runErr == nil:
		return reply(ctx, out, reportText(report))
	case errors.Is(runErr, ErrConnection):
		return reply(ctx, out, replyConnectionFailed)
	default:
		s.log.Error().Err(runErr).Int64("user_id", sess.UserID).Msg("dispatch aborted")
		return reply(ctx, out, replyDispatchFailed)
	}
}

func reply(ctx context.Context, out Responder, text string) error {
	return out.Reply(ctx, Reply{Text: text})
}
