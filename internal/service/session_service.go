package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mailmerge/mailmerge/internal/logger"
	"github.com/mailmerge/mailmerge/internal/model"
	"github.com/mailmerge/mailmerge/internal/repository"
	"github.com/mailmerge/mailmerge/internal/storage"
)

// Session service errors
var (
	ErrNoSession = errors.New("no active mailing session")
)

// SessionService owns the lifecycle of mailing sessions and their working directories
type SessionService struct {
	store     repository.SessionStore
	workspace *storage.Workspace
	log       *logger.Logger
	now       func() time.Time
}

// NewSessionService creates a new SessionService
func NewSessionService(store repository.SessionStore, workspace *storage.Workspace, log *logger.Logger) *SessionService {
	return &SessionService{
		store:     store,
		workspace: workspace,
		log:       log.WithComponent("session_service"),
		now:       time.Now,
	}
}

// Begin discards whatever the user had in progress and starts a fresh session
func (s *SessionService) Begin(ctx context.Context, userID int64) (*model.Session, error) {
	if err := s.Cleanup(ctx, userID); err != nil {
		return nil, err
	}

	sess := model.NewSession(userID, s.now())
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.log.Info().Int64("user_id", userID).Msg("session started")
	return sess, nil
}

// Get returns the user's session or ErrNoSession
func (s *SessionService) Get(ctx context.Context, userID int64) (*model.Session, error) {
	sess, err := s.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return sess, nil
}

// Save stores the session after a stage handler changed it
func (s *SessionService) Save(ctx context.Context, sess *model.Session) error {
	sess.UpdatedAt = s.now()
	if err := s.store.Save(ctx, sess); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Advance moves the session to its next stage and stores it
func (s *SessionService) Advance(ctx context.Context, sess *model.Session) error {
	if !sess.Advance(s.now()) {
		return fmt.Errorf("%w: no stage after %s", ErrProtocol, sess.Stage)
	}
	return s.Save(ctx, sess)
}

// WorkingDir returns the session's directory, creating it on first use.
// A new directory is saved with the session right away so Cleanup can find it
// even when the upload that created it is rejected.
func (s *SessionService) WorkingDir(ctx context.Context, sess *model.Session) (string, error) {
	if sess.WorkingDir != "" {
		return sess.WorkingDir, nil
	}
	dir, err := s.workspace.CreateUserDir(sess.UserID)
	if err != nil {
		return "", err
	}
	sess.WorkingDir = dir
	if err := s.Save(ctx, sess); err != nil {
		if rmErr := s.workspace.RemoveDir(dir); rmErr != nil {
			s.log.Error().Err(rmErr).Str("dir", dir).Msg("failed to remove working directory")
		}
		sess.WorkingDir = ""
		return "", err
	}
	return dir, nil
}

// Cleanup removes the user's working directory and session.
// File removal is best-effort; the session is always dropped.
// Calling it for a user without a session is a no-op.
func (s *SessionService) Cleanup(ctx context.Context, userID int64) error {
	sess, err := s.store.Get(ctx, userID)
	switch {
	case err == nil:
		if err := s.workspace.RemoveDir(sess.WorkingDir); err != nil {
			s.log.Error().Err(err).
				Int64("user_id", userID).
				Str("dir", sess.WorkingDir).
				Msg("failed to remove working directory")
		}
	case errors.Is(err, repository.ErrNotFound):
	default:
		s.log.Error().Err(err).Int64("user_id", userID).Msg("failed to load session for cleanup")
	}

	if err := s.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Purge removes every stored session and every working directory in the data directory.
// The server calls it at startup so nothing from a previous process survives.
func (s *SessionService) Purge(ctx context.Context) (int, error) {
	sessions, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	var errs []error
	for _, sess := range sessions {
		if err := s.Cleanup(ctx, sess.UserID); err != nil {
			errs = append(errs, err)
		}
	}

	removed, err := s.PurgeDirs(time.Time{})
	if err != nil {
		errs = append(errs, err)
	}

	s.log.Info().
		Int("sessions", len(sessions)).
		Int("directories", removed).
		Msg("purged leftover state")
	return len(sessions), errors.Join(errs...)
}

// PurgeDirs removes working directories last modified before cutoff; a zero cutoff removes all
func (s *SessionService) PurgeDirs(cutoff time.Time) (int, error) {
	dirs, err := s.workspace.UserDirs(cutoff)
	if err != nil {
		return 0, err
	}

	var errs []error
	removed := 0
	for _, dir := range dirs {
		if err := s.workspace.RemoveDir(dir); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// List returns every stored session
func (s *SessionService) List(ctx context.Context) ([]*model.Session, error) {
	return s.store.List(ctx)
}
