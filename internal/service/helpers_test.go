package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mailmerge/mailmerge/internal/config"
	"github.com/mailmerge/mailmerge/internal/email"
	"github.com/mailmerge/mailmerge/internal/logger"
	"github.com/mailmerge/mailmerge/internal/model"
	"github.com/mailmerge/mailmerge/internal/repository"
	"github.com/mailmerge/mailmerge/internal/spreadsheet"
	"github.com/mailmerge/mailmerge/internal/storage"
)

const testSender = "sender@example.com"

type mockDialer struct {
	mock.Mock
}

func (m *mockDialer) Dial(ctx context.Context) (email.Conn, error) {
	args := m.Called(ctx)
	conn, _ := args.Get(0).(email.Conn)
	return conn, args.Error(1)
}

type mockConn struct {
	mock.Mock
}

func (m *mockConn) Send(ctx context.Context, from, to string, raw []byte) error {
	return m.Called(ctx, from, to, raw).Error(0)
}

func (m *mockConn) Close() error {
	return m.Called().Error(0)
}

// recorder captures everything the conversation says
type recorder struct {
	replies []Reply
	edits   []string
}

func (r *recorder) Reply(_ context.Context, reply Reply) error {
	r.replies = append(r.replies, reply)
	return nil
}

func (r *recorder) Edit(_ context.Context, text string) error {
	r.edits = append(r.edits, text)
	return nil
}

func (r *recorder) last() Reply {
	if len(r.replies) == 0 {
		return Reply{}
	}
	return r.replies[len(r.replies)-1]
}

// stubFetcher serves uploads by file ID
type stubFetcher map[string][]byte

func (f stubFetcher) Fetch(_ context.Context, fileID string) (io.ReadCloser, error) {
	data, ok := f[fileID]
	if !ok {
		return nil, errors.New("file not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func workbook(t *testing.T, rows ...[]interface{}) []byte {
	t.Helper()
	wb := excelize.NewFile()
	defer wb.Close()

	for i, row := range rows {
		row := row
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, wb.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := wb.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

type harness struct {
	fs        afero.Fs
	store     *repository.MemorySessionStore
	workspace *storage.Workspace
	sessions  *SessionService
	dispatch  *DispatchService
	dialer    *mockDialer
	fetcher   stubFetcher
	conv      *ConversationService
	sleeps    int
}

func newHarness(t *testing.T, cfg config.DispatchConfig) *harness {
	t.Helper()
	log := logger.Nop()

	h := &harness{
		fs:      afero.NewMemMapFs(),
		store:   repository.NewMemorySessionStore(),
		dialer:  &mockDialer{},
		fetcher: stubFetcher{},
	}
	h.workspace = storage.NewWorkspace(h.fs, "/data")
	require.NoError(t, h.workspace.Init())

	reader := spreadsheet.NewReader(h.fs)
	composer := email.NewComposer(h.fs, email.ComposerConfig{
		FromAddress: testSender,
		Strict:      cfg.RequireAttachment,
	}, log)

	h.sessions = NewSessionService(h.store, h.workspace, log)
	h.dispatch = NewDispatchService(reader, h.dialer, composer, cfg, log)
	h.dispatch.sleep = func(time.Duration) { h.sleeps++ }
	h.conv = NewConversationService(h.sessions, h.dispatch, h.fetcher, h.workspace, reader, cfg, testSender, log)
	return h
}

func defaultDispatchConfig() config.DispatchConfig {
	return config.DispatchConfig{
		SendDelay:   500 * time.Millisecond,
		MaxFileSize: 50 * 1024 * 1024,
		MaxContacts: 10000,
	}
}

// readySession stores a spreadsheet and attachment and returns a session awaiting confirmation
func (h *harness) readySession(t *testing.T, userID int64, sheet []byte) *model.Session {
	t.Helper()
	sess := model.NewSession(userID, time.Now())
	dir, err := h.sessions.WorkingDir(context.Background(), sess)
	require.NoError(t, err)

	sess.SpreadsheetPath, err = h.workspace.Save(dir, "recipients.xlsx", bytes.NewReader(sheet))
	require.NoError(t, err)
	sess.SpreadsheetFilename = "contacts.xlsx"
	sess.AttachmentPath, err = h.workspace.Save(dir, "attachment-offer.pdf", bytes.NewReader([]byte("%PDF")))
	require.NoError(t, err)
	sess.AttachmentFilename = "offer.pdf"
	sess.Subject = "Offer"
	sess.Body = "Hi {Name}"
	sess.Stage = model.StageAwaitingConfirmation

	require.NoError(t, h.store.Save(context.Background(), sess))
	return sess
}

func (h *harness) send(t *testing.T, ev Event) *recorder {
	t.Helper()
	out := &recorder{}
	require.NoError(t, h.conv.Handle(context.Background(), ev, out))
	return out
}

func command(userID int64, cmd string) Event {
	return Event{UserID: userID, UserName: "Alex", Kind: EventCommand, Command: cmd}
}

func document(userID int64, fileID, name string, size int64) Event {
	return Event{UserID: userID, Kind: EventDocument, Document: &Document{FileID: fileID, FileName: name, Size: size}}
}

func text(userID int64, s string) Event {
	return Event{UserID: userID, Kind: EventText, Text: s}
}

func callback(userID int64, data string) Event {
	return Event{UserID: userID, Kind: EventCallback, CallbackData: data}
}
