package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mailmerge/mailmerge/internal/spreadsheet"
)

func threeRowSheet(t *testing.T) []byte {
	return workbook(t,
		[]interface{}{"Name", "Email"},
		[]interface{}{"Alex", "a@x.com"},
		[]interface{}{"Bo", "not-an-email"},
		[]interface{}{"Cy", "b@x.com"},
	)
}

func TestDispatch_SkipsInvalidAddresses(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultDispatchConfig())
	sess := h.readySession(t, 1, threeRowSheet(t))

	conn := &mockConn{}
	conn.On("Send", mock.Anything, testSender, "a@x.com", mock.Anything).Return(nil).Once()
	conn.On("Send", mock.Anything, testSender, "b@x.com", mock.Anything).Return(nil).Once()
	conn.On("Close").Return(nil).Once()
	h.dialer.On("Dial", mock.Anything).Return(conn, nil).Once()

	report, err := h.dispatch.Run(context.Background(), sess)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, 1, report.ErrorCount)
	assert.Equal(t, []string{"not-an-email"}, report.InvalidAddresses)
	assert.True(t, report.Balanced())
	assert.Equal(t, 3, h.sleeps, "delay follows every row")

	conn.AssertExpectations(t)
	conn.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, "not-an-email", mock.Anything)
	h.dialer.AssertExpectations(t)
}

func TestDispatch_PersonalizesBody(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultDispatchConfig())
	sess := h.readySession(t, 1, workbook(t,
		[]interface{}{"Name", "Email"},
		[]interface{}{"Alex", "a@x.com"},
	))

	var raw []byte
	conn := &mockConn{}
	conn.On("Send", mock.Anything, testSender, "a@x.com", mock.Anything).
		Run(func(args mock.Arguments) { raw = args.Get(3).([]byte) }).
		Return(nil).Once()
	conn.On("Close").Return(nil).Once()
	h.dialer.On("Dial", mock.Anything).Return(conn, nil).Once()

	_, err := h.dispatch.Run(context.Background(), sess)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Hi Alex")
	assert.Contains(t, string(raw), `filename=offer.pdf`)
}

func TestDispatch_SendFailureContinues(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultDispatchConfig())
	sess := h.readySession(t, 1, threeRowSheet(t))

	conn := &mockConn{}
	conn.On("Send", mock.Anything, testSender, "a@x.com", mock.Anything).Return(errors.New("550 mailbox unavailable")).Once()
	conn.On("Send", mock.Anything, testSender, "b@x.com", mock.Anything).Return(nil).Once()
	conn.On("Close").Return(nil).Once()
	h.dialer.On("Dial", mock.Anything).Return(conn, nil).Once()

	report, err := h.dispatch.Run(context.Background(), sess)
	require.NoError(t, err)

	assert.Equal(t, 1, report.SuccessCount)
	assert.Equal(t, 2, report.ErrorCount)
	assert.Equal(t, []string{"a@x.com", "not-an-email"}, report.InvalidAddresses)
	conn.AssertExpectations(t)
}

func TestDispatch_ConnectionFailureAborts(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultDispatchConfig())
	sess := h.readySession(t, 1, threeRowSheet(t))

	h.dialer.On("Dial", mock.Anything).Return(nil, errors.New("535 authentication failed")).Once()

	report, err := h.dispatch.Run(context.Background(), sess)
	require.ErrorIs(t, err, ErrConnection)
	assert.Nil(t, report)
	assert.Zero(t, h.sleeps)
}

func TestDispatch_SpreadsheetGoneAborts(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultDispatchConfig())
	sess := h.readySession(t, 1, threeRowSheet(t))
	require.NoError(t, h.fs.Remove(sess.SpreadsheetPath))

	_, err := h.dispatch.Run(context.Background(), sess)
	require.ErrorIs(t, err, spreadsheet.ErrUnreadable)
	h.dialer.AssertNotCalled(t, "Dial", mock.Anything)
}

func TestDispatch_EmptySpreadsheet(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultDispatchConfig())
	sess := h.readySession(t, 1, workbook(t, []interface{}{"Name", "Email"}))

	conn := &mockConn{}
	conn.On("Close").Return(nil).Once()
	h.dialer.On("Dial", mock.Anything).Return(conn, nil).Once()

	report, err := h.dispatch.Run(context.Background(), sess)
	require.NoError(t, err)
	assert.Zero(t, report.Total)
	assert.True(t, report.Balanced())
	conn.AssertExpectations(t)
}

func TestDispatch_AttachmentPolicy(t *testing.T) {
	t.Parallel()
	sheet := workbook(t,
		[]interface{}{"Email"},
		[]interface{}{"a@x.com"},
	)

	t.Run("lenient sends without attachment", func(t *testing.T) {
		h := newHarness(t, defaultDispatchConfig())
		sess := h.readySession(t, 1, sheet)
		require.NoError(t, h.fs.Remove(sess.AttachmentPath))

		var raw []byte
		conn := &mockConn{}
		conn.On("Send", mock.Anything, testSender, "a@x.com", mock.Anything).
			Run(func(args mock.Arguments) { raw = args.Get(3).([]byte) }).
			Return(nil).Once()
		conn.On("Close").Return(nil).Once()
		h.dialer.On("Dial", mock.Anything).Return(conn, nil).Once()

		report, err := h.dispatch.Run(context.Background(), sess)
		require.NoError(t, err)
		assert.Equal(t, 1, report.SuccessCount)
		assert.False(t, strings.Contains(string(raw), "Content-Disposition"))
	})

	t.Run("strict skips the recipient", func(t *testing.T) {
		cfg := defaultDispatchConfig()
		cfg.RequireAttachment = true
		h := newHarness(t, cfg)
		sess := h.readySession(t, 1, sheet)
		require.NoError(t, h.fs.Remove(sess.AttachmentPath))

		conn := &mockConn{}
		conn.On("Close").Return(nil).Once()
		h.dialer.On("Dial", mock.Anything).Return(conn, nil).Once()

		report, err := h.dispatch.Run(context.Background(), sess)
		require.NoError(t, err)
		assert.Equal(t, 1, report.ErrorCount)
		assert.Equal(t, []string{"a@x.com"}, report.InvalidAddresses)
		conn.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestDispatch_RequiresConfirmedSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultDispatchConfig())
	sess := h.readySession(t, 1, threeRowSheet(t))
	sess.Body = ""

	_, err := h.dispatch.Run(context.Background(), sess)
	require.ErrorIs(t, err, ErrProtocol)
	h.dialer.AssertNotCalled(t, "Dial", mock.Anything)
}
