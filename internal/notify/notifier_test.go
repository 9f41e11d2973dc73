package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (s *recordingSender) Send(ctx context.Context, title, message string) error {
	if s.err != nil {
		return s.err
	}
	s.titles = append(s.titles, title)
	return nil
}

func (s *recordingSender) Name() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFansOutToAllSenders(t *testing.T) {
	a := &recordingSender{name: "telegram"}
	b := &recordingSender{name: "discord"}
	n := NewNotifier([]Sender{a, b}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), "exit_executed", "Exit executed", "SBIN closed"))
	assert.Equal(t, []string{"Exit executed"}, a.titles)
	assert.Equal(t, []string{"Exit executed"}, b.titles)
}

func TestNotifyFiltersByEvent(t *testing.T) {
	s := &recordingSender{name: "telegram"}
	n := NewNotifier([]Sender{s}, []string{"exit_failed"}, testLogger())

	require.NoError(t, n.Notify(context.Background(), "exit_executed", "Exit executed", "ignored"))
	assert.Empty(t, s.titles)

	require.NoError(t, n.Notify(context.Background(), "exit_failed", "Exit failed", "delivered"))
	assert.Equal(t, []string{"Exit failed"}, s.titles)

	// NotifyAll bypasses the filter.
	require.NoError(t, n.NotifyAll(context.Background(), "Emergency", "all out"))
	assert.Len(t, s.titles, 2)
}

func TestNotifyCollectsSenderFailures(t *testing.T) {
	ok := &recordingSender{name: "discord"}
	broken := &recordingSender{name: "telegram", err: errors.New("api quota")}
	n := NewNotifier([]Sender{broken, ok}, nil, testLogger())

	err := n.Notify(context.Background(), "exit_executed", "Exit executed", "msg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
	// The healthy sender still got the message.
	assert.Equal(t, []string{"Exit executed"}, ok.titles)
}

func TestNotifyNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, testLogger())
	assert.NoError(t, n.Notify(context.Background(), "exit_executed", "t", "m"))
}
