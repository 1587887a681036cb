package notify_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amats/tg-redmine/internal/model"
	"github.com/amats/tg-redmine/internal/notify"
	"github.com/amats/tg-redmine/internal/telegram"
	"github.com/amats/tg-redmine/tests/testutil"
)

type sendCall struct {
	chatID   int64
	threadID int
	text     string
	status   string
}

type editCall struct {
	chatID    int64
	messageID int
	text      string
}

// fakeSender records transport calls and hands out sequential message ids.
type fakeSender struct {
	mu      sync.Mutex
	nextID  int
	sends   []sendCall
	edits   []editCall
	deletes []int

	sendErr   error
	editErr   error
	deleteErr error
}

func (f *fakeSender) Send(_ context.Context, chatID int64, threadID int, html string, _ int64, status string) (telegram.SentMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return telegram.SentMessage{}, f.sendErr
	}
	f.nextID++
	f.sends = append(f.sends, sendCall{chatID: chatID, threadID: threadID, text: html, status: status})
	return telegram.SentMessage{
		MessageID: f.nextID,
		ChatID:    chatID,
		ThreadID:  threadID,
		SentAt:    time.Now().UTC(),
	}, nil
}

func (f *fakeSender) Edit(_ context.Context, chatID int64, messageID int, html string, _ int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, editCall{chatID: chatID, messageID: messageID, text: html})
	return nil
}

func (f *fakeSender) Delete(_ context.Context, _ int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletes = append(f.deletes, messageID)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyCreatesRecordPerGroup(t *testing.T) {
	st := testutil.NewTestStore(t)
	sender := &fakeSender{}
	d := notify.NewDispatcher(sender, st, &notify.Renderer{IssueBaseURL: "https://sd.example.com/issues"}, discardLogger())
	ctx := context.Background()

	updated := time.Now().UTC().Truncate(time.Second)
	issue := model.Issue{ID: 42, Subject: "Сломан замок", Status: "Новая", UpdatedOn: updated}
	users := []model.User{
		{Login: "@a", ChatID: 100, ThreadID: 0},
		{Login: "@b", ChatID: 100, ThreadID: 5},
	}

	d.Notify(ctx, issue, users)

	assert.Len(t, sender.sends, 2)

	recs, err := st.MessagesByIssue(ctx, 42)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, int64(100), rec.ChatID)
		assert.True(t, rec.UpdatedOn.Equal(updated))
		assert.False(t, rec.StaleFor(issue))
	}
}

func TestNotifySendFailureLeavesNoRecord(t *testing.T) {
	st := testutil.NewTestStore(t)
	sender := &fakeSender{sendErr: errors.New("telegram down")}
	d := notify.NewDispatcher(sender, st, &notify.Renderer{IssueBaseURL: "https://sd.example.com/issues"}, discardLogger())
	ctx := context.Background()

	d.Notify(ctx, model.Issue{ID: 42}, []model.User{{Login: "@a", ChatID: 100}})

	recs, err := st.MessagesByIssue(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestUpdateEditsAndAdvancesTimestamp(t *testing.T) {
	st := testutil.NewTestStore(t)
	sender := &fakeSender{}
	d := notify.NewDispatcher(sender, st, &notify.Renderer{IssueBaseURL: "https://sd.example.com/issues"}, discardLogger())
	ctx := context.Background()

	created := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)
	issue := model.Issue{ID: 42, Subject: "Сломан замок", Status: "В работе", UpdatedOn: created}
	d.Notify(ctx, issue, []model.User{{Login: "@a", ChatID: 100}})

	issue.UpdatedOn = created.Add(30 * time.Minute)
	issue.Comment = "Выехали"
	d.Update(ctx, issue, []model.User{{Login: "@a", ChatID: 100}})

	require.Len(t, sender.edits, 1)
	assert.Contains(t, sender.edits[0].text, "Выехали")

	recs, err := st.MessagesByIssue(ctx, 42)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].UpdatedOn.Equal(issue.UpdatedOn))
	assert.False(t, recs[0].StaleFor(issue))
}

func TestUpdateEditFailureKeepsRecordStale(t *testing.T) {
	st := testutil.NewTestStore(t)
	sender := &fakeSender{}
	d := notify.NewDispatcher(sender, st, &notify.Renderer{IssueBaseURL: "https://sd.example.com/issues"}, discardLogger())
	ctx := context.Background()

	created := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)
	issue := model.Issue{ID: 42, Status: "В работе", UpdatedOn: created}
	d.Notify(ctx, issue, []model.User{{Login: "@a", ChatID: 100}})

	sender.editErr = errors.New("flood limit")
	issue.UpdatedOn = created.Add(time.Minute)
	d.Update(ctx, issue, []model.User{{Login: "@a", ChatID: 100}})

	recs, err := st.MessagesByIssue(ctx, 42)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].StaleFor(issue), "failed edit must leave the record stale for retry")
}

func TestDeleteRemovesRecordEvenWhenTransportFails(t *testing.T) {
	st := testutil.NewTestStore(t)
	sender := &fakeSender{}
	d := notify.NewDispatcher(sender, st, &notify.Renderer{IssueBaseURL: "https://sd.example.com/issues"}, discardLogger())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	rec, err := st.CreateMessage(ctx, model.MessageRecord{
		IssueID: 42, MessageID: 9, ChatID: 100, CreatedOn: now, UpdatedOn: now,
	})
	require.NoError(t, err)

	sender.deleteErr = errors.New("message already gone")
	d.Delete(ctx, rec)

	recs, err := st.MessagesByIssue(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
