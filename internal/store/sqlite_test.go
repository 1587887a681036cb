package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amats/tg-redmine/internal/model"
	"github.com/amats/tg-redmine/internal/store"
	"github.com/amats/tg-redmine/tests/testutil"
)

func TestUserLifecycle(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, err := s.UserByLogin(ctx, "@ivanov")
	require.ErrorIs(t, err, store.ErrNotFound)

	u := model.User{Login: "@ivanov", ChatID: -100200, ThreadID: 5, TelegramUserID: 42}
	require.NoError(t, s.AddUser(ctx, u))

	got, err := s.UserByLogin(ctx, "@ivanov")
	require.NoError(t, err)
	assert.Equal(t, int64(-100200), got.ChatID)
	assert.Equal(t, 5, got.ThreadID)
	assert.True(t, got.Deliverable())

	// Same chat and Telegram user id is a duplicate regardless of login.
	dup := model.User{Login: "@other", ChatID: -100200, TelegramUserID: 42}
	require.ErrorIs(t, s.AddUser(ctx, dup), store.ErrExists)

	u.ThreadID = 7
	u.IsAdmin = true
	require.NoError(t, s.UpdateUser(ctx, u))

	got, err = s.UserByLogin(ctx, "@ivanov")
	require.NoError(t, err)
	assert.Equal(t, 7, got.ThreadID)
	assert.True(t, got.IsAdmin)

	require.ErrorIs(t, s.UpdateUser(ctx, model.User{Login: "@ghost"}), store.ErrNotFound)

	require.NoError(t, s.DeleteUser(ctx, "@ivanov"))
	require.ErrorIs(t, s.DeleteUser(ctx, "@ivanov"), store.ErrNotFound)

	_, err = s.UserByLogin(ctx, "@ivanov")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreatePlaceholder(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	u, err := s.CreatePlaceholder(ctx, "@petrov")
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.False(t, u.Deliverable())

	users, err := s.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "@petrov", users[0].Login)
}

func TestIsAdmin(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	ok, err := s.IsAdmin(ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AddUser(ctx, model.User{Login: "@root", ChatID: 1, TelegramUserID: 999, IsAdmin: true}))

	ok, err = s.IsAdmin(ctx, 999)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMessageLifecycle(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	rec, err := s.CreateMessage(ctx, model.MessageRecord{
		IssueID:   101,
		MessageID: 555,
		ChatID:    -100200,
		CreatedOn: now,
		UpdatedOn: now,
	})
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)

	recs, err := s.MessagesByIssue(ctx, 101)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 555, recs[0].MessageID)

	later := now.Add(10 * time.Minute)
	touched, err := s.TouchMessage(ctx, 555, later)
	require.NoError(t, err)
	assert.True(t, touched.UpdatedOn.Equal(later))

	// The synced timestamp never moves backwards.
	touched, err = s.TouchMessage(ctx, 555, now)
	require.NoError(t, err)
	assert.True(t, touched.UpdatedOn.Equal(later))

	_, err = s.TouchMessage(ctx, 777, later)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.DeleteMessage(ctx, rec))

	recs, err = s.MessagesByIssue(ctx, 101)
	require.NoError(t, err)
	assert.Empty(t, recs)

	// Deleting an absent record is not an error.
	require.NoError(t, s.DeleteMessage(ctx, rec))
}

func TestMessagesExcludingIssues(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	for _, issueID := range []int64{1, 2, 3} {
		_, err := s.CreateMessage(ctx, model.MessageRecord{
			IssueID: issueID, MessageID: int(issueID) * 10, ChatID: -1,
			CreatedOn: now, UpdatedOn: now,
		})
		require.NoError(t, err)
	}

	orphans, err := s.MessagesExcludingIssues(ctx, map[int64]struct{}{1: {}, 3: {}})
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, int64(2), orphans[0].IssueID)

	// An empty snapshot orphans every record.
	orphans, err = s.MessagesExcludingIssues(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, orphans, 3)
}

func TestMessagesOlderThan(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	old := now.Add(-46 * time.Hour)
	_, err := s.CreateMessage(ctx, model.MessageRecord{
		IssueID: 1, MessageID: 10, ChatID: -1, CreatedOn: old, UpdatedOn: old,
	})
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, model.MessageRecord{
		IssueID: 2, MessageID: 20, ChatID: -1, CreatedOn: now, UpdatedOn: now,
	})
	require.NoError(t, err)

	expired, err := s.MessagesOlderThan(ctx, now.Add(-45*time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, int64(1), expired[0].IssueID)
}

func TestDeleteMessagesByIssue(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	for _, messageID := range []int{10, 20} {
		_, err := s.CreateMessage(ctx, model.MessageRecord{
			IssueID: 7, MessageID: messageID, ChatID: int64(-messageID),
			CreatedOn: now, UpdatedOn: now,
		})
		require.NoError(t, err)
	}
	_, err := s.CreateMessage(ctx, model.MessageRecord{
		IssueID: 8, MessageID: 30, ChatID: -1, CreatedOn: now, UpdatedOn: now,
	})
	require.NoError(t, err)

	// Prime the cache, then make sure the delete drops it.
	recs, err := s.MessagesByIssue(ctx, 7)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	require.NoError(t, s.DeleteMessagesByIssue(ctx, 7))

	recs, err = s.MessagesByIssue(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, recs)

	all, err := s.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(8), all[0].IssueID)
}
