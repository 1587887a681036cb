package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amats/tg-redmine/internal/model"
	"github.com/amats/tg-redmine/internal/redmine"
)

func TestCloseCallbackSuccess(t *testing.T) {
	h, transport, rm, st := newTestHandler(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	_, err := st.CreateMessage(ctx, model.MessageRecord{
		IssueID: 123, MessageID: 77, ChatID: -100, CreatedOn: now, UpdatedOn: now,
	})
	require.NoError(t, err)

	h.HandleUpdate(ctx, callbackUpdate(-100, 7, "closeIssue:123", "whatever"))

	assert.Equal(t, []int64{123}, rm.closed)
	require.Len(t, transport.answers, 1)
	assert.Equal(t, "Заявка решена", transport.answers[0])
	assert.Equal(t, []int{77}, transport.deleted)

	recs, err := st.MessagesByIssue(ctx, 123)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestCloseCallbackRejections(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"already closed", redmine.ErrAlreadyClosed, "Заявку уже кто-то закрыл"},
		{"not in progress", redmine.ErrNotInProgress, "Заявка не может быть закрыта из этого статуса"},
		{"transport failure", errors.New("boom"), "Возникла неизвестная ошибка при закрытии задачи. Попробуйте позднее"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, transport, rm, st := newTestHandler(t)
			ctx := context.Background()
			rm.closeErr = tt.err

			now := time.Now().UTC().Truncate(time.Second)
			_, err := st.CreateMessage(ctx, model.MessageRecord{
				IssueID: 123, MessageID: 77, ChatID: -100, CreatedOn: now, UpdatedOn: now,
			})
			require.NoError(t, err)

			h.HandleUpdate(ctx, callbackUpdate(-100, 7, "closeIssue:123", ""))

			require.Len(t, transport.answers, 1)
			assert.Equal(t, tt.wantMsg, transport.answers[0])
			assert.Empty(t, transport.deleted)

			recs, err := st.MessagesByIssue(ctx, 123)
			require.NoError(t, err)
			assert.Len(t, recs, 1, "records survive a refused close")
		})
	}
}

func TestInWorkCallbackSuccess(t *testing.T) {
	h, transport, rm, _ := newTestHandler(t)
	ctx := context.Background()

	text := "Задача: #123\n Статус: Новая\n Автор: Иванов"
	h.HandleUpdate(ctx, callbackUpdate(-100, 7, "InWorkIssue:123", text))

	assert.Equal(t, []int64{123}, rm.taken)
	require.Len(t, transport.answers, 1)
	assert.Equal(t, "Заявка взята в работу", transport.answers[0])

	require.Len(t, transport.editTexts, 1)
	assert.Contains(t, transport.editTexts[0], "Статус: В работе")
	assert.NotContains(t, transport.editTexts[0], "Новая")

	// The button flips to the resolve action.
	require.Len(t, transport.editKbs, 1)
	kb := transport.editKbs[0]
	require.Len(t, kb.InlineKeyboard, 1)
	require.Len(t, kb.InlineKeyboard[0], 1)
	assert.Equal(t, "closeIssue:123", kb.InlineKeyboard[0][0].CallbackData)
}

func TestInWorkCallbackRejections(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"already in progress", redmine.ErrAlreadyInProgress, "Заявку уже кто-то взял в работу"},
		{"already closed", redmine.ErrAlreadyClosed, "Заявка уже закрыта"},
		{"transport failure", errors.New("boom"), "Возникла неизвестная ошибка при обновлении задачи. Попробуйте позднее"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, transport, rm, _ := newTestHandler(t)
			rm.inWorkErr = tt.err

			h.HandleUpdate(context.Background(), callbackUpdate(-100, 7, "InWorkIssue:123", "Статус: Новая"))

			require.Len(t, transport.answers, 1)
			assert.Equal(t, tt.wantMsg, transport.answers[0])
			assert.Empty(t, transport.editTexts)
		})
	}
}

func TestUsersMenuCallback(t *testing.T) {
	h, transport, _, _ := newTestHandler(t)

	h.HandleUpdate(context.Background(), callbackUpdate(42, 42, "users", ""))

	require.Len(t, transport.editTexts, 1)
	assert.Equal(t, "Выберите действие с пользователями:", transport.editTexts[0])
	require.Len(t, transport.editKbs, 1)
	assert.Len(t, transport.editKbs[0].InlineKeyboard, 4)
}

func TestExportCallbacksRequireAdmin(t *testing.T) {
	h, transport, _, _ := newTestHandler(t)
	ctx := context.Background()

	for _, data := range []string{"show_users", "messages", "logs"} {
		h.HandleUpdate(ctx, callbackUpdate(7, 7, data, ""))
	}

	assert.Empty(t, transport.documents)
	require.Len(t, transport.texts, 3)
	for _, text := range transport.texts {
		assert.Equal(t, "Недостаточно прав.", text)
	}
}

func TestUsersExportCallback(t *testing.T) {
	h, transport, _, st := newTestHandler(t)
	addAdmin(t, st, 42, 42)

	h.HandleUpdate(context.Background(), callbackUpdate(42, 42, "show_users", ""))

	assert.Equal(t, []string{"users.csv"}, transport.documents)
}

func TestMessagesExportCallbackEmpty(t *testing.T) {
	h, transport, _, st := newTestHandler(t)
	addAdmin(t, st, 42, 42)

	h.HandleUpdate(context.Background(), callbackUpdate(42, 42, "messages", ""))

	assert.Empty(t, transport.documents)
	assert.Equal(t, "Список сообщений пуст", transport.texts[len(transport.texts)-1])
}

func TestLogsExportCallback(t *testing.T) {
	h, transport, _, st := newTestHandler(t)
	addAdmin(t, st, 42, 42)

	require.NoError(t, os.WriteFile(filepath.Join(h.logDir, "app.log"), []byte("line\n"), 0o644))

	h.HandleUpdate(context.Background(), callbackUpdate(42, 42, "logs", ""))

	assert.Equal(t, []string{"logs.zip"}, transport.documents)
}
