package bot

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/amats/tg-redmine/internal/redmine"
	"github.com/amats/tg-redmine/internal/telegram"
)

const (
	addUserPrompt = "Введите данные для добавления пользователя в формате: @логин chatId userId threadId isAdmin \n" +
		" Пример: @test 123 456 1 0 \n Получить эту информацию можно написав команду /start в чате с ботом."
	updateUserPrompt = "Введите данные для обновления пользователя в формате: @логин chatId userId threadId isAdmin \n" +
		" Пример: @test 123 456 1 0 \n Получить эту информацию можно написав команду /start в чате с ботом."
	deleteUserPrompt = "Введите логин пользователя для удаления."
)

// statusLineRe locates the rendered status line inside a delivered
// message's plain text.
var statusLineRe = regexp.MustCompile(`Статус:\s*[^\n]*`)

// handleCallback routes a button press: status actions carry an issue
// id in their data, everything else is the admin panel.
func (h *Handler) handleCallback(ctx context.Context, q *models.CallbackQuery) {
	data := q.Data

	switch {
	case strings.HasPrefix(data, telegram.CallbackClosePrefix):
		h.handleCloseIssue(ctx, q, strings.TrimPrefix(data, telegram.CallbackClosePrefix))
	case strings.HasPrefix(data, telegram.CallbackInWorkPrefix):
		h.handleTakeInProgress(ctx, q, strings.TrimPrefix(data, telegram.CallbackInWorkPrefix))
	case data == "users":
		h.handleUsersMenu(ctx, q)
	case data == "messages":
		h.handleMessagesExport(ctx, q)
	case data == "logs":
		h.handleLogsExport(ctx, q)
	case data == "show_users":
		h.handleUsersExport(ctx, q)
	case data == "add_user":
		h.promptForInput(ctx, q, addUserPrompt, StateAwaitingAddUser)
	case data == "update_user":
		h.promptForInput(ctx, q, updateUserPrompt, StateAwaitingUpdateUser)
	case data == "delete_user":
		h.promptForInput(ctx, q, deleteUserPrompt, StateAwaitingDeleteUser)
	default:
		h.log.Warn("unknown callback query", "data", data)
	}
}

// handleCloseIssue resolves the issue and tears down its notifications.
func (h *Handler) handleCloseIssue(ctx context.Context, q *models.CallbackQuery, rawID string) {
	issueID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		h.log.Warn("malformed close callback", "data", rawID)
		return
	}

	switch err := h.redmine.Close(ctx, issueID); {
	case errors.Is(err, redmine.ErrAlreadyClosed):
		h.answer(ctx, q, "Заявку уже кто-то закрыл")
	case errors.Is(err, redmine.ErrNotInProgress):
		h.answer(ctx, q, "Заявка не может быть закрыта из этого статуса")
	case err != nil:
		h.log.Error("closing issue", "issue_id", issueID, "error", err)
		h.answer(ctx, q, "Возникла неизвестная ошибка при закрытии задачи. Попробуйте позднее")
	default:
		h.answer(ctx, q, "Заявка решена")
		h.log.Info("issue closed from chat", "issue_id", issueID, "by", q.From.Username)

		if chatID, messageID, _, ok := callbackMessage(q); ok {
			if err := h.transport.Delete(ctx, chatID, messageID); err != nil {
				h.log.Error("deleting notification after close",
					"chat_id", chatID, "message_id", messageID, "error", err)
			}
		}
		// The issue is closed: no further reconciliation will reference
		// these records, so drop them all now.
		if err := h.store.DeleteMessagesByIssue(ctx, issueID); err != nil {
			h.log.Error("deleting records after close", "issue_id", issueID, "error", err)
		}
	}
}

// handleTakeInProgress advances the issue and updates the pressed
// message in place. The store is left alone: the next reconciliation
// cycle re-syncs the record from the tracker's new update timestamp.
func (h *Handler) handleTakeInProgress(ctx context.Context, q *models.CallbackQuery, rawID string) {
	issueID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		h.log.Warn("malformed in-work callback", "data", rawID)
		return
	}

	switch err := h.redmine.TakeInProgress(ctx, issueID); {
	case errors.Is(err, redmine.ErrAlreadyInProgress):
		h.answer(ctx, q, "Заявку уже кто-то взял в работу")
	case errors.Is(err, redmine.ErrAlreadyClosed):
		h.answer(ctx, q, "Заявка уже закрыта")
	case err != nil:
		h.log.Error("taking issue in progress", "issue_id", issueID, "error", err)
		h.answer(ctx, q, "Возникла неизвестная ошибка при обновлении задачи. Попробуйте позднее")
	default:
		h.answer(ctx, q, "Заявка взята в работу")
		h.log.Info("issue taken in progress from chat", "issue_id", issueID, "by", q.From.Username)

		// Swap the displayed status and the action button. Formatting
		// is restored by the next cycle's update path.
		if chatID, messageID, text, ok := callbackMessage(q); ok && text != "" {
			newText := statusLineRe.ReplaceAllString(text, "Статус: "+telegram.StatusInProgress)
			keyboard := telegram.StatusKeyboard(issueID, telegram.StatusInProgress)
			if err := h.transport.EditMenu(ctx, chatID, messageID, newText, keyboard); err != nil {
				h.log.Error("updating notification after status change",
					"chat_id", chatID, "message_id", messageID, "error", err)
			}
		}
	}
}

func (h *Handler) handleUsersMenu(ctx context.Context, q *models.CallbackQuery) {
	chatID, messageID, _, ok := callbackMessage(q)
	if !ok {
		return
	}

	keyboard := &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "Показать", CallbackData: "show_users"}},
			{{Text: "Добавить", CallbackData: "add_user"}},
			{{Text: "Обновить", CallbackData: "update_user"}},
			{{Text: "Удалить", CallbackData: "delete_user"}},
		},
	}
	if err := h.transport.EditMenu(ctx, chatID, messageID, "Выберите действие с пользователями:", keyboard); err != nil {
		h.log.Error("showing users menu", "chat_id", chatID, "error", err)
	}
}

func (h *Handler) handleUsersExport(ctx context.Context, q *models.CallbackQuery) {
	chatID, _, _, ok := callbackMessage(q)
	if !ok || !h.checkAdmin(ctx, chatID, q.From.Username, q.From.ID) {
		return
	}

	users, err := h.store.Users(ctx)
	if err != nil {
		h.log.Error("listing users for export", "error", err)
		h.reply(ctx, chatID, "Произошла ошибка при обработке запроса.")
		return
	}
	if len(users) == 0 {
		h.reply(ctx, chatID, "Список пользователей пуст")
		return
	}

	if err := h.transport.SendDocument(ctx, chatID, "users.csv", UsersCSV(users)); err != nil {
		h.log.Error("sending users export", "chat_id", chatID, "error", err)
		return
	}
	h.log.Info("users exported", "by", q.From.Username, "user_id", q.From.ID)
}

func (h *Handler) handleMessagesExport(ctx context.Context, q *models.CallbackQuery) {
	chatID, _, _, ok := callbackMessage(q)
	if !ok || !h.checkAdmin(ctx, chatID, q.From.Username, q.From.ID) {
		return
	}

	recs, err := h.store.Messages(ctx)
	if err != nil {
		h.log.Error("listing messages for export", "error", err)
		h.reply(ctx, chatID, "Произошла ошибка при обработке запроса.")
		return
	}
	if len(recs) == 0 {
		h.reply(ctx, chatID, "Список сообщений пуст")
		return
	}

	if err := h.transport.SendDocument(ctx, chatID, "messages.csv", MessagesCSV(recs)); err != nil {
		h.log.Error("sending messages export", "chat_id", chatID, "error", err)
		return
	}
	h.log.Info("messages exported", "by", q.From.Username, "user_id", q.From.ID)
}

func (h *Handler) handleLogsExport(ctx context.Context, q *models.CallbackQuery) {
	chatID, _, _, ok := callbackMessage(q)
	if !ok || !h.checkAdmin(ctx, chatID, q.From.Username, q.From.ID) {
		return
	}

	archive, err := ZipLogs(h.logDir)
	if err != nil {
		h.log.Error("archiving logs", "error", err)
		h.reply(ctx, chatID, "Список логов пуст")
		return
	}

	if err := h.transport.SendDocument(ctx, chatID, "logs.zip", archive); err != nil {
		h.log.Error("sending log archive", "chat_id", chatID, "error", err)
		return
	}
	h.log.Info("logs exported", "by", q.From.Username, "user_id", q.From.ID)
}

// promptForInput asks for the next message and arms the session state.
func (h *Handler) promptForInput(ctx context.Context, q *models.CallbackQuery, prompt string, state State) {
	chatID, _, _, ok := callbackMessage(q)
	if !ok {
		return
	}

	h.reply(ctx, chatID, prompt)
	h.sessions.Set(chatID, state)
}

// answer acknowledges the callback, logging delivery failures.
func (h *Handler) answer(ctx context.Context, q *models.CallbackQuery, text string) {
	if err := h.transport.Answer(ctx, q.ID, text); err != nil {
		h.log.Error("answering callback", "callback_id", q.ID, "error", err)
	}
}

// callbackMessage extracts the chat, message id, and text of the
// message the button was attached to. Old messages may be reported as
// inaccessible, in which case the text is empty.
func callbackMessage(q *models.CallbackQuery) (chatID int64, messageID int, text string, ok bool) {
	if m := q.Message.Message; m != nil {
		return m.Chat.ID, m.ID, m.Text, true
	}
	if m := q.Message.InaccessibleMessage; m != nil {
		return m.Chat.ID, m.MessageID, "", true
	}
	return 0, 0, "", false
}
