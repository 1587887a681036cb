package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/amats/tg-redmine/internal/model"
	"github.com/amats/tg-redmine/internal/store"
)

// handleMessage routes a text message: a pending session state wins,
// then the command table, then a short refusal.
func (h *Handler) handleMessage(ctx context.Context, msg *models.Message) {
	if state, ok := h.sessions.Get(msg.Chat.ID); ok {
		h.handleState(ctx, msg, state)
		return
	}

	if cmd, ok := h.commands[strings.TrimSpace(msg.Text)]; ok {
		cmd(ctx, msg)
		return
	}

	h.reply(ctx, msg.Chat.ID, "Неизвестная команда.")
}

// handleStart replies with the requester's chat coordinates in the
// exact format the add-user flow accepts.
func (h *Handler) handleStart(ctx context.Context, msg *models.Message) {
	if msg.From == nil {
		return
	}

	coords := fmt.Sprintf("@%s %d %d %d 0",
		msg.From.Username, msg.Chat.ID, msg.From.ID, msg.MessageThreadID)

	if err := h.transport.SendText(ctx, msg.Chat.ID, msg.MessageThreadID, coords); err != nil {
		h.log.Error("sending start reply", "chat_id", msg.Chat.ID, "error", err)
		return
	}
	if err := h.transport.SendText(ctx, msg.Chat.ID, msg.MessageThreadID,
		"Отправьте моё сообщение администратору"); err != nil {
		h.log.Error("sending start reply", "chat_id", msg.Chat.ID, "error", err)
	}
}

// handleAdmin opens the admin panel. Admins only, and only in a direct
// chat with the bot.
func (h *Handler) handleAdmin(ctx context.Context, msg *models.Message) {
	if msg.From == nil {
		return
	}

	isAdmin, err := h.store.IsAdmin(ctx, msg.From.ID)
	if err != nil {
		h.log.Error("checking admin flag", "user_id", msg.From.ID, "error", err)
	}
	if !isAdmin || msg.From.ID != msg.Chat.ID {
		h.log.Warn("failed admin panel authorization",
			"username", msg.From.Username, "user_id", msg.From.ID)
		h.reply(ctx, msg.Chat.ID, "Нет доступа. Обратитесь к администратору")
		return
	}

	keyboard := &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "Пользователи", CallbackData: "users"},
				{Text: "Cообщения", CallbackData: "messages"},
			},
			{
				{Text: "Логи", CallbackData: "logs"},
			},
		},
	}
	if err := h.transport.SendMenu(ctx, msg.Chat.ID, "Админ панель", keyboard); err != nil {
		h.log.Error("sending admin panel", "chat_id", msg.Chat.ID, "error", err)
	}
}

// handleState consumes the next message in a data-entry flow. The
// session returns to idle whatever the outcome.
func (h *Handler) handleState(ctx context.Context, msg *models.Message, state State) {
	defer h.sessions.Clear(msg.Chat.ID)

	if msg.From == nil || !h.checkAdmin(ctx, msg.Chat.ID, usernameOf(msg), msg.From.ID) {
		return
	}

	switch state {
	case StateAwaitingAddUser:
		h.handleAddUser(ctx, msg)
	case StateAwaitingUpdateUser:
		h.handleUpdateUser(ctx, msg)
	case StateAwaitingDeleteUser:
		h.handleDeleteUser(ctx, msg)
	}
}

func (h *Handler) handleAddUser(ctx context.Context, msg *models.Message) {
	u, err := parseUserLine(msg.Text)
	if err != nil {
		h.reply(ctx, msg.Chat.ID, "Неверный формат данных. Попробуйте снова.")
		return
	}

	switch err := h.store.AddUser(ctx, u); {
	case errors.Is(err, store.ErrExists):
		h.reply(ctx, msg.Chat.ID, fmt.Sprintf("Пользователь %s уже существует", u.Login))
	case err != nil:
		h.log.Error("adding user", "login", u.Login, "error", err)
		h.reply(ctx, msg.Chat.ID, "Произошла ошибка при обработке запроса.")
	default:
		h.log.Info("user added", "login", u.Login, "by", usernameOf(msg))
		h.reply(ctx, msg.Chat.ID, fmt.Sprintf("Пользователь %s добавлен", u.Login))
	}
}

func (h *Handler) handleUpdateUser(ctx context.Context, msg *models.Message) {
	u, err := parseUserLine(msg.Text)
	if err != nil {
		h.reply(ctx, msg.Chat.ID, "Неверный формат данных. Попробуйте снова.")
		return
	}

	switch err := h.store.UpdateUser(ctx, u); {
	case errors.Is(err, store.ErrNotFound):
		h.reply(ctx, msg.Chat.ID, fmt.Sprintf("Пользователь %s не найден", u.Login))
	case err != nil:
		h.log.Error("updating user", "login", u.Login, "error", err)
		h.reply(ctx, msg.Chat.ID, "Произошла ошибка при обработке запроса.")
	default:
		h.log.Info("user updated", "login", u.Login, "by", usernameOf(msg))
		h.reply(ctx, msg.Chat.ID, fmt.Sprintf("Пользователь %s изменен", u.Login))
	}
}

func (h *Handler) handleDeleteUser(ctx context.Context, msg *models.Message) {
	login := strings.TrimSpace(msg.Text)
	if login == "" || login == protectedLogin {
		h.reply(ctx, msg.Chat.ID, "Пользователь не найден или не может быть удален")
		return
	}

	switch err := h.store.DeleteUser(ctx, login); {
	case errors.Is(err, store.ErrNotFound):
		h.reply(ctx, msg.Chat.ID, "Пользователь не найден или не может быть удален")
	case err != nil:
		h.log.Error("deleting user", "login", login, "error", err)
		h.reply(ctx, msg.Chat.ID, "Произошла ошибка при обработке запроса.")
	default:
		h.log.Info("user deleted", "login", login, "by", usernameOf(msg))
		h.reply(ctx, msg.Chat.ID, fmt.Sprintf("Пользователь %s удален", login))
	}
}

// parseUserLine parses "@login chatId userId threadId isAdmin".
func parseUserLine(line string) (model.User, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return model.User{}, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}

	chatID, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return model.User{}, fmt.Errorf("parsing chat id: %w", err)
	}
	userID, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return model.User{}, fmt.Errorf("parsing user id: %w", err)
	}
	threadID, err := strconv.Atoi(fields[3])
	if err != nil {
		return model.User{}, fmt.Errorf("parsing thread id: %w", err)
	}
	isAdmin, err := strconv.Atoi(fields[4])
	if err != nil {
		return model.User{}, fmt.Errorf("parsing admin flag: %w", err)
	}

	return model.User{
		Login:          fields[0],
		ChatID:         chatID,
		TelegramUserID: userID,
		ThreadID:       threadID,
		IsAdmin:        isAdmin != 0,
	}, nil
}

func usernameOf(msg *models.Message) string {
	if msg.From == nil {
		return ""
	}
	return msg.From.Username
}
