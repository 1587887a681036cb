// Package bot routes inbound Telegram updates: issue status actions,
// the admin panel, and the per-chat data-entry flows behind it.
package bot

import (
	"context"
	"io"
	"log/slog"

	"github.com/go-telegram/bot/models"

	"github.com/amats/tg-redmine/internal/redmine"
	"github.com/amats/tg-redmine/internal/store"
)

// Transport is the outbound surface the handler needs. Satisfied by
// *telegram.Client.
type Transport interface {
	SendText(ctx context.Context, chatID int64, threadID int, text string) error
	SendMenu(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) error
	EditMenu(ctx context.Context, chatID int64, messageID int, text string, keyboard *models.InlineKeyboardMarkup) error
	Delete(ctx context.Context, chatID int64, messageID int) error
	Answer(ctx context.Context, callbackID, text string) error
	SendDocument(ctx context.Context, chatID int64, filename string, data io.Reader) error
}

// Store is the persistence surface the handler needs.
type Store interface {
	store.UserStore
	store.MessageStore
}

// protectedLogin can never be deleted through the admin flow.
const protectedLogin = "@amats"

// Handler reacts to inbound updates. Every path answers the requester
// with a short human-readable text; no error escapes to the update
// pump.
type Handler struct {
	transport Transport
	store     Store
	redmine   redmine.StatusClient
	sessions  *Sessions
	logDir    string
	log       *slog.Logger

	commands map[string]func(ctx context.Context, msg *models.Message)
}

// NewHandler wires the update handler.
func NewHandler(transport Transport, st Store, rm redmine.StatusClient, sessions *Sessions, logDir string, log *slog.Logger) *Handler {
	h := &Handler{
		transport: transport,
		store:     st,
		redmine:   rm,
		sessions:  sessions,
		logDir:    logDir,
		log:       log,
	}
	h.commands = map[string]func(ctx context.Context, msg *models.Message){
		"/start": h.handleStart,
		"/admin": h.handleAdmin,
	}
	return h
}

// HandleUpdate is the entry point for every inbound update.
func (h *Handler) HandleUpdate(ctx context.Context, update *models.Update) {
	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		h.handleMessage(ctx, update.Message)
	default:
		h.log.Warn("unhandled update type", "update_id", update.ID)
	}
}

// checkAdmin verifies the admin flag and, when absent, refuses with a
// short reply and drops any pending session state.
func (h *Handler) checkAdmin(ctx context.Context, chatID int64, username string, userID int64) bool {
	isAdmin, err := h.store.IsAdmin(ctx, userID)
	if err != nil {
		h.log.Error("checking admin flag", "user_id", userID, "error", err)
	}
	if !isAdmin {
		h.log.Warn("unauthorized admin action attempt", "username", username, "user_id", userID)
		h.reply(ctx, chatID, "Недостаточно прав.")
		h.sessions.Clear(chatID)
	}
	return isAdmin
}

// reply sends a short text to the chat root, logging delivery failures.
func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.transport.SendText(ctx, chatID, 0, text); err != nil {
		h.log.Error("sending reply", "chat_id", chatID, "error", err)
	}
}
