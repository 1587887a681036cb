// Package telegram wraps the bot API transport: outbound message
// operations used by the notification dispatcher and the inbound
// update stream consumed by the command layer.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Callback data prefixes for the status action buttons.
const (
	CallbackClosePrefix  = "closeIssue:"
	CallbackInWorkPrefix = "InWorkIssue:"
)

// StatusInProgress is the tracker status string that flips the action
// button from "take in progress" to "resolve".
const StatusInProgress = "В работе"

// SentMessage is the transport's view of a delivered message, carrying
// everything the store needs to record it.
type SentMessage struct {
	MessageID int
	ChatID    int64
	ChatTitle string
	ThreadID  int
	SentAt    time.Time
}

// Sender is the outbound surface used by the notification dispatcher.
type Sender interface {
	// Send delivers a new HTML message to the chat (root when threadID
	// is 0, else the named thread) with a status-appropriate action
	// button attached.
	Send(ctx context.Context, chatID int64, threadID int, html string, issueID int64, status string) (SentMessage, error)

	// Edit replaces the text and button of an existing message.
	Edit(ctx context.Context, chatID int64, messageID int, html string, issueID int64, status string) error

	// Delete removes a message from the chat.
	Delete(ctx context.Context, chatID int64, messageID int) error
}

// Client is the production transport backed by the Telegram Bot API.
// The library performs its own request retries and timeouts; callers
// treat a returned error as "this cycle failed", not a reason to
// retry inline.
type Client struct {
	api     *bot.Bot
	log     *slog.Logger
	handler func(ctx context.Context, u *models.Update)
}

var _ Sender = (*Client)(nil)

// New creates the transport. OnUpdate must be called before Run for
// inbound updates to be dispatched.
func New(token string, log *slog.Logger) (*Client, error) {
	c := &Client{log: log}

	api, err := bot.New(token, bot.WithDefaultHandler(c.dispatch))
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	c.api = api

	return c, nil
}

// OnUpdate registers the inbound update handler.
func (c *Client) OnUpdate(h func(ctx context.Context, u *models.Update)) {
	c.handler = h
}

// Run starts long polling and blocks until the context is cancelled.
func (c *Client) Run(ctx context.Context) {
	c.api.Start(ctx)
}

func (c *Client) dispatch(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if c.handler == nil {
		c.log.Warn("update received before handler registration", "update_id", update.ID)
		return
	}
	c.handler(ctx, update)
}

// StatusKeyboard builds the single action button attached to every
// notification: "resolve" when the issue is already in progress,
// otherwise "take in progress".
func StatusKeyboard(issueID int64, status string) *models.InlineKeyboardMarkup {
	var button models.InlineKeyboardButton
	if status == StatusInProgress {
		button = models.InlineKeyboardButton{
			Text:         "Решить заявку",
			CallbackData: fmt.Sprintf("%s%d", CallbackClosePrefix, issueID),
		}
	} else {
		button = models.InlineKeyboardButton{
			Text:         "Взять в работу",
			CallbackData: fmt.Sprintf("%s%d", CallbackInWorkPrefix, issueID),
		}
	}

	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{button}},
	}
}

// Send delivers a new notification message.
func (c *Client) Send(ctx context.Context, chatID int64, threadID int, html string, issueID int64, status string) (SentMessage, error) {
	msg, err := c.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          chatID,
		MessageThreadID: threadID,
		Text:            html,
		ParseMode:       models.ParseModeHTML,
		ReplyMarkup:     StatusKeyboard(issueID, status),
	})
	if err != nil {
		return SentMessage{}, fmt.Errorf("sending message to chat %d: %w", chatID, err)
	}

	return SentMessage{
		MessageID: msg.ID,
		ChatID:    msg.Chat.ID,
		ChatTitle: msg.Chat.Title,
		ThreadID:  msg.MessageThreadID,
		SentAt:    time.Unix(int64(msg.Date), 0),
	}, nil
}

// Edit replaces the text and action button of an existing message.
func (c *Client) Edit(ctx context.Context, chatID int64, messageID int, html string, issueID int64, status string) error {
	_, err := c.api.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        html,
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: StatusKeyboard(issueID, status),
	})
	if err != nil {
		return fmt.Errorf("editing message %d in chat %d: %w", messageID, chatID, err)
	}
	return nil
}

// Delete removes a message from the chat.
func (c *Client) Delete(ctx context.Context, chatID int64, messageID int) error {
	_, err := c.api.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	})
	if err != nil {
		return fmt.Errorf("deleting message %d in chat %d: %w", messageID, chatID, err)
	}
	return nil
}

// SendText delivers a plain text reply, used by the command layer.
func (c *Client) SendText(ctx context.Context, chatID int64, threadID int, text string) error {
	_, err := c.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          chatID,
		MessageThreadID: threadID,
		Text:            text,
	})
	if err != nil {
		return fmt.Errorf("sending text to chat %d: %w", chatID, err)
	}
	return nil
}

// SendMenu delivers a text message with an inline keyboard.
func (c *Client) SendMenu(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) error {
	_, err := c.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: keyboard,
	})
	if err != nil {
		return fmt.Errorf("sending menu to chat %d: %w", chatID, err)
	}
	return nil
}

// EditMenu replaces an existing message with new text and keyboard.
func (c *Client) EditMenu(ctx context.Context, chatID int64, messageID int, text string, keyboard *models.InlineKeyboardMarkup) error {
	_, err := c.api.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ReplyMarkup: keyboard,
	})
	if err != nil {
		return fmt.Errorf("editing menu %d in chat %d: %w", messageID, chatID, err)
	}
	return nil
}

// Answer acknowledges a callback query with a short toast.
func (c *Client) Answer(ctx context.Context, callbackID, text string) error {
	_, err := c.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	if err != nil {
		return fmt.Errorf("answering callback %s: %w", callbackID, err)
	}
	return nil
}

// SendDocument uploads a file to the chat.
func (c *Client) SendDocument(ctx context.Context, chatID int64, filename string, data io.Reader) error {
	_, err := c.api.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:   chatID,
		Document: &models.InputFileUpload{Filename: filename, Data: data},
	})
	if err != nil {
		return fmt.Errorf("sending document %s to chat %d: %w", filename, chatID, err)
	}
	return nil
}
