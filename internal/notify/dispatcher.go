package notify

import (
	"context"
	"log/slog"

	"github.com/amats/tg-redmine/internal/model"
	"github.com/amats/tg-redmine/internal/store"
	"github.com/amats/tg-redmine/internal/telegram"
)

// GroupKey identifies one delivery target: a chat, optionally narrowed
// to a thread. One message is sent per distinct key.
type GroupKey struct {
	ChatID   int64
	ThreadID int
}

// GroupByChat partitions users by (chat, thread). Users sharing a key
// are addressed by a single message.
func GroupByChat(users []model.User) map[GroupKey][]model.User {
	groups := make(map[GroupKey][]model.User)
	for _, u := range users {
		key := GroupKey{ChatID: u.ChatID, ThreadID: u.ThreadID}
		groups[key] = append(groups[key], u)
	}
	return groups
}

// Dispatcher renders issues and performs send/edit/delete against the
// transport, recording results in the message store. It has no
// scheduling concerns of its own; failures are logged and left for the
// next reconciliation cycle to correct.
type Dispatcher struct {
	transport telegram.Sender
	messages  store.MessageStore
	render    *Renderer
	log       *slog.Logger
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(transport telegram.Sender, messages store.MessageStore, render *Renderer, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		messages:  messages,
		render:    render,
		log:       log,
	}
}

// Notify sends a new notification for the issue to every recipient
// group. A transport failure for one group is logged and skipped; the
// issue will still look un-notified for that group next cycle.
func (d *Dispatcher) Notify(ctx context.Context, issue model.Issue, users []model.User) {
	for key, group := range GroupByChat(users) {
		text := d.render.Render(issue, group)

		sent, err := d.transport.Send(ctx, key.ChatID, key.ThreadID, text, issue.ID, issue.Status)
		if err != nil {
			d.log.Error("sending notification",
				"chat_id", key.ChatID, "thread_id", key.ThreadID,
				"issue_id", issue.ID, "error", err)
			continue
		}

		rec := model.MessageRecord{
			IssueID:   issue.ID,
			MessageID: sent.MessageID,
			ChatID:    sent.ChatID,
			CreatedOn: sent.SentAt,
			UpdatedOn: issue.UpdatedOn,
		}
		if _, err := d.messages.CreateMessage(ctx, rec); err != nil {
			d.log.Error("recording notification",
				"chat_id", key.ChatID, "issue_id", issue.ID, "error", err)
			continue
		}

		d.log.Info("notification sent",
			"chat_id", sent.ChatID, "chat_title", sent.ChatTitle,
			"thread_id", sent.ThreadID, "message_id", sent.MessageID,
			"issue_id", issue.ID)
	}
}

// Update edits every existing message for the issue in place and
// advances its synced timestamp. Records are re-read from the store so
// an overlapping cycle's writes are observed. A failure on one record
// does not stop the others.
func (d *Dispatcher) Update(ctx context.Context, issue model.Issue, users []model.User) {
	recs, err := d.messages.MessagesByIssue(ctx, issue.ID)
	if err != nil {
		d.log.Warn("loading current messages for update", "issue_id", issue.ID, "error", err)
		return
	}

	text := d.render.Render(issue, users)

	for _, rec := range recs {
		if err := d.transport.Edit(ctx, rec.ChatID, rec.MessageID, text, issue.ID, issue.Status); err != nil {
			d.log.Error("editing notification",
				"chat_id", rec.ChatID, "message_id", rec.MessageID,
				"issue_id", issue.ID, "error", err)
			continue
		}

		if _, err := d.messages.TouchMessage(ctx, rec.MessageID, issue.UpdatedOn); err != nil {
			d.log.Warn("recording notification update",
				"chat_id", rec.ChatID, "message_id", rec.MessageID,
				"issue_id", issue.ID, "error", err)
			continue
		}

		d.log.Info("notification updated",
			"chat_id", rec.ChatID, "message_id", rec.MessageID, "issue_id", issue.ID)
	}
}

// Delete removes the transport message best-effort and then removes
// the store record unconditionally. The record must go even when the
// remote delete fails, or a ghost message would be resurrected on
// every subsequent cycle.
func (d *Dispatcher) Delete(ctx context.Context, rec model.MessageRecord) {
	if err := d.transport.Delete(ctx, rec.ChatID, rec.MessageID); err != nil {
		d.log.Error("deleting chat message",
			"chat_id", rec.ChatID, "message_id", rec.MessageID,
			"issue_id", rec.IssueID, "error", err)
	} else {
		d.log.Info("chat message deleted",
			"chat_id", rec.ChatID, "message_id", rec.MessageID, "issue_id", rec.IssueID)
	}

	if err := d.messages.DeleteMessage(ctx, rec); err != nil {
		d.log.Error("deleting message record",
			"record_id", rec.ID, "issue_id", rec.IssueID, "error", err)
	}
}
