package model

import "time"

// MessageRecord is the durable link between an issue and a Telegram
// message previously sent for it. At most one live record exists per
// (issue, chat, thread) at any time.
type MessageRecord struct {
	ID        int64 `db:"id"`
	IssueID   int64 `db:"issue_id"`
	MessageID int   `db:"message_id"`
	ChatID    int64 `db:"chat_id"`

	// CreatedOn is when the Telegram message was sent. Records older
	// than the retention window are purged regardless of issue state.
	CreatedOn time.Time `db:"created_on"`

	// UpdatedOn mirrors the issue's UpdatedOn as of the last successful
	// text sync. A record is stale when it trails the issue.
	UpdatedOn time.Time `db:"updated_on"`
}

// StaleFor reports whether the record's synced timestamp trails the
// issue's current update timestamp.
func (m MessageRecord) StaleFor(issue Issue) bool {
	return m.UpdatedOn.Before(issue.UpdatedOn)
}
