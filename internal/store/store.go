package store

import (
	"context"
	"errors"
	"time"

	"github.com/amats/tg-redmine/internal/model"
)

// ErrNotFound is returned when a lookup matches no row. Callers must
// treat it as a normal outcome, distinct from an internal store error.
var ErrNotFound = errors.New("store: not found")

// ErrExists is returned when a create would duplicate an existing user.
var ErrExists = errors.New("store: already exists")

// UserStore is the persistence boundary for recipients.
type UserStore interface {
	// UserByLogin returns the user bound to the given Telegram login.
	// Returns ErrNotFound when no such user exists.
	UserByLogin(ctx context.Context, login string) (*model.User, error)

	// CreatePlaceholder persists a new user carrying only the login.
	// The user is not deliverable until an administrator fills in its
	// chat coordinates.
	CreatePlaceholder(ctx context.Context, login string) (*model.User, error)

	// AddUser inserts a fully specified user. Returns ErrExists when a
	// user with the same chat id and Telegram user id is present.
	AddUser(ctx context.Context, u model.User) error

	// UpdateUser rewrites the user identified by login. Returns
	// ErrNotFound when the login is unknown.
	UpdateUser(ctx context.Context, u model.User) error

	// DeleteUser removes the user identified by login. Returns
	// ErrNotFound when the login is unknown.
	DeleteUser(ctx context.Context, login string) error

	// Users lists all users, placeholders included.
	Users(ctx context.Context) ([]model.User, error)

	// IsAdmin reports whether the given Telegram user id belongs to an
	// administrator.
	IsAdmin(ctx context.Context, telegramUserID int64) (bool, error)
}

// MessageStore is the persistence boundary for notification records.
// All operations are idempotent with respect to caller retries.
type MessageStore interface {
	// MessagesByIssue returns the records currently associated with an
	// issue. An empty slice means no notification has been sent yet;
	// it is not an error.
	MessagesByIssue(ctx context.Context, issueID int64) ([]model.MessageRecord, error)

	// MessagesExcludingIssues returns records whose issue id is not in
	// the given set. These are orphans of closed issues.
	MessagesExcludingIssues(ctx context.Context, openIDs map[int64]struct{}) ([]model.MessageRecord, error)

	// MessagesOlderThan returns records created before the cutoff.
	MessagesOlderThan(ctx context.Context, cutoff time.Time) ([]model.MessageRecord, error)

	// CreateMessage inserts a new record and returns it with its
	// assigned id.
	CreateMessage(ctx context.Context, rec model.MessageRecord) (model.MessageRecord, error)

	// TouchMessage advances the synced timestamp of the record matching
	// the given Telegram message id. Returns ErrNotFound when no record
	// matches.
	TouchMessage(ctx context.Context, messageID int, updatedOn time.Time) (model.MessageRecord, error)

	// DeleteMessage removes the record. Deleting an absent record is
	// not an error.
	DeleteMessage(ctx context.Context, rec model.MessageRecord) error

	// Messages lists every record (admin export).
	Messages(ctx context.Context) ([]model.MessageRecord, error)

	// DeleteMessagesByIssue removes every record tied to an issue.
	DeleteMessagesByIssue(ctx context.Context, issueID int64) error
}
