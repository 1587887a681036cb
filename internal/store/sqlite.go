// Package store persists users and notification message records in a
// local SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/amats/tg-redmine/internal/model"
)

// SQLiteStore implements UserStore and MessageStore using a local
// SQLite database, fronted by short-lived read caches.
type SQLiteStore struct {
	db       *sqlx.DB
	users    *userCache
	messages *messageCache
}

var (
	_ UserStore    = (*SQLiteStore)(nil)
	_ MessageStore = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// sqlite allows one writer at a time; a single pooled connection
	// serializes access instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:       db,
		users:    newUserCache(),
		messages: newMessageCache(),
	}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// UserByLogin retrieves the user bound to the given Telegram login.
func (s *SQLiteStore) UserByLogin(ctx context.Context, login string) (*model.User, error) {
	if u, ok := s.users.get(login); ok {
		return &u, nil
	}

	var u model.User
	err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE login = ?", login)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user %s: %w", login, err)
	}

	s.users.set(u)
	return &u, nil
}

// CreatePlaceholder inserts a user carrying only the login. The caller
// is expected to have checked that the login does not exist yet.
func (s *SQLiteStore) CreatePlaceholder(ctx context.Context, login string) (*model.User, error) {
	res, err := s.db.ExecContext(ctx, "INSERT INTO users (login) VALUES (?)", login)
	if err != nil {
		return nil, fmt.Errorf("creating placeholder for %s: %w", login, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading placeholder id for %s: %w", login, err)
	}

	u := model.User{ID: id, Login: login}
	s.users.set(u)
	return &u, nil
}

// AddUser inserts a fully specified user.
func (s *SQLiteStore) AddUser(ctx context.Context, u model.User) error {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM users WHERE chat_id = ? AND telegram_user_id = ?",
		u.ChatID, u.TelegramUserID,
	)
	if err != nil {
		return fmt.Errorf("checking existing user %s: %w", u.Login, err)
	}
	if count > 0 {
		return ErrExists
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (login, chat_id, thread_id, telegram_user_id, is_admin)
		VALUES (?, ?, ?, ?, ?)`,
		u.Login, u.ChatID, u.ThreadID, u.TelegramUserID, boolToInt(u.IsAdmin),
	)
	if err != nil {
		return fmt.Errorf("adding user %s: %w", u.Login, err)
	}

	s.users.invalidate(u.Login)
	return nil
}

// UpdateUser rewrites the user identified by its login.
func (s *SQLiteStore) UpdateUser(ctx context.Context, u model.User) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET chat_id = ?, thread_id = ?, telegram_user_id = ?, is_admin = ?
		WHERE login = ?`,
		u.ChatID, u.ThreadID, u.TelegramUserID, boolToInt(u.IsAdmin), u.Login,
	)
	if err != nil {
		return fmt.Errorf("updating user %s: %w", u.Login, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading update result for %s: %w", u.Login, err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.users.invalidate(u.Login)
	return nil
}

// DeleteUser removes the user identified by login.
func (s *SQLiteStore) DeleteUser(ctx context.Context, login string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE login = ?", login)
	if err != nil {
		return fmt.Errorf("deleting user %s: %w", login, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading delete result for %s: %w", login, err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.users.invalidate(login)
	return nil
}

// Users lists all users, placeholders included.
func (s *SQLiteStore) Users(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.SelectContext(ctx, &users, "SELECT * FROM users ORDER BY login"); err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	return users, nil
}

// IsAdmin reports whether the given Telegram user id belongs to an
// administrator. An unknown user is simply not an admin.
func (s *SQLiteStore) IsAdmin(ctx context.Context, telegramUserID int64) (bool, error) {
	var isAdmin int
	err := s.db.GetContext(ctx, &isAdmin,
		"SELECT is_admin FROM users WHERE telegram_user_id = ?", telegramUserID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking admin flag for %d: %w", telegramUserID, err)
	}
	return isAdmin != 0, nil
}

// MessagesByIssue returns the records currently associated with an issue.
func (s *SQLiteStore) MessagesByIssue(ctx context.Context, issueID int64) ([]model.MessageRecord, error) {
	if recs, ok := s.messages.get(issueID); ok {
		return recs, nil
	}

	var recs []model.MessageRecord
	err := s.db.SelectContext(ctx, &recs, "SELECT * FROM messages WHERE issue_id = ?", issueID)
	if err != nil {
		return nil, fmt.Errorf("querying messages for issue %d: %w", issueID, err)
	}

	s.messages.set(issueID, recs)
	return recs, nil
}

// MessagesExcludingIssues returns records whose issue id is not in the
// given set.
func (s *SQLiteStore) MessagesExcludingIssues(ctx context.Context, openIDs map[int64]struct{}) ([]model.MessageRecord, error) {
	if len(openIDs) == 0 {
		return s.Messages(ctx)
	}

	ids := make([]int64, 0, len(openIDs))
	for id := range openIDs {
		ids = append(ids, id)
	}

	query, args, err := sqlx.In("SELECT * FROM messages WHERE issue_id NOT IN (?)", ids)
	if err != nil {
		return nil, fmt.Errorf("building exclusion query: %w", err)
	}

	var recs []model.MessageRecord
	if err := s.db.SelectContext(ctx, &recs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("querying orphaned messages: %w", err)
	}
	return recs, nil
}

// MessagesOlderThan returns records created before the cutoff.
func (s *SQLiteStore) MessagesOlderThan(ctx context.Context, cutoff time.Time) ([]model.MessageRecord, error) {
	var recs []model.MessageRecord
	err := s.db.SelectContext(ctx, &recs,
		"SELECT * FROM messages WHERE created_on < ?", cutoff.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying old messages: %w", err)
	}
	return recs, nil
}

// CreateMessage inserts a new record and returns it with its assigned id.
func (s *SQLiteStore) CreateMessage(ctx context.Context, rec model.MessageRecord) (model.MessageRecord, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (issue_id, message_id, chat_id, created_on, updated_on)
		VALUES (?, ?, ?, ?, ?)`,
		rec.IssueID, rec.MessageID, rec.ChatID, rec.CreatedOn.UTC(), rec.UpdatedOn.UTC(),
	)
	if err != nil {
		return model.MessageRecord{}, fmt.Errorf("creating message record for issue %d: %w", rec.IssueID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return model.MessageRecord{}, fmt.Errorf("reading message record id: %w", err)
	}
	rec.ID = id

	s.messages.invalidate(rec.IssueID)
	return rec, nil
}

// TouchMessage advances the synced timestamp of the record matching the
// given Telegram message id.
func (s *SQLiteStore) TouchMessage(ctx context.Context, messageID int, updatedOn time.Time) (model.MessageRecord, error) {
	var rec model.MessageRecord
	err := s.db.GetContext(ctx, &rec, "SELECT * FROM messages WHERE message_id = ?", messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MessageRecord{}, ErrNotFound
	}
	if err != nil {
		return model.MessageRecord{}, fmt.Errorf("querying message %d: %w", messageID, err)
	}

	// The synced timestamp only moves forward.
	if updatedOn.After(rec.UpdatedOn) {
		if _, err := s.db.ExecContext(ctx,
			"UPDATE messages SET updated_on = ? WHERE id = ?", updatedOn.UTC(), rec.ID,
		); err != nil {
			return model.MessageRecord{}, fmt.Errorf("touching message %d: %w", messageID, err)
		}
		rec.UpdatedOn = updatedOn.UTC()
	}

	s.messages.invalidate(rec.IssueID)
	return rec, nil
}

// DeleteMessage removes the record. The cache entry is dropped even
// when the row was already gone.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, rec model.MessageRecord) error {
	defer s.messages.invalidate(rec.IssueID)

	if _, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", rec.ID); err != nil {
		return fmt.Errorf("deleting message record %d: %w", rec.ID, err)
	}
	return nil
}

// DeleteMessagesByIssue removes every record tied to an issue.
func (s *SQLiteStore) DeleteMessagesByIssue(ctx context.Context, issueID int64) error {
	defer s.messages.invalidate(issueID)

	if _, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE issue_id = ?", issueID); err != nil {
		return fmt.Errorf("deleting message records for issue %d: %w", issueID, err)
	}
	return nil
}

// Messages lists every record ordered by id.
func (s *SQLiteStore) Messages(ctx context.Context) ([]model.MessageRecord, error) {
	var recs []model.MessageRecord
	if err := s.db.SelectContext(ctx, &recs, "SELECT * FROM messages ORDER BY id"); err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	return recs, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
