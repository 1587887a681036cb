// Package tracker reads the issue snapshot from the tracker's
// read-only SQL view.
package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/amats/tg-redmine/internal/model"
)

// ErrUnavailable wraps any failure to reach or read the issues view.
// It is distinct from an empty snapshot, which is a normal result.
var ErrUnavailable = errors.New("tracker: issues view unavailable")

// Source fetches the full set of currently open issues. The view is
// maintained by the tracker side; this client never writes to it.
type Source struct {
	db   *sqlx.DB
	view string
}

// NewSource connects to the database hosting the issues view. The DSN
// is a go-sql-driver/mysql connection string.
func NewSource(dsn, view string) (*Source, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening issues view connection: %w", err)
	}

	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(4)

	return &Source{db: db, view: view}, nil
}

// NewSourceFromDB wraps an existing connection. Used by tests, which
// stand in an in-memory database for the view.
func NewSourceFromDB(db *sqlx.DB, view string) *Source {
	return &Source{db: db, view: view}
}

// Close closes the underlying connection.
func (s *Source) Close() error {
	return s.db.Close()
}

// issueRow mirrors the view's columns, all of which may be NULL.
type issueRow struct {
	ID          int64          `db:"id"`
	Tracker     sql.NullString `db:"tracker"`
	Corpus      sql.NullString `db:"corpus"`
	RoomNumber  sql.NullString `db:"room_number"`
	Priority    sql.NullString `db:"priority"`
	Subject     sql.NullString `db:"subject"`
	Status      sql.NullString `db:"status"`
	CreatedOn   sql.NullTime   `db:"created_on"`
	UpdatedOn   sql.NullTime   `db:"updated_on"`
	Author      sql.NullString `db:"author"`
	Telegram    sql.NullString `db:"Telegram"`
	Comment     sql.NullString `db:"comment"`
	Commentator sql.NullString `db:"commentator"`
}

func (r issueRow) toIssue() model.Issue {
	issue := model.Issue{
		ID:          r.ID,
		Tracker:     r.Tracker.String,
		Corpus:      r.Corpus.String,
		Room:        r.RoomNumber.String,
		Priority:    r.Priority.String,
		Subject:     r.Subject.String,
		Status:      r.Status.String,
		Author:      r.Author.String,
		Comment:     r.Comment.String,
		Commentator: r.Commentator.String,
	}
	if r.CreatedOn.Valid {
		issue.CreatedOn = r.CreatedOn.Time
	}
	if r.UpdatedOn.Valid {
		issue.UpdatedOn = r.UpdatedOn.Time
	}
	if r.Telegram.Valid {
		issue.Mentions = splitMentions(r.Telegram.String)
	}
	return issue
}

// splitMentions splits the view's space-separated login column.
func splitMentions(raw string) []string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// OpenIssues returns all currently open issues. The view has no
// pagination; a cycle always sees the complete snapshot.
func (s *Source) OpenIssues(ctx context.Context) ([]model.Issue, error) {
	var rows []issueRow
	err := s.db.SelectContext(ctx, &rows, "SELECT * FROM "+s.view)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	issues := make([]model.Issue, 0, len(rows))
	for _, r := range rows {
		issues = append(issues, r.toIssue())
	}
	return issues, nil
}
