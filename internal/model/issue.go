// Package model defines the domain types shared across the application.
package model

import "time"

// Issue is a single open issue as exposed by the tracker's read-only
// view. Issues are refetched wholesale every polling cycle; the ID is
// stable across cycles for the same logical issue.
type Issue struct {
	// ID is the tracker-assigned issue number.
	ID int64

	// Tracker is the issue's tracker name (e.g. incident, request).
	Tracker string

	// Corpus and Room locate the issue on site. Free-text, may be empty.
	Corpus string
	Room   string

	Priority string
	Subject  string
	Status   string
	Author   string

	CreatedOn time.Time
	UpdatedOn time.Time

	// Mentions are the Telegram logins attached to the issue,
	// in view order, not deduplicated.
	Mentions []string

	// Comment is the text of the last comment, if any. It may carry
	// embedded HTML from the tracker and must be sanitized before
	// rendering.
	Comment     string
	Commentator string
}
