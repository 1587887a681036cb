// Package reconcile drives the polling cycle: fetch the issue
// snapshot, garbage-collect dead notifications, and create or update a
// notification for every open issue.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/amats/tg-redmine/internal/model"
	"github.com/amats/tg-redmine/internal/notify"
	"github.com/amats/tg-redmine/internal/store"
)

// IssueSource fetches the full snapshot of currently open issues.
type IssueSource interface {
	OpenIssues(ctx context.Context) ([]model.Issue, error)
}

// Dispatcher is the notification surface the loop drives. All three
// operations handle their own partial failures; the loop only decides
// which one to call.
type Dispatcher interface {
	Notify(ctx context.Context, issue model.Issue, users []model.User)
	Update(ctx context.Context, issue model.Issue, users []model.User)
	Delete(ctx context.Context, rec model.MessageRecord)
}

// Config carries the loop's timing and retry knobs.
type Config struct {
	// Interval is the pause between cycles. A cycle that runs long is
	// followed by the full interval; cycles never overlap.
	Interval time.Duration

	// Retention is the maximum age of a message record. Older records
	// are purged regardless of issue state.
	Retention time.Duration

	// RetryAttempts bounds the snapshot fetch retries within one cycle.
	RetryAttempts uint64

	// RetryBase is the initial fetch retry delay; subsequent delays
	// grow exponentially.
	RetryBase time.Duration
}

// Loop is the reconciliation scheduler.
type Loop struct {
	cfg      Config
	source   IssueSource
	dispatch Dispatcher
	messages store.MessageStore
	resolver *Resolver
	log      *slog.Logger

	// connected tracks whether the last fetch succeeded, so the first
	// success after an outage can be logged as a restoration.
	connected bool
}

// NewLoop wires a reconciliation loop.
func NewLoop(cfg Config, source IssueSource, dispatch Dispatcher, messages store.MessageStore, resolver *Resolver, log *slog.Logger) *Loop {
	return &Loop{
		cfg:      cfg,
		source:   source,
		dispatch: dispatch,
		messages: messages,
		resolver: resolver,
		log:      log,
	}
}

// Run executes cycles until the context is cancelled. Cancellation is
// observed before the fetch, after garbage collection, and during the
// inter-cycle sleep; per-issue work already in flight is allowed to
// finish. A panic in the loop body itself (as opposed to a single
// issue's goroutine) is deliberately not recovered.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("reconciliation loop started",
		"interval", l.cfg.Interval, "retention", l.cfg.Retention)

	for {
		if ctx.Err() != nil {
			l.log.Info("reconciliation loop stopped")
			return nil
		}

		l.runCycle(ctx)

		select {
		case <-ctx.Done():
			l.log.Info("reconciliation loop stopped")
			return nil
		case <-time.After(l.cfg.Interval):
		}
	}
}

// RunCycle executes one fetch/collect/reconcile pass. Exposed for
// tests; Run calls it on the configured cadence.
func (l *Loop) RunCycle(ctx context.Context) {
	l.runCycle(ctx)
}

func (l *Loop) runCycle(ctx context.Context) {
	issues, err := l.fetchSnapshot(ctx)
	if err != nil {
		l.connected = false
		l.log.Error("fetching issue snapshot, skipping cycle", "error", err)
		return
	}
	if !l.connected {
		l.log.Info("connection established, issue snapshot received", "issues", len(issues))
		l.connected = true
	}

	l.collectGarbage(ctx, issues)

	if ctx.Err() != nil {
		return
	}

	var wg sync.WaitGroup
	for _, issue := range issues {
		wg.Add(1)
		go func(issue model.Issue) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					l.log.Error("panic processing issue", "issue_id", issue.ID, "panic", r)
				}
			}()
			l.processIssue(ctx, issue)
		}(issue)
	}
	wg.Wait()
}

// fetchSnapshot pulls the issue list under the retry policy.
func (l *Loop) fetchSnapshot(ctx context.Context) ([]model.Issue, error) {
	var issues []model.Issue

	op := func() error {
		var err error
		issues, err = l.source.OpenIssues(ctx)
		return err
	}
	onRetry := func(err error, wait time.Duration) {
		l.log.Warn("issue snapshot fetch failed, retrying", "error", err, "wait", wait)
	}

	if err := retryNotify(ctx, l.cfg.RetryAttempts, l.cfg.RetryBase, op, onRetry); err != nil {
		return nil, err
	}
	return issues, nil
}

// collectGarbage deletes notifications for issues gone from the
// snapshot and records past the retention window.
func (l *Loop) collectGarbage(ctx context.Context, issues []model.Issue) {
	open := make(map[int64]struct{}, len(issues))
	for _, issue := range issues {
		open[issue.ID] = struct{}{}
	}

	orphans, err := l.messages.MessagesExcludingIssues(ctx, open)
	if err != nil {
		l.log.Error("querying orphaned messages", "error", err)
	}
	for _, rec := range orphans {
		l.dispatch.Delete(ctx, rec)
	}

	expired, err := l.messages.MessagesOlderThan(ctx, time.Now().Add(-l.cfg.Retention))
	if err != nil {
		l.log.Error("querying expired messages", "error", err)
	}
	for _, rec := range expired {
		l.dispatch.Delete(ctx, rec)
	}
}

// processIssue decides create vs. update vs. no-op for one issue. Any
// failure here is isolated to this issue.
func (l *Loop) processIssue(ctx context.Context, issue model.Issue) {
	if issue.Comment != "" {
		issue.Comment = notify.StripMarkup(issue.Comment)
	}

	users := l.resolver.Resolve(ctx, issue.Mentions)
	if len(users) == 0 {
		return
	}

	recs, err := l.messages.MessagesByIssue(ctx, issue.ID)
	if err != nil {
		// Internal store error, distinct from "no records yet":
		// abandon this issue for the cycle rather than risk a
		// duplicate notification.
		l.log.Error("looking up messages for issue", "issue_id", issue.ID, "error", err)
		return
	}

	switch {
	case len(recs) == 0:
		l.dispatch.Notify(ctx, issue, users)
	case anyStale(recs, issue):
		l.dispatch.Update(ctx, issue, users)
	}
}

func anyStale(recs []model.MessageRecord, issue model.Issue) bool {
	for _, rec := range recs {
		if rec.StaleFor(issue) {
			return true
		}
	}
	return false
}
