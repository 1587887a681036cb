package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"github.com/amats/tg-redmine/internal/model"
	"github.com/amats/tg-redmine/internal/store"
)

// Resolver maps the mention strings attached to an issue to stored
// users. Unknown mentions get a placeholder row so an administrator
// can fill in the chat coordinates later.
type Resolver struct {
	users store.UserStore
	log   *slog.Logger
}

// NewResolver wires a resolver.
func NewResolver(users store.UserStore, log *slog.Logger) *Resolver {
	return &Resolver{users: users, log: log}
}

// Resolve returns the deliverable users for the given mentions, in
// order. Placeholders are silently excluded. A lookup or creation
// failure for one mention is logged and does not abort the rest.
func (r *Resolver) Resolve(ctx context.Context, mentions []string) []model.User {
	var users []model.User
	for _, mention := range mentions {
		u, err := r.lookupOrCreate(ctx, mention)
		if err != nil {
			r.log.Warn("resolving mention", "mention", mention, "error", err)
			continue
		}
		if u.Deliverable() {
			users = append(users, *u)
		}
	}
	return users
}

func (r *Resolver) lookupOrCreate(ctx context.Context, login string) (*model.User, error) {
	u, err := r.users.UserByLogin(ctx, login)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return r.users.CreatePlaceholder(ctx, login)
}
