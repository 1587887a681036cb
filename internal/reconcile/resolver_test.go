package reconcile_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amats/tg-redmine/internal/model"
	"github.com/amats/tg-redmine/internal/reconcile"
	"github.com/amats/tg-redmine/internal/store"
	"github.com/amats/tg-redmine/tests/testutil"
)

// flakyUserStore fails lookups for one particular login and delegates
// everything else to the wrapped store.
type flakyUserStore struct {
	store.UserStore
	failLogin string
}

func (f *flakyUserStore) UserByLogin(ctx context.Context, login string) (*model.User, error) {
	if login == f.failLogin {
		return nil, errors.New("database is locked")
	}
	return f.UserStore.UserByLogin(ctx, login)
}

func TestResolveLookupErrorSkipsOnlyThatMention(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.AddUser(ctx, model.User{Login: "@good", ChatID: 100, TelegramUserID: 1}))

	users := &flakyUserStore{UserStore: st, failLogin: "@bad"}
	r := reconcile.NewResolver(users, slog.New(slog.NewTextHandler(io.Discard, nil)))

	resolved := r.Resolve(ctx, []string{"@bad", "@good"})

	require.Len(t, resolved, 1)
	assert.Equal(t, "@good", resolved[0].Login)

	// The failed lookup is not mistaken for an unknown mention: no
	// placeholder appears for it.
	_, err := st.UserByLogin(ctx, "@bad")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestResolveKeepsMentionOrder(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.AddUser(ctx, model.User{Login: "@b", ChatID: 200, TelegramUserID: 2}))
	require.NoError(t, st.AddUser(ctx, model.User{Login: "@a", ChatID: 100, TelegramUserID: 1}))

	r := reconcile.NewResolver(st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	resolved := r.Resolve(ctx, []string{"@a", "@b"})

	require.Len(t, resolved, 2)
	assert.Equal(t, "@a", resolved[0].Login)
	assert.Equal(t, "@b", resolved[1].Login)
}
