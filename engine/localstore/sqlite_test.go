package localstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WessleyAI/wessley-support/engine/corpus"
	"github.com/WessleyAI/wessley-support/engine/domain"
)

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func resolved(id, app, category string, hoursAfter int, public bool) domain.TicketRecord {
	return domain.TicketRecord{
		ID:         id,
		AppID:      app,
		Title:      "Title " + id,
		Body:       "Body " + id,
		Category:   category,
		Status:     domain.StatusResolved,
		CreatedAt:  base,
		ResolvedAt: base.Add(time.Duration(hoursAfter) * time.Hour),
		Responses: []domain.Response{
			{Content: "internal " + id, IsPublic: false, CreatedAt: base},
			{Content: "reply " + id, IsPublic: public, CreatedAt: base.Add(time.Minute)},
		},
	}
}

func TestSQLiteStore_FetchResolved(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, tk := range []domain.TicketRecord{
		resolved("t1", "app-1", "Billing", 1, true),
		resolved("t2", "app-1", "account", 3, true),
		resolved("t3", "app-1", "account", 2, false),
		resolved("t4", "app-2", "account", 4, true),
	} {
		require.NoError(t, store.SaveTicket(ctx, tk))
	}
	open := resolved("t5", "app-1", "account", 5, true)
	open.Status = domain.StatusOpen
	require.NoError(t, store.SaveTicket(ctx, open))

	tickets, err := store.FetchResolved(ctx, corpus.Criteria{AppID: "app-1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "t2", tickets[0].ID, "newest first")
	assert.Equal(t, "t1", tickets[1].ID)
	assert.True(t, base.Add(3*time.Hour).Equal(tickets[0].ResolvedAt))
	require.Len(t, tickets[0].Responses, 2)
	assert.False(t, tickets[0].Responses[0].IsPublic)
	assert.Equal(t, "reply t2", tickets[0].Responses[1].Content)
}

func TestSQLiteStore_FetchResolved_Filters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c", "d"} {
		cat := "billing"
		if i%2 == 1 {
			cat = "Account"
		}
		require.NoError(t, store.SaveTicket(ctx, resolved(id, "app-1", cat, i, true)))
	}

	tickets, err := store.FetchResolved(ctx, corpus.Criteria{AppID: "app-1", Categories: []string{"ACCOUNT"}, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "b"}, ids(tickets))

	tickets, err = store.FetchResolved(ctx, corpus.Criteria{AppID: "app-1", Categories: []string{" Billing "}, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, ids(tickets), "allow-list entries are trimmed like the selector does")
	for _, tk := range tickets {
		assert.True(t, corpus.Eligible(tk, corpus.Criteria{AppID: "app-1", Categories: []string{" Billing "}}))
	}

	dr := &domain.DateRange{From: base.Add(time.Hour), To: base.Add(2 * time.Hour)}
	tickets, err = store.FetchResolved(ctx, corpus.Criteria{AppID: "app-1", DateRange: dr, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(tickets))

	tickets, err = store.FetchResolved(ctx, corpus.Criteria{AppID: "app-1", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, ids(tickets))
}

func TestSQLiteStore_SaveTicketReplacesResponses(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	tk := resolved("t1", "app-1", "", 1, true)
	require.NoError(t, store.SaveTicket(ctx, tk))

	tk.Title = "Updated"
	tk.Responses = tk.Responses[1:]
	require.NoError(t, store.SaveTicket(ctx, tk))

	tickets, err := store.FetchResolved(ctx, corpus.Criteria{AppID: "app-1"})
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "Updated", tickets[0].Title)
	assert.Len(t, tickets[0].Responses, 1)
}

func TestSQLiteStore_Apps(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	ok, err := store.AppExists(ctx, "app-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.EnsureApp(ctx, "app-1", "Acme"))
	require.NoError(t, store.EnsureApp(ctx, "app-1", "Acme"), "idempotent")
	ok, err = store.AppExists(ctx, "app-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLiteStore_CreateAssignsOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.EnsureApp(ctx, "app-1", ""))
	require.NoError(t, store.EnsureApp(ctx, "app-2", ""))

	draft := domain.FAQDraft{
		AppID:           "app-1",
		ClusterID:       "cluster_0",
		Question:        "How do I reset my password?",
		Answer:          "Use the reset link.",
		Category:        "account",
		Tags:            []string{"account", "password"},
		IsPublished:     true,
		SourceTicketIDs: []string{"t1", "t2"},
	}
	first, err := store.Create(ctx, draft)
	require.NoError(t, err)
	second, err := store.Create(ctx, draft)
	require.NoError(t, err)
	other, err := store.Create(ctx, domain.FAQDraft{AppID: "app-2", Question: "q", Answer: "a"})
	require.NoError(t, err)

	assert.Equal(t, 0, first.OrderIndex)
	assert.Equal(t, 1, second.OrderIndex)
	assert.Equal(t, 0, other.OrderIndex, "ordering is per application")
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, []string{}, other.Tags)

	got, err := store.GetFAQ(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Question, got.Question)
	assert.Equal(t, []string{"account", "password"}, got.Tags)
	assert.Equal(t, []string{"t1", "t2"}, got.SourceTicketIDs)
	assert.True(t, got.IsPublished)
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt))

	list, err := store.ListFAQs(ctx, "app-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	page, err := store.ListFAQs(ctx, "app-1", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, second.ID, page[0].ID)
}

func TestSQLiteStore_CreateUnknownApp(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Create(context.Background(), domain.FAQDraft{AppID: "ghost", Question: "q"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSQLiteStore_GetFAQNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetFAQ(context.Background(), "missing")
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "faq", nf.Resource)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveTicket(context.Background(), resolved("t1", "app-1", "", 1, true)))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()
	ok, err := store.AppExists(context.Background(), "app-1")
	require.NoError(t, err)
	assert.True(t, ok, "SaveTicket registers the owning app")
}

func ids(ts []domain.TicketRecord) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}
