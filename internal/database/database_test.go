package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marktwatch/server/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := logrus.New()
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations())
	t.Cleanup(func() { store.Close() })
	return store
}

func floatPtr(v float64) *float64 { return &v }

func idSet(ids ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func TestUpsertBatch_InsertThenUpdate(t *testing.T) {
	store := newTestStore(t)

	batch := []*models.Listing{
		{ID: "A", SearchQuery: "espresso", Title: "Machine A", Price: floatPtr(120), URL: "http://x/a"},
		{ID: "B", SearchQuery: "espresso", Title: "Machine B", Price: floatPtr(80), URL: "http://x/b"},
	}
	require.NoError(t, store.UpsertBatch(batch))

	listings, err := store.QueryWindow(time.Time{})
	require.NoError(t, err)
	require.Len(t, listings, 2)
	for _, l := range listings {
		assert.Equal(t, models.StatusNew, l.Status)
	}

	// Second observation confirms the listing as active and refreshes fields
	require.NoError(t, store.UpsertBatch([]*models.Listing{
		{ID: "A", SearchQuery: "espresso", Title: "Machine A v2", Price: floatPtr(110), URL: "http://x/a"},
	}))

	updated, err := store.GetByIDs([]string{"A"})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, models.StatusActive, updated[0].Status)
	assert.Equal(t, "Machine A v2", updated[0].Title)
	require.NotNil(t, updated[0].Price)
	assert.Equal(t, 110.0, *updated[0].Price)
}

func TestUpsertBatch_LastSeenMonotonic(t *testing.T) {
	store := newTestStore(t)

	later := time.Now().UTC()
	earlier := later.Add(-time.Hour)

	require.NoError(t, store.UpsertBatch([]*models.Listing{
		{ID: "A", SearchQuery: "q", Title: "A", LastSeen: later},
	}))
	require.NoError(t, store.UpsertBatch([]*models.Listing{
		{ID: "A", SearchQuery: "q", Title: "A", LastSeen: earlier},
	}))

	listings, err := store.GetByIDs([]string{"A"})
	require.NoError(t, err)
	assert.False(t, listings[0].LastSeen.Before(later), "last_seen must never move backwards")
}

func TestMarkMissingAsSold_RoundTrip(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertBatch([]*models.Listing{
		{ID: "A", SearchQuery: "espresso", Title: "A", Price: floatPtr(120)},
	}))

	sold, err := store.MarkMissingAsSold("espresso", idSet())
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, sold)

	listings, err := store.GetByIDs([]string{"A"})
	require.NoError(t, err)
	l := listings[0]
	assert.Equal(t, models.StatusSold, l.Status)
	assert.Nil(t, l.Price)
	require.NotNil(t, l.FinalPrice)
	assert.Equal(t, 120.0, *l.FinalPrice)
}

func TestMarkMissingAsSold_Idempotent(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertBatch([]*models.Listing{
		{ID: "A", SearchQuery: "q", Title: "A", Price: floatPtr(10)},
		{ID: "B", SearchQuery: "q", Title: "B", Price: floatPtr(20)},
	}))

	sold, err := store.MarkMissingAsSold("q", idSet("A"))
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, sold)

	// The same seen set again yields no further transitions
	sold, err = store.MarkMissingAsSold("q", idSet("A"))
	require.NoError(t, err)
	assert.Empty(t, sold)
}

func TestMarkMissingAsSold_ScopedToQuery(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertBatch([]*models.Listing{
		{ID: "A", SearchQuery: "espresso", Title: "A", Price: floatPtr(10)},
		{ID: "X", SearchQuery: "grinder", Title: "X", Price: floatPtr(30)},
	}))

	// An empty sweep for espresso must not touch the grinder listing
	sold, err := store.MarkMissingAsSold("espresso", idSet())
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, sold)

	listings, err := store.GetByIDs([]string{"X"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, listings[0].Status)
}

func TestSoldListingReappears(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertBatch([]*models.Listing{
		{ID: "B", SearchQuery: "q", Title: "B", Price: floatPtr(50)},
	}))
	_, err := store.MarkMissingAsSold("q", idSet())
	require.NoError(t, err)

	// Relisting flips the status back and clears the stale final price
	require.NoError(t, store.UpsertBatch([]*models.Listing{
		{ID: "B", SearchQuery: "q", Title: "B", Price: floatPtr(45)},
	}))

	listings, err := store.GetByIDs([]string{"B"})
	require.NoError(t, err)
	l := listings[0]
	assert.Equal(t, models.StatusActive, l.Status)
	assert.Nil(t, l.FinalPrice)
	require.NotNil(t, l.Price)
	assert.Equal(t, 45.0, *l.Price)
}

func TestReconcile_SingleTransaction(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertBatch([]*models.Listing{
		{ID: "A", SearchQuery: "q", Title: "A", Price: floatPtr(10)},
		{ID: "B", SearchQuery: "q", Title: "B", Price: floatPtr(20)},
	}))

	sold, err := store.Reconcile("q", []*models.Listing{
		{ID: "A", SearchQuery: "q", Title: "A", Price: floatPtr(10)},
	}, idSet("A"))
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, sold)

	listings, err := store.QueryWindow(time.Time{})
	require.NoError(t, err)
	byID := make(map[string]models.Listing, len(listings))
	for _, l := range listings {
		byID[l.ID] = l
	}
	assert.Equal(t, models.StatusActive, byID["A"].Status)
	assert.Equal(t, models.StatusSold, byID["B"].Status)
}

func TestQueryWindow_FiltersByLastSeen(t *testing.T) {
	store := newTestStore(t)

	now := time.Now().UTC()
	require.NoError(t, store.UpsertBatch([]*models.Listing{
		{ID: "old", SearchQuery: "q", Title: "old", LastSeen: now.Add(-100 * 24 * time.Hour)},
		{ID: "recent", SearchQuery: "q", Title: "recent", LastSeen: now},
	}))

	listings, err := store.QueryWindow(now.Add(-90 * 24 * time.Hour))
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "recent", listings[0].ID)
}
