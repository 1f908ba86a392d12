package reconciler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marktwatch/server/internal/database"
	"marktwatch/server/internal/models"
	"marktwatch/server/internal/queue"
)

// scriptedSource replays one page of listings per run, advancing on each
// new fetch cycle (page 1 request).
type scriptedSource struct {
	runs [][]models.RawListing
	run  int
}

func (s *scriptedSource) FetchPage(_ context.Context, _ string, page int) ([]models.RawListing, error) {
	if page > 1 || s.run >= len(s.runs) {
		return nil, nil
	}
	listings := s.runs[s.run]
	s.run++
	return listings, nil
}

func floatPtr(v float64) *float64 { return &v }

func newTestStore(t *testing.T) *database.Store {
	t.Helper()
	store, err := database.NewStore(filepath.Join(t.TempDir(), "test.db"), logrus.New())
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations())
	t.Cleanup(func() { store.Close() })
	return store
}

func statusByID(t *testing.T, store *database.Store, ids ...string) map[string]string {
	t.Helper()
	listings, err := store.GetByIDs(ids)
	require.NoError(t, err)
	out := make(map[string]string, len(listings))
	for _, l := range listings {
		out[l.ID] = l.Status
	}
	return out
}

func TestRun_SoldAndRelistedLifecycle(t *testing.T) {
	store := newTestStore(t)
	src := &scriptedSource{runs: [][]models.RawListing{
		{{ID: "A", Title: "A", Price: floatPtr(10)}, {ID: "B", Title: "B", Price: floatPtr(20)}},
		{{ID: "A", Title: "A", Price: floatPtr(10)}},
		{{ID: "A", Title: "A", Price: floatPtr(10)}, {ID: "B", Title: "B", Price: floatPtr(18)}},
	}}
	rec := New(store, src, nil, Options{MaxPages: 10, MaxRetries: 0}, logrus.New())

	// Run 1: both listings appear
	result, err := rec.Run(context.Background(), "espresso")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	assert.Empty(t, result.NewlySold)

	// Run 2: B is gone and gets marked sold
	result, err = rec.Run(context.Background(), "espresso")
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, result.NewlySold)
	statuses := statusByID(t, store, "A", "B")
	assert.Equal(t, models.StatusActive, statuses["A"])
	assert.Equal(t, models.StatusSold, statuses["B"])

	// Run 3: B reappears and is restored to active
	result, err = rec.Run(context.Background(), "espresso")
	require.NoError(t, err)
	assert.Empty(t, result.NewlySold)
	statuses = statusByID(t, store, "B")
	assert.Equal(t, models.StatusActive, statuses["B"])
}

func TestRun_PushesSoldBatchToQueue(t *testing.T) {
	store := newTestStore(t)
	src := &scriptedSource{runs: [][]models.RawListing{
		{{ID: "A", Title: "Machine", Price: floatPtr(120)}},
		{},
	}}

	logger := logrus.New()
	soldQueue := queue.NewSoldQueue(4, logger)
	notified := make(chan []*models.Listing, 1)
	soldQueue.Subscribe(func(batch []*models.Listing) error {
		notified <- batch
		return nil
	})
	soldQueue.Start()
	defer soldQueue.Close()

	rec := New(store, src, soldQueue, Options{MaxPages: 10}, logger)

	_, err := rec.Run(context.Background(), "espresso")
	require.NoError(t, err)
	result, err := rec.Run(context.Background(), "espresso")
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, result.NewlySold)

	select {
	case batch := <-notified:
		require.Len(t, batch, 1)
		assert.Equal(t, "A", batch[0].ID)
		require.NotNil(t, batch[0].FinalPrice)
		assert.Equal(t, 120.0, *batch[0].FinalPrice)
	case <-time.After(2 * time.Second):
		t.Fatal("sold batch never reached the queue handler")
	}
}

func TestRun_EmptyFetchMarksEverythingSold(t *testing.T) {
	store := newTestStore(t)
	src := &scriptedSource{runs: [][]models.RawListing{
		{{ID: "A", Title: "A", Price: floatPtr(10)}, {ID: "B", Title: "B", Price: floatPtr(20)}},
		{},
	}}
	rec := New(store, src, nil, Options{MaxPages: 10}, logrus.New())

	_, err := rec.Run(context.Background(), "q")
	require.NoError(t, err)
	result, err := rec.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, result.NewlySold)
}
