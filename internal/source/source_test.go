package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marktwatch/server/internal/models"
)

// fakeSource serves a fixed page layout and counts fetches.
type fakeSource struct {
	pages   map[int][]models.RawListing
	fetches int
}

func (f *fakeSource) FetchPage(_ context.Context, _ string, page int) ([]models.RawListing, error) {
	f.fetches++
	return f.pages[page], nil
}

func TestFetchAll_StopsWhenPageAddsNothingNew(t *testing.T) {
	src := &fakeSource{pages: map[int][]models.RawListing{
		1: {{ID: "A"}, {ID: "B"}},
		2: {{ID: "C"}},
		// page 3 repeats page 2, signalling the end of the result set
		3: {{ID: "C"}},
		4: {{ID: "D"}},
	}}

	all, err := FetchAll(context.Background(), src, "q", 0, nil)
	require.NoError(t, err)

	ids := make([]string, len(all))
	for i, l := range all {
		ids[i] = l.ID
	}
	assert.Equal(t, []string{"A", "B", "C"}, ids)
	assert.Equal(t, 3, src.fetches, "fetching must stop at the repeat page")
}

func TestFetchAll_DeduplicatesAcrossPages(t *testing.T) {
	src := &fakeSource{pages: map[int][]models.RawListing{
		1: {{ID: "A", Title: "first"}, {ID: "B"}},
		2: {{ID: "A", Title: "second"}, {ID: "C"}},
	}}

	all, err := FetchAll(context.Background(), src, "q", 0, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "first", all[0].Title, "duplicate ids keep the first occurrence")
}

func TestFetchAll_SkipsCommercialAndEmptyIDs(t *testing.T) {
	src := &fakeSource{pages: map[int][]models.RawListing{
		1: {
			{ID: "A"},
			{ID: "ad", Commercial: true},
			{ID: ""},
		},
	}}

	all, err := FetchAll(context.Background(), src, "q", 0, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "A", all[0].ID)
}

func TestFetchAll_HonorsMaxPages(t *testing.T) {
	src := &fakeSource{pages: map[int][]models.RawListing{
		1: {{ID: "A"}},
		2: {{ID: "B"}},
		3: {{ID: "C"}},
	}}

	all, err := FetchAll(context.Background(), src, "q", 2, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 2, src.fetches)
}
