package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, hits <-chan Hit) []Hit {
	t.Helper()
	var out []Hit
	for h := range hits {
		out = append(out, h)
	}
	return out
}

func TestMemoryEngineMatchesSubstringCaseInsensitively(t *testing.T) {
	e := &MemoryEngine{Documents: []Document{
		{ItemID: 1, CollectionID: 10, Text: "Quarterly Report"},
		{ItemID: 2, CollectionID: 10, Text: "Lunch menu"},
		{ItemID: 3, CollectionID: 20, Text: "report card"},
	}}

	hits, err := e.Search(context.Background(), "REPORT", nil, false)
	require.NoError(t, err)

	got := drain(t, hits)
	total := 0
	for _, h := range got {
		total += len(h.ItemIDs)
	}
	assert.Equal(t, 2, total)
}

func TestMemoryEngineRestrictsToCollectionIDs(t *testing.T) {
	e := &MemoryEngine{Documents: []Document{
		{ItemID: 1, CollectionID: 10, Text: "invoice"},
		{ItemID: 2, CollectionID: 20, Text: "invoice"},
	}}

	hits, err := e.Search(context.Background(), "invoice", []int64{10}, false)
	require.NoError(t, err)

	got := drain(t, hits)
	require.Len(t, got, 1)
	assert.Equal(t, int64(10), got[0].CollectionID)
	assert.Equal(t, []int64{1}, got[0].ItemIDs)
}

func TestMemoryEngineNoMatchesReturnsEmpty(t *testing.T) {
	e := &MemoryEngine{Documents: []Document{{ItemID: 1, CollectionID: 1, Text: "hello"}}}

	hits, err := e.Search(context.Background(), "nope", nil, false)
	require.NoError(t, err)
	assert.Empty(t, drain(t, hits))
}
