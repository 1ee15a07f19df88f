package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID        string    `json:"id,omitempty"`
	Owner     string    `json:"owner"`
	Count     int       `json:"count"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func TestCollectionRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	widgets := NewCollection[widget](mem, "widgets")

	id, err := widgets.Create(ctx, widget{ID: "ignored", Owner: "ann", Count: 2})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.NotEqual(t, "ignored", id)

	got, err := widgets.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "ann", got.Owner)
	assert.Equal(t, 2, got.Count)
}

func TestCollectionUpdateMerges(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	widgets := NewCollection[widget](mem, "widgets")

	id, err := widgets.Create(ctx, widget{Owner: "ann", Count: 1})
	require.NoError(t, err)

	ts := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, widgets.Update(ctx, id, map[string]any{"count": 5, "updatedAt": ts}))

	got, err := widgets.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ann", got.Owner)
	assert.Equal(t, 5, got.Count)
	assert.True(t, ts.Equal(got.UpdatedAt))
}

func TestMemoryNotFound(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	_, err := mem.Get(ctx, "widgets", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, mem.Update(ctx, "widgets", "missing", map[string]any{"a": 1}), ErrNotFound)
	assert.ErrorIs(t, mem.Delete(ctx, "widgets", "missing"), ErrNotFound)
}

func TestMemoryFindFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	widgets := NewCollection[widget](mem, "widgets")

	for _, owner := range []string{"ann", "bob", "ann", "ann"} {
		_, err := widgets.Create(ctx, widget{Owner: owner})
		require.NoError(t, err)
	}

	oldest, err := widgets.Find(ctx, Query{Where: []Filter{Eq("owner", "ann")}})
	require.NoError(t, err)
	require.Len(t, oldest, 3)

	newest, err := widgets.Find(ctx, Query{Where: []Filter{Eq("owner", "ann")}, Newest: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, oldest[2].ID, newest[0].ID)
	assert.Equal(t, oldest[1].ID, newest[1].ID)
}

func TestMemoryFindSince(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mem.SetClock(func() time.Time { return clock })

	_, err := mem.Create(ctx, "widgets", map[string]any{"owner": "old"})
	require.NoError(t, err)
	clock = clock.Add(48 * time.Hour)
	_, err = mem.Create(ctx, "widgets", map[string]any{"owner": "new"})
	require.NoError(t, err)

	docs, err := mem.Find(ctx, "widgets", Query{Since: clock.Add(-time.Hour)})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "new", docs[0].Data["owner"])
}

func TestMemoryRecordsWritesAndFailures(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	boom := errors.New("boom")

	id, err := mem.Create(ctx, "widgets", map[string]any{"owner": "ann"})
	require.NoError(t, err)
	require.NoError(t, mem.Update(ctx, "widgets", id, map[string]any{"owner": "bob"}))

	mem.FailOn("create", "widgets", boom)
	_, err = mem.Create(ctx, "widgets", map[string]any{})
	assert.ErrorIs(t, err, boom)
	mem.FailOn("create", "widgets", nil)

	writes := mem.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, "create", writes[0].Op)
	assert.Equal(t, "update", writes[1].Op)
}

func TestMemoryStoredValuesDoNotAlias(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	in := map[string]any{"owner": "ann"}
	id, err := mem.Create(ctx, "widgets", in)
	require.NoError(t, err)
	in["owner"] = "mallory"

	doc, err := mem.Get(ctx, "widgets", id)
	require.NoError(t, err)
	assert.Equal(t, "ann", doc.Data["owner"])
}
