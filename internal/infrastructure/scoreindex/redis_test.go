package scoreindex

import (
	"context"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewIndex(client, nil)
}

func drain(t *testing.T, idx *Index, pageSize int) []Entry {
	t.Helper()
	ctx := context.Background()

	var all []Entry
	var cursor Cursor
	for {
		entries, next, err := idx.Page(ctx, cursor, pageSize)
		require.NoError(t, err)
		all = append(all, entries...)
		if next.IsZero() {
			return all
		}
		cursor = next
	}
}

func TestIndex_OrdersByScoreDescending(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	for _, score := range []float64{0.3, 9.1, 1.0, 4.2} {
		require.NoError(t, idx.Upsert(ctx, uuid.New(), score))
	}

	all := drain(t, idx, 10)
	require.Len(t, all, 4)
	require.True(t, sort.SliceIsSorted(all, func(i, j int) bool {
		return all[i].Score > all[j].Score
	}))
}

func TestIndex_TieBreaksByIDDescending(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	ids := make([]uuid.UUID, 5)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, idx.Upsert(ctx, ids[i], 2.5))
	}

	all := drain(t, idx, 2)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		require.Greater(t, all[i-1].ID.String(), all[i].ID.String(),
			"tied entries must come out id-descending")
	}
}

func TestIndex_PaginationIsCompleteAndDuplicateFree(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	want := make(map[uuid.UUID]bool)
	for i := 0; i < 23; i++ {
		id := uuid.New()
		want[id] = true
		// Repeated scores force tie handling across page boundaries.
		require.NoError(t, idx.Upsert(ctx, id, float64(i%4)))
	}

	all := drain(t, idx, 5)
	require.Len(t, all, len(want))

	seen := make(map[uuid.UUID]bool)
	for _, e := range all {
		require.False(t, seen[e.ID], "id %s yielded twice", e.ID)
		require.True(t, want[e.ID], "unexpected id %s", e.ID)
		seen[e.ID] = true
	}
}

func TestIndex_SamePageIsDeterministic(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		require.NoError(t, idx.Upsert(ctx, uuid.New(), float64(i%3)))
	}

	first, next1, err := idx.Page(ctx, Cursor{}, 5)
	require.NoError(t, err)
	second, next2, err := idx.Page(ctx, Cursor{}, 5)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, next1, next2)
}

func TestIndex_CursorSurvivesEntryRemoval(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, idx.Upsert(ctx, uuid.New(), float64(i)))
	}

	first, next, err := idx.Page(ctx, Cursor{}, 4)
	require.NoError(t, err)
	require.Len(t, first, 4)
	require.False(t, next.IsZero())

	// Remove the exact entry the cursor points at.
	require.NoError(t, idx.Remove(ctx, first[3].ID))

	after, _, err := idx.Page(ctx, next, 10)
	require.NoError(t, err)
	require.Len(t, after, 6)
	for _, e := range after {
		require.Less(t, e.Score, first[3].Score)
	}
}

func TestIndex_ExhaustionReturnsEmptyCursor(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, idx.Upsert(ctx, uuid.New(), float64(i)))
	}

	entries, next, err := idx.Page(ctx, Cursor{}, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.True(t, next.IsZero(), "exactly-full final page must not produce a cursor")
	require.Equal(t, "", next.Encode())
}

func TestIndex_UpsertMovesEntry(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, idx.Upsert(ctx, id, 1.0))
	require.NoError(t, idx.Upsert(ctx, id, 7.5))

	card, err := idx.Card(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, card)

	entries, _, err := idx.Page(ctx, Cursor{}, 1)
	require.NoError(t, err)
	require.Equal(t, 7.5, entries[0].Score)
}

func TestIndex_ClearAndNilClient(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, uuid.New(), 1))
	require.NoError(t, idx.Clear(ctx))
	card, err := idx.Card(ctx)
	require.NoError(t, err)
	require.Zero(t, card)

	degraded := NewIndex(nil, nil)
	require.NoError(t, degraded.Upsert(ctx, uuid.New(), 1))
	entries, next, err := degraded.Page(ctx, Cursor{}, 5)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.True(t, next.IsZero())
}

func TestDecodeCursor(t *testing.T) {
	c := NewCursor(3.25, uuid.New())
	decoded, err := DecodeCursor(c.Encode())
	require.NoError(t, err)
	require.Equal(t, c, decoded)

	zero, err := DecodeCursor("")
	require.NoError(t, err)
	require.True(t, zero.IsZero())

	for _, token := range []string{"!!!", "bm9wZQ", "MS4wfG5vdC1hLXV1aWQ"} {
		_, err := DecodeCursor(token)
		require.ErrorIs(t, err, ErrInvalidCursor)
	}
}
