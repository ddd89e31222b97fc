package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-token-engine/internal/domain"
	"game-token-engine/internal/storage"
)

func TestActivityStore_InsertBulkAndQuery(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewActivityStore(conn)
	ctx := context.Background()

	points := []*domain.ActivityPoint{
		{BucketMs: 60000, MintedUnits: 100, ClaimedUnits: 30, MintEvents: 1, ClaimsResolved: 2},
		{BucketMs: 120000, MintedUnits: 100, ClaimedUnits: 0, MintEvents: 1, ClaimsResolved: 0},
		{BucketMs: 180000, MintedUnits: 0, ClaimedUnits: 45, MintEvents: 0, ClaimsResolved: 3},
	}
	require.NoError(t, store.InsertBulk(ctx, points))

	got, err := store.GetByTimeRange(ctx, 60000, 120000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(60000), got[0].BucketMs)
	assert.Equal(t, int64(100), got[0].MintedUnits)
	assert.Equal(t, int64(30), got[0].ClaimedUnits)
	assert.Equal(t, int64(120000), got[1].BucketMs)
}

func TestActivityStore_DuplicateBucket(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewActivityStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.ActivityPoint{
		{BucketMs: 60000, MintedUnits: 100},
	}))

	// Duplicate against existing rows
	err := store.InsertBulk(ctx, []*domain.ActivityPoint{
		{BucketMs: 60000, MintedUnits: 50},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Intra-batch duplicate
	err = store.InsertBulk(ctx, []*domain.ActivityPoint{
		{BucketMs: 120000},
		{BucketMs: 120000},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestActivityStore_EmptyBatch(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewActivityStore(conn)
	require.NoError(t, store.InsertBulk(context.Background(), nil))
}
