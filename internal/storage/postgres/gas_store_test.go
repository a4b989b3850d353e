package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ethpulse/internal/domain"
	"ethpulse/internal/storage"
	"ethpulse/internal/storage/postgres"
)

func ptr(v float64) *float64 { return &v }

func TestGasMetricStore_InsertAndGetByTimeRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewGasMetricStore(pool)
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	sample := &domain.GasSample{
		Timestamp:    ts,
		GasPriceWei:  30_000_000_000,
		GasPriceGwei: 30,
		PendingTxs:   1500,
		GasPriceP25:  ptr(25),
		GasPriceP50:  ptr(30),
		GasPriceP75:  ptr(35),
		GasPriceP95:  ptr(42.5),
	}
	require.NoError(t, store.Insert(ctx, sample))

	got, err := store.GetByTimeRange(ctx, ts.Add(-time.Minute), ts.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.True(t, got[0].Timestamp.Equal(ts))
	assert.Equal(t, sample.GasPriceWei, got[0].GasPriceWei)
	assert.Equal(t, sample.GasPriceGwei, got[0].GasPriceGwei)
	assert.Equal(t, sample.PendingTxs, got[0].PendingTxs)
	require.NotNil(t, got[0].GasPriceP95)
	assert.Equal(t, 42.5, *got[0].GasPriceP95)
}

func TestGasMetricStore_NullPercentiles(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewGasMetricStore(pool)
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, &domain.GasSample{
		Timestamp:    ts,
		GasPriceWei:  30_000_000_000,
		GasPriceGwei: 30,
	}))

	got, err := store.GetByTimeRange(ctx, ts, ts)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].GasPriceP25)
	assert.Nil(t, got[0].GasPriceP50)
	assert.Nil(t, got[0].GasPriceP75)
	assert.Nil(t, got[0].GasPriceP95)
}

func TestGasMetricStore_DuplicateTimestamp(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewGasMetricStore(pool)
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, &domain.GasSample{Timestamp: ts, GasPriceWei: 1, GasPriceGwei: 1}))

	err := store.Insert(ctx, &domain.GasSample{Timestamp: ts, GasPriceWei: 2, GasPriceGwei: 2})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestGasMetricStore_InsertBulkAtomic(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewGasMetricStore(pool)
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, &domain.GasSample{Timestamp: ts, GasPriceWei: 1, GasPriceGwei: 1}))

	batch := []*domain.GasSample{
		{Timestamp: ts.Add(time.Minute), GasPriceWei: 2, GasPriceGwei: 2},
		{Timestamp: ts, GasPriceWei: 3, GasPriceGwei: 3},
	}
	err := store.InsertBulk(ctx, batch)
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	// The batch rolls back whole: the colliding sample must not leave its
	// sibling behind.
	got, err := store.GetByTimeRange(ctx, ts, ts.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestGasMetricStore_OrderedByTimestamp(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewGasMetricStore(pool)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for _, offset := range []time.Duration{2 * time.Minute, 0, time.Minute} {
		require.NoError(t, store.Insert(ctx, &domain.GasSample{
			Timestamp:    base.Add(offset),
			GasPriceWei:  30_000_000_000,
			GasPriceGwei: 30,
		}))
	}

	got, err := store.GetByTimeRange(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].Timestamp.After(got[i-1].Timestamp))
	}
}
