package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"ethpulse/internal/domain"
	"ethpulse/internal/storage"
)

func blockSample(number int64, ts time.Time) *domain.BlockSample {
	return &domain.BlockSample{
		Timestamp:      ts,
		BlockNumber:    number,
		BlockTimestamp: ts,
		GasUsed:        15_000_000,
		GasLimit:       30_000_000,
		TxCount:        120,
		BaseFeeGwei:    25,
	}
}

func TestBlockMetricStore_OrderedByBlockNumber(t *testing.T) {
	store := NewBlockMetricStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for _, number := range []int64{102, 100, 101} {
		if err := store.Insert(ctx, blockSample(number, base)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.GetByTimeRange(ctx, base, base)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(got))
	}
	for i, want := range []int64{100, 101, 102} {
		if got[i].BlockNumber != want {
			t.Errorf("got[%d].BlockNumber = %d, want %d", i, got[i].BlockNumber, want)
		}
	}
}

func TestBlockMetricStore_DuplicateBlockNumber(t *testing.T) {
	store := NewBlockMetricStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Insert(ctx, blockSample(100, base)); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	// Same block number at a different collection time still collides.
	if err := store.Insert(ctx, blockSample(100, base.Add(time.Minute))); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestBlockMetricStore_InvalidBlockNumber(t *testing.T) {
	store := NewBlockMetricStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Insert(ctx, blockSample(0, base)); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("block 0: expected ErrInvalidInput, got %v", err)
	}
	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("nil sample: expected ErrInvalidInput, got %v", err)
	}
}

func TestBlockMetricStore_InsertBulkAtomic(t *testing.T) {
	store := NewBlockMetricStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Insert(ctx, blockSample(100, base)); err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}

	batch := []*domain.BlockSample{
		blockSample(101, base.Add(12*time.Second)),
		blockSample(100, base.Add(24*time.Second)),
	}
	if err := store.InsertBulk(ctx, batch); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	got, err := store.GetByTimeRange(ctx, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected only the seed sample after failed bulk, got %d", len(got))
	}
}
