package storage

import (
	"context"
	"time"

	"ethpulse/internal/domain"
)

// GasMetricStore provides access to gas_metrics storage.
type GasMetricStore interface {
	// Insert adds a new sample. Returns ErrDuplicateKey if a sample with
	// the same timestamp exists.
	Insert(ctx context.Context, s *domain.GasSample) error

	// InsertBulk adds multiple samples atomically. Fails entire batch on
	// any duplicate.
	InsertBulk(ctx context.Context, samples []*domain.GasSample) error

	// GetByTimeRange retrieves samples within [start, end] (inclusive),
	// ordered by timestamp ASC. Empty result is valid.
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.GasSample, error)
}

// BlockMetricStore provides access to block_metrics storage.
type BlockMetricStore interface {
	// Insert adds a new sample. Returns ErrDuplicateKey if the block
	// number exists.
	Insert(ctx context.Context, s *domain.BlockSample) error

	// InsertBulk adds multiple samples atomically. Fails entire batch on
	// any duplicate.
	InsertBulk(ctx context.Context, samples []*domain.BlockSample) error

	// GetByTimeRange retrieves samples within [start, end] (inclusive),
	// ordered by block number ASC. Empty result is valid.
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.BlockSample, error)
}

// MempoolMetricStore provides access to mempool_metrics storage.
type MempoolMetricStore interface {
	// Insert adds a new sample.
	Insert(ctx context.Context, s *domain.MempoolSample) error

	// GetByTimeRange retrieves samples within [start, end] (inclusive),
	// ordered by timestamp ASC. Empty result is valid.
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.MempoolSample, error)
}

// MEVMetricStore provides access to mev_metrics storage.
type MEVMetricStore interface {
	// Insert adds a new sample. Returns ErrDuplicateKey if (block_number,
	// relay_source) exists.
	Insert(ctx context.Context, s *domain.MEVSample) error

	// InsertBulk adds multiple samples atomically. Fails entire batch on
	// any duplicate.
	InsertBulk(ctx context.Context, samples []*domain.MEVSample) error

	// GetByTimeRange retrieves samples within [start, end] (inclusive),
	// ordered by timestamp ASC. Empty result is valid.
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.MEVSample, error)
}

// HealthScoreStore provides access to computed health score history.
type HealthScoreStore interface {
	// Insert adds a new record.
	Insert(ctx context.Context, r *domain.HealthScoreRecord) error

	// GetLatest retrieves the most recent record. Returns ErrNotFound if
	// no record has been stored yet.
	GetLatest(ctx context.Context) (*domain.HealthScoreRecord, error)

	// GetByTimeRange retrieves records within [start, end] (inclusive),
	// ordered by timestamp ASC. Empty result is valid.
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.HealthScoreRecord, error)
}
