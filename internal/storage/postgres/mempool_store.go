package postgres

import (
	"context"
	"fmt"
	"time"

	"ethpulse/internal/domain"
	"ethpulse/internal/storage"
)

// MempoolMetricStore implements storage.MempoolMetricStore using PostgreSQL.
type MempoolMetricStore struct {
	pool *Pool
}

// NewMempoolMetricStore creates a new MempoolMetricStore.
func NewMempoolMetricStore(pool *Pool) *MempoolMetricStore {
	return &MempoolMetricStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MempoolMetricStore = (*MempoolMetricStore)(nil)

// Insert adds a new sample.
func (s *MempoolMetricStore) Insert(ctx context.Context, sample *domain.MempoolSample) error {
	query := `
		INSERT INTO mempool_metrics (
			timestamp, pending_count, avg_gas_price_gwei,
			min_gas_price_gwei, max_gas_price_gwei
		) VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		sample.Timestamp,
		sample.PendingCount,
		sample.AvgGasPriceGwei,
		sample.MinGasPriceGwei,
		sample.MaxGasPriceGwei,
	)
	if err != nil {
		return fmt.Errorf("insert mempool sample: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves samples within [start, end] (inclusive), ordered
// by timestamp ASC.
func (s *MempoolMetricStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.MempoolSample, error) {
	query := `
		SELECT timestamp, pending_count, avg_gas_price_gwei,
		       min_gas_price_gwei, max_gas_price_gwei
		FROM mempool_metrics
		WHERE timestamp >= $1 AND timestamp <= $2
		ORDER BY timestamp ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query mempool samples: %w", err)
	}
	defer rows.Close()

	var result []*domain.MempoolSample
	for rows.Next() {
		var sample domain.MempoolSample
		if err := rows.Scan(
			&sample.Timestamp,
			&sample.PendingCount,
			&sample.AvgGasPriceGwei,
			&sample.MinGasPriceGwei,
			&sample.MaxGasPriceGwei,
		); err != nil {
			return nil, fmt.Errorf("scan mempool sample: %w", err)
		}
		result = append(result, &sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mempool samples: %w", err)
	}
	return result, nil
}
