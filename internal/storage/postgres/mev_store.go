package postgres

import (
	"context"
	"fmt"
	"time"

	"ethpulse/internal/domain"
	"ethpulse/internal/storage"
)

// MEVMetricStore implements storage.MEVMetricStore using PostgreSQL.
type MEVMetricStore struct {
	pool *Pool
}

// NewMEVMetricStore creates a new MEVMetricStore.
func NewMEVMetricStore(pool *Pool) *MEVMetricStore {
	return &MEVMetricStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MEVMetricStore = (*MEVMetricStore)(nil)

const insertMEVQuery = `
	INSERT INTO mev_metrics (
		timestamp, block_number, slot, revenue_eth, builder_pubkey,
		relay_source, gas_used, gas_limit, gas_utilization, sandwich_count
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

// Insert adds a new sample. Returns ErrDuplicateKey if (block_number,
// relay_source) exists.
func (s *MEVMetricStore) Insert(ctx context.Context, sample *domain.MEVSample) error {
	_, err := s.pool.Exec(ctx, insertMEVQuery,
		sample.Timestamp,
		sample.BlockNumber,
		sample.Slot,
		sample.RevenueETH,
		sample.BuilderPubkey,
		sample.RelaySource,
		sample.GasUsed,
		sample.GasLimit,
		sample.GasUtilization,
		sample.SandwichCount,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert mev sample: %w", err)
	}
	return nil
}

// InsertBulk adds multiple samples atomically. Fails entire batch on any
// duplicate.
func (s *MEVMetricStore) InsertBulk(ctx context.Context, samples []*domain.MEVSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, sample := range samples {
		_, err := tx.Exec(ctx, insertMEVQuery,
			sample.Timestamp,
			sample.BlockNumber,
			sample.Slot,
			sample.RevenueETH,
			sample.BuilderPubkey,
			sample.RelaySource,
			sample.GasUsed,
			sample.GasLimit,
			sample.GasUtilization,
			sample.SandwichCount,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert mev sample in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves samples within [start, end] (inclusive), ordered
// by timestamp ASC.
func (s *MEVMetricStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.MEVSample, error) {
	query := `
		SELECT timestamp, block_number, slot, revenue_eth, builder_pubkey,
		       relay_source, gas_used, gas_limit, gas_utilization, sandwich_count
		FROM mev_metrics
		WHERE timestamp >= $1 AND timestamp <= $2
		ORDER BY timestamp ASC, block_number ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query mev samples: %w", err)
	}
	defer rows.Close()

	var result []*domain.MEVSample
	for rows.Next() {
		var sample domain.MEVSample
		if err := rows.Scan(
			&sample.Timestamp,
			&sample.BlockNumber,
			&sample.Slot,
			&sample.RevenueETH,
			&sample.BuilderPubkey,
			&sample.RelaySource,
			&sample.GasUsed,
			&sample.GasLimit,
			&sample.GasUtilization,
			&sample.SandwichCount,
		); err != nil {
			return nil, fmt.Errorf("scan mev sample: %w", err)
		}
		result = append(result, &sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mev samples: %w", err)
	}
	return result, nil
}
