package postgres

import (
	"context"
	"fmt"
	"time"

	"ethpulse/internal/domain"
	"ethpulse/internal/storage"
)

// BlockMetricStore implements storage.BlockMetricStore using PostgreSQL.
type BlockMetricStore struct {
	pool *Pool
}

// NewBlockMetricStore creates a new BlockMetricStore.
func NewBlockMetricStore(pool *Pool) *BlockMetricStore {
	return &BlockMetricStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BlockMetricStore = (*BlockMetricStore)(nil)

const insertBlockQuery = `
	INSERT INTO block_metrics (
		timestamp, block_number, block_timestamp, gas_used, gas_limit,
		tx_count, base_fee_gwei
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// Insert adds a new sample. Returns ErrDuplicateKey if the block number
// exists.
func (s *BlockMetricStore) Insert(ctx context.Context, sample *domain.BlockSample) error {
	_, err := s.pool.Exec(ctx, insertBlockQuery,
		sample.Timestamp,
		sample.BlockNumber,
		sample.BlockTimestamp,
		sample.GasUsed,
		sample.GasLimit,
		sample.TxCount,
		sample.BaseFeeGwei,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert block sample: %w", err)
	}
	return nil
}

// InsertBulk adds multiple samples atomically. Fails entire batch on any
// duplicate.
func (s *BlockMetricStore) InsertBulk(ctx context.Context, samples []*domain.BlockSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, sample := range samples {
		_, err := tx.Exec(ctx, insertBlockQuery,
			sample.Timestamp,
			sample.BlockNumber,
			sample.BlockTimestamp,
			sample.GasUsed,
			sample.GasLimit,
			sample.TxCount,
			sample.BaseFeeGwei,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert block sample in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves samples within [start, end] (inclusive), ordered
// by block number ASC.
func (s *BlockMetricStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.BlockSample, error) {
	query := `
		SELECT timestamp, block_number, block_timestamp, gas_used, gas_limit,
		       tx_count, base_fee_gwei
		FROM block_metrics
		WHERE timestamp >= $1 AND timestamp <= $2
		ORDER BY block_number ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query block samples: %w", err)
	}
	defer rows.Close()

	var result []*domain.BlockSample
	for rows.Next() {
		var sample domain.BlockSample
		if err := rows.Scan(
			&sample.Timestamp,
			&sample.BlockNumber,
			&sample.BlockTimestamp,
			&sample.GasUsed,
			&sample.GasLimit,
			&sample.TxCount,
			&sample.BaseFeeGwei,
		); err != nil {
			return nil, fmt.Errorf("scan block sample: %w", err)
		}
		result = append(result, &sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate block samples: %w", err)
	}
	return result, nil
}
