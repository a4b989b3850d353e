package postgres

import (
	"context"
	"fmt"
	"time"

	"ethpulse/internal/domain"
	"ethpulse/internal/storage"
)

// GasMetricStore implements storage.GasMetricStore using PostgreSQL.
type GasMetricStore struct {
	pool *Pool
}

// NewGasMetricStore creates a new GasMetricStore.
func NewGasMetricStore(pool *Pool) *GasMetricStore {
	return &GasMetricStore{pool: pool}
}

// Compile-time interface check.
var _ storage.GasMetricStore = (*GasMetricStore)(nil)

const insertGasQuery = `
	INSERT INTO gas_metrics (
		timestamp, gas_price_wei, gas_price_gwei, pending_txs,
		gas_price_p25, gas_price_p50, gas_price_p75, gas_price_p95
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

// Insert adds a new sample. Returns ErrDuplicateKey if a sample with the
// same timestamp exists.
func (s *GasMetricStore) Insert(ctx context.Context, sample *domain.GasSample) error {
	_, err := s.pool.Exec(ctx, insertGasQuery,
		sample.Timestamp,
		sample.GasPriceWei,
		sample.GasPriceGwei,
		sample.PendingTxs,
		sample.GasPriceP25,
		sample.GasPriceP50,
		sample.GasPriceP75,
		sample.GasPriceP95,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert gas sample: %w", err)
	}
	return nil
}

// InsertBulk adds multiple samples atomically. Fails entire batch on any
// duplicate.
func (s *GasMetricStore) InsertBulk(ctx context.Context, samples []*domain.GasSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, sample := range samples {
		_, err := tx.Exec(ctx, insertGasQuery,
			sample.Timestamp,
			sample.GasPriceWei,
			sample.GasPriceGwei,
			sample.PendingTxs,
			sample.GasPriceP25,
			sample.GasPriceP50,
			sample.GasPriceP75,
			sample.GasPriceP95,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert gas sample in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves samples within [start, end] (inclusive), ordered
// by timestamp ASC.
func (s *GasMetricStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.GasSample, error) {
	query := `
		SELECT timestamp, gas_price_wei, gas_price_gwei, pending_txs,
		       gas_price_p25, gas_price_p50, gas_price_p75, gas_price_p95
		FROM gas_metrics
		WHERE timestamp >= $1 AND timestamp <= $2
		ORDER BY timestamp ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query gas samples: %w", err)
	}
	defer rows.Close()

	var result []*domain.GasSample
	for rows.Next() {
		var sample domain.GasSample
		if err := rows.Scan(
			&sample.Timestamp,
			&sample.GasPriceWei,
			&sample.GasPriceGwei,
			&sample.PendingTxs,
			&sample.GasPriceP25,
			&sample.GasPriceP50,
			&sample.GasPriceP75,
			&sample.GasPriceP95,
		); err != nil {
			return nil, fmt.Errorf("scan gas sample: %w", err)
		}
		result = append(result, &sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gas samples: %w", err)
	}
	return result, nil
}
