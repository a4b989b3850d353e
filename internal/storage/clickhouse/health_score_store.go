package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ethpulse/internal/domain"
	"ethpulse/internal/storage"
)

// HealthScoreStore implements storage.HealthScoreStore using ClickHouse.
// Structured fields (components, anomalies, features) are stored as JSON
// columns; scalar fields get their own columns for analytical queries.
type HealthScoreStore struct {
	conn *Conn
}

// NewHealthScoreStore creates a new HealthScoreStore.
func NewHealthScoreStore(conn *Conn) *HealthScoreStore {
	return &HealthScoreStore{conn: conn}
}

// Compile-time interface check.
var _ storage.HealthScoreStore = (*HealthScoreStore)(nil)

const healthScoreColumns = `
	timestamp, overall_score, confidence_level, component_scores,
	component_details, health_status, anomalies, recommendations,
	ml_features, calculation_version
`

// Insert adds one scoring cycle result.
func (s *HealthScoreStore) Insert(ctx context.Context, record *domain.HealthScoreRecord) error {
	componentScores, err := json.Marshal(record.ComponentScores)
	if err != nil {
		return fmt.Errorf("marshal component scores: %w", err)
	}
	components, err := json.Marshal(record.Components)
	if err != nil {
		return fmt.Errorf("marshal component details: %w", err)
	}
	anomalies, err := json.Marshal(record.Anomalies)
	if err != nil {
		return fmt.Errorf("marshal anomalies: %w", err)
	}
	features, err := json.Marshal(record.Features)
	if err != nil {
		return fmt.Errorf("marshal ml features: %w", err)
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO health_scores (`+healthScoreColumns+`)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		record.Timestamp,
		record.OverallScore,
		record.ConfidenceLevel,
		string(componentScores),
		string(components),
		record.HealthStatus,
		string(anomalies),
		record.Recommendations,
		string(features),
		record.CalculationVersion,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetLatest retrieves the most recent record. Returns ErrNotFound when the
// table is empty.
func (s *HealthScoreStore) GetLatest(ctx context.Context) (*domain.HealthScoreRecord, error) {
	query := `
		SELECT ` + healthScoreColumns + `
		FROM health_scores
		ORDER BY timestamp DESC
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query latest health score: %w", err)
	}
	defer rows.Close()

	records, err := scanHealthScores(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, storage.ErrNotFound
	}
	return records[0], nil
}

// GetByTimeRange retrieves records within [start, end] (inclusive), ordered
// by timestamp ASC.
func (s *HealthScoreStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.HealthScoreRecord, error) {
	query := `
		SELECT ` + healthScoreColumns + `
		FROM health_scores
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query health scores by time range: %w", err)
	}
	defer rows.Close()

	return scanHealthScores(rows)
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanHealthScores scans multiple rows, decoding the JSON columns back into
// their structured forms.
func scanHealthScores(rows chRows) ([]*domain.HealthScoreRecord, error) {
	var records []*domain.HealthScoreRecord

	for rows.Next() {
		var r domain.HealthScoreRecord
		var componentScores, components, anomalies, features string

		err := rows.Scan(
			&r.Timestamp, &r.OverallScore, &r.ConfidenceLevel,
			&componentScores, &components, &r.HealthStatus,
			&anomalies, &r.Recommendations, &features,
			&r.CalculationVersion,
		)
		if err != nil {
			return nil, fmt.Errorf("scan health score row: %w", err)
		}

		if err := json.Unmarshal([]byte(componentScores), &r.ComponentScores); err != nil {
			return nil, fmt.Errorf("unmarshal component scores: %w", err)
		}
		if err := json.Unmarshal([]byte(components), &r.Components); err != nil {
			return nil, fmt.Errorf("unmarshal component details: %w", err)
		}
		if err := json.Unmarshal([]byte(anomalies), &r.Anomalies); err != nil {
			return nil, fmt.Errorf("unmarshal anomalies: %w", err)
		}
		if err := json.Unmarshal([]byte(features), &r.Features); err != nil {
			return nil, fmt.Errorf("unmarshal ml features: %w", err)
		}

		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate health score rows: %w", err)
	}

	return records, nil
}
