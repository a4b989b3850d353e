package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ethpulse/internal/domain"
	"ethpulse/internal/storage"
)

// HealthScoreStore is an in-memory implementation of storage.HealthScoreStore.
type HealthScoreStore struct {
	mu   sync.RWMutex
	data []*domain.HealthScoreRecord
}

// NewHealthScoreStore creates a new in-memory health score store.
func NewHealthScoreStore() *HealthScoreStore {
	return &HealthScoreStore{}
}

// Compile-time interface check.
var _ storage.HealthScoreStore = (*HealthScoreStore)(nil)

// Insert adds a new record.
func (s *HealthScoreStore) Insert(_ context.Context, r *domain.HealthScoreRecord) error {
	if r == nil || r.Timestamp.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.data = append(s.data, &cp)
	return nil
}

// GetLatest retrieves the most recent record. Returns ErrNotFound if no
// record has been stored yet.
func (s *HealthScoreStore) GetLatest(_ context.Context) (*domain.HealthScoreRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.data) == 0 {
		return nil, storage.ErrNotFound
	}

	latest := s.data[0]
	for _, r := range s.data[1:] {
		if r.Timestamp.After(latest.Timestamp) {
			latest = r
		}
	}
	cp := *latest
	return &cp, nil
}

// GetByTimeRange retrieves records within [start, end] (inclusive), ordered
// by timestamp ASC.
func (s *HealthScoreStore) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.HealthScoreRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.HealthScoreRecord
	for _, r := range s.data {
		if !r.Timestamp.Before(start) && !r.Timestamp.After(end) {
			cp := *r
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}
