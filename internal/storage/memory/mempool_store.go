package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ethpulse/internal/domain"
	"ethpulse/internal/storage"
)

// MempoolMetricStore is an in-memory implementation of
// storage.MempoolMetricStore.
type MempoolMetricStore struct {
	mu   sync.RWMutex
	data []*domain.MempoolSample
}

// NewMempoolMetricStore creates a new in-memory mempool metric store.
func NewMempoolMetricStore() *MempoolMetricStore {
	return &MempoolMetricStore{}
}

// Compile-time interface check.
var _ storage.MempoolMetricStore = (*MempoolMetricStore)(nil)

// Insert adds a new sample.
func (s *MempoolMetricStore) Insert(_ context.Context, sample *domain.MempoolSample) error {
	if sample == nil || sample.Timestamp.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sample
	s.data = append(s.data, &cp)
	return nil
}

// GetByTimeRange retrieves samples within [start, end] (inclusive), ordered
// by timestamp ASC.
func (s *MempoolMetricStore) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.MempoolSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.MempoolSample
	for _, sample := range s.data {
		if !sample.Timestamp.Before(start) && !sample.Timestamp.After(end) {
			cp := *sample
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}
