package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ethpulse/internal/domain"
	"ethpulse/internal/storage"
)

// GasMetricStore is an in-memory implementation of storage.GasMetricStore.
type GasMetricStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.GasSample // keyed by timestamp (ns)
}

// NewGasMetricStore creates a new in-memory gas metric store.
func NewGasMetricStore() *GasMetricStore {
	return &GasMetricStore{data: make(map[int64]*domain.GasSample)}
}

// Compile-time interface check.
var _ storage.GasMetricStore = (*GasMetricStore)(nil)

// Insert adds a new sample. Returns ErrDuplicateKey if a sample with the
// same timestamp exists.
func (s *GasMetricStore) Insert(_ context.Context, sample *domain.GasSample) error {
	if sample == nil || sample.Timestamp.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := sample.Timestamp.UnixNano()
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *sample
	s.data[key] = &cp
	return nil
}

// InsertBulk adds multiple samples atomically. Fails entire batch on any
// duplicate.
func (s *GasMetricStore) InsertBulk(_ context.Context, samples []*domain.GasSample) error {
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[int64]struct{}, len(samples))
	for _, sample := range samples {
		if sample == nil || sample.Timestamp.IsZero() {
			return storage.ErrInvalidInput
		}
		key := sample.Timestamp.UnixNano()
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, sample := range samples {
		cp := *sample
		s.data[sample.Timestamp.UnixNano()] = &cp
	}
	return nil
}

// GetByTimeRange retrieves samples within [start, end] (inclusive), ordered
// by timestamp ASC.
func (s *GasMetricStore) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.GasSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.GasSample
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
