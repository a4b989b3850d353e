package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ethpulse/internal/domain"
	"ethpulse/internal/storage"
)

// MEVMetricStore is an in-memory implementation of storage.MEVMetricStore.
type MEVMetricStore struct {
	mu   sync.RWMutex
	data map[string]*domain.MEVSample // keyed by (block_number, relay_source)
}

// NewMEVMetricStore creates a new in-memory MEV metric store.
func NewMEVMetricStore() *MEVMetricStore {
	return &MEVMetricStore{data: make(map[string]*domain.MEVSample)}
}

// Compile-time interface check.
var _ storage.MEVMetricStore = (*MEVMetricStore)(nil)

// mevKey generates a unique key for a MEV sample.
func mevKey(blockNumber int64, relaySource string) string {
	return fmt.Sprintf("%d|%s", blockNumber, relaySource)
}

// Insert adds a new sample. Returns ErrDuplicateKey if (block_number,
// relay_source) exists.
func (s *MEVMetricStore) Insert(_ context.Context, sample *domain.MEVSample) error {
	if sample == nil || sample.BlockNumber <= 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := mevKey(sample.BlockNumber, sample.RelaySource)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *sample
	s.data[key] = &cp
	return nil
}

// InsertBulk adds multiple samples atomically. Fails entire batch on any
// duplicate.
func (s *MEVMetricStore) InsertBulk(_ context.Context, samples []*domain.MEVSample) error {
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(samples))
	for _, sample := range samples {
		if sample == nil || sample.BlockNumber <= 0 {
			return storage.ErrInvalidInput
		}
		key := mevKey(sample.BlockNumber, sample.RelaySource)
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
		s.data[mevKey(sample.BlockNumber, sample.RelaySource)] = &cp
	}
	return nil
}

// GetByTimeRange retrieves samples within [start, end] (inclusive), ordered
// by timestamp ASC.
func (s *MEVMetricStore) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.MEVSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.MEVSample
	for _, sample := range s.data {
		if !sample.Timestamp.Before(start) && !sample.Timestamp.After(end) {
			cp := *sample
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.Before(result[j].Timestamp)
		}
		return result[i].BlockNumber < result[j].BlockNumber
	})
	return result, nil
}
