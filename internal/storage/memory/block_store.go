package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ethpulse/internal/domain"
	"ethpulse/internal/storage"
)

// BlockMetricStore is an in-memory implementation of storage.BlockMetricStore.
type BlockMetricStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.BlockSample // keyed by block number
}

// NewBlockMetricStore creates a new in-memory block metric store.
func NewBlockMetricStore() *BlockMetricStore {
	return &BlockMetricStore{data: make(map[int64]*domain.BlockSample)}
}

// Compile-time interface check.
var _ storage.BlockMetricStore = (*BlockMetricStore)(nil)

// Insert adds a new sample. Returns ErrDuplicateKey if the block number
// exists.
func (s *BlockMetricStore) Insert(_ context.Context, sample *domain.BlockSample) error {
	if sample == nil || sample.BlockNumber <= 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[sample.BlockNumber]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *sample
	s.data[sample.BlockNumber] = &cp
	return nil
}

// InsertBulk adds multiple samples atomically. Fails entire batch on any
// duplicate.
func (s *BlockMetricStore) InsertBulk(_ context.Context, samples []*domain.BlockSample) error {
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[int64]struct{}, len(samples))
	for _, sample := range samples {
		if sample == nil || sample.BlockNumber <= 0 {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[sample.BlockNumber]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[sample.BlockNumber]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[sample.BlockNumber] = struct{}{}
	}

	for _, sample := range samples {
		cp := *sample
		s.data[sample.BlockNumber] = &cp
	}
	return nil
}

// GetByTimeRange retrieves samples within [start, end] (inclusive), ordered
// by block number ASC.
func (s *BlockMetricStore) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.BlockSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BlockSample
	for _, sample := range s.data {
		if !sample.Timestamp.Before(start) && !sample.Timestamp.After(end) {
			cp := *sample
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BlockNumber < result[j].BlockNumber
	})
	return result, nil
}
