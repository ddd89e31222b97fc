package memory

import (
	"context"
	"sort"
	"sync"

	"game-token-engine/internal/domain"
	"game-token-engine/internal/storage"
)

// ActivityStore is an in-memory implementation of storage.ActivityStore.
type ActivityStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.ActivityPoint // keyed by bucket_ms
}

// NewActivityStore creates a new in-memory activity store.
func NewActivityStore() *ActivityStore {
	return &ActivityStore{
		data: make(map[int64]*domain.ActivityPoint),
	}
}

// Compile-time interface check.
var _ storage.ActivityStore = (*ActivityStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate bucket.
func (s *ActivityStore) InsertBulk(_ context.Context, points []*domain.ActivityPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int64]struct{})
	for _, p := range points {
		if p == nil {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[p.BucketMs]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := s.data[p.BucketMs]; exists {
			return storage.ErrDuplicateKey
		}
		seen[p.BucketMs] = struct{}{}
	}

	for _, p := range points {
		pointCopy := *p
		s.data[p.BucketMs] = &pointCopy
	}
	return nil
}

// GetByTimeRange retrieves points within [start, end] (inclusive), ordered by bucket ASC.
func (s *ActivityStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.ActivityPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var points []*domain.ActivityPoint
	for _, p := range s.data {
		if p.BucketMs >= start && p.BucketMs <= end {
			pointCopy := *p
			points = append(points, &pointCopy)
		}
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].BucketMs < points[j].BucketMs
	})
	return points, nil
}
