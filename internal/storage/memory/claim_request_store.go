package memory

import (
	"context"
	"sort"
	"sync"

	"game-token-engine/internal/domain"
	"game-token-engine/internal/storage"
)

// ClaimRequestStore is an in-memory implementation of storage.ClaimRequestStore.
type ClaimRequestStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ClaimRequest // keyed by idempotency_key
}

// NewClaimRequestStore creates a new in-memory claim request store.
func NewClaimRequestStore() *ClaimRequestStore {
	return &ClaimRequestStore{
		data: make(map[string]*domain.ClaimRequest),
	}
}

// Compile-time interface check.
var _ storage.ClaimRequestStore = (*ClaimRequestStore)(nil)

// Insert adds a new claim request. Returns ErrDuplicateKey if the key exists.
func (s *ClaimRequestStore) Insert(_ context.Context, c *domain.ClaimRequest) error {
	if c == nil || c.IdempotencyKey == "" || c.PlayerID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.IdempotencyKey]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	reqCopy := *c
	s.data[c.IdempotencyKey] = &reqCopy
	return nil
}

// GetByKey retrieves a request by idempotency key.
func (s *ClaimRequestStore) GetByKey(_ context.Context, idempotencyKey string) (*domain.ClaimRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[idempotencyKey]
	if !exists {
		return nil, storage.ErrNotFound
	}

	reqCopy := *c
	return &reqCopy, nil
}

// Resolve transitions a RESERVED request to a terminal status.
func (s *ClaimRequestStore) Resolve(_ context.Context, idempotencyKey string, status domain.ClaimStatus, reason string, txRef *string, resolvedAt int64) error {
	if !status.Terminal() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[idempotencyKey]
	if !exists {
		return storage.ErrNotFound
	}
	if c.Status.Terminal() {
		return storage.ErrInvalidTransition
	}

	c.Status = status
	c.Reason = reason
	if txRef != nil {
		ref := *txRef
		c.TxRef = &ref
	}
	c.ResolvedAt = &resolvedAt
	return nil
}

// GetByPlayer retrieves all requests for a player, ordered by created_at ASC.
func (s *ClaimRequestStore) GetByPlayer(_ context.Context, playerID string) ([]*domain.ClaimRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var requests []*domain.ClaimRequest
	for _, c := range s.data {
		if c.PlayerID == playerID {
			reqCopy := *c
			requests = append(requests, &reqCopy)
		}
	}

	sortClaimRequests(requests)
	return requests, nil
}

// GetByStatus retrieves all requests with the given status, ordered by created_at ASC.
func (s *ClaimRequestStore) GetByStatus(_ context.Context, status domain.ClaimStatus) ([]*domain.ClaimRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var requests []*domain.ClaimRequest
	for _, c := range s.data {
		if c.Status == status {
			reqCopy := *c
			requests = append(requests, &reqCopy)
		}
	}

	sortClaimRequests(requests)
	return requests, nil
}

// SumCompleted returns the total amount across COMPLETED requests.
func (s *ClaimRequestStore) SumCompleted(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, c := range s.data {
		if c.Status == domain.ClaimStatusCompleted {
			total += c.Amount
		}
	}
	return total, nil
}

// SumCompletedByPlayer returns the total claimed by one player.
func (s *ClaimRequestStore) SumCompletedByPlayer(_ context.Context, playerID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, c := range s.data {
		if c.PlayerID == playerID && c.Status == domain.ClaimStatusCompleted {
			total += c.Amount
		}
	}
	return total, nil
}

// sortClaimRequests orders requests by created_at ASC with key as tiebreaker.
func sortClaimRequests(requests []*domain.ClaimRequest) {
	sort.Slice(requests, func(i, j int) bool {
		if requests[i].CreatedAt != requests[j].CreatedAt {
			return requests[i].CreatedAt < requests[j].CreatedAt
		}
		return requests[i].IdempotencyKey < requests[j].IdempotencyKey
	})
}
