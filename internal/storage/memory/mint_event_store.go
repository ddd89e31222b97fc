package memory

import (
	"context"
	"sort"
	"sync"

	"game-token-engine/internal/domain"
	"game-token-engine/internal/storage"
)

// MintEventStore is an in-memory implementation of storage.MintEventStore.
type MintEventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.MintEvent // keyed by event_id
}

// NewMintEventStore creates a new in-memory mint event store.
func NewMintEventStore() *MintEventStore {
	return &MintEventStore{
		data: make(map[string]*domain.MintEvent),
	}
}

// Compile-time interface check.
var _ storage.MintEventStore = (*MintEventStore)(nil)

// Insert adds a new mint event. Returns ErrDuplicateKey if event_id exists.
func (s *MintEventStore) Insert(_ context.Context, e *domain.MintEvent) error {
	if e == nil || e.EventID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.EventID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	eventCopy := *e
	s.data[e.EventID] = &eventCopy
	return nil
}

// GetByID retrieves an event by its ID. Returns ErrNotFound if not exists.
func (s *MintEventStore) GetByID(_ context.Context, eventID string) (*domain.MintEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.data[eventID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	eventCopy := *e
	return &eventCopy, nil
}

// SetLegTxRef records the confirmed transfer reference for one leg.
func (s *MintEventStore) SetLegTxRef(_ context.Context, eventID, leg, txRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.data[eventID]
	if !exists {
		return storage.ErrNotFound
	}
	if e.Status.Terminal() {
		return storage.ErrInvalidTransition
	}

	ref := txRef
	switch leg {
	case domain.LegPool:
		e.PoolTxRef = &ref
	case domain.LegStakeholder:
		e.StakeholderTxRef = &ref
	default:
		return storage.ErrInvalidInput
	}
	return nil
}

// MarkCompleted transitions a PENDING event to COMPLETED.
func (s *MintEventStore) MarkCompleted(_ context.Context, eventID string, resolvedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.data[eventID]
	if !exists {
		return storage.ErrNotFound
	}
	if e.Status.Terminal() {
		return storage.ErrInvalidTransition
	}

	e.Status = domain.MintStatusCompleted
	e.ResolvedAt = &resolvedAt
	return nil
}

// MarkFailed transitions a PENDING event to FAILED.
func (s *MintEventStore) MarkFailed(_ context.Context, eventID, failedLeg, reason string, resolvedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.data[eventID]
	if !exists {
		return storage.ErrNotFound
	}
	if e.Status.Terminal() {
		return storage.ErrInvalidTransition
	}

	e.Status = domain.MintStatusFailed
	e.FailedLeg = failedLeg
	e.FailureReason = reason
	e.ResolvedAt = &resolvedAt
	return nil
}

// GetPending retrieves all non-terminal events, ordered by created_at ASC.
func (s *MintEventStore) GetPending(_ context.Context) ([]*domain.MintEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*domain.MintEvent
	for _, e := range s.data {
		if !e.Status.Terminal() {
			eventCopy := *e
			events = append(events, &eventCopy)
		}
	}

	sortMintEvents(events)
	return events, nil
}

// GetByTimeRange retrieves events created within [start, end] (inclusive).
func (s *MintEventStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.MintEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*domain.MintEvent
	for _, e := range s.data {
		if e.CreatedAt >= start && e.CreatedAt <= end {
			eventCopy := *e
			events = append(events, &eventCopy)
		}
	}

	sortMintEvents(events)
	return events, nil
}

// SumPoolCredits returns the total pool share across events whose pool leg
// has a confirmed txRef.
func (s *MintEventStore) SumPoolCredits(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, e := range s.data {
		if e.LegConfirmed(domain.LegPool) {
			total += e.PoolShare
		}
	}
	return total, nil
}

// SumStakeholderCredits returns the total stakeholder share across events
// whose stakeholder leg has a confirmed txRef.
func (s *MintEventStore) SumStakeholderCredits(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, e := range s.data {
		if e.LegConfirmed(domain.LegStakeholder) {
			total += e.StakeholderShare
		}
	}
	return total, nil
}

// sortMintEvents orders events by created_at ASC with event_id as tiebreaker.
func sortMintEvents(events []*domain.MintEvent) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt < events[j].CreatedAt
		}
		return events[i].EventID < events[j].EventID
	})
}
