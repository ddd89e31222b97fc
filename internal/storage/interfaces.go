package storage

import (
	"context"

	"game-token-engine/internal/domain"
)

// MintEventStore provides access to mint_events storage.
// Rows are inserted as PENDING before any transfer runs and receive at most
// one terminal transition afterwards.
type MintEventStore interface {
	// Insert adds a new mint event. Returns ErrDuplicateKey if event_id exists.
	Insert(ctx context.Context, e *domain.MintEvent) error

	// GetByID retrieves an event by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, eventID string) (*domain.MintEvent, error)

	// SetLegTxRef records the confirmed transfer reference for one leg.
	// Returns ErrInvalidTransition if the event is already terminal.
	SetLegTxRef(ctx context.Context, eventID, leg, txRef string) error

	// MarkCompleted transitions a PENDING event to COMPLETED.
	// Returns ErrInvalidTransition if the event is already terminal.
	MarkCompleted(ctx context.Context, eventID string, resolvedAt int64) error

	// MarkFailed transitions a PENDING event to FAILED, identifying the leg
	// that failed permanently. Returns ErrInvalidTransition if already terminal.
	MarkFailed(ctx context.Context, eventID, failedLeg, reason string, resolvedAt int64) error

	// GetPending retrieves all non-terminal events, ordered by created_at ASC.
	// Used by crash recovery to resume interrupted mints.
	GetPending(ctx context.Context) ([]*domain.MintEvent, error)

	// GetByTimeRange retrieves events created within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.MintEvent, error)

	// SumPoolCredits returns the total pool share across events whose pool
	// leg has a confirmed txRef. Funds moved even for partially failed events.
	SumPoolCredits(ctx context.Context) (int64, error)

	// SumStakeholderCredits returns the total stakeholder share across events
	// whose stakeholder leg has a confirmed txRef.
	SumStakeholderCredits(ctx context.Context) (int64, error)
}

// ClaimRequestStore provides access to claim_requests storage, keyed by
// idempotency key. A key receives at most one terminal transition; lookups
// after that return the stored resolution unchanged.
type ClaimRequestStore interface {
	// Insert adds a new claim request. Returns ErrDuplicateKey if the
	// idempotency key was already seen.
	Insert(ctx context.Context, c *domain.ClaimRequest) error

	// GetByKey retrieves a request by idempotency key. Returns ErrNotFound
	// if not exists.
	GetByKey(ctx context.Context, idempotencyKey string) (*domain.ClaimRequest, error)

	// Resolve transitions a RESERVED request to a terminal status.
	// Returns ErrInvalidTransition if the request is already terminal.
	Resolve(ctx context.Context, idempotencyKey string, status domain.ClaimStatus, reason string, txRef *string, resolvedAt int64) error

	// GetByPlayer retrieves all requests for a player, ordered by created_at ASC.
	GetByPlayer(ctx context.Context, playerID string) ([]*domain.ClaimRequest, error)

	// GetByStatus retrieves all requests with the given status, ordered by
	// created_at ASC. Used by crash recovery to find stranded RESERVED rows.
	GetByStatus(ctx context.Context, status domain.ClaimStatus) ([]*domain.ClaimRequest, error)

	// SumCompleted returns the total amount across COMPLETED requests.
	SumCompleted(ctx context.Context) (int64, error)

	// SumCompletedByPlayer returns the total claimed by one player.
	SumCompletedByPlayer(ctx context.Context, playerID string) (int64, error)
}

// ActivityStore provides access to the activity_timeseries analytics sink.
// Best-effort: the engine never reads it back for correctness.
type ActivityStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate bucket.
	InsertBulk(ctx context.Context, points []*domain.ActivityPoint) error

	// GetByTimeRange retrieves points within [start, end] (inclusive),
	// ordered by bucket ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.ActivityPoint, error)
}
