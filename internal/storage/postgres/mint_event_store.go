package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"game-token-engine/internal/domain"
	"game-token-engine/internal/storage"
)

// MintEventStore implements storage.MintEventStore using PostgreSQL.
type MintEventStore struct {
	pool *Pool
}

// NewMintEventStore creates a new MintEventStore.
func NewMintEventStore(pool *Pool) *MintEventStore {
	return &MintEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MintEventStore = (*MintEventStore)(nil)

const mintEventColumns = `
	event_id, amount, pool_share, stakeholder_share, status,
	pool_tx_ref, stakeholder_tx_ref, failed_leg, failure_reason,
	created_at, resolved_at
`

// Insert adds a new mint event. Returns ErrDuplicateKey if event_id exists.
func (s *MintEventStore) Insert(ctx context.Context, e *domain.MintEvent) error {
	query := `
		INSERT INTO mint_events (
			event_id, amount, pool_share, stakeholder_share, status,
			failed_leg, failure_reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		e.EventID,
		e.Amount,
		e.PoolShare,
		e.StakeholderShare,
		string(e.Status),
		e.FailedLeg,
		e.FailureReason,
		e.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert mint event: %w", err)
	}
	return nil
}

// GetByID retrieves an event by its ID. Returns ErrNotFound if not exists.
func (s *MintEventStore) GetByID(ctx context.Context, eventID string) (*domain.MintEvent, error) {
	query := `SELECT ` + mintEventColumns + ` FROM mint_events WHERE event_id = $1`

	row := s.pool.QueryRow(ctx, query, eventID)
	e, err := scanMintEvent(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get mint event by id: %w", err)
	}
	return e, nil
}

// SetLegTxRef records the confirmed transfer reference for one leg.
// The status guard keeps terminal rows immutable.
func (s *MintEventStore) SetLegTxRef(ctx context.Context, eventID, leg, txRef string) error {
	var column string
	switch leg {
	case domain.LegPool:
		column = "pool_tx_ref"
	case domain.LegStakeholder:
		column = "stakeholder_tx_ref"
	default:
		return storage.ErrInvalidInput
	}

	query := fmt.Sprintf(`
		UPDATE mint_events SET %s = $1
		WHERE event_id = $2 AND status = $3
	`, column)

	tag, err := s.pool.Exec(ctx, query, txRef, eventID, string(domain.MintStatusPending))
	if err != nil {
		return fmt.Errorf("set mint leg tx ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, eventID)
	}
	return nil
}

// MarkCompleted transitions a PENDING event to COMPLETED.
func (s *MintEventStore) MarkCompleted(ctx context.Context, eventID string, resolvedAt int64) error {
	query := `
		UPDATE mint_events SET status = $1, resolved_at = $2
		WHERE event_id = $3 AND status = $4
	`

	tag, err := s.pool.Exec(ctx, query,
		string(domain.MintStatusCompleted), resolvedAt, eventID, string(domain.MintStatusPending))
	if err != nil {
		return fmt.Errorf("mark mint event completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, eventID)
	}
	return nil
}

// MarkFailed transitions a PENDING event to FAILED.
func (s *MintEventStore) MarkFailed(ctx context.Context, eventID, failedLeg, reason string, resolvedAt int64) error {
	query := `
		UPDATE mint_events SET status = $1, failed_leg = $2, failure_reason = $3, resolved_at = $4
		WHERE event_id = $5 AND status = $6
	`

	tag, err := s.pool.Exec(ctx, query,
		string(domain.MintStatusFailed), failedLeg, reason, resolvedAt, eventID, string(domain.MintStatusPending))
	if err != nil {
		return fmt.Errorf("mark mint event failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, eventID)
	}
	return nil
}

// GetPending retrieves all non-terminal events, ordered by created_at ASC.
func (s *MintEventStore) GetPending(ctx context.Context) ([]*domain.MintEvent, error) {
	query := `
		SELECT ` + mintEventColumns + `
		FROM mint_events
		WHERE status = $1
		ORDER BY created_at ASC, event_id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(domain.MintStatusPending))
	if err != nil {
		return nil, fmt.Errorf("get pending mint events: %w", err)
	}
	defer rows.Close()

	return scanMintEvents(rows)
}

// GetByTimeRange retrieves events created within [start, end] (inclusive).
func (s *MintEventStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.MintEvent, error) {
	query := `
		SELECT ` + mintEventColumns + `
		FROM mint_events
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at ASC, event_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get mint events by time range: %w", err)
	}
	defer rows.Close()

	return scanMintEvents(rows)
}

// SumPoolCredits returns the total pool share across events whose pool leg
// has a confirmed txRef.
func (s *MintEventStore) SumPoolCredits(ctx context.Context) (int64, error) {
	query := `SELECT COALESCE(SUM(pool_share), 0) FROM mint_events WHERE pool_tx_ref IS NOT NULL`

	var total int64
	if err := s.pool.QueryRow(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum pool credits: %w", err)
	}
	return total, nil
}

// SumStakeholderCredits returns the total stakeholder share across events
// whose stakeholder leg has a confirmed txRef.
func (s *MintEventStore) SumStakeholderCredits(ctx context.Context) (int64, error) {
	query := `SELECT COALESCE(SUM(stakeholder_share), 0) FROM mint_events WHERE stakeholder_tx_ref IS NOT NULL`

	var total int64
	if err := s.pool.QueryRow(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum stakeholder credits: %w", err)
	}
	return total, nil
}

// transitionError distinguishes a missing row from a terminal one after an
// update matched zero rows.
func (s *MintEventStore) transitionError(ctx context.Context, eventID string) error {
	if _, err := s.GetByID(ctx, eventID); err != nil {
		return err
	}
	return storage.ErrInvalidTransition
}

// scanMintEvent scans a single row into a MintEvent.
func scanMintEvent(row pgx.Row) (*domain.MintEvent, error) {
	var e domain.MintEvent
	var statusStr string

	err := row.Scan(
		&e.EventID,
		&e.Amount,
		&e.PoolShare,
		&e.StakeholderShare,
		&statusStr,
		&e.PoolTxRef,
		&e.StakeholderTxRef,
		&e.FailedLeg,
		&e.FailureReason,
		&e.CreatedAt,
		&e.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Status = domain.MintStatus(statusStr)
	return &e, nil
}

// scanMintEvents scans multiple rows into a slice of MintEvent.
func scanMintEvents(rows pgx.Rows) ([]*domain.MintEvent, error) {
	var events []*domain.MintEvent

	for rows.Next() {
		e, err := scanMintEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mint event row: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mint event rows: %w", err)
	}

	return events, nil
}
