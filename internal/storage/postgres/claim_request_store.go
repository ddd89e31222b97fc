package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"game-token-engine/internal/domain"
	"game-token-engine/internal/storage"
)

// ClaimRequestStore implements storage.ClaimRequestStore using PostgreSQL.
type ClaimRequestStore struct {
	pool *Pool
}

// NewClaimRequestStore creates a new ClaimRequestStore.
func NewClaimRequestStore(pool *Pool) *ClaimRequestStore {
	return &ClaimRequestStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ClaimRequestStore = (*ClaimRequestStore)(nil)

const claimRequestColumns = `
	idempotency_key, player_id, amount, status, reason, tx_ref, created_at, resolved_at
`

// Insert adds a new claim request. Returns ErrDuplicateKey if the key exists.
func (s *ClaimRequestStore) Insert(ctx context.Context, c *domain.ClaimRequest) error {
	query := `
		INSERT INTO claim_requests (
			idempotency_key, player_id, amount, status, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		c.IdempotencyKey,
		c.PlayerID,
		c.Amount,
		string(c.Status),
		c.Reason,
		c.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert claim request: %w", err)
	}
	return nil
}

// GetByKey retrieves a request by idempotency key.
func (s *ClaimRequestStore) GetByKey(ctx context.Context, idempotencyKey string) (*domain.ClaimRequest, error) {
	query := `SELECT ` + claimRequestColumns + ` FROM claim_requests WHERE idempotency_key = $1`

	row := s.pool.QueryRow(ctx, query, idempotencyKey)
	c, err := scanClaimRequest(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get claim request by key: %w", err)
	}
	return c, nil
}

// Resolve transitions a RESERVED request to a terminal status. The status
// guard in the WHERE clause makes the transition at-most-once even under
// concurrent resubmission.
func (s *ClaimRequestStore) Resolve(ctx context.Context, idempotencyKey string, status domain.ClaimStatus, reason string, txRef *string, resolvedAt int64) error {
	if !status.Terminal() {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE claim_requests SET status = $1, reason = $2, tx_ref = $3, resolved_at = $4
		WHERE idempotency_key = $5 AND status = $6
	`

	tag, err := s.pool.Exec(ctx, query,
		string(status), reason, txRef, resolvedAt, idempotencyKey, string(domain.ClaimStatusReserved))
	if err != nil {
		return fmt.Errorf("resolve claim request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetByKey(ctx, idempotencyKey); err != nil {
			return err
		}
		return storage.ErrInvalidTransition
	}
	return nil
}

// GetByPlayer retrieves all requests for a player, ordered by created_at ASC.
func (s *ClaimRequestStore) GetByPlayer(ctx context.Context, playerID string) ([]*domain.ClaimRequest, error) {
	query := `
		SELECT ` + claimRequestColumns + `
		FROM claim_requests
		WHERE player_id = $1
		ORDER BY created_at ASC, idempotency_key ASC
	`

	rows, err := s.pool.Query(ctx, query, playerID)
	if err != nil {
		return nil, fmt.Errorf("get claim requests by player: %w", err)
	}
	defer rows.Close()

	return scanClaimRequests(rows)
}

// GetByStatus retrieves all requests with the given status.
func (s *ClaimRequestStore) GetByStatus(ctx context.Context, status domain.ClaimStatus) ([]*domain.ClaimRequest, error) {
	query := `
		SELECT ` + claimRequestColumns + `
		FROM claim_requests
		WHERE status = $1
		ORDER BY created_at ASC, idempotency_key ASC
	`

	rows, err := s.pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("get claim requests by status: %w", err)
	}
	defer rows.Close()

	return scanClaimRequests(rows)
}

// SumCompleted returns the total amount across COMPLETED requests.
func (s *ClaimRequestStore) SumCompleted(ctx context.Context) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM claim_requests WHERE status = $1`

	var total int64
	if err := s.pool.QueryRow(ctx, query, string(domain.ClaimStatusCompleted)).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum completed claims: %w", err)
	}
	return total, nil
}

// SumCompletedByPlayer returns the total claimed by one player.
func (s *ClaimRequestStore) SumCompletedByPlayer(ctx context.Context, playerID string) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM claim_requests WHERE status = $1 AND player_id = $2`

	var total int64
	if err := s.pool.QueryRow(ctx, query, string(domain.ClaimStatusCompleted), playerID).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum completed claims by player: %w", err)
	}
	return total, nil
}

// scanClaimRequest scans a single row into a ClaimRequest.
func scanClaimRequest(row pgx.Row) (*domain.ClaimRequest, error) {
	var c domain.ClaimRequest
	var statusStr string

	err := row.Scan(
		&c.IdempotencyKey,
		&c.PlayerID,
		&c.Amount,
		&statusStr,
		&c.Reason,
		&c.TxRef,
		&c.CreatedAt,
		&c.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = domain.ClaimStatus(statusStr)
	return &c, nil
}

// scanClaimRequests scans multiple rows into a slice of ClaimRequest.
func scanClaimRequests(rows pgx.Rows) ([]*domain.ClaimRequest, error) {
	var requests []*domain.ClaimRequest

	for rows.Next() {
		c, err := scanClaimRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim request row: %w", err)
		}
		requests = append(requests, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claim request rows: %w", err)
	}

	return requests, nil
}
