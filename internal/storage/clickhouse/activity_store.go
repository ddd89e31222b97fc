package clickhouse

import (
	"context"
	"fmt"

	"game-token-engine/internal/domain"
	"game-token-engine/internal/storage"
)

// ActivityStore implements storage.ActivityStore using ClickHouse.
// Analytics sink only; balances are reconciled from Postgres, never from here.
type ActivityStore struct {
	conn *Conn
}

// NewActivityStore creates a new ActivityStore.
func NewActivityStore(conn *Conn) *ActivityStore {
	return &ActivityStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ActivityStore = (*ActivityStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate bucket.
func (s *ActivityStore) InsertBulk(ctx context.Context, points []*domain.ActivityPoint) error {
	if len(points) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[int64]struct{})
	for _, p := range points {
		if _, exists := seen[p.BucketMs]; exists {
			return storage.ErrDuplicateKey
		}
		seen[p.BucketMs] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, p := range points {
		exists, err := s.exists(ctx, p.BucketMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO activity_timeseries (
			bucket_ms, minted_units, claimed_units, mint_events, claims_resolved
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			uint64(p.BucketMs),
			uint64(p.MintedUnits),
			uint64(p.ClaimedUnits),
			uint32(p.MintEvents),
			uint32(p.ClaimsResolved),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves points within [start, end] (inclusive), ordered by bucket ASC.
func (s *ActivityStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.ActivityPoint, error) {
	query := `
		SELECT bucket_ms, minted_units, claimed_units, mint_events, claims_resolved
		FROM activity_timeseries
		WHERE bucket_ms >= ? AND bucket_ms <= ?
		ORDER BY bucket_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query activity timeseries: %w", err)
	}
	defer rows.Close()

	var points []*domain.ActivityPoint
	for rows.Next() {
		var bucket, minted, claimed uint64
		var mints, claims uint32

		if err := rows.Scan(&bucket, &minted, &claimed, &mints, &claims); err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}

		points = append(points, &domain.ActivityPoint{
			BucketMs:       int64(bucket),
			MintedUnits:    int64(minted),
			ClaimedUnits:   int64(claimed),
			MintEvents:     int64(mints),
			ClaimsResolved: int64(claims),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity rows: %w", err)
	}

	return points, nil
}

// exists checks whether a bucket already has a row.
func (s *ActivityStore) exists(ctx context.Context, bucketMs int64) (bool, error) {
	query := `SELECT count() FROM activity_timeseries WHERE bucket_ms = ?`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, uint64(bucketMs)).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
