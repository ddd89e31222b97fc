package reconcile

import (
	"sort"

	"game-token-engine/internal/domain"
	"game-token-engine/internal/reporting"
)

// BuildActivity buckets a report's rows into an activity timeseries.
// Minted units land in the bucket of the mint event's creation; claimed
// units in the bucket of the claim's resolution. Only confirmed transfers
// count.
func BuildActivity(report *reporting.Report, bucketSizeMs int64) []*domain.ActivityPoint {
	if bucketSizeMs <= 0 {
		bucketSizeMs = 60_000
	}

	buckets := make(map[int64]*domain.ActivityPoint)
	obtain := func(ts int64) *domain.ActivityPoint {
		bucket := ts - ts%bucketSizeMs
		point, ok := buckets[bucket]
		if !ok {
			point = &domain.ActivityPoint{BucketMs: bucket}
			buckets[bucket] = point
		}
		return point
	}

	for _, row := range report.MintRows {
		point := obtain(row.CreatedAt)
		point.MintEvents++
		if row.PoolTxRef != "" {
			point.MintedUnits += row.PoolShare
		}
		if row.StakeholderTxRef != "" {
			point.MintedUnits += row.StakeholderShare
		}
	}

	for _, row := range report.ClaimRows {
		if row.ResolvedAt == 0 {
			continue
		}
		point := obtain(row.ResolvedAt)
		point.ClaimsResolved++
		if row.Status == string(domain.ClaimStatusCompleted) {
			point.ClaimedUnits += row.Amount
		}
	}

	points := make([]*domain.ActivityPoint, 0, len(buckets))
	for _, point := range buckets {
		points = append(points, point)
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].BucketMs < points[j].BucketMs
	})
	return points
}
