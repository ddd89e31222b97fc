package domain

// ActivityPoint is one time bucket of aggregated mint/claim volume.
// Corresponds to the activity_timeseries analytics table. Purely an
// observability artifact; balances are never derived from it.
type ActivityPoint struct {
	BucketMs       int64 // bucket start, unix ms
	MintedUnits    int64
	ClaimedUnits   int64
	MintEvents     int64
	ClaimsResolved int64
}
