package domain

// PoolAccount is the aggregate view of the shared pool players draw from.
// Invariant once all in-flight operations settle:
// TotalMinted - TotalClaimed == Balance.
type PoolAccount struct {
	Balance      int64
	TotalMinted  int64
	TotalClaimed int64
}

// Consistent reports whether the conservation invariant holds.
func (a PoolAccount) Consistent() bool {
	return a.TotalMinted-a.TotalClaimed == a.Balance
}

// StakeholderAccount is the fixed-ratio recipient of each mint event.
type StakeholderAccount struct {
	Balance int64
}
