package reporting

import "time"

// Report represents the reconciliation report structure.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	WindowStart int64 // Unix ms
	WindowEnd   int64 // Unix ms

	// Account summaries rebuilt from the audit log
	Pool        PoolSection
	Stakeholder StakeholderSection

	// Event and claim summaries
	Mints  MintSummary
	Claims ClaimSummary

	// Stale RESERVED claims resolved during this run, by idempotency key
	StaleClaimsResolved []string

	// Conservation and ledger discrepancies. Empty means consistent.
	Discrepancies []string

	// Row listings for CSV export
	MintRows  []MintRow
	ClaimRows []ClaimRow
}

// Consistent reports whether the audit log replayed without discrepancies.
func (r *Report) Consistent() bool {
	return len(r.Discrepancies) == 0
}

// PoolSection is the rebuilt reward pool account.
type PoolSection struct {
	TotalMinted   int64
	TotalClaimed  int64
	Balance       int64
	LedgerBalance *int64 // on-chain balance when the ledger was reachable
}

// StakeholderSection is the rebuilt stakeholder account.
type StakeholderSection struct {
	TotalMinted   int64
	LedgerBalance *int64
}

// MintSummary counts mint events by status.
type MintSummary struct {
	Total     int
	Completed int
	Failed    int
	Pending   int
}

// ClaimSummary counts claims by status.
type ClaimSummary struct {
	Total          int
	Completed      int
	Failed         int
	Rejected       int
	Reserved       int
	CompletedUnits int64
}

// MintRow represents one mint event in the CSV export.
type MintRow struct {
	EventID          string
	Amount           int64
	PoolShare        int64
	StakeholderShare int64
	Status           string
	PoolTxRef        string
	StakeholderTxRef string
	FailedLeg        string
	CreatedAt        int64
	ResolvedAt       int64
}

// ClaimRow represents one claim request in the CSV export.
type ClaimRow struct {
	IdempotencyKey string
	PlayerID       string
	Amount         int64
	Status         string
	Reason         string
	TxRef          string
	CreatedAt      int64
	ResolvedAt     int64
}
