package domain

// MintStatus is the lifecycle state of a mint event.
type MintStatus string

const (
	MintStatusPending   MintStatus = "PENDING"
	MintStatusCompleted MintStatus = "COMPLETED"
	MintStatusFailed    MintStatus = "FAILED"
)

// Mint legs. Each mint event drives two independent transfers.
const (
	LegPool        = "POOL"
	LegStakeholder = "STAKEHOLDER"
)

// MintEvent represents one scheduled creation-and-split of token units.
// Corresponds to the mint_events table. A row is inserted as PENDING before
// any transfer is attempted; once COMPLETED or FAILED it is never mutated
// again except by the audit store marking it terminal.
type MintEvent struct {
	EventID          string // deterministic hash, see idhash
	Amount           int64  // smallest ledger unit
	PoolShare        int64
	StakeholderShare int64
	Status           MintStatus
	PoolTxRef        *string // confirmed pool-leg transfer reference
	StakeholderTxRef *string // confirmed stakeholder-leg transfer reference
	FailedLeg        string  // failed leg(s) when Status is FAILED, comma-separated when both
	FailureReason    string  // ledger error detail for the first failed leg
	CreatedAt        int64   // unix ms
	ResolvedAt       *int64  // unix ms, set on terminal transition
}

// Terminal reports whether the event reached a final state.
func (s MintStatus) Terminal() bool {
	return s == MintStatusCompleted || s == MintStatusFailed
}

// LegConfirmed reports whether the given leg already has a confirmed txRef.
func (e *MintEvent) LegConfirmed(leg string) bool {
	switch leg {
	case LegPool:
		return e.PoolTxRef != nil && *e.PoolTxRef != ""
	case LegStakeholder:
		return e.StakeholderTxRef != nil && *e.StakeholderTxRef != ""
	}
	return false
}
