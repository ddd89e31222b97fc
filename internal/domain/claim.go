package domain

// ClaimStatus is the lifecycle state of a claim request.
type ClaimStatus string

const (
	ClaimStatusReserved  ClaimStatus = "RESERVED"
	ClaimStatusCompleted ClaimStatus = "COMPLETED"
	ClaimStatusFailed    ClaimStatus = "FAILED"
	ClaimStatusRejected  ClaimStatus = "REJECTED"
)

// Rejection / failure reason codes stored on terminal claim requests and
// returned to the caller.
const (
	ReasonInsufficientPool = "INSUFFICIENT_POOL_BALANCE"
	ReasonClaimTooLarge    = "CLAIM_TOO_LARGE"
	ReasonInvalidAmount    = "INVALID_AMOUNT"
	ReasonInvalidAddress   = "INVALID_ADDRESS"
	ReasonTransferFailed   = "TRANSFER_FAILED"
	ReasonAuthority        = "AUTHORITY_UNAVAILABLE"
	ReasonStale            = "STALE_RESERVATION"
)

// ClaimRequest represents a player-initiated withdrawal from the pool.
// Corresponds to the claim_requests table, keyed by idempotency key.
// A given key transitions through at most one terminal state; resubmission
// returns the stored resolution unchanged.
type ClaimRequest struct {
	IdempotencyKey string
	PlayerID       string
	Amount         int64 // smallest ledger unit
	Status         ClaimStatus
	Reason         string  // reason code when REJECTED or FAILED
	TxRef          *string // confirmed transfer reference when COMPLETED
	CreatedAt      int64   // unix ms
	ResolvedAt     *int64  // unix ms, set on terminal transition
}

// Terminal reports whether the claim reached a final state. RESERVED is the
// only non-terminal status and exists solely to make an in-flight claim
// visible to crash recovery.
func (s ClaimStatus) Terminal() bool {
	return s == ClaimStatusCompleted || s == ClaimStatusFailed || s == ClaimStatusRejected
}
